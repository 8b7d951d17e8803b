// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"environment-key-service/internal/domain"
)

// EnvironmentKeyModel はgorm用のモデル定義。
type EnvironmentKeyModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	EnvironmentID string    `gorm:"column:environment_id;not null"`
	Algorithm     string    `gorm:"column:algorithm;not null"`
	EncryptedKey  string    `gorm:"column:key;not null"`
	Active        bool      `gorm:"column:active;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

// TableName はテーブル名を返す。
func (EnvironmentKeyModel) TableName() string {
	return "environment_keys"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *EnvironmentKeyModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *EnvironmentKeyModel) toDomain() *domain.EnvironmentKey {
	return &domain.EnvironmentKey{
		ID:            m.ID,
		EnvironmentID: m.EnvironmentID,
		Algorithm:     domain.Algorithm(m.Algorithm),
		EncryptedKey:  m.EncryptedKey,
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// EnvironmentKeyRepository は environment_keys テーブルへのアクセスを提供する。
// ストレージ固有のエラーはここでドメインのエラーに変換し、上位には漏らさない。
type EnvironmentKeyRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// EnvironmentKeyRepositoryOption は EnvironmentKeyRepository の設定を変更する。
type EnvironmentKeyRepositoryOption func(*EnvironmentKeyRepository)

// WithClock は created_at / updated_at に使う時刻の取得元を差し替える。
func WithClock(now func() time.Time) EnvironmentKeyRepositoryOption {
	return func(r *EnvironmentKeyRepository) {
		r.now = now
	}
}

// NewEnvironmentKeyRepository は新しいEnvironmentKeyRepositoryを生成する。
func NewEnvironmentKeyRepository(db *gorm.DB, opts ...EnvironmentKeyRepositoryOption) *EnvironmentKeyRepository {
	r := &EnvironmentKeyRepository{db: db, now: defaultNow}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DATETIME(6) に合わせてマイクロ秒で丸める
func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Create は鍵を1回のINSERTで保存する。(environment_id, algorithm) の重複はDBの一意制約で検出する。
func (r *EnvironmentKeyRepository) Create(ctx context.Context, key *domain.EnvironmentKey) error {
	now := r.now()
	model := &EnvironmentKeyModel{
		ID:            key.ID,
		EnvironmentID: key.EnvironmentID,
		Algorithm:     string(key.Algorithm),
		EncryptedKey:  key.EncryptedKey,
		Active:        key.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create environment key",
			"operation", "create",
			"environment_id", key.EnvironmentID,
			"algorithm", key.Algorithm,
			"error", err,
		)
		return environmentKeyWriteError(err, domain.ErrForeignKeyConstraint)
	}
	// gormで設定された値をドメインエンティティに反映
	key.ID = model.ID
	key.CreatedAt = model.CreatedAt
	key.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたIDの鍵を取得する。
func (r *EnvironmentKeyRepository) FindByID(ctx context.Context, id string) (*domain.EnvironmentKey, error) {
	var model EnvironmentKeyModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEnvironmentKeyNotFound
		}
		slog.ErrorContext(ctx, "failed to find environment key",
			"operation", "find_by_id",
			"id", id,
			"error", err,
		)
		return nil, storageError(err)
	}
	return model.toDomain(), nil
}

// FindActive は (environment_id, algorithm) に一致する有効な鍵を取得する。
func (r *EnvironmentKeyRepository) FindActive(ctx context.Context, environmentID string, alg domain.Algorithm) (*domain.EnvironmentKey, error) {
	var model EnvironmentKeyModel
	err := r.db.WithContext(ctx).
		Where("environment_id = ? AND algorithm = ? AND active = ?", environmentID, string(alg), true).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEnvironmentKeyNotFound
		}
		slog.ErrorContext(ctx, "failed to find active environment key",
			"operation", "find_active",
			"environment_id", environmentID,
			"algorithm", alg,
			"error", err,
		)
		return nil, storageError(err)
	}
	return model.toDomain(), nil
}

// Find は条件に一致する鍵を一覧で取得する。sorts が空の場合は id の降順。
func (r *EnvironmentKeyRepository) Find(ctx context.Context, filter domain.EnvironmentKeyFilter, sorts []domain.Sort, page domain.Pagination) ([]*domain.EnvironmentKey, error) {
	query := r.db.WithContext(ctx).Model(&EnvironmentKeyModel{})
	if filter.EnvironmentID != nil {
		query = query.Where("environment_id = ?", *filter.EnvironmentID)
	}
	if filter.Algorithm != nil {
		query = query.Where("algorithm = ?", string(*filter.Algorithm))
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	if len(sorts) == 0 {
		sorts = []domain.Sort{{Field: domain.SortFieldID, Order: domain.SortDesc}}
	}
	columns := make([]clause.OrderByColumn, 0, len(sorts))
	for _, s := range sorts {
		if !s.Field.Valid() {
			return nil, domain.ErrInvalidSortField
		}
		columns = append(columns, clause.OrderByColumn{
			Column: clause.Column{Name: string(s.Field)},
			Desc:   s.Order == domain.SortDesc,
		})
	}

	var models []EnvironmentKeyModel
	err := query.
		Order(clause.OrderBy{Columns: columns}).
		Offset(page.OffsetOrDefault()).
		Limit(page.LimitOrDefault()).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find environment keys",
			"operation", "find",
			"error", err,
		)
		return nil, storageError(err)
	}

	keys := make([]*domain.EnvironmentKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}

// UpdateActive は active フラグと updated_at のみを更新し、更新後の鍵を返す。
func (r *EnvironmentKeyRepository) UpdateActive(ctx context.Context, id string, active bool) (*domain.EnvironmentKey, error) {
	result := r.db.WithContext(ctx).
		Model(&EnvironmentKeyModel{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"active":     active,
			"updated_at": r.now(),
		})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update environment key",
			"operation", "update_active",
			"id", id,
			"active", active,
			"error", result.Error,
		)
		return nil, environmentKeyWriteError(result.Error, domain.ErrEnvironmentNotFound)
	}
	// MySQLは値が変わらない行を RowsAffected に数えないので、存在確認は読み直しで行う
	return r.FindByID(ctx, id)
}

// RotateMaterial は鍵素材をトランザクション内で差し替える。
// 読み込み・素材生成・UPDATE を1トランザクションで行い、UPDATE は id 指定の1文で存在確認を兼ねる。
// id, environment_id, algorithm, active, created_at は変更しない。
func (r *EnvironmentKeyRepository) RotateMaterial(ctx context.Context, id string, newMaterial domain.KeyMaterialFunc) (*domain.EnvironmentKey, error) {
	var (
		rotated     *domain.EnvironmentKey
		materialErr error
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() != "sqlite" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var model EnvironmentKeyModel
		if err := query.Where("id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrEnvironmentKeyNotFound
			}
			return storageError(err)
		}
		current := model.toDomain()

		encrypted, err := newMaterial(ctx, current)
		if err != nil {
			materialErr = err
			return err
		}

		updatedAt := r.now()
		if !updatedAt.After(model.UpdatedAt) {
			updatedAt = model.UpdatedAt.Add(time.Microsecond)
		}
		result := tx.Model(&EnvironmentKeyModel{}).
			Where("id = ?", id).
			UpdateColumns(map[string]any{
				"key":        encrypted,
				"updated_at": updatedAt,
			})
		if result.Error != nil {
			return storageError(result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrEnvironmentKeyNotFound
		}

		current.EncryptedKey = encrypted
		current.UpdatedAt = updatedAt
		rotated = current
		return nil
	})
	switch {
	case err == nil:
		return rotated, nil
	case materialErr != nil:
		// 素材生成・暗号化のエラーはそのまま返す
		return nil, materialErr
	case errors.Is(err, domain.ErrEnvironmentKeyNotFound):
		return nil, err
	}
	slog.ErrorContext(ctx, "failed to rotate environment key",
		"operation", "rotate_material",
		"id", id,
		"error", err,
	)
	if errors.Is(err, domain.ErrStorage) {
		return nil, err
	}
	// COMMIT の失敗
	return nil, storageError(err)
}

// Delete は指定されたIDの鍵を削除する。
func (r *EnvironmentKeyRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&EnvironmentKeyModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to delete environment key",
			"operation", "delete",
			"id", id,
			"error", result.Error,
		)
		return storageError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrEnvironmentKeyNotFound
	}
	return nil
}

// environmentKeyWriteError は書き込み時のエラーをドメインのエラーに変換する。
// 制約違反でないエラーは domain.ErrStorage になる。
func environmentKeyWriteError(err error, foreignKeyErr error) error {
	v, ok := classifyConstraint(err)
	if !ok {
		return storageError(err)
	}
	switch {
	case v.kind == constraintUnique && v.matches(constraintEnvironmentKeyUnique):
		return domain.ErrDuplicateCombination
	case v.kind == constraintForeignKey && v.matches(constraintEnvironmentKeyForeignKey):
		return foreignKeyErr
	default:
		return domain.ErrNoChangesWereMade
	}
}

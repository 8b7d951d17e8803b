package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"environment-key-service/internal/domain"
)

// EnvironmentModel はgorm用のモデル定義。
type EnvironmentModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ProjectID   string    `gorm:"column:project_id;not null"`
	Name        string    `gorm:"column:name;not null"`
	Description string    `gorm:"column:description;not null"`
	Enabled     bool      `gorm:"column:enabled;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName はテーブル名を返す。
func (EnvironmentModel) TableName() string {
	return "environments"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *EnvironmentModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (m *EnvironmentModel) toDomain() *domain.Environment {
	return &domain.Environment{
		ID:          m.ID,
		ProjectID:   m.ProjectID,
		Name:        m.Name,
		Description: m.Description,
		Enabled:     m.Enabled,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// EnvironmentRepository は environments テーブルへのアクセスを提供する。
type EnvironmentRepository struct {
	db *gorm.DB
}

// NewEnvironmentRepository は新しいEnvironmentRepositoryを生成する。
func NewEnvironmentRepository(db *gorm.DB) *EnvironmentRepository {
	return &EnvironmentRepository{db: db}
}

// Create は環境を保存する。
func (r *EnvironmentRepository) Create(ctx context.Context, env *domain.Environment) error {
	now := defaultNow()
	model := &EnvironmentModel{
		ID:          env.ID,
		ProjectID:   env.ProjectID,
		Name:        env.Name,
		Description: env.Description,
		Enabled:     env.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create environment",
			"operation", "create_environment",
			"project_id", env.ProjectID,
			"name", env.Name,
			"error", err,
		)
		if v, ok := classifyConstraint(err); ok {
			if v.kind == constraintUnique && v.matches(constraintEnvironmentUnique) {
				return domain.ErrEnvironmentNameTaken
			}
			return domain.ErrNoChangesWereMade
		}
		return storageError(err)
	}
	env.ID = model.ID
	env.CreatedAt = model.CreatedAt
	env.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定されたIDの環境を取得する。
func (r *EnvironmentRepository) FindByID(ctx context.Context, id string) (*domain.Environment, error) {
	var model EnvironmentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrEnvironmentNotFound
		}
		slog.ErrorContext(ctx, "failed to find environment",
			"operation", "find_environment_by_id",
			"id", id,
			"error", err,
		)
		return nil, storageError(err)
	}
	return model.toDomain(), nil
}

// Delete は環境を削除する。紐づく鍵は外部キーの ON DELETE CASCADE で削除される。
func (r *EnvironmentRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&EnvironmentModel{})
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to delete environment",
			"operation", "delete_environment",
			"id", id,
			"error", result.Error,
		)
		return storageError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrEnvironmentNotFound
	}
	return nil
}

// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"environment-key-service/internal/domain"
)

var tracer = otel.Tracer("environment-key-service/usecase")

// EnvironmentKeyRepository は鍵のデータアクセスのインターフェース。
// 制約違反・未存在はドメインのエラーで返すこと。
type EnvironmentKeyRepository interface {
	Create(ctx context.Context, key *domain.EnvironmentKey) error
	FindByID(ctx context.Context, id string) (*domain.EnvironmentKey, error)
	FindActive(ctx context.Context, environmentID string, alg domain.Algorithm) (*domain.EnvironmentKey, error)
	Find(ctx context.Context, filter domain.EnvironmentKeyFilter, sorts []domain.Sort, page domain.Pagination) ([]*domain.EnvironmentKey, error)
	UpdateActive(ctx context.Context, id string, active bool) (*domain.EnvironmentKey, error)
	RotateMaterial(ctx context.Context, id string, newMaterial domain.KeyMaterialFunc) (*domain.EnvironmentKey, error)
	Delete(ctx context.Context, id string) error
}

// KeyBuilder は鍵素材生成のインターフェース。
type KeyBuilder interface {
	Generate(alg domain.Algorithm) (string, error)
}

// SecretsManager は鍵素材の暗号化/復号のインターフェース。
type SecretsManager interface {
	Encrypt(ctx context.Context, plaintext string, resourceID string) (string, error)
	Decrypt(ctx context.Context, ciphertext string, resourceID string) (string, error)
}

// EnvironmentKeyService は環境署名鍵のライフサイクルを扱う。
type EnvironmentKeyService struct {
	repo    EnvironmentKeyRepository
	builder KeyBuilder
	secrets SecretsManager
}

// NewEnvironmentKeyService は新しいEnvironmentKeyServiceを生成する。
func NewEnvironmentKeyService(repo EnvironmentKeyRepository, builder KeyBuilder, secrets SecretsManager) *EnvironmentKeyService {
	return &EnvironmentKeyService{
		repo:    repo,
		builder: builder,
		secrets: secrets,
	}
}

// Create は鍵素材を生成・暗号化して新しい鍵を保存する。
func (s *EnvironmentKeyService) Create(ctx context.Context, in domain.EnvironmentKeyCreate) (_ *domain.EnvironmentKey, err error) {
	ctx, span := tracer.Start(ctx, "EnvironmentKeyService.Create", trace.WithAttributes(
		attribute.String("environment_id", in.EnvironmentID),
		attribute.String("algorithm", in.Algorithm.String()),
	))
	defer func() { endSpan(span, err) }()

	environmentID, ok := canonicalID(in.EnvironmentID)
	if !ok {
		return nil, domain.ErrInvalidEnvironmentID
	}
	if !in.Algorithm.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAlgorithm, in.Algorithm.String())
	}

	material, err := s.builder.Generate(in.Algorithm)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.secrets.Encrypt(ctx, material, environmentID)
	if err != nil {
		return nil, err
	}

	key := &domain.EnvironmentKey{
		EnvironmentID: environmentID,
		Algorithm:     in.Algorithm,
		EncryptedKey:  encrypted,
		Active:        in.Active,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return nil, wrapStorageError("creating environment key", err)
	}
	return key, nil
}

// Read はIDで鍵を取得する。鍵素材は復号しない。
func (s *EnvironmentKeyService) Read(ctx context.Context, id string) (*domain.EnvironmentKey, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, domain.ErrEnvironmentKeyNotFound
	}
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapStorageError("finding environment key", err)
	}
	return key, nil
}

// Update は active フラグを更新する。更新内容が空の場合はストレージに触れずに失敗する。
func (s *EnvironmentKeyService) Update(ctx context.Context, id string, upd domain.EnvironmentKeyUpdate) (*domain.EnvironmentKey, error) {
	if upd.IsEmpty() {
		return nil, domain.ErrNoChangesToUpdate
	}
	id, ok := canonicalID(id)
	if !ok {
		return nil, domain.ErrEnvironmentKeyNotFound
	}
	key, err := s.repo.UpdateActive(ctx, id, *upd.Active)
	if err != nil {
		return nil, wrapStorageError("updating environment key", err)
	}
	return key, nil
}

// Delete は鍵を削除する。
func (s *EnvironmentKeyService) Delete(ctx context.Context, id string) (bool, error) {
	id, ok := canonicalID(id)
	if !ok {
		return false, domain.ErrEnvironmentKeyNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return false, wrapStorageError("deleting environment key", err)
	}
	return true, nil
}

// Find は条件に一致する鍵を一覧で返す。鍵素材は復号しない。
func (s *EnvironmentKeyService) Find(ctx context.Context, filter domain.EnvironmentKeyFilter, sorts []domain.Sort, page domain.Pagination) ([]*domain.EnvironmentKey, error) {
	if filter.EnvironmentID != nil {
		environmentID, ok := canonicalID(*filter.EnvironmentID)
		if !ok {
			return nil, nil
		}
		filter.EnvironmentID = &environmentID
	}
	for _, srt := range sorts {
		if !srt.Field.Valid() {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSortField, string(srt.Field))
		}
	}
	keys, err := s.repo.Find(ctx, filter, sorts, page)
	if err != nil {
		return nil, wrapStorageError("finding environment keys", err)
	}
	return keys, nil
}

// Rotate は同じアルゴリズムで鍵素材を作り直し、行をその場で更新する。
// active に関係なくローテーションできる。
func (s *EnvironmentKeyService) Rotate(ctx context.Context, id string) (_ *domain.EnvironmentKey, err error) {
	ctx, span := tracer.Start(ctx, "EnvironmentKeyService.Rotate", trace.WithAttributes(
		attribute.String("environment_key_id", id),
	))
	defer func() { endSpan(span, err) }()

	id, ok := canonicalID(id)
	if !ok {
		return nil, domain.ErrEnvironmentKeyNotFound
	}
	key, err := s.repo.RotateMaterial(ctx, id, func(ctx context.Context, current *domain.EnvironmentKey) (string, error) {
		material, err := s.builder.Generate(current.Algorithm)
		if err != nil {
			return "", err
		}
		return s.secrets.Encrypt(ctx, material, current.EnvironmentID)
	})
	if err != nil {
		return nil, wrapStorageError("rotating environment key", err)
	}
	return key, nil
}

// GetForUse は (environment_id, algorithm) の有効な鍵を復号して返す。
// 平文の鍵素材を返すのはこのメソッドだけで、結果はキャッシュしない。
func (s *EnvironmentKeyService) GetForUse(ctx context.Context, environmentID string, alg domain.Algorithm) (_ string, err error) {
	ctx, span := tracer.Start(ctx, "EnvironmentKeyService.GetForUse", trace.WithAttributes(
		attribute.String("environment_id", environmentID),
		attribute.String("algorithm", alg.String()),
	))
	defer func() { endSpan(span, err) }()

	environmentID, ok := canonicalID(environmentID)
	if !ok || !alg.Valid() {
		return "", domain.ErrEnvironmentKeyNotFound
	}
	key, err := s.repo.FindActive(ctx, environmentID, alg)
	if err != nil {
		return "", wrapStorageError("finding active environment key", err)
	}
	material, err := s.secrets.Decrypt(ctx, key.EncryptedKey, environmentID)
	if err != nil {
		return "", err
	}
	return material, nil
}

// canonicalID はUUIDを小文字・ハイフン区切りの正規形にする。
// 保存値と暗号化の追加認証データは必ずこの形を使う。
func canonicalID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// contractErrors は上位レイヤーがメッセージで判定するため、ラップせずに返す。
var contractErrors = []error{
	domain.ErrEnvironmentKeyNotFound,
	domain.ErrDuplicateCombination,
	domain.ErrEnvironmentNotFound,
	domain.ErrNoChangesToUpdate,
	domain.ErrNoChangesWereMade,
	domain.ErrKeyGeneration,
	domain.ErrEncryption,
	domain.ErrDecryption,
	domain.ErrInvalidSortField,
}

func wrapStorageError(action string, err error) error {
	for _, target := range contractErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%s: %w", action, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

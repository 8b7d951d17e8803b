package usecase

import (
	"context"
	"fmt"
	"strings"

	"environment-key-service/internal/domain"
)

// EnvironmentRepository は環境のデータアクセスのインターフェース。
type EnvironmentRepository interface {
	Create(ctx context.Context, env *domain.Environment) error
	FindByID(ctx context.Context, id string) (*domain.Environment, error)
	Delete(ctx context.Context, id string) error
}

// EnvironmentService は鍵の所有者となる環境を管理する。
type EnvironmentService struct {
	repo EnvironmentRepository
}

// NewEnvironmentService は新しいEnvironmentServiceを生成する。
func NewEnvironmentService(repo EnvironmentRepository) *EnvironmentService {
	return &EnvironmentService{repo: repo}
}

// Create は環境を作成する。
func (s *EnvironmentService) Create(ctx context.Context, env *domain.Environment) error {
	env.ProjectID = strings.TrimSpace(env.ProjectID)
	env.Name = strings.TrimSpace(env.Name)
	if env.ProjectID == "" || env.Name == "" {
		return fmt.Errorf("%w: project_id and name are required", domain.ErrInvalidEnvironment)
	}
	if len(env.Name) > 255 {
		return fmt.Errorf("%w: name must be at most 255 characters", domain.ErrInvalidEnvironment)
	}
	if err := s.repo.Create(ctx, env); err != nil {
		return wrapEnvironmentError("creating environment", err)
	}
	return nil
}

// Read はIDで環境を取得する。
func (s *EnvironmentService) Read(ctx context.Context, id string) (*domain.Environment, error) {
	id, ok := canonicalID(id)
	if !ok {
		return nil, domain.ErrEnvironmentNotFound
	}
	env, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapEnvironmentError("finding environment", err)
	}
	return env, nil
}

// Delete は環境と、それに紐づく全ての鍵を削除する。
func (s *EnvironmentService) Delete(ctx context.Context, id string) error {
	id, ok := canonicalID(id)
	if !ok {
		return domain.ErrEnvironmentNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return wrapEnvironmentError("deleting environment", err)
	}
	return nil
}

func wrapEnvironmentError(action string, err error) error {
	if err == domain.ErrEnvironmentNameTaken {
		return err
	}
	return wrapStorageError(action, err)
}

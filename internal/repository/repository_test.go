package repository

import (
	"context"
	"io/fs"
	"sort"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"environment-key-service/internal/domain"
	"environment-key-service/migrations"
)

// setupTestDB は埋め込みマイグレーションを適用したインメモリSQLiteを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// :memory: は接続ごとに別DBになる
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	fsys, err := migrations.FS(domain.DialectSQLite)
	if err != nil {
		t.Fatalf("failed to open migrations: %v", err)
	}
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if err := db.Exec(stmt).Error; err != nil {
				t.Fatalf("failed to apply %s: %v", name, err)
			}
		}
	}
	return db
}

// createTestEnvironment はテスト用の環境を作成してIDを返す。
func createTestEnvironment(t *testing.T, db *gorm.DB, name string) string {
	t.Helper()

	env := &domain.Environment{ProjectID: "project-1", Name: name, Enabled: true}
	if err := NewEnvironmentRepository(db).Create(context.Background(), env); err != nil {
		t.Fatalf("failed to create environment: %v", err)
	}
	return env.ID
}

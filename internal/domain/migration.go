package domain

import "time"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Dialect はマイグレーションSQLの方言。
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Migration は埋め込みSQLによるスキーマ変更1件を表す
type Migration struct {
	Version   string     // 例: "001"
	Name      string     // ファイル名から抽出（例: "create_environment_keys"）
	Path      string     // 埋め込みFS内のパス
	AppliedAt *time.Time // 未適用の場合はnil
	Status    MigrationStatus
}

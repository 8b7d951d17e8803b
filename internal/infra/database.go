// Package infra は外部サービスとの接続を提供する。
package infra

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"environment-key-service/internal/domain"
)

// DialectFromDSN はDSNの形式から方言を判定する。
// postgres:// / postgresql:// は PostgreSQL、sqlite: / file: は SQLite、それ以外は MySQL とみなす。
func DialectFromDSN(dsn string) domain.Dialect {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return domain.DialectPostgres
	case strings.HasPrefix(dsn, "sqlite:"), strings.HasPrefix(dsn, "file:"):
		return domain.DialectSQLite
	default:
		return domain.DialectMySQL
	}
}

func sqliteDSN(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite:")
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk") {
		if strings.Contains(dsn, "?") {
			dsn += "&_foreign_keys=on"
		} else {
			dsn += "?_foreign_keys=on"
		}
	}
	return dsn
}

// NewDB はgormによるデータベース接続を初期化する。
// tracingEnabled が true の場合、クエリごとにOpenTelemetryのspanを記録する。
func NewDB(dsn string, tracingEnabled bool) (*gorm.DB, error) {
	var dialector gorm.Dialector
	dialect := DialectFromDSN(dsn)
	switch dialect {
	case domain.DialectPostgres:
		dialector = postgres.Open(dsn)
	case domain.DialectSQLite:
		dialector = sqlite.Open(sqliteDSN(dsn))
	default:
		dialector = mysql.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if tracingEnabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("registering tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	if dialect == domain.DialectSQLite {
		// :memory: は接続ごとに別DBになるため単一接続に固定する
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

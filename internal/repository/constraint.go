package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"environment-key-service/internal/domain"
)

// 制約名はmigrations配下のDDLと一致させること。
const (
	constraintEnvironmentKeyUnique     = "uk_environment_keys_environment_algorithm"
	constraintEnvironmentKeyForeignKey = "fk_environment_keys_environment"
	constraintEnvironmentUnique        = "uk_environments_project_name"
)

type constraintKind int

const (
	constraintUnique constraintKind = iota + 1
	constraintForeignKey
	constraintOther
)

// constraintViolation はドライバ固有のエラーから取り出した制約違反。
// name はドライバが制約名を返す場合のみ設定される（PostgreSQL、MySQLの重複キー）。
// 主キーの重複は name が "primary" になる。
type constraintViolation struct {
	kind constraintKind
	name string
}

// matches は制約名が取得できない場合、または name と一致する場合に true を返す。
func (v constraintViolation) matches(name string) bool {
	return v.name == "" || v.name == name
}

// MySQLのエラー番号
const (
	mysqlErrDupEntry         = 1062
	mysqlErrNoReferencedRow  = 1216
	mysqlErrRowIsReferenced  = 1217
	mysqlErrRowIsReferenced2 = 1451
	mysqlErrNoReferencedRow2 = 1452
	mysqlErrBadNull          = 1048
	mysqlErrCheckConstraint  = 3819
)

// PostgreSQLのSQLSTATE
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgIntegrityClass      = "23"
)

// classifyConstraint はエラーメッセージの文字列ではなく、ドライバのエラーコードと制約名で制約違反を判定する。
func classifyConstraint(err error) (constraintViolation, bool) {
	if err == nil {
		return constraintViolation{}, false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return constraintViolation{kind: constraintUnique, name: pgErr.ConstraintName}, true
		case pgErr.Code == pgForeignKeyViolation:
			return constraintViolation{kind: constraintForeignKey, name: pgErr.ConstraintName}, true
		case strings.HasPrefix(pgErr.Code, pgIntegrityClass):
			return constraintViolation{kind: constraintOther, name: pgErr.ConstraintName}, true
		}
		return constraintViolation{}, false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDupEntry:
			return constraintViolation{kind: constraintUnique, name: mysqlDuplicateKeyName(myErr.Message)}, true
		case mysqlErrNoReferencedRow, mysqlErrNoReferencedRow2, mysqlErrRowIsReferenced, mysqlErrRowIsReferenced2:
			return constraintViolation{kind: constraintForeignKey}, true
		case mysqlErrBadNull, mysqlErrCheckConstraint:
			return constraintViolation{kind: constraintOther}, true
		}
		return constraintViolation{}, false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code != sqlite3.ErrConstraint {
			return constraintViolation{}, false
		}
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique:
			return constraintViolation{kind: constraintUnique}, true
		case sqlite3.ErrConstraintForeignKey:
			return constraintViolation{kind: constraintForeignKey}, true
		case sqlite3.ErrConstraintPrimaryKey:
			// 主キー重複は (environment_id, algorithm) の重複ではない
			return constraintViolation{kind: constraintUnique, name: "primary"}, true
		}
		return constraintViolation{kind: constraintOther}, true
	}

	// TranslateError 有効時のgorm共通エラー
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return constraintViolation{kind: constraintUnique}, true
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return constraintViolation{kind: constraintForeignKey}, true
	}
	return constraintViolation{}, false
}

// mysqlDuplicateKeyName は "Duplicate entry '...' for key 'table.key'" からキー名を取り出す。
// MySQL 5.7 はテーブル名を付けない。取り出せない場合は空文字を返す。
func mysqlDuplicateKeyName(message string) string {
	const marker = "for key '"
	i := strings.LastIndex(message, marker)
	if i < 0 {
		return ""
	}
	key := strings.TrimSuffix(message[i+len(marker):], "'")
	if j := strings.LastIndex(key, "."); j >= 0 {
		key = key[j+1:]
	}
	if strings.EqualFold(key, "PRIMARY") {
		return "primary"
	}
	return key
}

// storageError は分類できなかったドライバのエラーを domain.ErrStorage に置き換える。
// キャンセルとタイムアウトだけは errors.Is で判定できるよう残す。
func storageError(err error) error {
	for _, ctxErr := range []error{context.Canceled, context.DeadlineExceeded} {
		if errors.Is(err, ctxErr) {
			return fmt.Errorf("%w: %w", domain.ErrStorage, ctxErr)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStorage, err)
}

package domain

import "errors"

// aliasError は独自のメッセージを持ちつつ、より一般的なエラーとして errors.Is で判定できるエラー。
type aliasError struct {
	msg    string
	parent error
}

func (e *aliasError) Error() string { return e.msg }

func (e *aliasError) Unwrap() error { return e.parent }

// 以下のメッセージは上位レイヤーが文字列一致でHTTPステータスを選択するため変更しないこと。
var (
	// ErrEnvironmentKeyNotFound は指定されたID・環境/アルゴリズムの鍵が存在しない場合のエラー。
	ErrEnvironmentKeyNotFound = errors.New("Environment key not found")

	// ErrDuplicateCombination は (environment_id, algorithm) の一意制約違反。
	ErrDuplicateCombination = errors.New("Environment Id and Algorithm combination already exists")

	// ErrEnvironmentNotFound は参照先の環境が存在しない場合のエラー。
	ErrEnvironmentNotFound = errors.New("Environment not found")

	// ErrForeignKeyConstraint は作成時の外部キー制約違反。ErrEnvironmentNotFound としても判定できる。
	ErrForeignKeyConstraint error = &aliasError{msg: "Foreign key constraint failed", parent: ErrEnvironmentNotFound}

	// ErrNoChangesToUpdate は更新内容が空の場合のエラー。
	ErrNoChangesToUpdate = errors.New("No changes to update")

	// ErrNoChangesWereMade は個別に分類できない制約違反。
	ErrNoChangesWereMade = errors.New("No changes were made")
)

var (
	// ErrKeyGeneration は鍵素材の生成に失敗した場合のエラー。
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrUnsupportedAlgorithm は鍵生成に対応していないアルゴリズム。ErrKeyGeneration としても判定できる。
	ErrUnsupportedAlgorithm error = &aliasError{msg: "unsupported algorithm", parent: ErrKeyGeneration}

	// ErrEncryption は鍵素材の暗号化に失敗した場合のエラー。
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption は鍵素材の復号に失敗した場合のエラー（リソースID不一致を含む）。
	ErrDecryption = errors.New("decryption failed")

	// ErrStorage は制約違反・未存在以外のストレージ障害。ドライバ固有のエラー型は含めない。
	ErrStorage = errors.New("storage operation failed")
)

var (
	// ErrInvalidEnvironmentID は環境IDの形式が不正な場合のエラー。
	ErrInvalidEnvironmentID = errors.New("invalid environment ID")

	// ErrInvalidAlgorithm はアルゴリズム識別子が不正な場合のエラー。
	ErrInvalidAlgorithm = errors.New("invalid algorithm")

	// ErrInvalidSortField はソート対象外のフィールドが指定された場合のエラー。
	ErrInvalidSortField = errors.New("invalid sort field")

	// ErrInvalidEnvironment は環境の作成内容が不正な場合のエラー。
	ErrInvalidEnvironment = errors.New("invalid environment")

	// ErrEnvironmentNameTaken はプロジェクト内で環境名が重複した場合のエラー。
	ErrEnvironmentNameTaken = errors.New("Project Id, name combination already exists")
)

var (
	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)

// Package migrations は方言ごとのSQLマイグレーションを埋め込む。
package migrations

import (
	"embed"
	"io/fs"

	"environment-key-service/internal/domain"
)

//go:embed postgres/*.sql mysql/*.sql sqlite/*.sql
var files embed.FS

// FS は指定方言のマイグレーションファイルをルート直下に持つFSを返す。
func FS(dialect domain.Dialect) (fs.FS, error) {
	return fs.Sub(files, string(dialect))
}

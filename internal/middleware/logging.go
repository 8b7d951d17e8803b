// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"

	"environment-key-service/internal/metrics"
)

// 監査ログの結果
const (
	AuditSuccess = "SUCCESS"
	AuditFailed  = "FAILED"
)

// WriteAuditLog は鍵操作の監査ログを出力し、操作件数のメトリクスを加算する。
// 鍵素材や暗号文は出力しない。
func WriteAuditLog(ctx context.Context, operation string, keyID string, environmentID string, result string) {
	metrics.KeyOperations.WithLabelValues(operation, result).Inc()
	slog.InfoContext(ctx, "key operation completed",
		"operation", operation,
		"environment_key_id", keyID,
		"environment_id", environmentID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}

// Package metrics はPrometheusのコレクタを定義する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "environment_key_service"

var (
	// KeyOperations は鍵操作の件数（操作・結果別）。
	KeyOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_operations_total",
			Help:      "Count of environment key operations by operation and result.",
		},
		[]string{"operation", "result"},
	)

	// HTTPRequestDuration はルートパターン単位のレスポンス時間。
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request latencies by route, method and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method", "code"},
	)
)

// Register はコレクタを登録する。
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{KeyOperations, HTTPRequestDuration} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Handler は reg の内容を公開する /metrics 用のハンドラを返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Instrument はリクエストをchiのルートパターン単位で計測するミドルウェア。
// パスに含まれるIDをラベルにしないため、URLではなくルートパターンを使う。
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"environment-key-service/internal/metrics"
	"environment-key-service/internal/middleware"
	"environment-key-service/pkg/httputil"
)

type routerOptions struct {
	registry    *prometheus.Registry
	healthCheck func(ctx context.Context) error
	tracing     bool
}

// RouterOption はルーターの設定を変更する。
type RouterOption func(*routerOptions)

// WithMetrics は /metrics を公開し、リクエストを計測する。
func WithMetrics(reg *prometheus.Registry) RouterOption {
	return func(o *routerOptions) {
		o.registry = reg
	}
}

// WithHealthCheck は /healthz で呼び出すチェックを設定する。
func WithHealthCheck(check func(ctx context.Context) error) RouterOption {
	return func(o *routerOptions) {
		o.healthCheck = check
	}
}

// WithTracing はリクエストごとにOpenTelemetryのspanを開始する。
func WithTracing() RouterOption {
	return func(o *routerOptions) {
		o.tracing = true
	}
}

// NewRouter はルーターを生成する。
func NewRouter(keys *EnvironmentKeyHandler, envs *EnvironmentHandler, opts ...RouterOption) http.Handler {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	if o.registry != nil {
		r.Use(metrics.Instrument)
	}
	if o.tracing {
		r.Use(nameSpanByRoute)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if o.healthCheck != nil {
			if err := o.healthCheck(r.Context()); err != nil {
				httputil.Error(w, http.StatusServiceUnavailable, "UNHEALTHY", "database unavailable")
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if o.registry != nil {
		r.Handle("/metrics", metrics.Handler(o.registry))
	}

	// ルート定義
	r.Route("/v1/environments", func(r chi.Router) {
		r.Post("/", envs.CreateEnvironment)
		r.Get("/{id}", envs.GetEnvironment)
		r.Delete("/{id}", envs.DeleteEnvironment)
		r.Get("/{id}/keys/{algorithm}/material", keys.GetEnvironmentKeyMaterial)
	})
	r.Route("/v1/environment-keys", func(r chi.Router) {
		r.Post("/", keys.CreateEnvironmentKey)
		r.Get("/", keys.ListEnvironmentKeys)
		r.Get("/{id}", keys.GetEnvironmentKey)
		r.Patch("/{id}", keys.UpdateEnvironmentKey)
		r.Delete("/{id}", keys.DeleteEnvironmentKey)
		r.Post("/{id}/rotate", keys.RotateEnvironmentKey)
	})

	if o.tracing {
		// ルーティング前はパターンが未確定なので、ここではメソッドだけを名前にする
		return otelhttp.NewHandler(r, "environment-key-service",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method
			}),
		)
	}
	return r
}

// nameSpanByRoute はルーティング後に、spanの名前をIDを含まないルートパターンに置き換える。
func nameSpanByRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil || rctx.RoutePattern() == "" {
			return
		}
		pattern := rctx.RoutePattern()
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + pattern)
		span.SetAttributes(semconv.HTTPRoute(pattern))
	})
}

// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"environment-key-service/config"
	"environment-key-service/internal/handler"
	"environment-key-service/internal/infra"
	"environment-key-service/internal/keybuilder"
	"environment-key-service/internal/metrics"
	"environment-key-service/internal/repository"
	"environment-key-service/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	shutdownTracer, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			slog.Error("failed to shutdown tracer", "error", err)
		}
	}()

	infra.SetupLogger(cfg)

	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg.OtelEnabled)
	if err != nil {
		return err
	}

	masterKey, err := loadMasterKey(ctx, cfg)
	if err != nil {
		return err
	}
	secrets, err := infra.NewSecretsManager(masterKey)
	if err != nil {
		return err
	}
	slog.Info("secrets manager initialized", "key_id", secrets.KeyID())

	// DI
	keyService := usecase.NewEnvironmentKeyService(
		repository.NewEnvironmentKeyRepository(db),
		keybuilder.New(),
		secrets,
	)
	envService := usecase.NewEnvironmentService(repository.NewEnvironmentRepository(db))

	opts := []handler.RouterOption{handler.WithHealthCheck(pingDB(db))}
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := metrics.Register(reg); err != nil {
			return err
		}
		opts = append(opts, handler.WithMetrics(reg))
	}
	if cfg.OtelEnabled {
		opts = append(opts, handler.WithTracing())
	}
	router := handler.NewRouter(
		handler.NewEnvironmentKeyHandler(keyService),
		handler.NewEnvironmentHandler(envService),
		opts...,
	)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// loadMasterKey は MASTER_KEY_CIPHERTEXT が設定されている場合のみKMSに接続する。
func loadMasterKey(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if cfg.MasterKey != "" || cfg.KMSKeyName == "" {
		return infra.LoadMasterKey(ctx, cfg, nil)
	}

	kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := kmsClient.Close(); closeErr != nil {
			slog.Error("failed to close KMS client", "error", closeErr)
		}
	}()
	return infra.LoadMasterKey(ctx, cfg, kmsClient)
}

func pingDB(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

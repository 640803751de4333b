// Command server runs the card tracker HTTP backend as a long-lived process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"card-tracker-backend/pkg/config"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := database.NewPool(nil)
	defer pool.CloseAll()

	db := database.Pooled(pool, database.DatabaseConfig{
		UseLocalDB:   cfg.UseLocalDB,
		LocalDataDir: cfg.LocalDataDir,
		PostgresDSN:  cfg.PostgresDSN,
		SupabaseURL:  cfg.SupabaseURL,
		SupabaseKey:  cfg.SupabaseAPIKey(),
		Debug:        cfg.Debug,
		Logger:       log,
	})

	// 启动时先建立一次连接，配置错误尽早暴露
	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err = db.HealthCheck(startCtx)
	cancel()
	if err != nil {
		log.Warn("⚠️ database not reachable at startup", zap.Error(err))
	}

	handler, err := server.NewRouter(server.Options{Config: cfg, Database: db, Logger: log, Pool: pool})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("🚀 HTTP server listening",
			zap.String("addr", srv.Addr), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		pool.RunJanitor(gctx, time.Minute, log)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("🛑 shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("👋 server exited")
	return nil
}

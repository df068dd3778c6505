package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/hongminglow/moviebox-be/internal/catalog"
	"github.com/hongminglow/moviebox-be/internal/config"
	"github.com/hongminglow/moviebox-be/internal/logging"
	"github.com/hongminglow/moviebox-be/internal/server"
	postgres "github.com/hongminglow/moviebox-be/internal/storage/postgres"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	undo := zap.RedirectStdLog(logger)
	defer undo()

	if envErr != nil {
		logger.Info("no .env file found; relying on existing environment")
	}

	fallback, err := catalog.LoadFallback(cfg.Catalog.FallbackFile)
	if err != nil {
		logger.Fatal("load catalog fallback", zap.Error(err))
	}

	// The pool connects on first use; the server comes up even when the
	// database is down and store routes answer 503 until it recovers.
	dbClient, err := postgres.NewClient(cfg.Database.DSN(), postgres.Options{
		MaxConns:       cfg.Database.MaxConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		RetryInterval:  cfg.Database.RetryInterval,
	}, logger)
	if err != nil {
		logger.Fatal("init database client", zap.Error(err))
	}
	defer dbClient.Close()
	userStore := postgres.NewUserStore(dbClient)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(cfg, server.Deps{
		Store:    userStore,
		DBState:  dbClient.State,
		Fallback: fallback,
		Logger:   logger,
		Registry: registry,
	})

	go func() {
		logger.Info("movie backend listening", zap.String("addr", cfg.HTTPAddress()))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("graceful shutdown error", zap.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"todo-sync/internal/cache"
	"todo-sync/internal/config"
	"todo-sync/internal/controller"
	"todo-sync/internal/queue"
	"todo-sync/internal/repository"
	"todo-sync/internal/routes"
	"todo-sync/internal/worker"
	"todo-sync/pkg/logger"
)

func main() {
	ctx := context.Background()
	if err := config.LoadEnvFile(".env"); err != nil {
		logger.Warn(ctx, "Could not read .env", "error", err)
	}
	cfg := config.Get()
	logger.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	repo, err := repository.Open(ctx, cfg)
	if err != nil {
		logger.Error(ctx, "Repository not available; exiting", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it every read goes to the repository.
	listCache, err := cache.Dial(ctx, cfg.RedisURL, cfg.RedisPoolSize, time.Duration(cfg.CacheTTL)*time.Second)
	if err != nil {
		logger.Warn(ctx, "Redis unavailable; list cache disabled", "error", err)
		listCache = nil
	}

	queue.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaPartitions)
	events := queue.NewPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx, cfg.KafkaBrokers, cfg.KafkaTopic, listCache)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      routes.Router(controller.NewTodos(repo, listCache, events), cfg.RequestTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info(ctx, "HTTP server listening", "port", cfg.HTTPPort, "storage", cfg.StorageDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Server shutdown error", "error", err)
	}

	stopWorker()
	<-workerDone
	if err := events.Close(); err != nil {
		logger.Error(ctx, "Kafka writer close failed", "error", err)
	}
	if err := listCache.Close(); err != nil {
		logger.Error(ctx, "Redis close failed", "error", err)
	}
	if err := repo.Close(shutdownCtx); err != nil {
		logger.Error(ctx, "Repository close failed", "error", err)
	}
	logger.Info(ctx, "Server stopped")
}

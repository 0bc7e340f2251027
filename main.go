package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cadconvert/api"
	"cadconvert/config"
	"cadconvert/services"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting CAD conversion service")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.WorkDir, 0755); err != nil {
		logger.Fatal("failed to create work directory", zap.String("dir", cfg.WorkDir), zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	ledger, err := services.NewLedgerService(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to connect to document store", zap.Error(err))
	}
	logger.Info("connected to document store")

	// The presign cache is optional; without Redis every request signs
	// its link fresh.
	var linkCache *services.LinkCache
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		linkCache = services.NewLinkCache(redisClient, logger)
		logger.Info("connected to redis link cache", zap.String("addr", cfg.RedisAddr))
	}

	kernel := services.NewKernelService(cfg.KernelURL, logger)
	converter := services.NewConverterService(kernel, logger)
	publisher := services.NewS3Service(cfg, linkCache, logger)

	server := &api.Server{
		Converter:     converter,
		Ledger:        ledger,
		Publisher:     publisher,
		WorkDir:       cfg.WorkDir,
		Tolerance:     cfg.Tolerance,
		PresignExpiry: time.Duration(cfg.PresignExpiry) * time.Second,
		Logger:        logger,
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("kernel", cfg.KernelURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := ledger.Close(shutdownCtx); err != nil {
		logger.Warn("document store disconnect failed", zap.Error(err))
	}
	if redisClient != nil {
		redisClient.Close()
	}
	logger.Info("conversion service stopped")
}

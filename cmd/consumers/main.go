package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tessera/cmd/consumers/jobs"
	"tessera/internal/config"
	"tessera/internal/consumers"
	"tessera/internal/logger"

	"github.com/spf13/pflag"
)

func main() {
	reindexEvery := pflag.Duration("reindex-interval", jobs.DefaultReindexInterval, "Full card reindex period")
	pflag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	log.Info("Starting consumers service...")

	// Override NATS client ID for consumers
	cfg.NATS.ClientID = "tessera-consumers"

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}

	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	reindex := jobs.NewReindexJob(consumerService.Store(), consumerService.Index(), *reindexEvery)
	reindex.Start(ctx)

	log.Info("Consumers service started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumers service...")

	reindex.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Consumers service stopped")
}

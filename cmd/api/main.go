package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tessera/internal/api"
	"tessera/internal/config"
	"tessera/internal/logger"
	"tessera/internal/validation"

	"github.com/spf13/pflag"
)

func main() {
	// Проверяем, нужно ли запустить валидацию
	if len(os.Args) > 1 && os.Args[1] == "validate" {
		runValidation(os.Args[2:])
		return
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", "error", err)
	}

	server, err := api.NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to start API", "error", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.GetRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting server", "port", cfg.Port, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ждем сигнал для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := server.Cleanup(); err != nil {
		log.Error("Error during cleanup", "error", err)
	}

	log.Info("Server stopped")
}

func runValidation(args []string) {
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:5173", "Base URL of the running API")
	personID := fs.String("person", "P-0001", "Seeded person id without pending sales")
	eventID := fs.String("event", "EV-01", "Seeded event id")
	_ = fs.Parse(args)

	logger.Init("info", "text")
	if err := validation.NewSmokeValidator(*baseURL, *personID, *eventID).ValidateAll(); err != nil {
		logger.Fatal("Validation failed", "error", err)
	}
}

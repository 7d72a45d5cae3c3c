package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"kernelretry/pkg/backend"
	"kernelretry/pkg/config"
	"kernelretry/pkg/logger"
	"kernelretry/pkg/replies"
)

func main() {
	// Main context and channel for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	cfg, loadErr := config.Load()
	if loadErr != nil {
		cfg = config.DefaultConfig()
	}

	log := logger.NewLogger(logger.Config{
		Level:      cfg.Logger.Level,
		Pretty:     cfg.Logger.Pretty,
		JSON:       cfg.Logger.JSON,
		File:       cfg.Logger.File,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
	})
	log = log.WithComponent("main")

	if loadErr != nil {
		log.Warn("invalid environment, using defaults", map[string]interface{}{
			"error": loadErr.Error(),
		})
	}

	replyService := replies.NewService(log)

	srv := backend.NewServer(&backend.Config{
		Address:             cfg.Backend.Address,
		ReadTimeout:         cfg.Backend.ReadTimeout,
		WriteTimeout:        cfg.Backend.WriteTimeout,
		ShutdownTimeout:     cfg.Backend.ShutdownTimeout,
		MaxConnections:      cfg.Backend.MaxConnections,
		APIKey:              cfg.Backend.APIKey,
		RequestsPerSecond:   cfg.Backend.RequestsPerSecond,
		Burst:               cfg.Backend.Burst,
		MaxConcurrentPerKey: cfg.Backend.MaxConcurrentPerKey,
		MaxFailedAuth:       cfg.Backend.MaxFailedAuth,
		AuthLockout:         cfg.Backend.AuthLockout,
		Latency:             cfg.Backend.Latency,
		Model:               cfg.Backend.Model,
	}, log, replyService, ctx)

	// Start the backend
	errChan := make(chan error, 1)
	go func() {
		log.Info("starting backend", map[string]interface{}{
			"address": cfg.Backend.Address,
		})
		errChan <- srv.Run()
	}()

	// Signal processing
	select {
	case err := <-errChan:
		if err != nil {
			log.Error("backend error", err, nil)
			os.Exit(1)
		}
		return
	case sig := <-sigChan:
		log.Info("received shutdown signal", map[string]interface{}{
			"signal": sig.String(),
		})
		cancel() // Abort in-flight simulated latency
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Backend.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", err, nil)
		os.Exit(1)
	}
	log.Info("backend stopped gracefully", nil)
}

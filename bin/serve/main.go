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

	"go.uber.org/zap"

	"regal/pkg/config"
	"regal/pkg/handlers"
	"regal/pkg/logging"
	"regal/pkg/services"
	"regal/pkg/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("REGAL_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.EnsureCacheDirs(); err != nil {
		logger.Fatal("Failed to create cache directories", zap.Error(err))
	}
	db, err := store.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		logger.Fatal("Failed to open catalog", zap.String("path", cfg.DatabaseFile), zap.Error(err))
	}
	defer db.Close()

	// Initialize services
	svc := services.InitService(cfg, db, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up HTTP handlers
	h := handlers.New(svc, logger, "./views")
	server := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           h.Routes("./public"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	// Start server
	cfg.PrintServerStartMessage()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"stayline/internal/agent"
	"stayline/internal/config"
	"stayline/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadConfig()

	logger, flush, err := logging.NewRotatingZapLogger(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := agent.New(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		flush()
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "agent stopped", "error", err)
	}
}

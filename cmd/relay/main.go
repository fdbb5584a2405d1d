package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/budget-event-sourced/config"
	"github.com/example/budget-event-sourced/internal/app"
	"github.com/example/budget-event-sourced/internal/logging"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %s", err)
	}

	logger := logging.Component(logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}), "relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunRelay(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("relay failed")
	}
}

package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/example/budget-event-sourced/config"
	"github.com/example/budget-event-sourced/internal/app"
	"github.com/example/budget-event-sourced/internal/infrastructure/kinesis"
	"github.com/example/budget-event-sourced/internal/logging"
)

func main() {
	ctx := context.Background()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %s", err)
	}

	logger := logging.Component(logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}), "lambda-projector")

	// Initialized once per execution environment and reused across invocations.
	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open event store")
	}
	readSide, err := app.OpenReadSide(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open read models")
	}

	dispatcher := app.NewDispatcher(backend, readSide.Repositories, logger, nil)
	handler := kinesis.NewHandler(dispatcher.Dispatch, logger)

	logger.Info().Msg("initialized")
	lambda.Start(handler.Handle)
}

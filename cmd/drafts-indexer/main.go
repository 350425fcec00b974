// Package main provides the drafts indexer: it consumes lifecycle events and rebuilds the
// search entries of every affected draft and record from the store.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/drafts/pkg/cmd"
	"github.com/dukex/drafts/pkg/log"
	"github.com/dukex/drafts/pkg/metrics"
	"github.com/dukex/drafts/pkg/reindexer"
	"github.com/dukex/drafts/pkg/services"
	"github.com/prometheus/client_golang/prometheus"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "drafts-indexer"

func main() {
	command := &cli.Command{
		Name:  serviceName,
		Usage: "Keep the search index in step with draft and record lifecycle events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "index-url",
				Usage:    "Search index URL (redis://...)",
				Required: true,
				Sources:  cli.EnvVars("INDEX_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"), serviceName)

	logger := log.WithModule("indexer")
	logger.InfoContext(ctx, "Initializing drafts indexer")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), serviceName)
	if err != nil {
		return err
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	indexer, err := cmd.NewIndexer(ctx, logger, command.String("index-url"))
	if err != nil {
		return err
	}

	if closer, ok := indexer.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close search index", "error", err)
			}
		}()
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), logger, serviceName)
	if err != nil {
		return err
	}

	if eventBus == nil {
		return errEventBusRequired
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	drafts := services.NewDrafts(persistence, indexer,
		services.WithLogger(logger),
		services.WithTracer(tracer),
		services.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	)

	if err := reindexer.New(drafts, logger).Register(eventBus); err != nil {
		return err
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Drafts indexer started")

	<-ctx.Done()

	logger.InfoContext(ctx, "Shutting down gracefully...")

	return nil
}

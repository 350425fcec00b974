// Package main provides the drafts API server.
package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/dukex/drafts/pkg/cmd"
	"github.com/dukex/drafts/pkg/log"
	"github.com/dukex/drafts/pkg/metrics"
	"github.com/dukex/drafts/pkg/reindexer"
	"github.com/dukex/drafts/pkg/services"
	"github.com/dukex/drafts/pkg/sweeper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort     = 9091
	defaultDraftTTL = 30 * 24 * time.Hour
	serviceName     = "drafts-api"
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Create, edit, publish and version records",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://... or a file store path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "index-url",
				Usage:   "Search index URL (redis://... or memory://)",
				Value:   "memory://",
				Sources: cli.EnvVars("INDEX_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type for lifecycle events (kafka, gochannel, or empty to disable)",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.DurationFlag{
				Name:    "draft-ttl",
				Usage:   "How long an untouched draft lives before the sweeper deletes it (0 disables expiry)",
				Value:   defaultDraftTTL,
				Sources: cli.EnvVars("DRAFT_TTL"),
			},
			&cli.StringFlag{
				Name:    "expiry-schedule",
				Usage:   "Cron expression of the expired draft sweep",
				Value:   sweeper.DefaultSchedule,
				Sources: cli.EnvVars("EXPIRY_SCHEDULE"),
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

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Drafts API")

	tracer, err := cmd.NewTracer(ctx, command.Bool("otel-enabled"), serviceName)
	if err != nil {
		return err
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(ctx)
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ttl := command.Duration("draft-ttl")

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithTracer(tracer),
		services.WithMetrics(metrics.New(registry)),
		services.WithObservers(services.NewExpiryObserver(ttl)),
	}

	provider := command.String("event-bus")

	eventBus, err := cmd.NewEventBus(provider, logger, serviceName)
	if err != nil {
		return err
	}

	if eventBus != nil {
		defer func() {
			if err := eventBus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		opts = append(opts, services.WithEventPublisher(eventBus))
	}

	drafts := services.NewDrafts(persistence, indexer, opts...)

	// With an in-process bus nobody else can consume the events, so the API repairs its
	// own index.
	if provider == "gochannel" {
		if err := reindexer.New(drafts, logger).Register(eventBus); err != nil {
			return err
		}

		if err := eventBus.Subscribe(ctx); err != nil {
			return err
		}
	}

	if ttl > 0 {
		sw, err := sweeper.New(command.String("expiry-schedule"), drafts, logger)
		if err != nil {
			return err
		}

		if err := sw.Start(ctx); err != nil {
			return err
		}

		defer func() {
			if err := sw.Stop(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to stop sweeper", "error", err)
			}
		}()
	}

	api := NewAPI(logger, drafts, registry)

	err = api.Start(int(command.Int("port")))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to start Drafts API", "error", err)

		return err
	}

	return nil
}

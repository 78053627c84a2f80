package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lexbase/lexbase/db"
	"github.com/lexbase/lexbase/internal/config"
	"github.com/lexbase/lexbase/internal/embed"
	"github.com/lexbase/lexbase/internal/knowledge"
	"github.com/lexbase/lexbase/internal/metadata"
	"github.com/lexbase/lexbase/internal/observability"
	"github.com/lexbase/lexbase/internal/reader"
	"github.com/lexbase/lexbase/internal/vector"
)

// app bundles the wired components a command operates on.
type app struct {
	Config  *config.Config
	Logger  *slog.Logger
	Manager *knowledge.Manager
}

// newApp wires the full stack: configuration, tracing, migrations, both
// stores, the embedder, and the manager. The returned cleanup flushes and
// closes everything in reverse order.
func newApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.Default()

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*app, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to set up tracing: %w", err))
		}
		cleanups = append(cleanups, func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("failed to shut down tracing", "error", err)
			}
		})
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fail(fmt.Errorf("failed to run migrations: %w", err))
	}

	pool, err := db.NewPool(ctx, cfg.PostgresURL())
	if err != nil {
		return fail(fmt.Errorf("failed to connect to postgres: %w", err))
	}
	cleanups = append(cleanups, pool.Close)

	mongoDB, disconnect, err := metadata.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
	if err != nil {
		return fail(fmt.Errorf("failed to connect to mongodb: %w", err))
	}
	cleanups = append(cleanups, func() {
		if err := disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from mongodb", "error", err)
		}
	})

	chunks := metadata.New(mongoDB, logger)
	if err := chunks.EnsureIndexes(ctx); err != nil {
		return fail(fmt.Errorf("failed to ensure mongodb indexes: %w", err))
	}

	embedder, err := embed.NewGoogleAI(ctx, cfg.EmbedderModel)
	if err != nil {
		return fail(fmt.Errorf("failed to create embedder: %w", err))
	}
	sized := embed.NewDimensioned(embedder, embed.VectorDimension)
	limited := embed.NewRateLimited(sized, cfg.EmbedRateLimit, cfg.EmbedBurst)

	opts := reader.Options{}
	manager, err := knowledge.NewManager(knowledge.Deps{
		Vectors:  vector.New(pool, logger),
		Chunks:   chunks,
		Embedder: limited,
		Readers: map[knowledge.DocumentType]knowledge.Reader{
			knowledge.TypeText: reader.NewText(opts),
			knowledge.TypeDocx: reader.NewDocx(opts),
			knowledge.TypePDF:  reader.NewPDF(opts),
		},
		BaseDir: cfg.KnowledgeBaseDir,
		Logger:  logger,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to create knowledge manager: %w", err))
	}

	return &app{Config: cfg, Logger: logger, Manager: manager}, cleanup, nil
}

// runWithApp wires the stack, runs fn, and tears everything down.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, cleanup, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, a)
}

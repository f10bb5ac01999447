package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aescanero/pipewright/internal/application/catalog"
	"github.com/aescanero/pipewright/internal/application/executor"
	"github.com/aescanero/pipewright/internal/application/orchestrator"
	"github.com/aescanero/pipewright/internal/application/workers"
	"github.com/aescanero/pipewright/internal/config"
	eventsmemory "github.com/aescanero/pipewright/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/pipewright/pkg/adapters/events/redis"
	"github.com/aescanero/pipewright/pkg/adapters/llm"
	metricsprom "github.com/aescanero/pipewright/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/pipewright/pkg/adapters/storage/file"
	storagememory "github.com/aescanero/pipewright/pkg/adapters/storage/memory"
	"github.com/aescanero/pipewright/pkg/adapters/storage/postgres"
	storageredis "github.com/aescanero/pipewright/pkg/adapters/storage/redis"
	"github.com/aescanero/pipewright/pkg/api/grpc"
	"github.com/aescanero/pipewright/pkg/api/http"
	"github.com/aescanero/pipewright/pkg/api/websocket"
	"github.com/aescanero/pipewright/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, SSE, websocket and gRPC surfaces",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting pipewright",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := cmd.Context()
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Redis backs the schema store and the event mirror when configured
	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		closers = append(closers, func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Redis close error", zap.Error(err))
			}
		})
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	repo, err := schemaRepository(ctx, cfg, redisClient, logger, &closers)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metricsprom.NewCollector(registry)

	busOpts := []eventsmemory.Option{
		eventsmemory.WithBufferSize(cfg.Events.BufferSize),
		eventsmemory.WithMetrics(collector),
	}
	if cfg.Redis.MirrorEvents {
		busOpts = append(busOpts, eventsmemory.WithMirror(
			eventsredis.NewStreamsMirror(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.StreamTTL, logger)))
	}
	eventBus := eventsmemory.NewEventBus(logger, busOpts...)
	closers = append(closers, func() { _ = eventBus.Close() })

	execOpts := []executor.Option{executor.WithMetrics(collector)}
	if cfg.LLM.APIKey != "" {
		transform, err := llm.NewTransformExecutor(&llm.Config{
			Provider:  cfg.LLM.Provider,
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.DefaultModel,
			MaxTokens: cfg.LLM.DefaultMaxTokens,

			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			Burst:             cfg.LLM.Burst,

			Metrics: collector,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create transform executor: %w", err)
		}
		execOpts = append(execOpts, executor.WithTransformExecutor(transform))
	} else {
		logger.Warn("no LLM API key configured, real-mode transforms will fail")
	}

	schemas := catalog.NewCatalog(repo, collector, logger)
	if cfg.Schemas.Dir != "" {
		loaded, err := file.LoadDir(cfg.Schemas.Dir)
		if err != nil {
			return fmt.Errorf("failed to load schemas: %w", err)
		}
		n, err := schemas.Import(ctx, loaded)
		if err != nil {
			return err
		}
		logger.Info("schemas imported", zap.String("dir", cfg.Schemas.Dir), zap.Int("count", n))
	}

	pool := workers.NewPool(collector, logger)
	manager := orchestrator.NewManager(
		schemas,
		storagememory.NewExecutionStore(),
		eventBus,
		executor.NewExecutor(logger, execOpts...),
		pool,
		collector,
		logger,
	)

	janitor := workers.NewJanitor(manager, cfg.Executions.Retention, cfg.Executions.CleanupInterval, collector, logger)
	janitor.Start()

	httpServer := http.NewServer(&http.Config{
		Port:              cfg.HTTPPort,
		Catalog:           schemas,
		Executions:        manager,
		Pool:              pool,
		Gatherer:          registry,
		HeartbeatInterval: cfg.Events.HeartbeatInterval,
		Logger:            logger,
	})
	wsHandler := websocket.NewHandler(manager, cfg.Events.HeartbeatInterval, logger)
	httpServer.SetupWebSocket(wsHandler.HandleExecutionStream)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create gRPC server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(grpcServer.Start)

	logger.Info("pipewright started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("schema_store", cfg.Schemas.Store))

	// Either a signal or a failing server starts the shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeouts.ShutdownTimeout)
		defer cancel()

		grpcServer.SetServing(false)
		janitor.Stop()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := manager.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("execution manager: %w", err))
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	if err != nil {
		logger.Error("pipewright stopped with errors", zap.Error(err))
		return err
	}
	logger.Info("pipewright shut down complete")
	return nil
}

// schemaRepository builds the configured schema store
func schemaRepository(ctx context.Context, cfg *config.Config, redisClient *goredis.Client, logger *zap.Logger, closers *[]func()) (ports.SchemaRepository, error) {
	switch cfg.Schemas.Store {
	case config.StoreRedis:
		return storageredis.NewSchemaRepository(redisClient, cfg.Redis.KeyPrefix, logger), nil

	case config.StorePostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres DSN: %w", err)
		}
		poolCfg.MaxConns = cfg.Postgres.MaxConns

		db, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		*closers = append(*closers, db.Close)
		if err := db.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}

		repo := postgres.NewSchemaRepository(db, logger)
		if cfg.Postgres.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		logger.Info("connected to PostgreSQL")
		return repo, nil

	default:
		return storagememory.NewSchemaRepository(), nil
	}
}

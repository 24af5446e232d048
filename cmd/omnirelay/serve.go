package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/omnirelay/omnirelay/internal/ai"
	"github.com/omnirelay/omnirelay/internal/audit"
	"github.com/omnirelay/omnirelay/internal/buffer"
	"github.com/omnirelay/omnirelay/internal/config"
	"github.com/omnirelay/omnirelay/internal/db"
	"github.com/omnirelay/omnirelay/internal/gateway"
	"github.com/omnirelay/omnirelay/internal/kvstore"
	"github.com/omnirelay/omnirelay/internal/logger"
	"github.com/omnirelay/omnirelay/internal/message"
	"github.com/omnirelay/omnirelay/internal/normalizer"
	"github.com/omnirelay/omnirelay/internal/outbound"
	"github.com/omnirelay/omnirelay/internal/parser"
	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/project"
	"github.com/omnirelay/omnirelay/internal/queue"
	"github.com/omnirelay/omnirelay/internal/reclaim"
	"github.com/omnirelay/omnirelay/internal/server"
	"github.com/omnirelay/omnirelay/internal/steps"
	"github.com/omnirelay/omnirelay/internal/thread"
	"github.com/omnirelay/omnirelay/internal/vision"
	"github.com/omnirelay/omnirelay/internal/webhook"
	"github.com/omnirelay/omnirelay/internal/worker"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion gateway and job workers",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideQueue,
			provideKVStore,
			provideBufferEngine,
			provideWebhookService,
			provideThreadResolver,
			provideProjectStore,
			provideMessageStore,
			provideParserRegistry,
			provideNormalizerRegistry,
			provideGenerator,
			provideDescriber,
			provideSender,
			provideAuditHub,
			provideStepRegistry,
			provideFactory,
			provideExecutor,
			provideProcessor,
			provideQueueWorker,
			provideGatewayHandler,
			provideServer,
		),
		fx.Invoke(
			startAuditHub,
			startQueueWorker,
			startReclaimSweeper,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideQueue(conn *pgxpool.Pool, cfg config.Config) queue.Queue {
	return queue.NewPGQueue(conn, cfg.Queue.Attempts)
}

func provideKVStore(conn *pgxpool.Pool) kvstore.Store { return kvstore.NewPostgres(conn) }

func provideBufferEngine(log *slog.Logger, kv kvstore.Store, q queue.Queue, cfg config.Config) *buffer.Engine {
	return buffer.NewEngine(log, kv, q, time.Duration(cfg.Buffer.TTLSeconds)*time.Second)
}

func provideWebhookService(log *slog.Logger, conn *pgxpool.Pool) *webhook.Service {
	return webhook.NewService(log, webhook.NewPGStore(conn))
}

func provideThreadResolver(log *slog.Logger, conn *pgxpool.Pool) *thread.Resolver {
	return thread.NewResolver(log, thread.NewPGStore(conn))
}

func provideProjectStore(conn *pgxpool.Pool) project.Store { return project.NewPGStore(conn) }

func provideMessageStore(conn *pgxpool.Pool) message.Store { return message.NewPGStore(conn) }

func provideParserRegistry() (*parser.Registry, error) { return parser.NewDefaultRegistry() }

func provideNormalizerRegistry() *normalizer.Registry { return normalizer.NewDefaultRegistry() }

func provideGenerator(cfg config.Config) ai.Generator {
	ep := cfg.Collaborators.AI
	return ai.NewHTTPGenerator(ep.BaseURL, ep.APIKey, time.Duration(ep.TimeoutSeconds)*time.Second)
}

func provideDescriber(cfg config.Config) vision.Describer {
	ep := cfg.Collaborators.Vision
	return vision.NewHTTPDescriber(ep.BaseURL, ep.APIKey, time.Duration(ep.TimeoutSeconds)*time.Second)
}

func provideSender(cfg config.Config) outbound.Sender {
	ep := cfg.Collaborators.Outbound
	return outbound.NewHTTPSender(ep.BaseURL, ep.APIKey, time.Duration(ep.TimeoutSeconds)*time.Second)
}

func provideAuditHub(log *slog.Logger) *audit.Hub {
	return audit.NewHub(log, audit.LogSubscriber(log))
}

func provideStepRegistry(log *slog.Logger, messages message.Store, engine *buffer.Engine, describer vision.Describer, generator ai.Generator, sender outbound.Sender, hub *audit.Hub) *pipeline.Registry {
	return steps.NewRegistry(steps.Deps{
		Logger:    log,
		Messages:  messages,
		Buffer:    engine,
		Describer: describer,
		Generator: generator,
		Sender:    sender,
		Audit:     hub,
	})
}

func provideFactory(log *slog.Logger, registry *pipeline.Registry) (*pipeline.Factory, error) {
	return pipeline.NewFactory(log, registry, steps.Definitions(), project.DefaultType)
}

func provideExecutor(log *slog.Logger) *pipeline.Executor { return pipeline.NewExecutor(log) }

func provideProcessor(log *slog.Logger, cfg config.Config, events *webhook.Service, parsers *parser.Registry, normalizers *normalizer.Registry, threads *thread.Resolver, projects project.Store, factory *pipeline.Factory, executor *pipeline.Executor, hub *audit.Hub) *worker.Processor {
	return worker.NewProcessor(log, worker.Config{
		Events:           events,
		Parsers:          parsers,
		Normalizers:      normalizers,
		Threads:          threads,
		Projects:         projects,
		Factory:          factory,
		Executor:         executor,
		Audit:            hub,
		DefaultTimeoutMs: cfg.Buffer.DefaultTimeoutMs,
	})
}

func provideQueueWorker(log *slog.Logger, q queue.Queue, cfg config.Config, processor *worker.Processor) (*queue.Worker, error) {
	w := queue.NewWorker(log, q, queue.WorkerConfig{
		Interval:  time.Duration(cfg.Queue.PollIntervalMs) * time.Millisecond,
		Burst:     cfg.Queue.Burst,
		IdleDelay: time.Duration(cfg.Queue.IdleDelayMs) * time.Millisecond,
		Backoff: queue.BackoffConfig{
			BaseDelay: time.Duration(cfg.Queue.BackoffBaseMs) * time.Millisecond,
			MaxDelay:  time.Duration(cfg.Queue.BackoffMaxMs) * time.Millisecond,
		},
	})
	if err := processor.RegisterHandlers(w); err != nil {
		return nil, err
	}
	return w, nil
}

func provideGatewayHandler(log *slog.Logger, events *webhook.Service, q queue.Queue) *gateway.Handler {
	return gateway.NewHandler(log, events, q)
}

func provideServer(log *slog.Logger, cfg config.Config, gatewayHandler *gateway.Handler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, gatewayHandler)
}

func startAuditHub(lc fx.Lifecycle, hub *audit.Hub) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { go hub.Run(ctx); return nil },
		OnStop:  func(_ context.Context) error { cancel(); return nil },
	})
}

func startQueueWorker(lc fx.Lifecycle, w *queue.Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { go w.Run(ctx); return nil },
		OnStop:  func(_ context.Context) error { cancel(); return nil },
	})
}

func startReclaimSweeper(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, events *webhook.Service, q queue.Queue) {
	if !cfg.Reclaim.Enabled {
		return
	}
	sweeper := reclaim.NewSweeper(log, events, q, time.Duration(cfg.Reclaim.LeaseSeconds)*time.Second)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return sweeper.Start(cfg.Reclaim.Schedule) },
		OnStop:  func(_ context.Context) error { sweeper.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"claimant-consumer/internal/config"
	"claimant-consumer/internal/constants"
	"claimant-consumer/internal/decoder"
	"claimant-consumer/internal/filtering"
	"claimant-consumer/internal/keyservice"
	"claimant-consumer/internal/logger"
	"claimant-consumer/internal/orchestrator"
	"claimant-consumer/internal/processor"
	"claimant-consumer/internal/target"
	"claimant-consumer/internal/transformer"
	"claimant-consumer/pkg/bootstrap"
	"claimant-consumer/pkg/health"
	"claimant-consumer/pkg/logging"
	"claimant-consumer/pkg/metrics"
	"claimant-consumer/pkg/middleware"
	"claimant-consumer/pkg/migrations"
	"claimant-consumer/pkg/ratelimit"
	"claimant-consumer/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	dbs            *bootstrap.Databases
	orchestrator   *orchestrator.Orchestrator
	closeFailure   func() error
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.Register(prometheus.DefaultRegisterer)

	if a.dbs, err = a.dbConnector.Connect(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if a.Config.Database.RunMigrations {
		if err := migrate(ctx, a.Config, a.dbs, a.Logger); err != nil {
			return err
		}
	}

	pipeline, err := a.initPipeline(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	res := target.Resources{
		Postgres: a.dbs.Postgres,
		Mongo:    a.dbs.MongoDatabase(a.Config.Database.MongoDB),
		Redis:    a.dbs.Redis,
	}
	success, err := target.NewSuccessTarget(a.Config, res)
	if err != nil {
		return fmt.Errorf("failed to initialize success target: %w", err)
	}
	failure, closeFailure, err := target.NewFailureTarget(a.Config, res, a.Logger)
	a.closeFailure = closeFailure
	if err != nil {
		return fmt.Errorf("failed to initialize failure target: %w", err)
	}

	if err := a.InitBroker(ctx); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	a.orchestrator = orchestrator.New(a.Consumer, pipeline, success, failure, a.Config.Orchestrator, a.Logger)

	a.initHTTPServer()
	return nil
}

func (a *App) initPipeline(ctx context.Context) (*processor.Pipeline, error) {
	keys, err := keyservice.New(ctx, a.Config.KeyService, a.Config.CircuitBreaker, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("key service: %w", err)
	}

	transformers, err := transformer.FromConfig(a.Config.Topics, keys, a.Config.Transform.NinoSalt)
	if err != nil {
		return nil, fmt.Errorf("transformers: %w", err)
	}

	policies, err := filtering.FromConfig(a.Config.Topics)
	if err != nil {
		return nil, fmt.Errorf("filters: %w", err)
	}

	idFields := a.Config.IDFields()
	a.Logger.InfowCtx(logging.WithServiceName(ctx, constants.ServiceName), "pipeline ready",
		"topics", len(idFields),
		"transformers", transformers.Len(),
	)

	return processor.NewPipeline(
		decoder.New(keys, idFields),
		processor.NewDeleteProcessor(idFields),
		processor.NewCompoundProcessor(
			processor.NewTransformProcessor(transformers),
			processor.NewFilterProcessor(policies, a.Logger),
		),
	), nil
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceName, "/health", "/metrics"))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger, "/health", "/metrics"))
	router.Use(ratelimit.Middleware(a.Config.Server.RateLimit))

	registerOpsRoutes(router, a.healthRegistry(), a.orchestrator)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// healthRegistry treats kafka and the configured targets as critical.
// Other connected stores only degrade the reported status. Kafka health comes
// from the consumer loop, which is the only caller of the client.
func (a *App) healthRegistry() *health.CheckerRegistry {
	registry := health.NewCheckerRegistry()
	registry.Register(health.NewKafkaChecker(a.orchestrator))
	registry.Register(newOrchestratorChecker(a.orchestrator))

	successType := a.Config.Target.Success.Type
	if a.dbs.Postgres != nil {
		register(registry, successType == constants.SuccessTargetPostgres, health.NewPostgreSQLChecker(a.dbs.Postgres))
	}
	if a.dbs.Mongo != nil {
		register(registry, successType == constants.SuccessTargetMongoDB, health.NewMongoDBChecker(a.dbs.Mongo))
	}
	if a.dbs.Redis != nil {
		register(registry, a.Config.Target.Failure.Type == constants.FailureTargetRedis, health.NewRedisChecker(a.dbs.Redis))
	}
	return registry
}

func register(r *health.CheckerRegistry, critical bool, c health.Checker) {
	if critical {
		r.Register(c)
		return
	}
	r.RegisterOptional(c)
}

func (a *App) Run(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
	return serve(ctx, a.server, a.orchestrator.Run)
}

// errLoopStopped ends the group when the consumer loop returns on its own,
// for example after the consumer was closed, so the HTTP server stops too.
var errLoopStopped = errors.New("consumer loop stopped")

func serve(ctx context.Context, server *http.Server, loop func(context.Context) error) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := loop(gCtx); err != nil {
			return err
		}
		return errLoopStopped
	})

	if err := g.Wait(); !errors.Is(err, errLoopStopped) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, constants.ServiceName)
	a.Logger.InfowCtx(shutdownCtx, "Shutting down claimant consumer")

	additionalShutdown := func(ctx context.Context) error {
		var errs error

		if a.closeFailure != nil {
			if err := a.closeFailure(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("failure target close error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return multierr.Append(errs, a.dbConnector.ShutdownDatabases(ctx, a.dbs))
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}

// migrate prepares the stores of the configured success target.
func migrate(ctx context.Context, cfg *config.Config, dbs *bootstrap.Databases, log logger.Logger) error {
	switch cfg.Target.Success.Type {
	case constants.SuccessTargetPostgres:
		if dbs.Postgres == nil {
			return fmt.Errorf("postgres migrations need database.postgres")
		}
		if err := migrations.MigratePostgres(ctx, dbs.Postgres, log); err != nil {
			return err
		}
	case constants.SuccessTargetMongoDB:
		db := dbs.MongoDatabase(cfg.Database.MongoDB)
		if db == nil {
			return fmt.Errorf("mongodb indexes need database.mongodb")
		}
		if err := migrations.EnsureMongoCollections(ctx, db, cfg.TargetTables()); err != nil {
			return fmt.Errorf("failed to create mongodb indexes: %w", err)
		}
		log.Infow("mongodb indexes ensured", "collections", cfg.TargetTables())
	}
	return nil
}

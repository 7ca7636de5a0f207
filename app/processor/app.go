package processor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/orca-so/sedimentology/app/processor/activity"
	"github.com/orca-so/sedimentology/app/processor/workflow"
	"github.com/orca-so/sedimentology/pkg/config"
	"github.com/orca-so/sedimentology/pkg/db/postgres"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/decoder"
	"github.com/orca-so/sedimentology/pkg/logging"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/redis"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"github.com/orca-so/sedimentology/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config configures the block processor.
type Config struct {
	config.Common
	// Concurrency is the number of slots processed at once.
	Concurrency int
	LRUSize     int
	Checkpoint  bool
	ProgramID   string
}

type App struct {
	Worker         worker.Worker
	TemporalClient *temporal.Client
	AdminDB        *admin.DB
	ChainDB        *chain.DB
	Redis          *redis.Client
	Pool           pond.Pool
	MetricsServer  *http.Server
	Logger         *zap.Logger
}

// Start starts the worker and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	if err := a.Worker.Start(); err != nil {
		a.Logger.Fatal("Unable to start worker", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.MetricsServer != nil {
		g.Go(func() error {
			if err := a.MetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.MetricsServer.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		a.Logger.Error("Metrics server failed", zap.Error(err))
	}
	a.Stop()
}

// Stop drains in-flight slots, then releases the pools and connections.
func (a *App) Stop() {
	// Worker.Stop waits up to WorkerStopTimeout for running activities, so a
	// slot commit in progress completes before the database pool closes.
	a.Worker.Stop()
	a.Pool.StopAndWait()
	a.TemporalClient.Close()
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.ChainDB.Close()
	a.AdminDB.Close()
	a.Logger.Info("Processor stopped")
	_ = a.Logger.Sync()
}

// Initialize initializes the application.
func Initialize(ctx context.Context, cfg Config) *App {
	logger, err := logging.NewForRole("processor")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.ProgramID == "" {
		cfg.ProgramID = decoder.WhirlpoolProgramID
	}

	poolConfig := *postgres.GetPoolConfigForComponent("processor")
	adminDB, err := admin.NewWithPoolConfig(ctx, logger, cfg.Database, poolConfig)
	if err != nil {
		logger.Fatal("Unable to initialize admin database", zap.Error(err))
	}
	chainDB, err := chain.NewWithPoolConfig(ctx, logger, cfg.Database, poolConfig)
	if err != nil {
		logger.Fatal("Unable to initialize ledger database", zap.Error(err))
	}

	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	// Slot events are best-effort; the processor runs without them.
	var publisher activity.Publisher
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Redis unavailable, slot events disabled", zap.Error(err))
			redisClient = nil
		} else {
			publisher = redisClient
		}
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		logger.Fatal("Unable to register metrics", zap.Error(err))
	}

	pool := pond.NewPool(cfg.Concurrency * 4)
	addressRegistry, err := activity.NewRegistry(chainDB, pool, cfg.LRUSize, m)
	if err != nil {
		logger.Fatal("Unable to build address registry", zap.Error(err))
	}

	activityContext := &activity.Context{
		Logger:     logger,
		Queue:      adminDB,
		Ledger:     chainDB,
		Registry:   addressRegistry,
		RPC:        rpc.NewHTTPFactory(cfg.RPCOpts(m)).NewClient(cfg.RPCEndpoints),
		Publisher:  publisher,
		Metrics:    m,
		ProgramID:  cfg.ProgramID,
		Commitment: cfg.Commitment,
		Checkpoint: cfg.Checkpoint,
	}
	workflowContext := workflow.Context{ActivityContext: activityContext}

	wkr := worker.New(
		temporalClient.TClient,
		temporal.QueueProcessor,
		worker.Options{
			MaxConcurrentWorkflowTaskPollers:       4,
			MaxConcurrentActivityTaskPollers:       max(2, cfg.Concurrency/2),
			MaxConcurrentActivityExecutionSize:     cfg.Concurrency,
			MaxConcurrentWorkflowTaskExecutionSize: cfg.Concurrency,
			WorkerStopTimeout:                      pipeline.ProcessSlotActivityTimeout,
		},
	)
	wkr.RegisterWorkflowWithOptions(
		workflowContext.ProcessSlotWorkflow,
		temporalworkflow.RegisterOptions{Name: pipeline.ProcessSlotWorkflowName},
	)
	wkr.RegisterActivity(activityContext.ProcessSlot)

	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		metricsServer = metrics.NewServer(cfg.MetricsListen, registry)
	}

	logger.Info("Processor initialized",
		zap.Int("concurrency", cfg.Concurrency),
		zap.Int("lruSize", cfg.LRUSize),
		zap.Bool("checkpoint", cfg.Checkpoint),
		zap.String("programId", cfg.ProgramID),
		zap.Strings("rpc", cfg.RPCEndpoints))

	return &App{
		Worker:         wkr,
		TemporalClient: temporalClient,
		AdminDB:        adminDB,
		ChainDB:        chainDB,
		Redis:          redisClient,
		Pool:           pool,
		MetricsServer:  metricsServer,
		Logger:         logger,
	}
}

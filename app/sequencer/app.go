package sequencer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/orca-so/sedimentology/app/sequencer/activity"
	"github.com/orca-so/sedimentology/app/sequencer/workflow"
	"github.com/orca-so/sedimentology/pkg/config"
	"github.com/orca-so/sedimentology/pkg/db/postgres"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/logging"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config configures a forward or backfill sequencer.
type Config struct {
	config.Common
	Mode             string
	Interval         time.Duration
	MaxQueuedSlots   int64
	NewSlotsPerFetch uint64
	// MaxBlockHeight pins the backfill campaign.
	MaxBlockHeight uint64
	// StartSlot and StartHeight seed the watermark (forward) or create the
	// campaign (backfill) when StartSlot is non-zero.
	StartSlot   uint64
	StartHeight uint64
}

type App struct {
	Worker         worker.Worker
	TemporalClient *temporal.Client
	AdminDB        *admin.DB
	MetricsServer  *http.Server
	Logger         *zap.Logger
	Config         Config
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

// Stop stops the worker and closes the connections.
func (a *App) Stop() {
	a.Worker.Stop()
	a.TemporalClient.Close()
	a.AdminDB.Close()
	a.Logger.Info("Sequencer stopped", zap.String("mode", a.Config.Mode))
	_ = a.Logger.Sync()
}

// Initialize initializes the application.
func Initialize(ctx context.Context, cfg Config) *App {
	role := "sequencer"
	queue := temporal.QueueSequencer
	scheduleID := temporal.ScheduleSequencer
	if cfg.Mode == pipeline.ModeBackfill {
		role = "backfill-sequencer"
		queue = temporal.QueueBackfill
		scheduleID = temporal.ScheduleBackfillSequencer
	}

	logger, err := logging.NewForRole(role)
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	adminDB, err := admin.NewWithPoolConfig(ctx, logger, cfg.Database, *postgres.GetPoolConfigForComponent(role))
	if err != nil {
		logger.Fatal("Unable to initialize admin database", zap.Error(err))
	}

	if err := seed(ctx, logger, adminDB, cfg); err != nil {
		logger.Fatal("Unable to seed watermark", zap.Error(err))
	}

	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		logger.Fatal("Unable to register metrics", zap.Error(err))
	}

	activityContext := &activity.Context{
		Logger:  logger,
		Store:   adminDB,
		RPC:     rpc.NewHTTPFactory(cfg.RPCOpts(m)).NewClient(cfg.RPCEndpoints),
		Metrics: m,
		Defaults: activity.Defaults{
			MaxNewSlots:    cfg.NewSlotsPerFetch,
			MaxQueueDepth:  cfg.MaxQueuedSlots,
			MaxBlockHeight: cfg.MaxBlockHeight,
			Commitment:     cfg.Commitment,
		},
	}
	workflowContext := workflow.Context{ActivityContext: activityContext}

	// One run at a time: the watermark has a single writer.
	wkr := worker.New(
		temporalClient.TClient,
		queue,
		worker.Options{
			MaxConcurrentWorkflowTaskPollers:       2,
			MaxConcurrentActivityTaskPollers:       1,
			MaxConcurrentActivityExecutionSize:     1,
			MaxConcurrentWorkflowTaskExecutionSize: 2,
			WorkerStopTimeout:                      time.Minute,
		},
	)
	wkr.RegisterWorkflowWithOptions(
		workflowContext.SequenceWorkflow,
		temporalworkflow.RegisterOptions{Name: pipeline.SequenceWorkflowName},
	)
	wkr.RegisterActivity(activityContext.Sequence)

	err = temporalClient.EnsureSchedule(ctx, temporal.ScheduleDefinition{
		ID:        scheduleID,
		Every:     cfg.Interval,
		Workflow:  pipeline.SequenceWorkflowName,
		Args:      []interface{}{pipeline.SequenceInput{Mode: cfg.Mode}},
		TaskQueue: queue,
	})
	if err != nil {
		logger.Fatal("Unable to ensure sequencer schedule", zap.Error(err))
	}

	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		metricsServer = metrics.NewServer(cfg.MetricsListen, registry)
	}

	logger.Info("Sequencer initialized",
		zap.String("mode", cfg.Mode),
		zap.String("queue", queue),
		zap.Duration("interval", cfg.Interval),
		zap.Int64("maxQueuedSlots", cfg.MaxQueuedSlots),
		zap.Uint64("newSlotsPerFetch", cfg.NewSlotsPerFetch))

	return &App{
		Worker:         wkr,
		TemporalClient: temporalClient,
		AdminDB:        adminDB,
		MetricsServer:  metricsServer,
		Logger:         logger,
		Config:         cfg,
	}
}

// seed creates the forward watermark or the backfill campaign from the
// start flags. An existing forward watermark is left untouched.
func seed(ctx context.Context, logger *zap.Logger, db *admin.DB, cfg Config) error {
	if cfg.StartSlot == 0 {
		return nil
	}
	if cfg.Mode == pipeline.ModeBackfill {
		if cfg.MaxBlockHeight == 0 {
			return errors.New("--max-block-height is required to create a backfill campaign")
		}
		logger.Info("Creating backfill campaign",
			zap.Uint64("maxBlockHeight", cfg.MaxBlockHeight),
			zap.Uint64("startSlot", cfg.StartSlot),
			zap.Uint64("startHeight", cfg.StartHeight))
		return db.UpsertBackfillState(ctx, admin.BackfillState{
			MaxBlockHeight: cfg.MaxBlockHeight,
			Slot:           cfg.StartSlot,
			BlockHeight:    cfg.StartHeight,
			Enabled:        true,
		})
	}
	created, err := db.InitState(ctx, cfg.StartSlot, cfg.StartHeight)
	if err != nil {
		return err
	}
	if created {
		logger.Info("Seeded forward watermark",
			zap.Uint64("slot", cfg.StartSlot),
			zap.Uint64("height", cfg.StartHeight))
	}
	return nil
}

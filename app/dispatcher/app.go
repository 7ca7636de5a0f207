package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/orca-so/sedimentology/pkg/config"
	"github.com/orca-so/sedimentology/pkg/db/postgres"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/logging"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config configures the dispatcher.
type Config struct {
	config.Common
	Interval time.Duration
	// ScheduleInterval is the tick of the sequencer schedules created at start-up.
	ScheduleInterval time.Duration
	ProcessorMax     int
	// Parallelism bounds concurrent workflow starts.
	Parallelism int
}

type App struct {
	Dispatcher     *Dispatcher
	TemporalClient *temporal.Client
	AdminDB        *admin.DB
	MetricsServer  *http.Server
	Logger         *zap.Logger
}

// Start runs the dispatch loop and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Dispatcher.Run(gctx)
	})
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
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("Dispatcher stopped with error", zap.Error(err))
	}
	a.Stop()
}

// Stop releases the pool and the connections.
func (a *App) Stop() {
	a.Dispatcher.Pool.StopAndWait()
	a.TemporalClient.Close()
	a.AdminDB.Close()
	a.Logger.Info("Dispatcher stopped")
	_ = a.Logger.Sync()
}

// Initialize initializes the application.
func Initialize(ctx context.Context, cfg Config) *App {
	logger, err := logging.NewForRole("dispatcher")
	if err != nil {
		panic(err)
	}

	adminDB, err := admin.NewWithPoolConfig(ctx, logger, cfg.Database, *postgres.GetPoolConfigForComponent("dispatcher"))
	if err != nil {
		logger.Fatal("Unable to initialize admin database", zap.Error(err))
	}

	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	if err := EnsureSchedules(ctx, temporalClient, cfg.ScheduleInterval); err != nil {
		logger.Fatal("Unable to ensure sequencer schedules", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		logger.Fatal("Unable to register metrics", zap.Error(err))
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 32
	}

	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		metricsServer = metrics.NewServer(cfg.MetricsListen, registry)
	}

	logger.Info("Dispatcher initialized",
		zap.Duration("interval", cfg.Interval),
		zap.Int("processorMax", cfg.ProcessorMax),
		zap.Int("parallelism", parallelism))

	return &App{
		Dispatcher: &Dispatcher{
			Logger:       logger,
			Store:        adminDB,
			Starter:      temporalClient,
			Metrics:      m,
			Interval:     cfg.Interval,
			ProcessorMax: cfg.ProcessorMax,
			Pool:         pond.NewPool(parallelism, pond.WithQueueSize(cfg.ProcessorMax*2)),
		},
		TemporalClient: temporalClient,
		AdminDB:        adminDB,
		MetricsServer:  metricsServer,
		Logger:         logger,
	}
}

package admin

import (
	"context"
	"time"

	"github.com/orca-so/sedimentology/app/admin/types"
	"github.com/orca-so/sedimentology/pkg/db/postgres"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/logging"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/redis"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/orca-so/sedimentology/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config configures the admin service.
type Config struct {
	Database       string
	Listen         string
	MetricsListen  string
	CheckpointCron string
}

func Initialize(ctx context.Context, cfg Config) *types.App {
	logger, err := logging.NewForRole("admin")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":3000"
	}
	if cfg.CheckpointCron == "" {
		cfg.CheckpointCron = types.DefaultCheckpointCron
	}

	poolConfig := *postgres.GetPoolConfigForComponent("admin")
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
	err = temporalClient.EnsureNamespace(ctx, 7*24*time.Hour)
	if err != nil {
		logger.Fatal("Unable to ensure temporal namespace", zap.Error(err))
	}
	logger.Info("Temporal namespace ready", zap.String("namespace", temporalClient.Namespace))

	// Redis backs the websocket stream only (optional)
	var redisClient *redis.Client
	var hub *types.Hub
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			hub = types.NewHub(logger)
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		logger.Fatal("Unable to register metrics", zap.Error(err))
	}

	app := &types.App{
		AdminDB:     adminDB,
		ChainDB:     chainDB,
		Temporal:    temporalClient,
		RedisClient: redisClient,
		Hub:         hub,
		Metrics:     m,
		Logger:      logger,
		HealthCache: types.NewHealthCache(),
	}
	if cfg.MetricsListen != "" {
		app.MetricsServer = metrics.NewServer(cfg.MetricsListen, registry)
	}

	if err := app.SetupScheduler(ctx, types.CronLogger(logger), cfg.CheckpointCron); err != nil {
		logger.Fatal("Invalid checkpoint cron", zap.String("cron", cfg.CheckpointCron), zap.Error(err))
	}
	if err := NewServer(app, cfg.Listen); err != nil {
		logger.Fatal("Unable to build router", zap.Error(err))
	}
	return app
}

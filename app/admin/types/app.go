package types

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/redis"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AdminStore is the part of the control tables the admin surface reads and edits.
type AdminStore interface {
	Stats(ctx context.Context) (admin.Stats, error)
	GetQueuedSlot(ctx context.Context, slot uint64) (*admin.QueuedSlot, error)
	ListQueuedSlots(ctx context.Context, backfill bool, limit int) ([]admin.QueuedSlot, error)
	ListBackfillStates(ctx context.Context) ([]admin.BackfillState, error)
	ReadBackfillState(ctx context.Context, maxBlockHeight uint64) (admin.BackfillState, error)
	UpsertBackfillState(ctx context.Context, b admin.BackfillState) error
	SetBackfillEnabled(ctx context.Context, maxBlockHeight uint64, enabled bool) error
	AdvanceCheckpoint(ctx context.Context) (uint64, bool, error)
	Close()
}

var _ AdminStore = (*admin.DB)(nil)

// LedgerReader serves committed slots.
type LedgerReader interface {
	GetSlot(ctx context.Context, slot uint64) (*chain.Slot, error)
	LatestSlots(ctx context.Context, limit int) ([]chain.Slot, error)
	TxsBySlot(ctx context.Context, slot uint64) ([]chain.TxSummary, error)
	Close()
}

var _ LedgerReader = (*chain.DB)(nil)

// TemporalHealth reports the Temporal connection and queue backlogs.
type TemporalHealth interface {
	Health(ctx context.Context) temporal.Health
	Close()
}

var _ TemporalHealth = (*temporal.Client)(nil)

type App struct {
	AdminDB  AdminStore
	ChainDB  LedgerReader
	Temporal TemporalHealth

	// RedisClient is nil when real-time events are disabled.
	RedisClient *redis.Client
	// Hub fans slot events out to websocket clients.
	Hub *Hub

	// Cron runs the checkpoint sweep every CronSpec tick.
	Cron     *cron.Cron
	CronSpec string

	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	Server        *http.Server
	MetricsServer *http.Server

	// HealthCache keeps Temporal queue stats for HealthCacheTTL.
	HealthCache *xsync.Map[string, CachedHealth]
}

// Start serves the API, the metrics endpoint, the checkpoint sweep and the
// redis listener until ctx is canceled.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Cron started", zap.String("cronSpec", a.CronSpec))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range []*http.Server{a.Server, a.MetricsServer} {
		if srv == nil {
			continue
		}
		g.Go(func() error {
			a.Logger.Info("Starting server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if a.RedisClient != nil && a.Hub != nil {
		g.Go(func() error {
			err := a.RedisClient.Listen(gctx, redis.EventSlotProcessed, a.Hub.HandlePayload)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		a.Logger.Error("Admin server failed", zap.Error(err))
	}
	a.Stop()
}

// Stop waits for a running sweep, then closes connections.
func (a *App) Stop() {
	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	if a.Temporal != nil {
		a.Temporal.Close()
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close redis connection", zap.Error(err))
		}
	}
	if a.ChainDB != nil {
		a.ChainDB.Close()
	}
	if a.AdminDB != nil {
		a.Logger.Info("closing admin database connection")
		a.AdminDB.Close()
	}
	a.Logger.Info("さようなら!")
	_ = a.Logger.Sync()
}

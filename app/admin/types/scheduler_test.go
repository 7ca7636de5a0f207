package types

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// sweepStore implements AdminStore; only the sweep methods do anything.
type sweepStore struct {
	AdminStore
	advances atomic.Int64
	err      error
	stats    admin.Stats
}

func (s *sweepStore) AdvanceCheckpoint(context.Context) (uint64, bool, error) {
	s.advances.Add(1)
	return 42, s.err == nil, s.err
}

func (s *sweepStore) Stats(context.Context) (admin.Stats, error) {
	return s.stats, nil
}

func TestSweepCheckpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	store := &sweepStore{stats: admin.Stats{QueuedLive: 12, QueuedBackfill: 3}}
	app := &App{AdminDB: store, Metrics: m, Logger: zaptest.NewLogger(t)}

	require.NoError(t, app.SweepCheckpoint(context.Background()))
	assert.Equal(t, int64(1), store.advances.Load())
	assert.Equal(t, float64(12), testutil.ToFloat64(m.QueueDepth.WithLabelValues("live")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.QueueDepth.WithLabelValues("backfill")))

	store.err = errors.New("db down")
	assert.ErrorContains(t, app.SweepCheckpoint(context.Background()), "db down")
}

func TestSetupScheduler(t *testing.T) {
	app := &App{AdminDB: &sweepStore{}, Logger: zaptest.NewLogger(t)}
	logger := CronLogger(app.Logger)

	require.Error(t, app.SetupScheduler(context.Background(), logger, "not a cron"))
	require.NoError(t, app.SetupScheduler(context.Background(), logger, DefaultCheckpointCron))
	assert.Len(t, app.Cron.Entries(), 1)
	assert.Equal(t, DefaultCheckpointCron, app.CronSpec)
}

func TestSchedulerRunsSweep(t *testing.T) {
	store := &sweepStore{}
	app := &App{AdminDB: store, Logger: zaptest.NewLogger(t)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.SetupScheduler(ctx, CronLogger(app.Logger), "* * * * * *"))
	app.Cron.Start()
	defer func() { <-app.Cron.Stop().Done() }()

	assert.Eventually(t, func() bool { return store.advances.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

type countingTemporal struct {
	calls int
}

func (c *countingTemporal) Health(context.Context) temporal.Health {
	c.calls++
	return temporal.Health{ConnectionOK: true}
}

func (c *countingTemporal) Close() {}

func TestTemporalHealthIsCached(t *testing.T) {
	tc := &countingTemporal{}
	app := &App{Temporal: tc, HealthCache: NewHealthCache()}

	assert.True(t, app.TemporalHealth(context.Background()).ConnectionOK)
	assert.True(t, app.TemporalHealth(context.Background()).ConnectionOK)
	assert.Equal(t, 1, tc.calls)

	app.HealthCache.Store(temporalHealthKey, CachedHealth{Fetched: time.Now().Add(-HealthCacheTTL - time.Second)})
	app.TemporalHealth(context.Background())
	assert.Equal(t, 2, tc.calls)
}

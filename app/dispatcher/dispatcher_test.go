package dispatcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDispatchSkipsInFlightAndPrioritizesLive(t *testing.T) {
	store := &fakeStore{
		live:     queued(false, 10, 11, 12),
		backfill: queued(true, 3, 4),
	}
	starter := &fakeStarter{open: []uint64{11}}
	d := newDispatcher(t, store, starter, 100)

	pass, err := d.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, pass.InFlight)
	assert.Equal(t, 2, pass.StartedLive)
	assert.Equal(t, 2, pass.StartedBackfill)
	assert.Equal(t, map[uint64]int{10: temporal.PriorityLive, 12: temporal.PriorityLive, 3: temporal.PriorityBackfill, 4: temporal.PriorityBackfill}, starter.startedWith())
}

func TestDispatchRespectsProcessorMax(t *testing.T) {
	store := &fakeStore{
		live:     queued(false, 10, 11, 12, 13),
		backfill: queued(true, 3),
	}
	starter := &fakeStarter{open: []uint64{1, 2}}
	d := newDispatcher(t, store, starter, 4)

	pass, err := d.Dispatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, pass.StartedLive)
	assert.Zero(t, pass.StartedBackfill)
	assert.Equal(t, []uint64{10, 11}, starter.startedSlots())
	assert.Equal(t, []int{4, 4}, store.limits)
}

func TestDispatchCountsAlreadyStarted(t *testing.T) {
	store := &fakeStore{live: queued(false, 10, 11)}
	starter := &fakeStarter{running: map[uint64]bool{11: true}}
	d := newDispatcher(t, store, starter, 100)

	pass, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pass.StartedLive)
	assert.Equal(t, 1, pass.AlreadyRunning)
}

func TestDispatchStartFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{live: queued(false, 10, 11)}
	starter := &fakeStarter{fail: map[uint64]bool{10: true}}
	d := newDispatcher(t, store, starter, 100)

	pass, err := d.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pass.StartedLive)
	assert.Equal(t, 1, pass.Failed)
}

func TestDispatchListFailure(t *testing.T) {
	starter := &fakeStarter{listErr: errors.New("visibility unavailable")}
	d := newDispatcher(t, &fakeStore{live: queued(false, 10)}, starter, 100)

	_, err := d.Dispatch(context.Background())
	require.Error(t, err)
	assert.Empty(t, starter.startedSlots())
}

func TestRunStopsOnCancel(t *testing.T) {
	d := newDispatcher(t, &fakeStore{}, &fakeStarter{}, 10)
	d.Interval = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnsureSchedules(t *testing.T) {
	s := &fakeScheduler{}
	require.NoError(t, EnsureSchedules(context.Background(), s, 10*time.Second))

	require.Len(t, s.defs, 2)
	assert.Equal(t, temporal.ScheduleSequencer, s.defs[0].ID)
	assert.Equal(t, temporal.QueueSequencer, s.defs[0].TaskQueue)
	assert.Equal(t, []interface{}{pipeline.SequenceInput{Mode: pipeline.ModeForward}}, s.defs[0].Args)
	assert.Equal(t, temporal.ScheduleBackfillSequencer, s.defs[1].ID)
	assert.Equal(t, temporal.QueueBackfill, s.defs[1].TaskQueue)
	assert.Equal(t, 10*time.Second, s.defs[1].Every)
}

func newDispatcher(t *testing.T, store Store, starter Starter, max int) *Dispatcher {
	t.Helper()
	pool := pond.NewPool(4)
	t.Cleanup(pool.StopAndWait)
	return &Dispatcher{
		Logger:       zaptest.NewLogger(t),
		Store:        store,
		Starter:      starter,
		Interval:     time.Second,
		ProcessorMax: max,
		Pool:         pool,
	}
}

func queued(backfill bool, slots ...uint64) []admin.QueuedSlot {
	out := make([]admin.QueuedSlot, len(slots))
	for i, s := range slots {
		out[i] = admin.QueuedSlot{Slot: s, BlockHeight: s, IsBackfillSlot: backfill}
	}
	return out
}

type fakeStore struct {
	live, backfill []admin.QueuedSlot
	limits         []int
}

func (f *fakeStore) ListQueuedSlots(_ context.Context, backfill bool, limit int) ([]admin.QueuedSlot, error) {
	f.limits = append(f.limits, limit)
	if backfill {
		return f.backfill, nil
	}
	return f.live, nil
}

type fakeStarter struct {
	open    []uint64
	listErr error
	running map[uint64]bool
	fail    map[uint64]bool

	mu      sync.Mutex
	started map[uint64]int
}

func (f *fakeStarter) ListOpenProcessSlots(context.Context) ([]uint64, error) {
	return f.open, f.listErr
}

func (f *fakeStarter) StartProcessSlot(_ context.Context, slot uint64, priority int) (bool, error) {
	if f.fail[slot] {
		return false, errors.New("frontend unavailable")
	}
	if f.running[slot] {
		return false, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started == nil {
		f.started = map[uint64]int{}
	}
	f.started[slot] = priority
	return true, nil
}

func (f *fakeStarter) startedWith() map[uint64]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

func (f *fakeStarter) startedSlots() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uint64
	for s := range f.started {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type fakeScheduler struct {
	defs []temporal.ScheduleDefinition
}

func (f *fakeScheduler) EnsureSchedule(_ context.Context, def temporal.ScheduleDefinition) error {
	f.defs = append(f.defs, def)
	return nil
}

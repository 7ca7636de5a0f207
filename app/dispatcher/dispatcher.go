package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/temporal"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Store lists pending slots.
type Store interface {
	ListQueuedSlots(ctx context.Context, backfill bool, limit int) ([]admin.QueuedSlot, error)
}

// Starter starts and lists processing workflows.
type Starter interface {
	StartProcessSlot(ctx context.Context, slot uint64, priority int) (bool, error)
	ListOpenProcessSlots(ctx context.Context) ([]uint64, error)
}

// Scheduler creates periodic workflows.
type Scheduler interface {
	EnsureSchedule(ctx context.Context, def temporal.ScheduleDefinition) error
}

var (
	_ Store     = (*admin.DB)(nil)
	_ Starter   = (*temporal.Client)(nil)
	_ Scheduler = (*temporal.Client)(nil)
)

// Dispatcher moves pending slots onto the processor task queue.
type Dispatcher struct {
	Logger       *zap.Logger
	Store        Store
	Starter      Starter
	Metrics      *metrics.Metrics
	Interval     time.Duration
	ProcessorMax int
	Pool         pond.Pool
}

// Pass is the outcome of one dispatch iteration.
type Pass struct {
	InFlight        int
	StartedLive     int
	StartedBackfill int
	AlreadyRunning  int
	Failed          int
}

// Run dispatches until ctx is canceled. A failed pass is logged and the loop
// continues on the next tick.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		pass, err := d.Dispatch(ctx)
		if err != nil && ctx.Err() == nil {
			d.Logger.Error("Dispatch pass failed", zap.Error(err))
		} else if pass.StartedLive+pass.StartedBackfill > 0 {
			d.Logger.Info("Dispatched slots",
				zap.Int("inFlight", pass.InFlight),
				zap.Int("live", pass.StartedLive),
				zap.Int("backfill", pass.StartedBackfill),
				zap.Int("alreadyRunning", pass.AlreadyRunning),
				zap.Int("failed", pass.Failed))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.Interval):
		}
	}
}

// Dispatch runs one iteration: live slots first, then backfill slots, never
// letting the number of open workflows exceed ProcessorMax.
func (d *Dispatcher) Dispatch(ctx context.Context) (Pass, error) {
	var pass Pass

	open, err := d.Starter.ListOpenProcessSlots(ctx)
	if err != nil {
		return pass, err
	}
	inFlight := xsync.NewMap[uint64, struct{}]()
	for _, slot := range open {
		inFlight.Store(slot, struct{}{})
	}
	pass.InFlight = inFlight.Size()

	live, err := d.Store.ListQueuedSlots(ctx, false, d.ProcessorMax)
	if err != nil {
		return pass, err
	}
	started, err := d.start(ctx, live, inFlight, temporal.PriorityLive, &pass)
	pass.StartedLive = started
	d.Metrics.Dispatched("live", started, len(live))
	if err != nil {
		return pass, err
	}

	backfill, err := d.Store.ListQueuedSlots(ctx, true, d.ProcessorMax)
	if err != nil {
		return pass, err
	}
	started, err = d.start(ctx, backfill, inFlight, temporal.PriorityBackfill, &pass)
	pass.StartedBackfill = started
	d.Metrics.Dispatched("backfill", started, len(backfill))
	return pass, err
}

// start fans the workflow starts out on the pool. Slots already in flight
// are skipped, and no slot is started once the in-flight set reaches the cap.
func (d *Dispatcher) start(ctx context.Context, slots []admin.QueuedSlot, inFlight *xsync.Map[uint64, struct{}], priority int, pass *Pass) (int, error) {
	var candidates []uint64
	for _, s := range slots {
		if inFlight.Size()+len(candidates) >= d.ProcessorMax {
			break
		}
		if _, ok := inFlight.Load(s.Slot); ok {
			continue
		}
		candidates = append(candidates, s.Slot)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	var started, already, failed atomic.Int32
	group := d.Pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, slot := range candidates {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			ok, err := d.Starter.StartProcessSlot(groupCtx, slot, priority)
			if err != nil {
				d.Logger.Warn("Failed to start processing workflow",
					zap.Uint64("slot", slot),
					zap.Int("priority", priority),
					zap.Error(err))
				failed.Add(1)
				return
			}
			inFlight.Store(slot, struct{}{})
			if ok {
				started.Add(1)
			} else {
				already.Add(1)
			}
		})
	}

	err := group.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, pond.ErrGroupStopped) {
		err = nil
	}
	pass.AlreadyRunning += int(already.Load())
	pass.Failed += int(failed.Load())
	if err == nil {
		err = ctx.Err()
	}
	return int(started.Load()), err
}

// EnsureSchedules creates the forward and backfill sequencer schedules.
func EnsureSchedules(ctx context.Context, s Scheduler, every time.Duration) error {
	defs := []temporal.ScheduleDefinition{
		{
			ID:        temporal.ScheduleSequencer,
			Every:     every,
			Workflow:  pipeline.SequenceWorkflowName,
			Args:      []interface{}{pipeline.SequenceInput{Mode: pipeline.ModeForward}},
			TaskQueue: temporal.QueueSequencer,
		},
		{
			ID:        temporal.ScheduleBackfillSequencer,
			Every:     every,
			Workflow:  pipeline.SequenceWorkflowName,
			Args:      []interface{}{pipeline.SequenceInput{Mode: pipeline.ModeBackfill}},
			TaskQueue: temporal.QueueBackfill,
		},
	}
	for _, def := range defs {
		if err := s.EnsureSchedule(ctx, def); err != nil {
			return err
		}
	}
	return nil
}

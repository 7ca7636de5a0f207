package activity

import (
	"context"
	"errors"
	"time"

	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"go.uber.org/zap"
)

var (
	// ErrWatermarkMoved is returned when another writer advanced the watermark
	// between the read and the conditional update. Nothing was written.
	ErrWatermarkMoved = errors.New("watermark moved during sequencer run")
	// ErrSlotRangeMismatch is returned when getBlocksWithLimit does not start
	// at the watermark slot.
	ErrSlotRangeMismatch = errors.New("slot range does not start at watermark")
)

// Store is the subset of the admin database the sequencers use.
type Store interface {
	CountQueuedSlots(ctx context.Context, backfill bool) (int64, error)
	ReadState(ctx context.Context) (admin.State, error)
	EnqueueForward(ctx context.Context, expectedSlot uint64, slots []admin.QueuedSlot) (bool, error)
	NextBackfillState(ctx context.Context) (*admin.BackfillState, error)
	ReadBackfillState(ctx context.Context, maxBlockHeight uint64) (admin.BackfillState, error)
	EnqueueBackfill(ctx context.Context, maxBlockHeight, expectedSlot, newSlot, newBlockHeight uint64, slots []admin.QueuedSlot) (bool, error)
	SetBackfillEnabled(ctx context.Context, maxBlockHeight uint64, enabled bool) error
}

var _ Store = (*admin.DB)(nil)

// Defaults apply to SequenceInput fields left at zero by the schedule.
type Defaults struct {
	MaxNewSlots    uint64
	MaxQueueDepth  int64
	MaxBlockHeight uint64
	Commitment     rpc.Commitment
}

type Context struct {
	Logger   *zap.Logger
	Store    Store
	RPC      rpc.Client
	Metrics  *metrics.Metrics
	Defaults Defaults
	// Now is overridable in tests.
	Now func() time.Time
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

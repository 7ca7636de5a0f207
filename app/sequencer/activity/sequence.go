package activity

import (
	"context"
	"fmt"

	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// Sequence admits the slots found past a watermark into the pending set.
// Forward mode walks the chain head; backfill mode walks one campaign up to
// its ceiling. Either way the watermark advance and the inserts commit together.
func (c *Context) Sequence(ctx context.Context, in pipeline.SequenceInput) (pipeline.SequenceOutput, error) {
	in = c.withDefaults(in)

	var (
		out pipeline.SequenceOutput
		err error
	)
	switch in.Mode {
	case pipeline.ModeForward:
		out, err = c.sequenceForward(ctx, in)
	case pipeline.ModeBackfill:
		out, err = c.sequenceBackfill(ctx, in)
	default:
		return out, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown sequencer mode %q", in.Mode), "InvalidMode", nil)
	}

	switch {
	case err != nil:
		c.Metrics.SequencerRun(in.Mode, metrics.ResultError, 0)
	case out.Skipped:
		c.Metrics.SequencerRun(in.Mode, metrics.ResultSkipped, 0)
	case out.Enqueued == 0:
		c.Metrics.SequencerRun(in.Mode, metrics.ResultIdle, 0)
	default:
		c.Metrics.SequencerRun(in.Mode, metrics.ResultEnqueued, out.Enqueued)
		activity.GetLogger(ctx).Info("Enqueued slots",
			"mode", in.Mode,
			"count", out.Enqueued,
			"from", out.FromSlot,
			"to", out.ToSlot,
			"toBlockHeight", out.ToBlockHeight)
	}
	return out, err
}

func (c *Context) withDefaults(in pipeline.SequenceInput) pipeline.SequenceInput {
	if in.MaxNewSlots == 0 {
		in.MaxNewSlots = c.Defaults.MaxNewSlots
	}
	if in.MaxQueueDepth == 0 {
		in.MaxQueueDepth = c.Defaults.MaxQueueDepth
	}
	if in.MaxBlockHeight == 0 {
		in.MaxBlockHeight = c.Defaults.MaxBlockHeight
	}
	if in.Commitment == "" {
		in.Commitment = string(c.Defaults.Commitment)
	}
	if in.Commitment == "" {
		in.Commitment = string(rpc.Finalized)
	}
	return in
}

func (c *Context) sequenceForward(ctx context.Context, in pipeline.SequenceInput) (pipeline.SequenceOutput, error) {
	var out pipeline.SequenceOutput

	depth, err := c.Store.CountQueuedSlots(ctx, false)
	if err != nil {
		return out, err
	}
	if depth >= in.MaxQueueDepth {
		c.Logger.Debug("Queue full, skipping forward run",
			zap.Int64("depth", depth), zap.Int64("max", in.MaxQueueDepth))
		out.Skipped = true
		return out, nil
	}

	state, err := c.Store.ReadState(ctx)
	if err != nil {
		return out, err
	}

	slots, err := c.slotsAfter(ctx, state.Slot, in)
	if err != nil {
		return out, err
	}
	if len(slots) == 0 {
		return out, nil
	}

	queued := make([]admin.QueuedSlot, len(slots))
	now := c.now()
	for i, slot := range slots {
		queued[i] = admin.QueuedSlot{
			Slot:        slot,
			BlockHeight: state.BlockHeight + uint64(i) + 1,
			QueuedAt:    now,
		}
	}

	ok, err := c.Store.EnqueueForward(ctx, state.Slot, queued)
	if err != nil {
		return out, fmt.Errorf("enqueue forward slots: %w", err)
	}
	if !ok {
		return out, fmt.Errorf("%w: expected slot %d", ErrWatermarkMoved, state.Slot)
	}

	last := queued[len(queued)-1]
	out.Enqueued = len(queued)
	out.FromSlot = queued[0].Slot
	out.ToSlot = last.Slot
	out.ToBlockHeight = last.BlockHeight
	return out, nil
}

func (c *Context) sequenceBackfill(ctx context.Context, in pipeline.SequenceInput) (pipeline.SequenceOutput, error) {
	var out pipeline.SequenceOutput

	campaign, err := c.campaign(ctx, in.MaxBlockHeight)
	if err != nil || campaign == nil {
		return out, err
	}
	out.MaxBlockHeight = campaign.MaxBlockHeight

	if !campaign.Enabled {
		return out, nil
	}
	if campaign.Done() {
		out.CampaignDone = true
		return out, c.Store.SetBackfillEnabled(ctx, campaign.MaxBlockHeight, false)
	}

	depth, err := c.Store.CountQueuedSlots(ctx, true)
	if err != nil {
		return out, err
	}
	if depth >= in.MaxQueueDepth {
		out.Skipped = true
		return out, nil
	}

	slots, err := c.slotsAfter(ctx, campaign.Slot, in)
	if err != nil {
		return out, err
	}
	if len(slots) == 0 {
		return out, nil
	}

	queued := make([]admin.QueuedSlot, 0, len(slots))
	now := c.now()
	for i, slot := range slots {
		height := campaign.BlockHeight + uint64(i) + 1
		if height > campaign.MaxBlockHeight {
			break
		}
		queued = append(queued, admin.QueuedSlot{
			Slot:           slot,
			BlockHeight:    height,
			QueuedAt:       now,
			IsBackfillSlot: true,
		})
	}
	if len(queued) == 0 {
		out.CampaignDone = true
		return out, c.Store.SetBackfillEnabled(ctx, campaign.MaxBlockHeight, false)
	}

	last := queued[len(queued)-1]
	ok, err := c.Store.EnqueueBackfill(ctx, campaign.MaxBlockHeight, campaign.Slot, last.Slot, last.BlockHeight, queued)
	if err != nil {
		return out, fmt.Errorf("enqueue backfill slots: %w", err)
	}
	if !ok {
		return out, fmt.Errorf("%w: campaign %d expected slot %d", ErrWatermarkMoved, campaign.MaxBlockHeight, campaign.Slot)
	}

	out.Enqueued = len(queued)
	out.FromSlot = queued[0].Slot
	out.ToSlot = last.Slot
	out.ToBlockHeight = last.BlockHeight
	out.CampaignDone = last.BlockHeight >= campaign.MaxBlockHeight
	return out, nil
}

// campaign returns the pinned campaign, or the first runnable one when
// maxBlockHeight is zero.
func (c *Context) campaign(ctx context.Context, maxBlockHeight uint64) (*admin.BackfillState, error) {
	if maxBlockHeight == 0 {
		return c.Store.NextBackfillState(ctx)
	}
	b, err := c.Store.ReadBackfillState(ctx, maxBlockHeight)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// slotsAfter returns up to MaxNewSlots confirmed slots after from. The RPC
// answer must start with from itself.
func (c *Context) slotsAfter(ctx context.Context, from uint64, in pipeline.SequenceInput) ([]uint64, error) {
	slots, err := c.RPC.GetBlocksWithLimit(ctx, from, in.MaxNewSlots+1, rpc.Commitment(in.Commitment))
	if err != nil {
		return nil, fmt.Errorf("getBlocksWithLimit from %d: %w", from, err)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("%w: no slots returned from %d", ErrSlotRangeMismatch, from)
	}
	if slots[0] != from {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrSlotRangeMismatch, from, slots[0])
	}
	return slots[1:], nil
}

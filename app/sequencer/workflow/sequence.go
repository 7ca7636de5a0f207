package workflow

import (
	"time"

	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// SequenceWorkflow runs one sequencer pass. The schedule that starts it
// skips overlapping ticks, and the activity is tried once: a failed pass is
// simply retried by the next tick.
func (wc *Context) SequenceWorkflow(ctx workflow.Context, in pipeline.SequenceInput) (pipeline.SequenceOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: pipeline.SequenceActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out pipeline.SequenceOutput
	if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.Sequence, in).Get(ctx, &out); err != nil {
		return out, err
	}
	if out.CampaignDone {
		workflow.GetLogger(ctx).Info("Backfill campaign reached its ceiling", "maxBlockHeight", out.MaxBlockHeight)
	}
	return out, nil
}

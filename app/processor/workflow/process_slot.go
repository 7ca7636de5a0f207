package workflow

import (
	"time"

	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ProcessSlotWorkflow ingests one slot. The activity retries until it
// commits or fails with a non-retryable error; every attempt starts over
// from the pending row.
func (wc *Context) ProcessSlotWorkflow(ctx workflow.Context, in pipeline.ProcessSlotInput) (pipeline.ProcessSlotOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: pipeline.ProcessSlotActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    0, // unlimited
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var out pipeline.ProcessSlotOutput
	if err := workflow.ExecuteActivity(ctx, wc.ActivityContext.ProcessSlot, in).Get(ctx, &out); err != nil {
		return out, err
	}
	return out, nil
}

package temporal

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

// ScheduleDefinition describes a periodic workflow.
type ScheduleDefinition struct {
	ID        string
	Every     time.Duration
	Workflow  string
	Args      []interface{}
	TaskQueue string
}

// EnsureSchedule creates the schedule if it does not exist yet. Runs never
// overlap: a tick that fires while the previous run is active is skipped.
func (c *Client) EnsureSchedule(ctx context.Context, def ScheduleDefinition) error {
	h := c.TSClient.GetHandle(ctx, def.ID)
	_, err := h.Describe(ctx)
	if err == nil {
		c.logger.Info("Schedule already exists",
			zap.String("id", def.ID),
			zap.String("namespace", c.Namespace))
		return nil
	}

	var notFound *serviceerror.NotFound
	if !errors.As(err, &notFound) {
		return err
	}

	c.logger.Info("Creating schedule",
		zap.String("id", def.ID),
		zap.Duration("every", def.Every),
		zap.String("namespace", c.Namespace))
	_, err = c.TSClient.Create(ctx, client.ScheduleOptions{
		ID:      def.ID,
		Spec:    GetScheduleSpec(def.Every),
		Overlap: enums.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:                       def.ID,
			Workflow:                 def.Workflow,
			Args:                     def.Args,
			TaskQueue:                def.TaskQueue,
			WorkflowExecutionTimeout: 10 * time.Minute,
			WorkflowTaskTimeout:      time.Minute,
		},
	})
	var exists *serviceerror.WorkflowExecutionAlreadyStarted
	if err != nil && errors.As(err, &exists) {
		return nil
	}
	return err
}

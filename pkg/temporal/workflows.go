package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"
)

const listPageSize = 1000

// StartProcessSlot starts the processing workflow of slot. It returns false
// without error when a workflow for the slot is already running.
func (c *Client) StartProcessSlot(ctx context.Context, slot uint64, priority int) (bool, error) {
	options := client.StartWorkflowOptions{
		ID:        ProcessSlotWorkflowID(slot),
		TaskQueue: c.ProcessorQueue,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	if priority > 0 {
		options.Priority = sdktemporal.Priority{PriorityKey: priority}
	}

	_, err := c.TClient.ExecuteWorkflow(ctx, options, pipeline.ProcessSlotWorkflowName, pipeline.ProcessSlotInput{Slot: slot})
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return false, nil
		}
		return false, fmt.Errorf("start %s: %w", ProcessSlotWorkflowID(slot), err)
	}
	return true, nil
}

// ListOpenProcessSlots returns the slots whose processing workflow is running.
func (c *Client) ListOpenProcessSlots(ctx context.Context) ([]uint64, error) {
	query := fmt.Sprintf(
		"WorkflowType = '%s' AND TaskQueue = '%s' AND ExecutionStatus = 'Running'",
		pipeline.ProcessSlotWorkflowName, c.ProcessorQueue,
	)

	var (
		slots []uint64
		token []byte
	)
	for {
		resp, err := c.TClient.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
			Namespace:     c.Namespace,
			PageSize:      listPageSize,
			NextPageToken: token,
			Query:         query,
		})
		if err != nil {
			return nil, fmt.Errorf("list open workflows: %w", err)
		}
		for _, exec := range resp.GetExecutions() {
			if slot, ok := ParseProcessSlotWorkflowID(exec.GetExecution().GetWorkflowId()); ok {
				slots = append(slots, slot)
			}
		}
		token = resp.GetNextPageToken()
		if len(token) == 0 {
			return slots, nil
		}
	}
}

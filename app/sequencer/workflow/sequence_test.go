package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/orca-so/sedimentology/app/sequencer/activity"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"
)

func TestSequenceWorkflowReturnsActivityOutput(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	activityCtx := &activity.Context{Logger: zaptest.NewLogger(t)}
	wfCtx := Context{ActivityContext: activityCtx}

	env.RegisterWorkflow(wfCtx.SequenceWorkflow)
	env.RegisterActivity(activityCtx.Sequence)
	env.OnActivity(activityCtx.Sequence, mock.Anything, pipeline.SequenceInput{Mode: pipeline.ModeForward}).
		Return(pipeline.SequenceOutput{Enqueued: 3, FromSlot: 101, ToSlot: 104}, nil)

	env.ExecuteWorkflow(wfCtx.SequenceWorkflow, pipeline.SequenceInput{Mode: pipeline.ModeForward})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var out pipeline.SequenceOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, 3, out.Enqueued)
}

func TestSequenceWorkflowDoesNotRetryActivity(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	activityCtx := &activity.Context{Logger: zaptest.NewLogger(t)}
	wfCtx := Context{ActivityContext: activityCtx}

	calls := 0
	env.RegisterWorkflow(wfCtx.SequenceWorkflow)
	env.RegisterActivity(activityCtx.Sequence)
	env.OnActivity(activityCtx.Sequence, mock.Anything, mock.Anything).
		Return(func(_ context.Context, _ pipeline.SequenceInput) (pipeline.SequenceOutput, error) {
			calls++
			return pipeline.SequenceOutput{}, errors.New("rpc down")
		})

	env.ExecuteWorkflow(wfCtx.SequenceWorkflow, pipeline.SequenceInput{Mode: pipeline.ModeBackfill})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.Equal(t, 1, calls)
}

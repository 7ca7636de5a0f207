package workflow

import (
	"errors"
	"testing"

	"github.com/orca-so/sedimentology/app/processor/activity"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"
)

func newEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, Context) {
	t.Helper()
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	activityCtx := &activity.Context{Logger: zaptest.NewLogger(t)}
	wfCtx := Context{ActivityContext: activityCtx}
	env.RegisterWorkflow(wfCtx.ProcessSlotWorkflow)
	env.RegisterActivity(activityCtx.ProcessSlot)
	return env, wfCtx
}

func TestProcessSlotWorkflowRetriesTransientErrors(t *testing.T) {
	env, wfCtx := newEnv(t)
	in := pipeline.ProcessSlotInput{Slot: 100}

	env.OnActivity(wfCtx.ActivityContext.ProcessSlot, mock.Anything, in).
		Return(pipeline.ProcessSlotOutput{}, errors.New("rpc timeout")).Once()
	env.OnActivity(wfCtx.ActivityContext.ProcessSlot, mock.Anything, in).
		Return(pipeline.ProcessSlotOutput{Slot: 100, Txs: 4}, nil).Once()

	env.ExecuteWorkflow(wfCtx.ProcessSlotWorkflow, in)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var out pipeline.ProcessSlotOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, 4, out.Txs)
	env.AssertExpectations(t)
}

func TestProcessSlotWorkflowStopsOnNonRetryable(t *testing.T) {
	env, wfCtx := newEnv(t)
	in := pipeline.ProcessSlotInput{Slot: 100}

	env.OnActivity(wfCtx.ActivityContext.ProcessSlot, mock.Anything, in).
		Return(pipeline.ProcessSlotOutput{}, temporal.NewNonRetryableApplicationError("no balance policy", "InvariantViolation", nil)).
		Once()

	env.ExecuteWorkflow(wfCtx.ProcessSlotWorkflow, in)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	require.Contains(t, err.Error(), "no balance policy")
	env.AssertExpectations(t)
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orca-so/sedimentology/app/admin"
	"github.com/orca-so/sedimentology/app/dispatcher"
	"github.com/orca-so/sedimentology/app/processor"
	"github.com/orca-so/sedimentology/app/processor/activity"
	"github.com/orca-so/sedimentology/app/sequencer"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLauncher struct {
	sequencer  *sequencer.Config
	dispatcher *dispatcher.Config
	processor  *processor.Config
	admin      *admin.Config
}

func (r *recordingLauncher) Sequencer(_ context.Context, cfg sequencer.Config) { r.sequencer = &cfg }

func (r *recordingLauncher) Dispatcher(_ context.Context, cfg dispatcher.Config) { r.dispatcher = &cfg }

func (r *recordingLauncher) Processor(_ context.Context, cfg processor.Config) { r.processor = &cfg }

func (r *recordingLauncher) Admin(_ context.Context, cfg admin.Config) { r.admin = &cfg }

func execute(t *testing.T, args ...string) (*recordingLauncher, error) {
	t.Helper()
	l := &recordingLauncher{}
	root := newRootCommand(l)
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return l, root.ExecuteContext(context.Background())
}

func TestSequencerDefaults(t *testing.T) {
	l, err := execute(t, "sequencer")
	require.NoError(t, err)
	require.NotNil(t, l.sequencer)

	cfg := *l.sequencer
	assert.Equal(t, pipeline.ModeForward, cfg.Mode)
	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, int64(10000), cfg.MaxQueuedSlots)
	assert.Equal(t, uint64(200), cfg.NewSlotsPerFetch)
	assert.Equal(t, rpc.Finalized, cfg.Commitment)
	assert.Equal(t, []string{"http://localhost:8899"}, cfg.RPCEndpoints)
}

func TestBackfillSequencerFlags(t *testing.T) {
	l, err := execute(t, "backfill-sequencer",
		"--max-block-height", "5000",
		"--start-slot", "100",
		"--start-height", "90",
		"--rpc-url", "http://a:8899",
		"--rpc-url", "http://b:8899",
		"-C",
	)
	require.NoError(t, err)
	cfg := *l.sequencer
	assert.Equal(t, pipeline.ModeBackfill, cfg.Mode)
	assert.Equal(t, uint64(5000), cfg.MaxBlockHeight)
	assert.Equal(t, uint64(100), cfg.StartSlot)
	assert.Equal(t, uint64(90), cfg.StartHeight)
	assert.Equal(t, []string{"http://a:8899", "http://b:8899"}, cfg.RPCEndpoints)
	assert.Equal(t, rpc.Confirmed, cfg.Commitment)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("RPC_URL", "http://x:1,http://y:2")
	t.Setenv("CONCURRENCY", "3")
	t.Setenv("CHECKPOINT", "false")

	l, err := execute(t, "processor")
	require.NoError(t, err)
	cfg := *l.processor
	assert.Equal(t, []string{"http://x:1", "http://y:2"}, cfg.RPCEndpoints)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.False(t, cfg.Checkpoint)
	assert.Equal(t, activity.DefaultRegistryCacheSize, cfg.LRUSize)
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("PROCESSOR_MAX", "5")
	l, err := execute(t, "dispatcher", "--processor-max", "7")
	require.NoError(t, err)
	assert.Equal(t, 7, l.dispatcher.ProcessorMax)
	assert.Equal(t, 10*time.Second, l.dispatcher.Interval)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sedimentology.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":4000\"\ncheckpoint-cron: \"*/5 * * * * *\"\n"), 0o600))

	l, err := execute(t, "admin", "--config", path)
	require.NoError(t, err)
	require.NotNil(t, l.admin)
	assert.Equal(t, ":4000", l.admin.Listen)
	assert.Equal(t, "*/5 * * * * *", l.admin.CheckpointCron)
	assert.Equal(t, ":9090", l.admin.MetricsListen)

	_, err = execute(t, "admin", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInvalidCommitment(t *testing.T) {
	l, err := execute(t, "processor", "--commitment", "processed")
	assert.ErrorContains(t, err, "unsupported commitment")
	assert.Nil(t, l.processor)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", "", "c"}))
	assert.Nil(t, splitList(nil))
}

func TestVersion(t *testing.T) {
	root := newRootCommand(&recordingLauncher{})
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "sedimentology dev")
}

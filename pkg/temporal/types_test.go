package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProcessSlotWorkflowID(t *testing.T) {
	assert.Equal(t, "slot:5", ProcessSlotWorkflowID(5))

	slot, ok := ParseProcessSlotWorkflowID(ProcessSlotWorkflowID(250_000_123))
	assert.True(t, ok)
	assert.Equal(t, uint64(250_000_123), slot)

	for _, id := range []string{"", "slot:", "slot:abc", "block:5", "slot:-1"} {
		_, ok := ParseProcessSlotWorkflowID(id)
		assert.False(t, ok, id)
	}
}

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, PriorityLive, PriorityBackfill)
}

func TestGetScheduleSpec(t *testing.T) {
	spec := GetScheduleSpec(10 * time.Second)
	assert.Len(t, spec.Intervals, 1)
	assert.Equal(t, 10*time.Second, spec.Intervals[0].Every)
}

func TestZapAdapterForwardsKeyvals(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewZapAdapter(zap.New(core))

	adapter.With("workflow", "slot:1").Info("started", "attempt", 2)
	adapter.Warn("slow")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "started", entries[0].Message)
	assert.Equal(t, map[string]interface{}{"workflow": "slot:1", "attempt": int64(2)}, entries[0].ContextMap())
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

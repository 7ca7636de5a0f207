package temporal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.temporal.io/sdk/client"
)

const DefaultNamespace = "sedimentology"

// Task queues
const (
	QueueSequencer = "sequencer"
	QueueBackfill  = "backfill"
	QueueProcessor = "processor"
)

// Schedule IDs
const (
	ScheduleSequencer         = "sequencer"
	ScheduleBackfillSequencer = "backfill-sequencer"
)

// WorkflowIDProcessSlot is the id of the processing workflow of a slot. The
// id is what makes a slot dispatch at most once at a time.
const WorkflowIDProcessSlot = "slot:%d"

// Priority keys; lower runs first.
const (
	PriorityLive     = 1
	PriorityBackfill = 3
)

// ProcessSlotWorkflowID returns the workflow id for slot, e.g. slot=5 -> "slot:5".
func ProcessSlotWorkflowID(slot uint64) string {
	return fmt.Sprintf(WorkflowIDProcessSlot, slot)
}

// ParseProcessSlotWorkflowID is the inverse of ProcessSlotWorkflowID.
func ParseProcessSlotWorkflowID(id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, "slot:")
	if !ok {
		return 0, false
	}
	slot, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return slot, true
}

// GetScheduleSpec returns a schedule spec for the given interval.
func GetScheduleSpec(interval time.Duration) client.ScheduleSpec {
	return client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: interval}}}
}

// Package pipeline holds the workflow names and payloads shared between the
// roles that start workflows and the workers that run them.
package pipeline

import "time"

// Workflow names
const (
	SequenceWorkflowName    = "SequenceWorkflow"
	ProcessSlotWorkflowName = "ProcessSlotWorkflow"
)

// Sequencer modes
const (
	ModeForward  = "forward"
	ModeBackfill = "backfill"
)

// SequenceInput configures one sequencer run.
type SequenceInput struct {
	Mode          string `json:"mode"`
	MaxNewSlots   uint64 `json:"maxNewSlots"`
	MaxQueueDepth int64  `json:"maxQueueDepth"`
	// MaxBlockHeight pins the backfill campaign; zero picks the first enabled one.
	MaxBlockHeight uint64 `json:"maxBlockHeight,omitempty"`
	Commitment     string `json:"commitment"`
}

// SequenceOutput reports what a run did.
type SequenceOutput struct {
	Skipped        bool   `json:"skipped,omitempty"`
	Enqueued       int    `json:"enqueued"`
	FromSlot       uint64 `json:"fromSlot,omitempty"`
	ToSlot         uint64 `json:"toSlot,omitempty"`
	ToBlockHeight  uint64 `json:"toBlockHeight,omitempty"`
	MaxBlockHeight uint64 `json:"maxBlockHeight,omitempty"`
	CampaignDone   bool   `json:"campaignDone,omitempty"`
}

// ProcessSlotInput identifies the slot a processing workflow owns.
type ProcessSlotInput struct {
	Slot uint64 `json:"slot"`
}

// ProcessSlotOutput reports the result of a processing run.
type ProcessSlotOutput struct {
	Slot             uint64  `json:"slot"`
	AlreadyProcessed bool    `json:"alreadyProcessed,omitempty"`
	BlockHeight      uint64  `json:"blockHeight,omitempty"`
	Txs              int     `json:"txs"`
	Instructions     int     `json:"instructions"`
	DurationMs       float64 `json:"durationMs"`
}

// Activity timeouts
const (
	SequenceActivityTimeout    = 2 * time.Minute
	ProcessSlotActivityTimeout = 2 * time.Minute
)

package admin

import (
	"errors"
	"time"
)

var (
	// ErrStateNotInitialized is returned when the forward watermark row is missing.
	ErrStateNotInitialized = errors.New("adm_state is not initialized")
	// ErrBackfillNotFound is returned for an unknown campaign key.
	ErrBackfillNotFound = errors.New("backfill campaign not found")

	errWatermarkMoved = errors.New("watermark moved")
)

// State is the forward watermark: the highest slot admitted into the pending set.
type State struct {
	Slot        uint64    `json:"slot"`
	BlockHeight uint64    `json:"blockHeight"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BackfillState is the watermark of one backfill campaign, keyed by its
// block height ceiling.
type BackfillState struct {
	MaxBlockHeight uint64    `json:"maxBlockHeight"`
	Slot           uint64    `json:"slot"`
	BlockHeight    uint64    `json:"blockHeight"`
	Enabled        bool      `json:"enabled"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Done reports whether the campaign reached its ceiling.
func (b BackfillState) Done() bool {
	return b.BlockHeight >= b.MaxBlockHeight
}

// QueuedSlot is a pending slot waiting for the block processor.
type QueuedSlot struct {
	Slot           uint64    `json:"slot"`
	BlockHeight    uint64    `json:"blockHeight"`
	QueuedAt       time.Time `json:"queuedAt"`
	IsBackfillSlot bool      `json:"isBackfillSlot"`
}

// Checkpoint is the highest slot below which every live slot is committed.
type Checkpoint struct {
	Slot      uint64    `json:"slot"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats summarizes the control tables for the admin status page.
type Stats struct {
	State          *State          `json:"state"`
	Backfills      []BackfillState `json:"backfills"`
	QueuedLive     int64           `json:"queuedLive"`
	QueuedBackfill int64           `json:"queuedBackfill"`
	LowestQueued   *uint64         `json:"lowestQueuedSlot,omitempty"`
	OldestQueuedAt *time.Time      `json:"oldestQueuedAt,omitempty"`
	Checkpoint     *Checkpoint     `json:"checkpoint,omitempty"`
}

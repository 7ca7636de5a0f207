package activity

import (
	"context"
	"errors"
	"time"

	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/decoder"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/redis"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"go.uber.org/zap"
)

var (
	// ErrHeightMismatch is returned when the fetched block height differs
	// from the height the slot was queued with.
	ErrHeightMismatch = errors.New("block height does not match queued height")
	// ErrInnerInstructionsMissing is returned when the node answered null
	// inner instructions for a transaction that involves the program.
	ErrInnerInstructionsMissing = errors.New("inner instructions missing from block")
	// ErrDeployWithInstructions is returned when a program upgrade shares a
	// transaction with Whirlpool instructions.
	ErrDeployWithInstructions = errors.New("program deploy mixed with whirlpool instructions")
)

// QueueStore is the subset of the admin database the processor uses.
type QueueStore interface {
	GetQueuedSlot(ctx context.Context, slot uint64) (*admin.QueuedSlot, error)
	AdvanceCheckpoint(ctx context.Context) (uint64, bool, error)
}

var _ QueueStore = (*admin.DB)(nil)

// Ledger persists processed slots.
type Ledger interface {
	PubkeyStore
	CommitSlot(ctx context.Context, c chain.SlotCommit) error
}

var _ Ledger = (*chain.DB)(nil)

// Publisher announces committed slots.
type Publisher interface {
	PublishSlotProcessed(ctx context.Context, ev redis.SlotProcessed)
}

var _ Publisher = (*redis.Client)(nil)

type Context struct {
	Logger    *zap.Logger
	Queue     QueueStore
	Ledger    Ledger
	Registry  *Registry
	RPC       rpc.Client
	Publisher Publisher // optional
	Metrics   *metrics.Metrics

	ProgramID  string
	Commitment rpc.Commitment
	// Checkpoint advances the ingestion checkpoint after each commit.
	Checkpoint bool
	// Now is overridable in tests.
	Now func() time.Time
	// Decode defaults to decoder.DecodeTransaction.
	Decode func(tx *rpc.Transaction, programID string) (*decoder.Decoded, error)
}

func (c *Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Context) decode(tx *rpc.Transaction) (*decoder.Decoded, error) {
	if c.Decode != nil {
		return c.Decode(tx, c.ProgramID)
	}
	return decoder.DecodeTransaction(tx, c.ProgramID)
}

func (c *Context) commitment() rpc.Commitment {
	if c.Commitment == "" {
		return rpc.Finalized
	}
	return c.Commitment
}

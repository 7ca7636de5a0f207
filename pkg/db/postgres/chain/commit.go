package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/orca-so/sedimentology/pkg/db/postgres"
	"github.com/orca-so/sedimentology/pkg/decoder"
	"go.uber.org/zap"
)

const maxOrderInSlot = 1 << 24

var (
	// ErrTxIDOverflow is returned when a slot holds more transactions than a txid can address.
	ErrTxIDOverflow = errors.New("transaction order overflows txid")
	// ErrSlotNotQueued is returned when the pending row of a slot is gone by commit time.
	ErrSlotNotQueued = errors.New("slot is not queued")
)

// ToTxID packs a slot and the order of a transaction within it.
func ToTxID(slot uint64, order int) (int64, error) {
	if order < 0 || order >= maxOrderInSlot {
		return 0, fmt.Errorf("%w: slot %d order %d", ErrTxIDOverflow, slot, order)
	}
	return int64(slot<<24 | uint64(order)), nil
}

// MintDecimals is a decimals registry entry introduced by a slot.
type MintDecimals struct {
	Mint     string
	Decimals uint8
}

// Balance is the pre and post amount of a token vault within a transaction.
// Amounts are decimal strings.
type Balance struct {
	Account string
	Pre     string
	Post    string
}

// Tx is one committed transaction of a slot.
type Tx struct {
	TxID         int64
	Signature    string
	Payer        string
	Balances     []Balance
	Instructions []decoder.Instruction
	// ProgramData is the deployed program image when the transaction upgraded the program.
	ProgramData []byte
}

// SlotCommit is everything persisted for one processed slot.
type SlotCommit struct {
	Slot        uint64
	BlockHeight uint64
	BlockTime   int64
	Decimals    []MintDecimals
	Txs         []Tx
}

// CommitSlot writes a processed slot and removes it from the pending set in a
// single transaction. The commit is detached from ctx cancellation so a
// shutdown never leaves it half done.
func (db *DB) CommitSlot(ctx context.Context, c SlotCommit) error {
	ctx = context.WithoutCancel(ctx)
	return db.BeginFunc(ctx, func(tx pgx.Tx) error {
		return commitSlot(ctx, tx, c)
	})
}

func commitSlot(ctx context.Context, exec postgres.Executor, c SlotCommit) error {
	for _, d := range c.Decimals {
		if _, err := exec.Exec(ctx, `SELECT add_decimals_if_not_exists($1, $2)`, d.Mint, int16(d.Decimals)); err != nil {
			return fmtInsertError("decimals", err)
		}
	}

	batch := &pgx.Batch{}
	for _, t := range c.Txs {
		batch.Queue(`INSERT INTO txs (txid, signature, payer) VALUES ($1, $2, from_pubkey($3))`,
			t.TxID, t.Signature, t.Payer)
	}
	for _, t := range c.Txs {
		for _, b := range t.Balances {
			batch.Queue(`INSERT INTO balances (txid, account, pre, post) VALUES ($1, from_pubkey($2), $3, $4)`,
				t.TxID, b.Account, b.Pre, b.Post)
		}
	}
	for _, t := range c.Txs {
		if t.ProgramData != nil {
			if len(t.Instructions) != 0 {
				return fmt.Errorf("tx %d: program deploy with %d instructions", t.TxID, len(t.Instructions))
			}
			batch.Queue(`INSERT INTO ixs_program_deploy (txid, "order", program_data) VALUES ($1, $2, $3)`,
				t.TxID, 0, t.ProgramData)
			continue
		}
		for order, ix := range t.Instructions {
			row, err := instructionRow(t.TxID, order, ix)
			if err != nil {
				return fmt.Errorf("tx %d order %d: %w", t.TxID, order, err)
			}
			batch.Queue(row.sql, row.args...)
		}
	}
	if err := postgres.ExecuteBatch(ctx, exec, batch); err != nil {
		return fmtInsertError("slot rows", err)
	}

	tag, err := exec.Exec(ctx, `DELETE FROM adm_queued_slots WHERE slot = $1`, c.Slot)
	if err != nil {
		return fmt.Errorf("dequeue slot %d: %w", c.Slot, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: %d", ErrSlotNotQueued, c.Slot)
	}

	if _, err := exec.Exec(ctx, `INSERT INTO slots (slot, block_height, block_time) VALUES ($1, $2, $3)`,
		c.Slot, c.BlockHeight, c.BlockTime); err != nil {
		return fmtInsertError("slot", err)
	}
	return nil
}

// AddPubkeyIfNotExists registers a pubkey in the address registry.
func (db *DB) AddPubkeyIfNotExists(ctx context.Context, pubkey string) error {
	if err := db.Exec(ctx, `SELECT add_pubkey_if_not_exists($1)`, pubkey); err != nil {
		db.Logger.Debug("add_pubkey_if_not_exists failed", zap.String("pubkey", pubkey), zap.Error(err))
		return fmt.Errorf("add pubkey %s: %w", pubkey, err)
	}
	return nil
}

// AddDecimalsIfNotExists registers the decimals of a mint. The mint must be a
// registered pubkey.
func (db *DB) AddDecimalsIfNotExists(ctx context.Context, mint string, decimals uint8) error {
	if err := db.Exec(ctx, `SELECT add_decimals_if_not_exists($1, $2)`, mint, int16(decimals)); err != nil {
		return fmt.Errorf("add decimals %s: %w", mint, err)
	}
	return nil
}

func fmtInsertError(entity string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", entity, err)
	}
	return nil
}

package admin

import (
	"context"
	"fmt"

	"github.com/orca-so/sedimentology/pkg/db/postgres"
)

func (db *DB) initState(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS adm_state (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			latest_slot BIGINT NOT NULL,
			latest_block_height BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	return db.Exec(ctx, query)
}

// InitState seeds the forward watermark. It is a no-op when the row exists.
func (db *DB) InitState(ctx context.Context, slot, blockHeight uint64) (bool, error) {
	tag, err := db.GetExecutor(ctx).Exec(ctx, `
		INSERT INTO adm_state (id, latest_slot, latest_block_height, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO NOTHING
	`, slot, blockHeight)
	if err != nil {
		return false, fmt.Errorf("init adm_state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReadState returns the forward watermark.
func (db *DB) ReadState(ctx context.Context) (State, error) {
	return readState(ctx, db.GetExecutor(ctx))
}

func readState(ctx context.Context, exec postgres.Executor) (State, error) {
	var s State
	err := exec.QueryRow(ctx, `
		SELECT latest_slot, latest_block_height, updated_at
		FROM adm_state
		WHERE id = 1
	`).Scan(&s.Slot, &s.BlockHeight, &s.UpdatedAt)
	if err != nil {
		if postgres.IsNoRows(err) {
			return State{}, ErrStateNotInitialized
		}
		return State{}, fmt.Errorf("read adm_state: %w", err)
	}
	return s, nil
}

// AdvanceState moves the forward watermark from expectedSlot to newSlot. It
// returns false when another writer moved the watermark first.
func (db *DB) AdvanceState(ctx context.Context, expectedSlot, newSlot, newBlockHeight uint64) (bool, error) {
	return advanceState(ctx, db.GetExecutor(ctx), expectedSlot, newSlot, newBlockHeight)
}

func advanceState(ctx context.Context, exec postgres.Executor, expectedSlot, newSlot, newBlockHeight uint64) (bool, error) {
	tag, err := exec.Exec(ctx, `
		UPDATE adm_state
		SET latest_slot = $1, latest_block_height = $2, updated_at = NOW()
		WHERE id = 1 AND latest_slot = $3
	`, newSlot, newBlockHeight, expectedSlot)
	if err != nil {
		return false, fmt.Errorf("advance adm_state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

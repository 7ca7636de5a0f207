package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/orca-so/sedimentology/pkg/db/postgres"
)

func (db *DB) initBackfillState(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS adm_backfill_state (
			max_block_height BIGINT PRIMARY KEY,
			latest_slot BIGINT NOT NULL,
			latest_block_height BIGINT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	return db.Exec(ctx, query)
}

const backfillColumns = `max_block_height, latest_slot, latest_block_height, enabled, updated_at`

func scanBackfill(row pgx.Row) (BackfillState, error) {
	var b BackfillState
	err := row.Scan(&b.MaxBlockHeight, &b.Slot, &b.BlockHeight, &b.Enabled, &b.UpdatedAt)
	return b, err
}

// UpsertBackfillState creates a campaign or resets its watermark.
func (db *DB) UpsertBackfillState(ctx context.Context, b BackfillState) error {
	if b.BlockHeight > b.MaxBlockHeight {
		return fmt.Errorf("backfill start height %d is above ceiling %d", b.BlockHeight, b.MaxBlockHeight)
	}
	return db.Exec(ctx, `
		INSERT INTO adm_backfill_state (max_block_height, latest_slot, latest_block_height, enabled, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (max_block_height) DO UPDATE SET
			latest_slot = EXCLUDED.latest_slot,
			latest_block_height = EXCLUDED.latest_block_height,
			enabled = EXCLUDED.enabled,
			updated_at = NOW()
	`, b.MaxBlockHeight, b.Slot, b.BlockHeight, b.Enabled)
}

// ReadBackfillState returns the campaign keyed by maxBlockHeight.
func (db *DB) ReadBackfillState(ctx context.Context, maxBlockHeight uint64) (BackfillState, error) {
	b, err := scanBackfill(db.QueryRow(ctx,
		`SELECT `+backfillColumns+` FROM adm_backfill_state WHERE max_block_height = $1`, maxBlockHeight))
	if err != nil {
		if postgres.IsNoRows(err) {
			return BackfillState{}, fmt.Errorf("%w: %d", ErrBackfillNotFound, maxBlockHeight)
		}
		return BackfillState{}, fmt.Errorf("read adm_backfill_state: %w", err)
	}
	return b, nil
}

// ListBackfillStates returns every campaign ordered by ceiling.
func (db *DB) ListBackfillStates(ctx context.Context) ([]BackfillState, error) {
	rows, err := db.Query(ctx, `SELECT `+backfillColumns+` FROM adm_backfill_state ORDER BY max_block_height`)
	if err != nil {
		return nil, fmt.Errorf("list adm_backfill_state: %w", err)
	}
	defer rows.Close()

	var out []BackfillState
	for rows.Next() {
		b, err := scanBackfill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// NextBackfillState returns the lowest enabled campaign that has not reached its
// ceiling, or nil when there is none.
func (db *DB) NextBackfillState(ctx context.Context) (*BackfillState, error) {
	b, err := scanBackfill(db.QueryRow(ctx, `
		SELECT `+backfillColumns+`
		FROM adm_backfill_state
		WHERE enabled AND latest_block_height < max_block_height
		ORDER BY max_block_height
		LIMIT 1
	`))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("next adm_backfill_state: %w", err)
	}
	return &b, nil
}

// AdvanceBackfillState is AdvanceState scoped to one campaign.
func (db *DB) AdvanceBackfillState(ctx context.Context, maxBlockHeight, expectedSlot, newSlot, newBlockHeight uint64) (bool, error) {
	return advanceBackfillState(ctx, db.GetExecutor(ctx), maxBlockHeight, expectedSlot, newSlot, newBlockHeight)
}

func advanceBackfillState(ctx context.Context, exec postgres.Executor, maxBlockHeight, expectedSlot, newSlot, newBlockHeight uint64) (bool, error) {
	if newBlockHeight > maxBlockHeight {
		return false, fmt.Errorf("backfill height %d beyond ceiling %d", newBlockHeight, maxBlockHeight)
	}
	tag, err := exec.Exec(ctx, `
		UPDATE adm_backfill_state
		SET latest_slot = $1,
			latest_block_height = $2,
			enabled = enabled AND $2 < max_block_height,
			updated_at = NOW()
		WHERE max_block_height = $3 AND latest_slot = $4
	`, newSlot, newBlockHeight, maxBlockHeight, expectedSlot)
	if err != nil {
		return false, fmt.Errorf("advance adm_backfill_state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetBackfillEnabled pauses or resumes a campaign.
func (db *DB) SetBackfillEnabled(ctx context.Context, maxBlockHeight uint64, enabled bool) error {
	tag, err := db.GetExecutor(ctx).Exec(ctx, `
		UPDATE adm_backfill_state SET enabled = $1, updated_at = NOW() WHERE max_block_height = $2
	`, enabled, maxBlockHeight)
	if err != nil {
		return fmt.Errorf("update adm_backfill_state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrBackfillNotFound, maxBlockHeight)
	}
	return nil
}

package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/orca-so/sedimentology/pkg/db/postgres"
)

func (db *DB) initQueuedSlots(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS adm_queued_slots (
			slot BIGINT PRIMARY KEY,
			block_height BIGINT NOT NULL,
			queued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_backfill_slot BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS adm_queued_slots_kind_slot_idx
			ON adm_queued_slots (is_backfill_slot, slot);
		CREATE INDEX IF NOT EXISTS adm_queued_slots_kind_queued_at_idx
			ON adm_queued_slots (is_backfill_slot, queued_at);
	`
	return db.Exec(ctx, query)
}

const enqueueSlotSQL = `
	INSERT INTO adm_queued_slots (slot, block_height, queued_at, is_backfill_slot)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (slot) DO NOTHING
`

// CountQueuedSlots returns the number of pending slots of one kind.
func (db *DB) CountQueuedSlots(ctx context.Context, backfill bool) (int64, error) {
	return countQueuedSlots(ctx, db.GetExecutor(ctx), backfill)
}

func countQueuedSlots(ctx context.Context, exec postgres.Executor, backfill bool) (int64, error) {
	var n int64
	if err := exec.QueryRow(ctx,
		`SELECT COUNT(*) FROM adm_queued_slots WHERE is_backfill_slot = $1`, backfill,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count adm_queued_slots: %w", err)
	}
	return n, nil
}

// EnqueueSlots inserts pending slots. A slot already pending is left untouched.
func (db *DB) EnqueueSlots(ctx context.Context, slots []QueuedSlot) error {
	return enqueueSlots(ctx, db.GetExecutor(ctx), slots)
}

func enqueueSlots(ctx context.Context, exec postgres.Executor, slots []QueuedSlot) error {
	if len(slots) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, s := range slots {
		queuedAt := s.QueuedAt
		if queuedAt.IsZero() {
			queuedAt = now
		}
		batch.Queue(enqueueSlotSQL, s.Slot, s.BlockHeight, queuedAt, s.IsBackfillSlot)
	}
	if err := postgres.ExecuteBatch(ctx, exec, batch); err != nil {
		return fmt.Errorf("enqueue %d slots: %w", len(slots), err)
	}
	return nil
}

// ListQueuedSlots returns up to limit pending slots of one kind. Live slots come
// out lowest first; backfill slots oldest batch first, newest slot first within
// a batch.
func (db *DB) ListQueuedSlots(ctx context.Context, backfill bool, limit int) ([]QueuedSlot, error) {
	return listQueuedSlots(ctx, db.GetExecutor(ctx), backfill, limit)
}

func listQueuedSlots(ctx context.Context, exec postgres.Executor, backfill bool, limit int) ([]QueuedSlot, error) {
	order := "slot ASC"
	if backfill {
		order = "queued_at ASC, slot DESC"
	}
	rows, err := exec.Query(ctx, `
		SELECT slot, block_height, queued_at, is_backfill_slot
		FROM adm_queued_slots
		WHERE is_backfill_slot = $1
		ORDER BY `+order+`
		LIMIT $2
	`, backfill, limit)
	if err != nil {
		return nil, fmt.Errorf("list adm_queued_slots: %w", err)
	}
	defer rows.Close()

	out := make([]QueuedSlot, 0, limit)
	for rows.Next() {
		var s QueuedSlot
		if err := rows.Scan(&s.Slot, &s.BlockHeight, &s.QueuedAt, &s.IsBackfillSlot); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetQueuedSlot returns the pending slot or nil when it is not pending.
func (db *DB) GetQueuedSlot(ctx context.Context, slot uint64) (*QueuedSlot, error) {
	var s QueuedSlot
	err := db.QueryRow(ctx, `
		SELECT slot, block_height, queued_at, is_backfill_slot
		FROM adm_queued_slots
		WHERE slot = $1
	`, slot).Scan(&s.Slot, &s.BlockHeight, &s.QueuedAt, &s.IsBackfillSlot)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get adm_queued_slots %d: %w", slot, err)
	}
	return &s, nil
}

// EnqueueForward advances the forward watermark and enqueues the new slots in
// one transaction. It returns false when the watermark moved under us, in
// which case nothing is written.
func (db *DB) EnqueueForward(ctx context.Context, expectedSlot uint64, slots []QueuedSlot) (bool, error) {
	if len(slots) == 0 {
		return false, nil
	}
	last := slots[len(slots)-1]
	err := db.BeginFunc(ctx, func(tx pgx.Tx) error {
		ok, err := advanceState(ctx, tx, expectedSlot, last.Slot, last.BlockHeight)
		if err != nil {
			return err
		}
		if !ok {
			return errWatermarkMoved
		}
		return enqueueSlots(ctx, tx, slots)
	})
	if errors.Is(err, errWatermarkMoved) {
		return false, nil
	}
	return err == nil, err
}

// EnqueueBackfill is EnqueueForward for a backfill campaign. The new watermark
// is passed explicitly because the fetched range may extend past the ceiling.
func (db *DB) EnqueueBackfill(ctx context.Context, maxBlockHeight, expectedSlot, newSlot, newBlockHeight uint64, slots []QueuedSlot) (bool, error) {
	err := db.BeginFunc(ctx, func(tx pgx.Tx) error {
		ok, err := advanceBackfillState(ctx, tx, maxBlockHeight, expectedSlot, newSlot, newBlockHeight)
		if err != nil {
			return err
		}
		if !ok {
			return errWatermarkMoved
		}
		return enqueueSlots(ctx, tx, slots)
	})
	if errors.Is(err, errWatermarkMoved) {
		return false, nil
	}
	return err == nil, err
}

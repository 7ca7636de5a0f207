package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Stats collects the admin status view. A missing forward watermark is not an
// error; State is nil until the sequencer has been seeded.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	var out Stats

	state, err := db.ReadState(ctx)
	switch {
	case err == nil:
		out.State = &state
	case errors.Is(err, ErrStateNotInitialized):
	default:
		return Stats{}, err
	}

	if out.Backfills, err = db.ListBackfillStates(ctx); err != nil {
		return Stats{}, err
	}

	var lowest sql.NullInt64
	var oldest sql.NullTime
	err = db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_backfill_slot),
			COUNT(*) FILTER (WHERE is_backfill_slot),
			MIN(slot) FILTER (WHERE NOT is_backfill_slot),
			MIN(queued_at)
		FROM adm_queued_slots
	`).Scan(&out.QueuedLive, &out.QueuedBackfill, &lowest, &oldest)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	if lowest.Valid {
		v := uint64(lowest.Int64)
		out.LowestQueued = &v
	}
	if oldest.Valid {
		t := oldest.Time
		out.OldestQueuedAt = &t
	}

	if out.Checkpoint, err = db.GetCheckpoint(ctx); err != nil {
		return Stats{}, err
	}
	return out, nil
}

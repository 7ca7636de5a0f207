package admin

import (
	"context"
	"fmt"

	"github.com/orca-so/sedimentology/pkg/db/postgres"
	"go.uber.org/zap"
)

func (db *DB) initFunctions(ctx context.Context) error {
	functions := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"advance_checkpoint", db.createAdvanceCheckpointFunction},
	}

	for _, f := range functions {
		if err := f.fn(ctx); err != nil {
			return err
		}
		db.Logger.Debug("Function ready", zap.String("function", f.name))
	}
	return nil
}

// createAdvanceCheckpointFunction installs advance_checkpoint(). Every live
// slot below the lowest pending live slot has been committed, so that slot
// minus one is safe. With nothing pending the forward watermark is safe.
// Both reads share one statement snapshot: the sequencer enqueues slots and
// moves the watermark in one transaction, so the pair is always consistent.
func (db *DB) createAdvanceCheckpointFunction(ctx context.Context) error {
	return createAdvanceCheckpointFunction(ctx, db.GetExecutor(ctx))
}

func createAdvanceCheckpointFunction(ctx context.Context, exec postgres.Executor) error {
	query := `
		CREATE OR REPLACE FUNCTION advance_checkpoint() RETURNS BIGINT AS $$
		DECLARE
			v_candidate BIGINT;
			v_result BIGINT;
		BEGIN
			SELECT COALESCE(
				(SELECT MIN(q.slot) - 1 FROM adm_queued_slots q WHERE NOT q.is_backfill_slot),
				s.latest_slot
			) INTO v_candidate
			FROM adm_state s
			WHERE s.id = 1;

			IF v_candidate IS NULL THEN
				RETURN NULL;
			END IF;

			INSERT INTO adm_checkpoint (id, slot, updated_at)
			VALUES (1, v_candidate, NOW())
			ON CONFLICT (id) DO UPDATE SET
				slot = GREATEST(adm_checkpoint.slot, EXCLUDED.slot),
				updated_at = NOW()
			RETURNING slot INTO v_result;

			RETURN v_result;
		END;
		$$ LANGUAGE plpgsql;
	`
	if _, err := exec.Exec(ctx, query); err != nil {
		return fmt.Errorf("create advance_checkpoint: %w", err)
	}
	return nil
}

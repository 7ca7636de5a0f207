package admin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/orca-so/sedimentology/pkg/db/postgres/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceState_CompareAndSet(t *testing.T) {
	ctx := context.Background()

	t.Run("applied", func(t *testing.T) {
		exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "UPDATE adm_state", Tag: "UPDATE 1"})

		ok, err := advanceState(ctx, exec, 100, 110, 95)
		require.NoError(t, err)
		assert.True(t, ok)

		calls := exec.Find("UPDATE adm_state", "WHERE id = 1 AND latest_slot = $3")
		require.Len(t, calls, 1)
		assert.Equal(t, []any{uint64(110), uint64(95), uint64(100)}, calls[0].Args)
	})

	t.Run("lost race", func(t *testing.T) {
		exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "UPDATE adm_state", Tag: "UPDATE 0"})

		ok, err := advanceState(ctx, exec, 100, 110, 95)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "UPDATE adm_state", Err: boom})

		_, err := advanceState(ctx, exec, 100, 110, 95)
		require.ErrorIs(t, err, boom)
	})
}

func TestReadState(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "FROM adm_state", Row: []any{int64(42), int64(40), now}})
	s, err := readState(ctx, exec)
	require.NoError(t, err)
	assert.Equal(t, State{Slot: 42, BlockHeight: 40, UpdatedAt: now}, s)

	exec = (&pgtest.Executor{}).On(pgtest.Response{Match: "FROM adm_state", Err: pgx.ErrNoRows})
	_, err = readState(ctx, exec)
	require.ErrorIs(t, err, ErrStateNotInitialized)
}

func TestAdvanceBackfillState(t *testing.T) {
	ctx := context.Background()

	t.Run("scoped to campaign", func(t *testing.T) {
		exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "UPDATE adm_backfill_state", Tag: "UPDATE 1"})

		ok, err := advanceBackfillState(ctx, exec, 1000, 50, 60, 990)
		require.NoError(t, err)
		assert.True(t, ok)

		calls := exec.Find("WHERE max_block_height = $3 AND latest_slot = $4")
		require.Len(t, calls, 1)
		assert.Equal(t, []any{uint64(60), uint64(990), uint64(1000), uint64(50)}, calls[0].Args)
		assert.Empty(t, exec.Find("UPDATE adm_state"), "forward watermark must not be touched")
	})

	t.Run("beyond ceiling", func(t *testing.T) {
		exec := &pgtest.Executor{}

		_, err := advanceBackfillState(ctx, exec, 1000, 50, 60, 1001)
		require.Error(t, err)
		assert.Empty(t, exec.Calls)
	})
}

func TestEnqueueSlots(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent insert", func(t *testing.T) {
		exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "INSERT INTO adm_queued_slots", Tag: "INSERT 0 1"})
		queuedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		err := enqueueSlots(ctx, exec, []QueuedSlot{
			{Slot: 10, BlockHeight: 9, QueuedAt: queuedAt, IsBackfillSlot: true},
			{Slot: 12, BlockHeight: 10},
		})
		require.NoError(t, err)

		require.Len(t, exec.Batches, 1)
		batch := exec.Batches[0]
		require.Len(t, batch, 2)
		assert.True(t, batch[0].Has("ON CONFLICT (slot) DO NOTHING"))
		assert.Equal(t, []any{uint64(10), uint64(9), queuedAt, true}, batch[0].Args)
		assert.False(t, batch[1].Args[2].(time.Time).IsZero(), "queued_at defaults to now")
		assert.Equal(t, false, batch[1].Args[3])
	})

	t.Run("empty", func(t *testing.T) {
		exec := &pgtest.Executor{}
		require.NoError(t, enqueueSlots(ctx, exec, nil))
		assert.Empty(t, exec.Batches)
	})

	t.Run("statement failure", func(t *testing.T) {
		exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "INSERT INTO adm_queued_slots", Err: errors.New("conflict")})
		err := enqueueSlots(ctx, exec, []QueuedSlot{{Slot: 1}})
		require.Error(t, err)
	})
}

func TestCountQueuedSlots(t *testing.T) {
	exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "SELECT COUNT(*) FROM adm_queued_slots", Row: []any{int64(7)}})

	n, err := countQueuedSlots(context.Background(), exec, true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []any{true}, exec.Calls[0].Args)
}

func TestListQueuedSlots_Order(t *testing.T) {
	ctx := context.Background()
	exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "FROM adm_queued_slots", Err: errors.New("stop")})

	_, _ = listQueuedSlots(ctx, exec, false, 5)
	_, _ = listQueuedSlots(ctx, exec, true, 5)

	require.Len(t, exec.Calls, 2)
	assert.True(t, exec.Calls[0].Has("ORDER BY slot ASC"))
	assert.True(t, exec.Calls[1].Has("ORDER BY queued_at ASC, slot DESC"))
	assert.Equal(t, []any{true, 5}, exec.Calls[1].Args)
}

func TestAdvanceCheckpoint(t *testing.T) {
	ctx := context.Background()

	exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "advance_checkpoint()", Row: []any{int64(99)}})
	slot, ok, err := advanceCheckpoint(ctx, exec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(99), slot)

	exec = (&pgtest.Executor{}).On(pgtest.Response{Match: "advance_checkpoint()", Row: []any{nil}})
	_, ok, err = advanceCheckpoint(ctx, exec)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackfillStateDone(t *testing.T) {
	assert.False(t, BackfillState{MaxBlockHeight: 10, BlockHeight: 9}.Done())
	assert.True(t, BackfillState{MaxBlockHeight: 10, BlockHeight: 10}.Done())
}

func TestAdvanceCheckpointFunction_SingleSnapshot(t *testing.T) {
	exec := (&pgtest.Executor{}).On(pgtest.Response{Match: "CREATE OR REPLACE FUNCTION advance_checkpoint()", Tag: "CREATE FUNCTION"})
	require.NoError(t, createAdvanceCheckpointFunction(context.Background(), exec))

	require.Len(t, exec.Calls, 1)
	body := exec.Calls[0]
	// The pending minimum and the watermark fallback are read by one SELECT,
	// so an enqueue committing in between cannot be half seen.
	assert.True(t, body.Has(
		"SELECT COALESCE(",
		"(SELECT MIN(q.slot) - 1 FROM adm_queued_slots q WHERE NOT q.is_backfill_slot),",
		"s.latest_slot",
		") INTO v_candidate",
		"FROM adm_state s",
	))
	assert.Equal(t, 1, strings.Count(body.SQL, "INTO v_candidate"))
	assert.False(t, body.Has("SELECT latest_slot INTO"))
	assert.True(t, body.Has("GREATEST(adm_checkpoint.slot, EXCLUDED.slot)"))

	boom := errors.New("permission denied")
	exec = (&pgtest.Executor{}).On(pgtest.Response{Match: "advance_checkpoint()", Err: boom})
	require.ErrorIs(t, createAdvanceCheckpointFunction(context.Background(), exec), boom)
}

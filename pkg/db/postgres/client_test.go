package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/orca-so/sedimentology/pkg/db/postgres/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAuthError(t *testing.T) {
	auth := fmt.Errorf("ping: %w", &pgconn.PgError{Code: "28P01"})
	assert.True(t, isAuthError(auth))
	assert.False(t, isAuthError(&pgconn.PgError{Code: "57P03"}))
	assert.False(t, isAuthError(errors.New("connection refused")))
}

func TestPoolConfigPerComponent(t *testing.T) {
	t.Setenv("PROCESSOR_MAX_CONNS", "64")

	proc := GetPoolConfigForComponent("processor")
	assert.Equal(t, int32(4), proc.MinConns)
	assert.Equal(t, int32(64), proc.MaxConns)
	assert.Equal(t, "processor", proc.Component)

	seq := GetPoolConfigForComponent("backfill-sequencer")
	assert.Equal(t, int32(4), seq.MaxConns)

	other := GetPoolConfigForComponent("unknown")
	assert.Equal(t, int32(20), other.MaxConns)
}

func TestExecuteBatchReportsFailingStatement(t *testing.T) {
	boom := errors.New("duplicate key")
	exec := (&pgtest.Executor{}).
		On(pgtest.Response{Match: "INSERT INTO a", Tag: "INSERT 0 1"}).
		On(pgtest.Response{Match: "INSERT INTO b", Err: boom})

	batch := &pgx.Batch{}
	batch.Queue("INSERT INTO a VALUES ($1)", 1)
	batch.Queue("INSERT INTO b VALUES ($1)", 2)

	err := ExecuteBatch(context.Background(), exec, batch)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "batch statement 1")

	require.NoError(t, ExecuteBatch(context.Background(), exec, &pgx.Batch{}))
	assert.Len(t, exec.Batches, 1)
}

func TestGetExecutorPrefersContextTx(t *testing.T) {
	c := &Client{}
	assert.Nil(t, c.GetExecutor(context.Background()))

	var tx pgx.Tx = fakeTx{}
	ctx := c.WithTx(context.Background(), tx)
	assert.Equal(t, tx, c.GetExecutor(ctx))
}

type fakeTx struct{ pgx.Tx }

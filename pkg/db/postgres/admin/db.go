package admin

import (
	"context"
	"fmt"

	"github.com/orca-so/sedimentology/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB holds the pipeline control tables: watermarks, backfill campaigns, the
// pending slot set and the checkpoint.
type DB struct {
	postgres.Client
	Name string
}

// NewWithPoolConfig creates and initializes an admin database instance with custom pool configuration
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, name string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("db", name),
		zap.String("component", poolConfig.Component),
	), name, &poolConfig)
	if err != nil {
		return nil, err
	}

	adminDB := &DB{
		Client: client,
		Name:   name,
	}

	if err := adminDB.InitializeDB(ctx); err != nil {
		adminDB.Close()
		return nil, err
	}

	return adminDB, nil
}

// DatabaseName returns the name of the admin database
func (db *DB) DatabaseName() string {
	return db.Name
}

// InitializeDB ensures the control tables and functions exist. Tables are
// created in order because advance_checkpoint reads all of them.
func (db *DB) InitializeDB(ctx context.Context) error {
	db.Logger.Info("Initializing admin tables", zap.String("database", db.Name))

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"adm_state", db.initState},
		{"adm_backfill_state", db.initBackfillState},
		{"adm_queued_slots", db.initQueuedSlots},
		{"adm_checkpoint", db.initCheckpoint},
		{"functions", db.initFunctions},
	}

	for _, op := range initOps {
		db.Logger.Debug("Initialize table", zap.String("table", op.name))
		if err := op.fn(ctx); err != nil {
			return fmt.Errorf("init %s: %w", op.name, err)
		}
	}

	return nil
}

package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orca-so/sedimentology/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB is the ledger: slots, transactions, balance deltas, the address and
// decimals registries and one table per instruction kind.
type DB struct {
	postgres.Client
	Name string
}

// NewWithPoolConfig creates and initializes a ledger database instance with custom pool configuration
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, name string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("db", name),
		zap.String("component", poolConfig.Component),
	), name, &poolConfig)
	if err != nil {
		return nil, err
	}

	chainDB := &DB{
		Client: client,
		Name:   name,
	}

	if err := chainDB.InitializeDB(ctx); err != nil {
		chainDB.Close()
		return nil, err
	}

	return chainDB, nil
}

// DatabaseName returns the name of the ledger database
func (db *DB) DatabaseName() string {
	return db.Name
}

// InitializeDB ensures the ledger tables and functions exist.
// pubkeys goes first since the functions and decimals reference it; the rest
// is created in parallel.
func (db *DB) InitializeDB(ctx context.Context) error {
	initStart := time.Now()

	db.Logger.Info("Initializing ledger database", zap.String("database", db.Name))

	if err := db.initPubkeys(ctx); err != nil {
		return fmt.Errorf("init pubkeys: %w", err)
	}

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"slots", db.initSlots},
		{"txs", db.initTxs},
		{"balances", db.initBalances},
		{"decimals", db.initDecimals},
		{"ixs_program_deploy", db.initProgramDeploy},
		{"functions", db.initFunctions},
	}
	for _, kind := range sortedKinds() {
		kind := kind
		initOps = append(initOps, struct {
			name string
			fn   func(context.Context) error
		}{ixTableName(kind), func(ctx context.Context) error { return db.initIxTable(ctx, kind) }})
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(initOps))

	for _, op := range initOps {
		wg.Add(1)
		go func(name string, fn func(context.Context) error) {
			defer wg.Done()
			db.Logger.Debug("Initializing table", zap.String("table", name))
			if err := fn(ctx); err != nil {
				errChan <- fmt.Errorf("init %s: %w", name, err)
			}
		}(op.name, op.fn)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}

	db.Logger.Info("Ledger database initialized successfully",
		zap.String("database", db.Name),
		zap.Int("instruction_tables", len(ixTables)),
		zap.Duration("duration", time.Since(initStart)))

	return nil
}

package chain

import (
	"context"
)

func (db *DB) initPubkeys(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pubkeys (
			id BIGSERIAL PRIMARY KEY,
			pubkey TEXT NOT NULL UNIQUE
		)
	`
	return db.Exec(ctx, query)
}

func (db *DB) initDecimals(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS decimals (
			mint BIGINT PRIMARY KEY REFERENCES pubkeys (id),
			decimals SMALLINT NOT NULL
		)
	`
	return db.Exec(ctx, query)
}

func (db *DB) initSlots(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS slots (
			slot BIGINT PRIMARY KEY,
			block_height BIGINT NOT NULL,
			block_time BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS slots_block_height_idx ON slots (block_height);
	`
	return db.Exec(ctx, query)
}

func (db *DB) initTxs(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS txs (
			txid BIGINT PRIMARY KEY,
			signature TEXT NOT NULL,
			payer BIGINT NOT NULL
		)
	`
	return db.Exec(ctx, query)
}

func (db *DB) initBalances(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS balances (
			txid BIGINT NOT NULL,
			account BIGINT NOT NULL,
			pre NUMERIC(20) NOT NULL,
			post NUMERIC(20) NOT NULL,
			PRIMARY KEY (txid, account)
		)
	`
	return db.Exec(ctx, query)
}

func (db *DB) initProgramDeploy(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ixs_program_deploy (
			txid BIGINT NOT NULL,
			"order" INTEGER NOT NULL,
			program_data BYTEA NOT NULL,
			PRIMARY KEY (txid, "order")
		)
	`
	return db.Exec(ctx, query)
}

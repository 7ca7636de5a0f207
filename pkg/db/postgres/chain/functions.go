package chain

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

func (db *DB) initFunctions(ctx context.Context) error {
	functions := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"from_pubkey", db.createFromPubkeyFunction},
		{"add_pubkey_if_not_exists", db.createAddPubkeyFunction},
		{"add_decimals_if_not_exists", db.createAddDecimalsFunction},
	}

	for _, f := range functions {
		if err := f.fn(ctx); err != nil {
			return fmt.Errorf("function %s: %w", f.name, err)
		}
		db.Logger.Debug("Function ready", zap.String("function", f.name))
	}
	return nil
}

// createFromPubkeyFunction installs from_pubkey(text). It raises when the
// pubkey was never registered so a commit cannot store a dangling key.
func (db *DB) createFromPubkeyFunction(ctx context.Context) error {
	query := `
		CREATE OR REPLACE FUNCTION from_pubkey(p_pubkey TEXT) RETURNS BIGINT AS $$
		DECLARE
			v_id BIGINT;
		BEGIN
			SELECT id INTO v_id FROM pubkeys WHERE pubkey = p_pubkey;
			IF v_id IS NULL THEN
				RAISE EXCEPTION 'pubkey % is not registered', p_pubkey;
			END IF;
			RETURN v_id;
		END;
		$$ LANGUAGE plpgsql STABLE;
	`
	return db.Exec(ctx, query)
}

func (db *DB) createAddPubkeyFunction(ctx context.Context) error {
	query := `
		CREATE OR REPLACE FUNCTION add_pubkey_if_not_exists(p_pubkey TEXT) RETURNS VOID AS $$
		BEGIN
			INSERT INTO pubkeys (pubkey) VALUES (p_pubkey) ON CONFLICT (pubkey) DO NOTHING;
		END;
		$$ LANGUAGE plpgsql;
	`
	return db.Exec(ctx, query)
}

// createAddDecimalsFunction installs add_decimals_if_not_exists. Decimals of a
// mint never change, so an existing row wins.
func (db *DB) createAddDecimalsFunction(ctx context.Context) error {
	query := `
		CREATE OR REPLACE FUNCTION add_decimals_if_not_exists(p_mint TEXT, p_decimals SMALLINT) RETURNS VOID AS $$
		BEGIN
			INSERT INTO decimals (mint, decimals)
			VALUES (from_pubkey(p_mint), p_decimals)
			ON CONFLICT (mint) DO NOTHING;
		END;
		$$ LANGUAGE plpgsql;
	`
	return db.Exec(ctx, query)
}

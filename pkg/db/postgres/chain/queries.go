package chain

import (
	"context"
	"fmt"

	"github.com/orca-so/sedimentology/pkg/db/postgres"
)

// Slot is a committed slot.
type Slot struct {
	Slot        uint64 `json:"slot"`
	BlockHeight uint64 `json:"blockHeight"`
	BlockTime   int64  `json:"blockTime"`
}

// TxSummary is a committed transaction with its payer resolved.
type TxSummary struct {
	TxID      int64  `json:"txid"`
	Signature string `json:"signature"`
	Payer     string `json:"payer"`
}

// GetSlot returns a committed slot or nil when it has not been committed.
func (db *DB) GetSlot(ctx context.Context, slot uint64) (*Slot, error) {
	var s Slot
	err := db.QueryRow(ctx,
		`SELECT slot, block_height, block_time FROM slots WHERE slot = $1`, slot,
	).Scan(&s.Slot, &s.BlockHeight, &s.BlockTime)
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot %d: %w", slot, err)
	}
	return &s, nil
}

// LatestSlots returns the most recent committed slots, newest first.
func (db *DB) LatestSlots(ctx context.Context, limit int) ([]Slot, error) {
	rows, err := db.Query(ctx,
		`SELECT slot, block_height, block_time FROM slots ORDER BY slot DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest slots: %w", err)
	}
	defer rows.Close()

	out := make([]Slot, 0, limit)
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.Slot, &s.BlockHeight, &s.BlockTime); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TxsBySlot returns the committed transactions of a slot in block order.
func (db *DB) TxsBySlot(ctx context.Context, slot uint64) ([]TxSummary, error) {
	lo, err := ToTxID(slot, 0)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `
		SELECT t.txid, t.signature, p.pubkey
		FROM txs t
		JOIN pubkeys p ON p.id = t.payer
		WHERE t.txid >= $1 AND t.txid < $2
		ORDER BY t.txid
	`, lo, lo+maxOrderInSlot)
	if err != nil {
		return nil, fmt.Errorf("txs by slot %d: %w", slot, err)
	}
	defer rows.Close()

	var out []TxSummary
	for rows.Next() {
		var t TxSummary
		if err := rows.Scan(&t.TxID, &t.Signature, &t.Payer); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

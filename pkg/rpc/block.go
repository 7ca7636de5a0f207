package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

const maxSafeInteger = 1 << 53

// Fields getBlock must carry for a block to be usable.
var requiredBlockFields = []string{"blockHeight", "blockTime", "blockhash", "parentSlot", "transactions"}

// Numeric fields read from a getBlock result. Amounts travel as strings and
// are not listed.
var consumedBlockIntegers = []string{
	"blockHeight",
	"blockTime",
	"parentSlot",
	"transactions.#.transaction.message.instructions.#.programIdIndex",
	"transactions.#.transaction.message.instructions.#.accounts",
	"transactions.#.transaction.message.instructions.#.stackHeight",
	"transactions.#.meta.innerInstructions.#.index",
	"transactions.#.meta.innerInstructions.#.instructions.#.programIdIndex",
	"transactions.#.meta.innerInstructions.#.instructions.#.accounts",
	"transactions.#.meta.innerInstructions.#.instructions.#.stackHeight",
	"transactions.#.meta.preTokenBalances.#.accountIndex",
	"transactions.#.meta.postTokenBalances.#.accountIndex",
	"transactions.#.meta.preTokenBalances.#.uiTokenAmount.decimals",
	"transactions.#.meta.postTokenBalances.#.uiTokenAmount.decimals",
}

// GetBlocksWithLimit returns confirmed slots starting at start (inclusive).
func (c *HTTPClient) GetBlocksWithLimit(ctx context.Context, start uint64, limit uint64, commitment Commitment) ([]uint64, error) {
	raw, err := c.call(ctx, "getBlocksWithLimit", []any{start, limit, map[string]any{"commitment": commitment}})
	if err != nil {
		return nil, err
	}
	if err := checkSafeIntegers(raw, "@this"); err != nil {
		return nil, fmt.Errorf("getBlocksWithLimit: %w", err)
	}
	var slots []uint64
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, fmt.Errorf("getBlocksWithLimit: decode: %w", err)
	}
	return slots, nil
}

// GetBlock fetches a full block with rewards suppressed. The result is
// validated on its raw bytes before it is decoded.
func (c *HTTPClient) GetBlock(ctx context.Context, slot uint64, commitment Commitment) (*Block, error) {
	raw, err := c.call(ctx, "getBlock", []any{slot, map[string]any{
		"encoding":                       "json",
		"transactionDetails":             "full",
		"maxSupportedTransactionVersion": 0,
		"rewards":                        false,
		"commitment":                     commitment,
	}})
	if err != nil {
		return nil, err
	}
	return decodeBlock(raw)
}

func decodeBlock(raw json.RawMessage) (*Block, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedBlock)
	}
	result := gjson.ParseBytes(raw)
	if result.Type == gjson.Null {
		return nil, ErrBlockNotAvailable
	}
	for _, field := range requiredBlockFields {
		v := result.Get(field)
		if !v.Exists() || v.Type == gjson.Null {
			return nil, fmt.Errorf("%w: %s missing", ErrMalformedBlock, field)
		}
	}
	if !result.Get("transactions").IsArray() {
		return nil, fmt.Errorf("%w: transactions is not an array", ErrMalformedBlock)
	}
	if err := checkSafeIntegers(raw, consumedBlockIntegers...); err != nil {
		return nil, err
	}

	var block Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	return &block, nil
}

// GetAccountInfo returns nil, nil when the account does not exist.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, address string, commitment Commitment, encoding string) (*AccountInfo, error) {
	raw, err := c.call(ctx, "getAccountInfo", []any{address, map[string]any{
		"commitment": commitment,
		"encoding":   encoding,
	}})
	if err != nil {
		return nil, err
	}
	var out accountInfoResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("getAccountInfo: decode: %w", err)
	}
	return out.Value, nil
}

// checkSafeIntegers walks every value selected by paths and rejects numbers a
// float64 based JSON decoder would round.
func checkSafeIntegers(raw []byte, paths ...string) error {
	for _, path := range paths {
		if err := walkSafe(gjson.GetBytes(raw, path), path); err != nil {
			return err
		}
	}
	return nil
}

func walkSafe(v gjson.Result, path string) error {
	switch v.Type {
	case gjson.Number:
		n := v.Num
		if n >= maxSafeInteger || n <= -maxSafeInteger {
			return fmt.Errorf("%w: %s = %s", ErrUnsafeInteger, path, v.Raw)
		}
	case gjson.JSON:
		var err error
		v.ForEach(func(_, item gjson.Result) bool {
			err = walkSafe(item, path)
			return err == nil
		})
		return err
	}
	return nil
}

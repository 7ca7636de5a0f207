package activity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/orca-so/sedimentology/pkg/db/postgres/admin"
	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/decoder"
	"github.com/orca-so/sedimentology/pkg/metrics"
	"github.com/orca-so/sedimentology/pkg/redis"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

const commitTimeout = time.Minute

// decodedSlot is a fetched and decoded slot ready to commit.
type decodedSlot struct {
	commit       chain.SlotCommit
	pubkeys      []string
	instructions int
}

// ProcessSlot ingests one pending slot. Addresses are registered first, then
// the transactions, balances, instructions and the slot row are committed in
// one transaction that also removes the pending row. A slot with no pending
// row is already committed and is acknowledged without work.
func (c *Context) ProcessSlot(ctx context.Context, in pipeline.ProcessSlotInput) (pipeline.ProcessSlotOutput, error) {
	start := c.now()
	out := pipeline.ProcessSlotOutput{Slot: in.Slot}
	logger := activity.GetLogger(ctx)

	fail := func(err error) (pipeline.ProcessSlotOutput, error) {
		c.Metrics.SlotProcessed(metrics.ResultError, 0, 0)
		return out, classify(err)
	}
	skip := func(msg string) (pipeline.ProcessSlotOutput, error) {
		out.AlreadyProcessed = true
		c.Metrics.SlotProcessed(metrics.ResultAlreadyProcessed, 0, 0)
		logger.Info(msg, "slot", in.Slot)
		return out, nil
	}

	queued, err := c.Queue.GetQueuedSlot(ctx, in.Slot)
	if err != nil {
		return fail(err)
	}
	if queued == nil {
		return skip("Slot already processed")
	}
	out.BlockHeight = queued.BlockHeight

	ds, err := c.decodeSlot(ctx, *queued)
	if err != nil {
		return fail(err)
	}

	if err := c.Registry.EnsurePubkeys(ctx, ds.pubkeys); err != nil {
		return fail(fmt.Errorf("register pubkeys: %w", err))
	}
	ds.commit.Decimals = c.Registry.UnseenDecimals(ds.commit.Decimals)

	// A started commit runs to completion even when the worker is stopping.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.Ledger.CommitSlot(commitCtx, ds.commit); err != nil {
		if errors.Is(err, chain.ErrSlotNotQueued) {
			return skip("Slot committed by another worker")
		}
		return fail(err)
	}
	c.Registry.MarkDecimals(ds.commit.Decimals)

	if c.Checkpoint {
		c.advanceCheckpoint(ctx)
	}

	elapsed := c.now().Sub(start)
	out.Txs = len(ds.commit.Txs)
	out.Instructions = ds.instructions
	out.DurationMs = float64(elapsed.Milliseconds())
	c.Metrics.SlotProcessed(metrics.ResultCommitted, out.Txs, elapsed)

	if c.Publisher != nil {
		c.Publisher.PublishSlotProcessed(ctx, redis.SlotProcessed{
			Slot:        ds.commit.Slot,
			BlockHeight: ds.commit.BlockHeight,
			BlockTime:   ds.commit.BlockTime,
			Txs:         out.Txs,
			Backfill:    queued.IsBackfillSlot,
			ProcessedAt: c.now(),
		})
	}

	logger.Info("Committed slot",
		"slot", in.Slot,
		"blockHeight", ds.commit.BlockHeight,
		"txs", out.Txs,
		"instructions", out.Instructions,
		"durationMs", out.DurationMs)
	return out, nil
}

// decodeSlot fetches the block of a queued slot and turns every successful
// Whirlpool transaction into a ledger row.
func (c *Context) decodeSlot(ctx context.Context, queued admin.QueuedSlot) (*decodedSlot, error) {
	slot := queued.Slot
	block, err := c.RPC.GetBlock(ctx, slot, c.commitment())
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", slot, err)
	}
	if block.BlockHeight != queued.BlockHeight {
		return nil, fmt.Errorf("%w: slot %d queued at height %d, node returned %d",
			ErrHeightMismatch, slot, queued.BlockHeight, block.BlockHeight)
	}

	ds := &decodedSlot{commit: chain.SlotCommit{
		Slot:        slot,
		BlockHeight: block.BlockHeight,
		BlockTime:   block.BlockTime,
	}}
	seen := map[string]bool{}
	addKey := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			ds.pubkeys = append(ds.pubkeys, k)
		}
	}
	mints := map[string]bool{}

	for order := range block.Transactions {
		tx := &block.Transactions[order]
		if tx.Meta == nil {
			return nil, fmt.Errorf("%w: slot %d transaction %d has no meta", rpc.ErrMalformedBlock, slot, order)
		}
		if tx.Meta.Failed() {
			continue
		}
		if !slices.Contains(tx.AllPubkeys(), c.ProgramID) {
			continue
		}
		if tx.Meta.InnerInstructions == nil {
			return nil, fmt.Errorf("%w: slot %d transaction %d", ErrInnerInstructionsMissing, slot, order)
		}

		// Undecodable transactions are dropped. A kind that decodes but has no
		// balance policy or table fails the slot later, in buildTx or the commit.
		decoded, err := c.decode(tx)
		if err != nil {
			c.Logger.Warn("Dropping undecodable transaction",
				zap.Uint64("slot", slot),
				zap.Int("order", order),
				zap.Strings("signatures", tx.Transaction.Signatures),
				zap.Error(err))
			continue
		}
		if len(decoded.Instructions) == 0 && !decoded.ProgramDeployDetected {
			continue
		}

		row, err := c.buildTx(ctx, slot, order, tx, decoded)
		if err != nil {
			return nil, err
		}
		ds.commit.Txs = append(ds.commit.Txs, row)
		ds.instructions += len(row.Instructions)

		addKey(row.Payer)
		for _, ix := range row.Instructions {
			for _, k := range ix.Accounts().Keys() {
				addKey(k)
			}
			for _, k := range extraPubkeys(ix) {
				addKey(k)
			}
			introduced, err := introducedDecimals(ix)
			if err != nil {
				return nil, err
			}
			for _, d := range introduced {
				if !mints[d.Mint] {
					mints[d.Mint] = true
					ds.commit.Decimals = append(ds.commit.Decimals, d)
				}
			}
		}
	}
	return ds, nil
}

func (c *Context) buildTx(ctx context.Context, slot uint64, order int, tx *rpc.Transaction, decoded *decoder.Decoded) (chain.Tx, error) {
	txid, err := chain.ToTxID(slot, order)
	if err != nil {
		return chain.Tx{}, err
	}
	env := tx.Transaction
	if len(env.Signatures) == 0 || len(env.Message.AccountKeys) == 0 {
		return chain.Tx{}, fmt.Errorf("%w: slot %d transaction %d has no signature or payer", rpc.ErrMalformedBlock, slot, order)
	}
	row := chain.Tx{
		TxID:         txid,
		Signature:    env.Signatures[0],
		Payer:        env.Message.AccountKeys[0],
		Instructions: decoded.Instructions,
	}

	if decoded.ProgramDeployDetected {
		if len(decoded.Instructions) > 0 {
			return chain.Tx{}, fmt.Errorf("%w: %s", ErrDeployWithInstructions, row.Signature)
		}
		row.ProgramData, err = c.fetchProgramData(ctx, slot)
		if err != nil {
			return chain.Tx{}, err
		}
		return row, nil
	}

	vaults, initializing, err := touchedVaults(decoded.Instructions)
	if err != nil {
		return chain.Tx{}, err
	}
	row.Balances, err = resolveBalances(tx, vaults, initializing)
	if err != nil {
		return chain.Tx{}, fmt.Errorf("%s: %w", row.Signature, err)
	}
	return row, nil
}

// extraPubkeys returns the addresses an instruction references outside its
// fixed accounts: authorities carried in data, token account owners and
// remaining accounts.
func extraPubkeys(ix decoder.Instruction) []string {
	keys := slices.Clone(ix.RemainingAccounts())
	switch v := ix.(type) {
	case *decoder.InitializeConfig:
		keys = append(keys, v.FeeAuthority, v.CollectProtocolFeesAuthority, v.RewardEmissionsSuperAuthority)
	case *decoder.InitializeAdaptiveFeeTier:
		keys = append(keys, v.InitializePoolAuthority, v.DelegatedFeeAuthority)
	}
	if layout, ok := decoder.LayoutOf(ix.Name()); ok {
		for _, aux := range layout.Aux {
			keys = append(keys, ix.Aux(aux.Name))
		}
	}
	return keys
}

// introducedDecimals returns the mints created by pool and reward
// initialization with their decimals.
func introducedDecimals(ix decoder.Instruction) ([]chain.MintDecimals, error) {
	layout, ok := decoder.LayoutOf(ix.Name())
	if !ok {
		return nil, fmt.Errorf("%w: %s", decoder.ErrUnknownInstruction, ix.Name())
	}
	var out []chain.MintDecimals
	for _, account := range layout.Mints {
		d, ok := ix.Decimals(account)
		if !ok {
			return nil, fmt.Errorf("%w: decimals of %s.%s", decoder.ErrMissingTokenBalance, ix.Name(), account)
		}
		out = append(out, chain.MintDecimals{Mint: ix.Accounts().Get(account), Decimals: d})
	}
	return out, nil
}

// advanceCheckpoint is best-effort; failures never undo the commit.
func (c *Context) advanceCheckpoint(ctx context.Context) {
	slot, moved, err := c.Queue.AdvanceCheckpoint(ctx)
	if err != nil {
		c.Logger.Warn("Checkpoint advance failed", zap.Error(err))
		return
	}
	if moved {
		c.Logger.Debug("Checkpoint advanced", zap.Uint64("slot", slot))
	}
}

// classify marks errors a retry cannot fix as non-retryable.
func classify(err error) error {
	switch {
	case errors.Is(err, decoder.ErrUnknownInstruction),
		errors.Is(err, chain.ErrUnknownInstruction),
		errors.Is(err, chain.ErrTxIDOverflow),
		errors.Is(err, ErrDeployWithInstructions),
		errors.Is(err, ErrProgramDataSlot):
		return temporal.NewNonRetryableApplicationError(err.Error(), "InvariantViolation", err)
	}
	return err
}

package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/orca-so/sedimentology/pkg/decoder"
)

// ErrUnknownInstruction is returned for an instruction kind the ledger has no table for.
var ErrUnknownInstruction = errors.New("unknown instruction")

var insertSQLs = func() map[string]string {
	m := make(map[string]string, len(ixTables))
	for kind := range ixTables {
		q, err := insertSQL(kind)
		if err != nil {
			panic(err)
		}
		m[kind] = q
	}
	return m
}()

// ixRow is one INSERT of an instruction table.
type ixRow struct {
	table string
	sql   string
	args  []any
}

// instructionRow maps a decoded instruction to its table row.
func instructionRow(txid int64, order int, ix decoder.Instruction) (ixRow, error) {
	kind := ix.Name()
	query, ok := insertSQLs[kind]
	if !ok {
		return ixRow{}, fmt.Errorf("%w: %s", ErrUnknownInstruction, kind)
	}
	layout, _ := decoder.LayoutOf(kind)

	data, dataKeys, err := dataValues(ix)
	if err != nil {
		return ixRow{}, err
	}
	if len(data) != len(ixTables[kind].data) {
		return ixRow{}, fmt.Errorf("%s: %d data values for %d columns", kind, len(data), len(ixTables[kind].data))
	}

	args := make([]any, 0, 2+len(data)+len(dataKeys)+len(layout.Accounts)+len(layout.Aux)+2+4*layout.Transfers)
	args = append(args, txid, order)
	args = append(args, data...)
	for _, k := range dataKeys {
		args = append(args, k)
	}
	accounts := ix.Accounts()
	for _, name := range layout.Accounts {
		args = append(args, accounts.Get(name))
	}
	for _, aux := range layout.Aux {
		owner := ix.Aux(aux.Name)
		if owner == "" {
			return ixRow{}, fmt.Errorf("%s: %w: %s", kind, decoder.ErrMissingTokenBalance, aux.Name)
		}
		args = append(args, owner)
	}

	if layout.Remaining {
		info, err := remainingAccountsInfo(ix)
		if err != nil {
			return ixRow{}, err
		}
		remaining := ix.RemainingAccounts()
		if remaining == nil {
			remaining = []string{}
		}
		keys, err := json.Marshal(remaining)
		if err != nil {
			return ixRow{}, err
		}
		args = append(args, string(info), string(keys))
	}

	transfers := ix.Transfers()
	if len(transfers) != layout.Transfers {
		return ixRow{}, fmt.Errorf("%s: %d transfers, expected %d", kind, len(transfers), layout.Transfers)
	}
	for _, t := range transfers {
		args = append(args, u64(t.Amount))
		if layout.Remaining {
			if t.FeeConfig != nil {
				args = append(args, true, t.FeeConfig.BasisPoints, u64(t.FeeConfig.MaximumFee))
			} else {
				args = append(args, false, uint16(0), "0")
			}
		}
	}

	return ixRow{table: ixTableName(kind), sql: query, args: args}, nil
}

func remainingAccountsInfo(ix decoder.Instruction) ([]byte, error) {
	var info decoder.RemainingAccountsInfo
	switch v := ix.(type) {
	case *decoder.SwapV2:
		info = v.RemainingAccountsInfo
	case *decoder.TwoHopSwapV2:
		info = v.RemainingAccountsInfo
	case *decoder.IncreaseLiquidityV2:
		info = v.RemainingAccountsInfo
	case *decoder.DecreaseLiquidityV2:
		info = v.RemainingAccountsInfo
	case *decoder.CollectFeesV2:
		info = v.RemainingAccountsInfo
	case *decoder.CollectProtocolFeesV2:
		info = v.RemainingAccountsInfo
	case *decoder.CollectRewardV2:
		info = v.RemainingAccountsInfo
	default:
		return nil, fmt.Errorf("%w: %s carries no remaining accounts info", ErrUnknownInstruction, ix.Name())
	}
	return json.Marshal(info)
}

// dataValues returns the data column values of ix and the pubkeys carried in
// its data, both in column order.
func dataValues(ix decoder.Instruction) ([]any, []string, error) {
	switch v := ix.(type) {
	case *decoder.Swap:
		return swapValues(v.SwapArgs), nil, nil
	case *decoder.SwapV2:
		return swapValues(v.SwapArgs), nil, nil
	case *decoder.TwoHopSwap:
		return twoHopSwapValues(v.TwoHopSwapArgs), nil, nil
	case *decoder.TwoHopSwapV2:
		return twoHopSwapValues(v.TwoHopSwapArgs), nil, nil
	case *decoder.IncreaseLiquidity:
		return []any{u128(v.LiquidityAmount), u64(v.TokenMaxA), u64(v.TokenMaxB)}, nil, nil
	case *decoder.IncreaseLiquidityV2:
		return []any{u128(v.LiquidityAmount), u64(v.TokenMaxA), u64(v.TokenMaxB)}, nil, nil
	case *decoder.DecreaseLiquidity:
		return []any{u128(v.LiquidityAmount), u64(v.TokenMinA), u64(v.TokenMinB)}, nil, nil
	case *decoder.DecreaseLiquidityV2:
		return []any{u128(v.LiquidityAmount), u64(v.TokenMinA), u64(v.TokenMinB)}, nil, nil
	case *decoder.AdminIncreaseLiquidity:
		return []any{u128(v.Liquidity)}, nil, nil

	case *decoder.UpdateFeesAndRewards, *decoder.CollectFees, *decoder.CollectFeesV2,
		*decoder.CollectProtocolFees, *decoder.CollectProtocolFeesV2:
		return nil, nil, nil
	case *decoder.CollectReward:
		return []any{v.RewardIndex}, nil, nil
	case *decoder.CollectRewardV2:
		return []any{v.RewardIndex}, nil, nil
	case *decoder.InitializeReward:
		return []any{v.RewardIndex}, nil, nil
	case *decoder.InitializeRewardV2:
		return []any{v.RewardIndex}, nil, nil
	case *decoder.SetRewardEmissions:
		return []any{v.RewardIndex, u128(v.EmissionsPerSecondX64)}, nil, nil
	case *decoder.SetRewardEmissionsV2:
		return []any{v.RewardIndex, u128(v.EmissionsPerSecondX64)}, nil, nil
	case *decoder.SetRewardAuthority:
		return []any{v.RewardIndex}, nil, nil
	case *decoder.SetRewardAuthorityBySuperAuthority:
		return []any{v.RewardIndex}, nil, nil
	case *decoder.SetRewardEmissionsSuperAuthority:
		return nil, nil, nil

	case *decoder.OpenPosition:
		return []any{v.TickLowerIndex, v.TickUpperIndex}, nil, nil
	case *decoder.OpenPositionWithMetadata:
		return []any{v.TickLowerIndex, v.TickUpperIndex}, nil, nil
	case *decoder.OpenPositionWithTokenExtensions:
		return []any{v.TickLowerIndex, v.TickUpperIndex, v.WithTokenMetadataExtension}, nil, nil
	case *decoder.ClosePosition, *decoder.ClosePositionWithTokenExtensions,
		*decoder.InitializePositionBundle, *decoder.InitializePositionBundleWithMetadata,
		*decoder.DeletePositionBundle, *decoder.TransferLockedPosition:
		return nil, nil, nil
	case *decoder.OpenBundledPosition:
		return []any{v.BundleIndex, v.TickLowerIndex, v.TickUpperIndex}, nil, nil
	case *decoder.CloseBundledPosition:
		return []any{v.BundleIndex}, nil, nil
	case *decoder.LockPosition:
		return []any{v.LockType.String()}, nil, nil
	case *decoder.ResetPositionRange:
		return []any{v.NewTickLowerIndex, v.NewTickUpperIndex}, nil, nil

	case *decoder.InitializePool:
		return []any{v.TickSpacing, u128(v.InitialSqrtPrice)}, nil, nil
	case *decoder.InitializePoolV2:
		return []any{v.TickSpacing, u128(v.InitialSqrtPrice)}, nil, nil
	case *decoder.InitializePoolWithAdaptiveFee:
		var ts any
		if v.TradeEnableTimestamp != nil {
			ts = u64(*v.TradeEnableTimestamp)
		}
		return []any{u128(v.InitialSqrtPrice), ts}, nil, nil
	case *decoder.InitializeTickArray:
		return []any{v.StartTickIndex}, nil, nil
	case *decoder.InitializeFeeTier:
		return []any{v.TickSpacing, v.DefaultFeeRate}, nil, nil
	case *decoder.InitializeAdaptiveFeeTier:
		return []any{
				v.FeeTierIndex, v.TickSpacing, v.DefaultBaseFeeRate, v.FilterPeriod, v.DecayPeriod,
				v.ReductionFactor, v.AdaptiveFeeControlFactor, v.MaxVolatilityAccumulator,
				v.TickGroupSize, v.MajorSwapThresholdTicks,
			},
			[]string{v.InitializePoolAuthority, v.DelegatedFeeAuthority}, nil

	case *decoder.InitializeConfig:
		return []any{v.DefaultProtocolFeeRate},
			[]string{v.FeeAuthority, v.CollectProtocolFeesAuthority, v.RewardEmissionsSuperAuthority}, nil
	case *decoder.InitializeConfigExtension, *decoder.SetCollectProtocolFeesAuthority,
		*decoder.SetFeeAuthority, *decoder.SetConfigExtensionAuthority, *decoder.SetTokenBadgeAuthority,
		*decoder.InitializeTokenBadge, *decoder.DeleteTokenBadge:
		return nil, nil, nil
	case *decoder.SetDefaultFeeRate:
		return []any{v.DefaultFeeRate}, nil, nil
	case *decoder.SetDefaultProtocolFeeRate:
		return []any{v.DefaultProtocolFeeRate}, nil, nil
	case *decoder.SetFeeRate:
		return []any{v.FeeRate}, nil, nil
	case *decoder.SetProtocolFeeRate:
		return []any{v.ProtocolFeeRate}, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, ix.Name())
	}
}

func swapValues(a decoder.SwapArgs) []any {
	return []any{u64(a.Amount), u64(a.OtherAmountThreshold), u128(a.SqrtPriceLimit), a.AmountSpecifiedIsInput, a.AToB}
}

func twoHopSwapValues(a decoder.TwoHopSwapArgs) []any {
	return []any{
		u64(a.Amount), u64(a.OtherAmountThreshold), a.AmountSpecifiedIsInput, a.AToBOne, a.AToBTwo,
		u128(a.SqrtPriceLimitOne), u128(a.SqrtPriceLimitTwo),
	}
}

// NUMERIC columns are written from decimal strings.
func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func u128(v uint256.Int) string { return v.Dec() }

package activity

import (
	"errors"
	"fmt"
	"slices"

	"github.com/orca-so/sedimentology/pkg/db/postgres/chain"
	"github.com/orca-so/sedimentology/pkg/decoder"
	"github.com/orca-so/sedimentology/pkg/rpc"
)

// ErrMissingBalance is returned when a touched vault has no token balance entry.
var ErrMissingBalance = errors.New("vault token balance not found")

var (
	vaultsAB     = []string{"tokenVaultA", "tokenVaultB"}
	vaultsReward = []string{"rewardVault"}
	vaultsTwoHop = []string{"tokenVaultOneA", "tokenVaultOneB", "tokenVaultTwoA", "tokenVaultTwoB"}

	vaultsTwoHopV2 = []string{
		"tokenVaultOneInput", "tokenVaultOneIntermediate",
		"tokenVaultTwoIntermediate", "tokenVaultTwoOutput",
	}
)

// vaultPolicy returns the account names of ix whose token balance may change.
// initializing is true when those vaults are created by ix and have no
// pre-balance.
func vaultPolicy(ix decoder.Instruction) (names []string, initializing bool, err error) {
	switch ix.(type) {
	case *decoder.Swap, *decoder.SwapV2,
		*decoder.IncreaseLiquidity, *decoder.IncreaseLiquidityV2,
		*decoder.DecreaseLiquidity, *decoder.DecreaseLiquidityV2,
		*decoder.CollectFees, *decoder.CollectFeesV2,
		*decoder.CollectProtocolFees, *decoder.CollectProtocolFeesV2:
		return vaultsAB, false, nil
	case *decoder.TwoHopSwap:
		return vaultsTwoHop, false, nil
	case *decoder.TwoHopSwapV2:
		return vaultsTwoHopV2, false, nil
	case *decoder.CollectReward, *decoder.CollectRewardV2:
		return vaultsReward, false, nil

	case *decoder.InitializePool, *decoder.InitializePoolV2, *decoder.InitializePoolWithAdaptiveFee:
		return vaultsAB, true, nil
	case *decoder.InitializeReward, *decoder.InitializeRewardV2:
		return vaultsReward, true, nil

	// no token balance change
	case *decoder.SetRewardEmissions, *decoder.SetRewardEmissionsV2,
		*decoder.AdminIncreaseLiquidity, *decoder.UpdateFeesAndRewards,
		*decoder.SetRewardAuthority, *decoder.SetRewardAuthorityBySuperAuthority,
		*decoder.SetRewardEmissionsSuperAuthority,
		*decoder.OpenPosition, *decoder.OpenPositionWithMetadata, *decoder.OpenPositionWithTokenExtensions,
		*decoder.ClosePosition, *decoder.ClosePositionWithTokenExtensions,
		*decoder.InitializePositionBundle, *decoder.InitializePositionBundleWithMetadata,
		*decoder.DeletePositionBundle, *decoder.OpenBundledPosition, *decoder.CloseBundledPosition,
		*decoder.LockPosition, *decoder.TransferLockedPosition, *decoder.ResetPositionRange,
		*decoder.InitializeTickArray, *decoder.InitializeFeeTier, *decoder.InitializeAdaptiveFeeTier,
		*decoder.InitializeConfig, *decoder.InitializeConfigExtension,
		*decoder.SetCollectProtocolFeesAuthority, *decoder.SetDefaultFeeRate, *decoder.SetDefaultProtocolFeeRate,
		*decoder.SetFeeAuthority, *decoder.SetFeeRate, *decoder.SetProtocolFeeRate,
		*decoder.SetConfigExtensionAuthority, *decoder.SetTokenBadgeAuthority,
		*decoder.InitializeTokenBadge, *decoder.DeleteTokenBadge:
		return nil, false, nil

	default:
		return nil, false, fmt.Errorf("%w: no balance policy for %s", decoder.ErrUnknownInstruction, ix.Name())
	}
}

// touchedVaults collects the vault keys of every instruction in execution
// order, deduplicated, plus the subset created within the transaction.
func touchedVaults(ixs []decoder.Instruction) ([]string, map[string]bool, error) {
	var touched []string
	initializing := map[string]bool{}
	for _, ix := range ixs {
		names, init, err := vaultPolicy(ix)
		if err != nil {
			return nil, nil, err
		}
		for _, name := range names {
			key := ix.Accounts().Get(name)
			if key == "" {
				return nil, nil, fmt.Errorf("%w: %s has no account %s", decoder.ErrMalformedInstruction, ix.Name(), name)
			}
			if !slices.Contains(touched, key) {
				touched = append(touched, key)
			}
			if init {
				initializing[key] = true
			}
		}
	}
	return touched, initializing, nil
}

// resolveBalances reads the pre and post amounts of each vault from the
// token balance metadata. A vault created within the transaction resolves
// pre to "0" when the node reported no pre-balance.
func resolveBalances(tx *rpc.Transaction, vaults []string, initializing map[string]bool) ([]chain.Balance, error) {
	pubkeys := tx.AllPubkeys()
	out := make([]chain.Balance, 0, len(vaults))
	for _, vault := range vaults {
		idx := slices.Index(pubkeys, vault)
		if idx < 0 {
			return nil, fmt.Errorf("%w: vault %s not in account list", ErrMissingBalance, vault)
		}

		pre, ok := amountAt(tx.Meta.PreTokenBalances, idx)
		if !ok {
			if !initializing[vault] {
				return nil, fmt.Errorf("%w: no pre-balance for %s", ErrMissingBalance, vault)
			}
			pre = "0"
		}
		post, ok := amountAt(tx.Meta.PostTokenBalances, idx)
		if !ok {
			return nil, fmt.Errorf("%w: no post-balance for %s", ErrMissingBalance, vault)
		}
		out = append(out, chain.Balance{Account: vault, Pre: pre, Post: post})
	}
	return out, nil
}

func amountAt(balances []rpc.TokenBalance, accountIndex int) (string, bool) {
	for _, b := range balances {
		if b.AccountIndex == accountIndex {
			return b.UITokenAmount.Amount, true
		}
	}
	return "", false
}

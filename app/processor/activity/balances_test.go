package activity

import (
	"testing"

	"github.com/orca-so/sedimentology/pkg/decoder"
	dt "github.com/orca-so/sedimentology/pkg/decoder/decodertest"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultPolicyCoversEveryKind(t *testing.T) {
	for _, kind := range decoder.Kinds() {
		t.Run(kind, func(t *testing.T) {
			ix, err := dt.Sample(kind)
			require.NoError(t, err)

			names, _, err := vaultPolicy(ix)
			require.NoError(t, err)
			for _, name := range names {
				assert.NotEmpty(t, ix.Accounts().Get(name), "layout of %s has no %s", kind, name)
			}
		})
	}
}

func TestVaultPolicy(t *testing.T) {
	cases := map[string]struct {
		vaults       []string
		initializing bool
	}{
		"swap":                            {vaultsAB, false},
		"swapV2":                          {vaultsAB, false},
		"collectProtocolFeesV2":           {vaultsAB, false},
		"twoHopSwap":                      {vaultsTwoHop, false},
		"twoHopSwapV2":                    {vaultsTwoHopV2, false},
		"collectRewardV2":                 {vaultsReward, false},
		"initializePoolWithAdaptiveFee":   {vaultsAB, true},
		"initializeRewardV2":              {vaultsReward, true},
		"setRewardEmissionsV2":            {nil, false},
		"lockPosition":                    {nil, false},
		"openPositionWithTokenExtensions": {nil, false},
	}
	for kind, tc := range cases {
		t.Run(kind, func(t *testing.T) {
			ix, err := dt.Sample(kind)
			require.NoError(t, err)
			names, initializing, err := vaultPolicy(ix)
			require.NoError(t, err)
			assert.Equal(t, tc.vaults, names)
			assert.Equal(t, tc.initializing, initializing)
		})
	}
}

func TestTouchedVaultsDeduplicates(t *testing.T) {
	initPool, err := dt.Sample("initializePool")
	require.NoError(t, err)
	swap, err := dt.Sample("swap")
	require.NoError(t, err)

	touched, initializing, err := touchedVaults([]decoder.Instruction{initPool, swap, swap})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"initializePool.tokenVaultA", "initializePool.tokenVaultB",
		"swap.tokenVaultA", "swap.tokenVaultB",
	}, touched)
	assert.Equal(t, map[string]bool{
		"initializePool.tokenVaultA": true,
		"initializePool.tokenVaultB": true,
	}, initializing)
}

func TestResolveBalances(t *testing.T) {
	tx := dt.NewTx("payer")
	tx.Outer(dt.WhirlpoolProgramID, []string{"vaultA", "vaultB", "vaultC"}, "1")
	tx.Balance("vaultA", "mint", "pool", 6, "5", "8")
	tx.Balance("vaultB", "mint", "pool", 6, "", "3")
	built := tx.Build("sig")

	got, err := resolveBalances(&built, []string{"vaultA", "vaultB"}, map[string]bool{"vaultB": true})
	require.NoError(t, err)
	assert.Equal(t, "5", got[0].Pre)
	assert.Equal(t, "8", got[0].Post)
	assert.Equal(t, "0", got[1].Pre)
	assert.Equal(t, "3", got[1].Post)

	_, err = resolveBalances(&built, []string{"vaultB"}, nil)
	require.ErrorIs(t, err, ErrMissingBalance)

	_, err = resolveBalances(&built, []string{"vaultC"}, map[string]bool{"vaultC": true})
	require.ErrorIs(t, err, ErrMissingBalance, "post-balance is always required")

	_, err = resolveBalances(&built, []string{"elsewhere"}, nil)
	require.ErrorIs(t, err, ErrMissingBalance)
}

func TestResolveBalancesUsesLoadedAddresses(t *testing.T) {
	tx := dt.NewTx("payer").Build("sig")
	tx.Meta.LoadedAddresses = &rpc.LoadedAddresses{Writable: []string{"lookupVault"}}
	tx.Meta.PreTokenBalances = []rpc.TokenBalance{{AccountIndex: 1, UITokenAmount: rpc.UITokenAmount{Amount: "11"}}}
	tx.Meta.PostTokenBalances = []rpc.TokenBalance{{AccountIndex: 1, UITokenAmount: rpc.UITokenAmount{Amount: "12"}}}

	got, err := resolveBalances(&tx, []string{"lookupVault"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "11", got[0].Pre)
	assert.Equal(t, "12", got[0].Post)
}

func TestExtraPubkeys(t *testing.T) {
	lock, err := dt.Sample("lockPosition")
	require.NoError(t, err)
	assert.Equal(t, []string{"owner"}, extraPubkeys(lock))

	cfg, err := dt.Sample("initializeConfig")
	require.NoError(t, err)
	assert.Len(t, extraPubkeys(cfg), 3)

	swap, err := dt.Sample("swap")
	require.NoError(t, err)
	assert.Empty(t, extraPubkeys(swap))
}

func TestIntroducedDecimals(t *testing.T) {
	ix, err := dt.Sample("initializeReward")
	require.NoError(t, err)
	got, err := introducedDecimals(ix)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "initializeReward.rewardMint", got[0].Mint)
	assert.Equal(t, uint8(6), got[0].Decimals)

	swap, err := dt.Sample("swap")
	require.NoError(t, err)
	got, err = introducedDecimals(swap)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// bogusIx wraps a real instruction under a kind no policy knows.
type bogusIx struct{ decoder.Instruction }

func (bogusIx) Name() string { return "bogus" }

func TestVaultPolicyRejectsUnknownKind(t *testing.T) {
	swap, err := dt.Sample("swap")
	require.NoError(t, err)

	_, _, err = vaultPolicy(bogusIx{Instruction: swap})
	require.ErrorIs(t, err, decoder.ErrUnknownInstruction)
	assert.Contains(t, err.Error(), "bogus")

	_, _, err = touchedVaults([]decoder.Instruction{swap, bogusIx{Instruction: swap}})
	require.ErrorIs(t, err, decoder.ErrUnknownInstruction)
}

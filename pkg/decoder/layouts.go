package decoder

import (
	"crypto/sha256"
	"sort"
	"strings"
	"unicode"
)

// Layout describes the fixed accounts and side effects of an instruction kind.
type Layout struct {
	Name string
	// Accounts in program order.
	Accounts []string
	// Transfers is the number of token transfers the instruction performs.
	Transfers int
	// Remaining is true for V2 kinds that accept remaining accounts.
	Remaining bool
	// Aux names keys resolved from token balances rather than from the instruction.
	Aux []AuxKey
	// Mints lists accounts whose decimals are taken from token balances.
	Mints []string

	new func() Instruction
}

// AuxKey is the owner of a token account referenced by the instruction.
type AuxKey struct {
	Name         string
	TokenAccount string
}

var (
	swapAccounts = []string{
		"tokenProgram", "tokenAuthority", "whirlpool",
		"tokenOwnerAccountA", "tokenVaultA", "tokenOwnerAccountB", "tokenVaultB",
		"tickArray0", "tickArray1", "tickArray2", "oracle",
	}
	swapV2Accounts = []string{
		"tokenProgramA", "tokenProgramB", "memoProgram", "tokenAuthority", "whirlpool",
		"tokenMintA", "tokenMintB",
		"tokenOwnerAccountA", "tokenVaultA", "tokenOwnerAccountB", "tokenVaultB",
		"tickArray0", "tickArray1", "tickArray2", "oracle",
	}
	twoHopSwapAccounts = []string{
		"tokenProgram", "tokenAuthority", "whirlpoolOne", "whirlpoolTwo",
		"tokenOwnerAccountOneA", "tokenVaultOneA", "tokenOwnerAccountOneB", "tokenVaultOneB",
		"tokenOwnerAccountTwoA", "tokenVaultTwoA", "tokenOwnerAccountTwoB", "tokenVaultTwoB",
		"tickArrayOne0", "tickArrayOne1", "tickArrayOne2",
		"tickArrayTwo0", "tickArrayTwo1", "tickArrayTwo2",
		"oracleOne", "oracleTwo",
	}
	twoHopSwapV2Accounts = []string{
		"whirlpoolOne", "whirlpoolTwo",
		"tokenMintInput", "tokenMintIntermediate", "tokenMintOutput",
		"tokenProgramInput", "tokenProgramIntermediate", "tokenProgramOutput",
		"tokenOwnerAccountInput", "tokenVaultOneInput", "tokenVaultOneIntermediate",
		"tokenVaultTwoIntermediate", "tokenVaultTwoOutput", "tokenOwnerAccountOutput",
		"tokenAuthority",
		"tickArrayOne0", "tickArrayOne1", "tickArrayOne2",
		"tickArrayTwo0", "tickArrayTwo1", "tickArrayTwo2",
		"oracleOne", "oracleTwo", "memoProgram",
	}
	modifyLiquidityAccounts = []string{
		"whirlpool", "tokenProgram", "positionAuthority", "position", "positionTokenAccount",
		"tokenOwnerAccountA", "tokenOwnerAccountB", "tokenVaultA", "tokenVaultB",
		"tickArrayLower", "tickArrayUpper",
	}
	modifyLiquidityV2Accounts = []string{
		"whirlpool", "tokenProgramA", "tokenProgramB", "memoProgram",
		"positionAuthority", "position", "positionTokenAccount",
		"tokenMintA", "tokenMintB",
		"tokenOwnerAccountA", "tokenOwnerAccountB", "tokenVaultA", "tokenVaultB",
		"tickArrayLower", "tickArrayUpper",
	}
	rewardEmissionsAccounts = []string{"whirlpool", "rewardAuthority", "rewardVault"}
)

var layoutList = []*Layout{
	{Name: "swap", Accounts: swapAccounts, Transfers: 2, new: func() Instruction { return &Swap{} }},
	{Name: "swapV2", Accounts: swapV2Accounts, Transfers: 2, Remaining: true, new: func() Instruction { return &SwapV2{} }},
	{Name: "twoHopSwap", Accounts: twoHopSwapAccounts, Transfers: 4, new: func() Instruction { return &TwoHopSwap{} }},
	{Name: "twoHopSwapV2", Accounts: twoHopSwapV2Accounts, Transfers: 3, Remaining: true, new: func() Instruction { return &TwoHopSwapV2{} }},
	{Name: "increaseLiquidity", Accounts: modifyLiquidityAccounts, Transfers: 2, new: func() Instruction { return &IncreaseLiquidity{} }},
	{Name: "increaseLiquidityV2", Accounts: modifyLiquidityV2Accounts, Transfers: 2, Remaining: true, new: func() Instruction { return &IncreaseLiquidityV2{} }},
	{Name: "decreaseLiquidity", Accounts: modifyLiquidityAccounts, Transfers: 2, new: func() Instruction { return &DecreaseLiquidity{} }},
	{Name: "decreaseLiquidityV2", Accounts: modifyLiquidityV2Accounts, Transfers: 2, Remaining: true, new: func() Instruction { return &DecreaseLiquidityV2{} }},
	{Name: "adminIncreaseLiquidity", Accounts: []string{"whirlpoolsConfig", "whirlpool", "authority"}, new: func() Instruction { return &AdminIncreaseLiquidity{} }},

	{Name: "updateFeesAndRewards", Accounts: []string{"whirlpool", "position", "tickArrayLower", "tickArrayUpper"}, new: func() Instruction { return &UpdateFeesAndRewards{} }},
	{
		Name: "collectFees",
		Accounts: []string{
			"whirlpool", "positionAuthority", "position", "positionTokenAccount",
			"tokenOwnerAccountA", "tokenVaultA", "tokenOwnerAccountB", "tokenVaultB", "tokenProgram",
		},
		Transfers: 2,
		new:       func() Instruction { return &CollectFees{} },
	},
	{
		Name: "collectFeesV2",
		Accounts: []string{
			"whirlpool", "positionAuthority", "position", "positionTokenAccount",
			"tokenMintA", "tokenMintB",
			"tokenOwnerAccountA", "tokenVaultA", "tokenOwnerAccountB", "tokenVaultB",
			"tokenProgramA", "tokenProgramB", "memoProgram",
		},
		Transfers: 2,
		Remaining: true,
		new:       func() Instruction { return &CollectFeesV2{} },
	},
	{
		Name: "collectProtocolFees",
		Accounts: []string{
			"whirlpoolsConfig", "whirlpool", "collectProtocolFeesAuthority",
			"tokenVaultA", "tokenVaultB", "tokenDestinationA", "tokenDestinationB", "tokenProgram",
		},
		Transfers: 2,
		new:       func() Instruction { return &CollectProtocolFees{} },
	},
	{
		Name: "collectProtocolFeesV2",
		Accounts: []string{
			"whirlpoolsConfig", "whirlpool", "collectProtocolFeesAuthority",
			"tokenMintA", "tokenMintB", "tokenVaultA", "tokenVaultB",
			"tokenDestinationA", "tokenDestinationB", "tokenProgramA", "tokenProgramB", "memoProgram",
		},
		Transfers: 2,
		Remaining: true,
		new:       func() Instruction { return &CollectProtocolFeesV2{} },
	},
	{
		Name: "collectReward",
		Accounts: []string{
			"whirlpool", "positionAuthority", "position", "positionTokenAccount",
			"rewardOwnerAccount", "rewardVault", "tokenProgram",
		},
		Transfers: 1,
		new:       func() Instruction { return &CollectReward{} },
	},
	{
		Name: "collectRewardV2",
		Accounts: []string{
			"whirlpool", "positionAuthority", "position", "positionTokenAccount",
			"rewardOwnerAccount", "rewardMint", "rewardVault", "rewardTokenProgram", "memoProgram",
		},
		Transfers: 1,
		Remaining: true,
		new:       func() Instruction { return &CollectRewardV2{} },
	},
	{
		Name: "initializeReward",
		Accounts: []string{
			"rewardAuthority", "funder", "whirlpool", "rewardMint", "rewardVault",
			"tokenProgram", "systemProgram", "rent",
		},
		Mints: []string{"rewardMint"},
		new:   func() Instruction { return &InitializeReward{} },
	},
	{
		Name: "initializeRewardV2",
		Accounts: []string{
			"rewardAuthority", "funder", "whirlpool", "rewardMint", "rewardTokenBadge", "rewardVault",
			"rewardTokenProgram", "systemProgram", "rent",
		},
		Mints: []string{"rewardMint"},
		new:   func() Instruction { return &InitializeRewardV2{} },
	},
	{Name: "setRewardEmissions", Accounts: rewardEmissionsAccounts, new: func() Instruction { return &SetRewardEmissions{} }},
	{Name: "setRewardEmissionsV2", Accounts: rewardEmissionsAccounts, new: func() Instruction { return &SetRewardEmissionsV2{} }},
	{Name: "setRewardAuthority", Accounts: []string{"whirlpool", "rewardAuthority", "newRewardAuthority"}, new: func() Instruction { return &SetRewardAuthority{} }},
	{
		Name:     "setRewardAuthorityBySuperAuthority",
		Accounts: []string{"whirlpoolsConfig", "whirlpool", "rewardEmissionsSuperAuthority", "newRewardAuthority"},
		new:      func() Instruction { return &SetRewardAuthorityBySuperAuthority{} },
	},
	{
		Name:     "setRewardEmissionsSuperAuthority",
		Accounts: []string{"whirlpoolsConfig", "rewardEmissionsSuperAuthority", "newRewardEmissionsSuperAuthority"},
		new:      func() Instruction { return &SetRewardEmissionsSuperAuthority{} },
	},

	{
		Name: "openPosition",
		Accounts: []string{
			"funder", "owner", "position", "positionMint", "positionTokenAccount", "whirlpool",
			"tokenProgram", "systemProgram", "rent", "associatedTokenProgram",
		},
		new: func() Instruction { return &OpenPosition{} },
	},
	{
		Name: "openPositionWithMetadata",
		Accounts: []string{
			"funder", "owner", "position", "positionMint", "positionMetadataAccount", "positionTokenAccount",
			"whirlpool", "tokenProgram", "systemProgram", "rent", "associatedTokenProgram",
			"metadataProgram", "metadataUpdateAuth",
		},
		new: func() Instruction { return &OpenPositionWithMetadata{} },
	},
	{
		Name: "openPositionWithTokenExtensions",
		Accounts: []string{
			"funder", "owner", "position", "positionMint", "positionTokenAccount", "whirlpool",
			"token2022Program", "systemProgram", "associatedTokenProgram", "metadataUpdateAuth",
		},
		new: func() Instruction { return &OpenPositionWithTokenExtensions{} },
	},
	{
		Name:     "closePosition",
		Accounts: []string{"positionAuthority", "receiver", "position", "positionMint", "positionTokenAccount", "tokenProgram"},
		new:      func() Instruction { return &ClosePosition{} },
	},
	{
		Name:     "closePositionWithTokenExtensions",
		Accounts: []string{"positionAuthority", "receiver", "position", "positionMint", "positionTokenAccount", "token2022Program"},
		new:      func() Instruction { return &ClosePositionWithTokenExtensions{} },
	},
	{
		Name: "initializePositionBundle",
		Accounts: []string{
			"positionBundle", "positionBundleMint", "positionBundleTokenAccount", "positionBundleOwner",
			"funder", "tokenProgram", "systemProgram", "rent", "associatedTokenProgram",
		},
		new: func() Instruction { return &InitializePositionBundle{} },
	},
	{
		Name: "initializePositionBundleWithMetadata",
		Accounts: []string{
			"positionBundle", "positionBundleMint", "positionBundleMetadata", "positionBundleTokenAccount",
			"positionBundleOwner", "funder", "metadataUpdateAuth", "tokenProgram", "systemProgram",
			"rent", "associatedTokenProgram", "metadataProgram",
		},
		new: func() Instruction { return &InitializePositionBundleWithMetadata{} },
	},
	{
		Name: "deletePositionBundle",
		Accounts: []string{
			"positionBundle", "positionBundleMint", "positionBundleTokenAccount", "positionBundleOwner",
			"receiver", "tokenProgram",
		},
		new: func() Instruction { return &DeletePositionBundle{} },
	},
	{
		Name: "openBundledPosition",
		Accounts: []string{
			"bundledPosition", "positionBundle", "positionBundleTokenAccount", "positionBundleAuthority",
			"whirlpool", "funder", "systemProgram", "rent",
		},
		new: func() Instruction { return &OpenBundledPosition{} },
	},
	{
		Name:     "closeBundledPosition",
		Accounts: []string{"bundledPosition", "positionBundle", "positionBundleTokenAccount", "positionBundleAuthority", "receiver"},
		new:      func() Instruction { return &CloseBundledPosition{} },
	},
	{
		Name: "lockPosition",
		Accounts: []string{
			"funder", "positionAuthority", "position", "positionMint", "positionTokenAccount",
			"lockConfig", "whirlpool", "token2022Program", "systemProgram",
		},
		Aux: []AuxKey{{Name: "positionTokenAccountOwner", TokenAccount: "positionTokenAccount"}},
		new: func() Instruction { return &LockPosition{} },
	},
	{
		Name: "transferLockedPosition",
		Accounts: []string{
			"positionAuthority", "receiver", "position", "positionMint", "positionTokenAccount",
			"destinationTokenAccount", "lockConfig", "token2022Program",
		},
		Aux: []AuxKey{{Name: "destinationTokenAccountOwner", TokenAccount: "destinationTokenAccount"}},
		new: func() Instruction { return &TransferLockedPosition{} },
	},
	{
		Name:     "resetPositionRange",
		Accounts: []string{"funder", "positionAuthority", "whirlpool", "position", "positionTokenAccount", "systemProgram"},
		new:      func() Instruction { return &ResetPositionRange{} },
	},

	{
		Name: "initializePool",
		Accounts: []string{
			"whirlpoolsConfig", "tokenMintA", "tokenMintB", "funder", "whirlpool",
			"tokenVaultA", "tokenVaultB", "feeTier", "tokenProgram", "systemProgram", "rent",
		},
		Mints: []string{"tokenMintA", "tokenMintB"},
		new:   func() Instruction { return &InitializePool{} },
	},
	{
		Name: "initializePoolV2",
		Accounts: []string{
			"whirlpoolsConfig", "tokenMintA", "tokenMintB", "tokenBadgeA", "tokenBadgeB", "funder",
			"whirlpool", "tokenVaultA", "tokenVaultB", "feeTier", "tokenProgramA", "tokenProgramB",
			"systemProgram", "rent",
		},
		Mints: []string{"tokenMintA", "tokenMintB"},
		new:   func() Instruction { return &InitializePoolV2{} },
	},
	{
		Name: "initializePoolWithAdaptiveFee",
		Accounts: []string{
			"whirlpoolsConfig", "tokenMintA", "tokenMintB", "tokenBadgeA", "tokenBadgeB", "funder",
			"initializePoolAuthority", "whirlpool", "oracle", "tokenVaultA", "tokenVaultB",
			"adaptiveFeeTier", "tokenProgramA", "tokenProgramB", "systemProgram", "rent",
		},
		Mints: []string{"tokenMintA", "tokenMintB"},
		new:   func() Instruction { return &InitializePoolWithAdaptiveFee{} },
	},
	{Name: "initializeTickArray", Accounts: []string{"whirlpool", "funder", "tickArray", "systemProgram"}, new: func() Instruction { return &InitializeTickArray{} }},
	{
		Name:     "initializeFeeTier",
		Accounts: []string{"whirlpoolsConfig", "feeTier", "funder", "feeAuthority", "systemProgram"},
		new:      func() Instruction { return &InitializeFeeTier{} },
	},
	{
		Name:     "initializeAdaptiveFeeTier",
		Accounts: []string{"whirlpoolsConfig", "adaptiveFeeTier", "funder", "feeAuthority", "systemProgram"},
		new:      func() Instruction { return &InitializeAdaptiveFeeTier{} },
	},

	{Name: "initializeConfig", Accounts: []string{"whirlpoolsConfig", "funder", "systemProgram"}, new: func() Instruction { return &InitializeConfig{} }},
	{
		Name:     "initializeConfigExtension",
		Accounts: []string{"whirlpoolsConfig", "whirlpoolsConfigExtension", "funder", "feeAuthority", "systemProgram"},
		new:      func() Instruction { return &InitializeConfigExtension{} },
	},
	{
		Name:     "setCollectProtocolFeesAuthority",
		Accounts: []string{"whirlpoolsConfig", "collectProtocolFeesAuthority", "newCollectProtocolFeesAuthority"},
		new:      func() Instruction { return &SetCollectProtocolFeesAuthority{} },
	},
	{Name: "setDefaultFeeRate", Accounts: []string{"whirlpoolsConfig", "feeTier", "feeAuthority"}, new: func() Instruction { return &SetDefaultFeeRate{} }},
	{Name: "setDefaultProtocolFeeRate", Accounts: []string{"whirlpoolsConfig", "feeAuthority"}, new: func() Instruction { return &SetDefaultProtocolFeeRate{} }},
	{Name: "setFeeAuthority", Accounts: []string{"whirlpoolsConfig", "feeAuthority", "newFeeAuthority"}, new: func() Instruction { return &SetFeeAuthority{} }},
	{Name: "setFeeRate", Accounts: []string{"whirlpoolsConfig", "whirlpool", "feeAuthority"}, new: func() Instruction { return &SetFeeRate{} }},
	{Name: "setProtocolFeeRate", Accounts: []string{"whirlpoolsConfig", "whirlpool", "feeAuthority"}, new: func() Instruction { return &SetProtocolFeeRate{} }},
	{
		Name:     "setConfigExtensionAuthority",
		Accounts: []string{"whirlpoolsConfig", "whirlpoolsConfigExtension", "configExtensionAuthority", "newConfigExtensionAuthority"},
		new:      func() Instruction { return &SetConfigExtensionAuthority{} },
	},
	{
		Name:     "setTokenBadgeAuthority",
		Accounts: []string{"whirlpoolsConfig", "whirlpoolsConfigExtension", "configExtensionAuthority", "newTokenBadgeAuthority"},
		new:      func() Instruction { return &SetTokenBadgeAuthority{} },
	},
	{
		Name: "initializeTokenBadge",
		Accounts: []string{
			"whirlpoolsConfig", "whirlpoolsConfigExtension", "tokenBadgeAuthority", "tokenMint",
			"tokenBadge", "funder", "systemProgram",
		},
		new: func() Instruction { return &InitializeTokenBadge{} },
	},
	{
		Name: "deleteTokenBadge",
		Accounts: []string{
			"whirlpoolsConfig", "whirlpoolsConfigExtension", "tokenBadgeAuthority", "tokenMint",
			"tokenBadge", "receiver",
		},
		new: func() Instruction { return &DeleteTokenBadge{} },
	},
}

var (
	layoutsByName = map[string]*Layout{}
	layoutsByDisc = map[[8]byte]*Layout{}
	// anchor event-cpi self invocations carry this tag instead of an instruction discriminator
	eventCPITag = discriminator("anchor:event")
)

func init() {
	for _, l := range layoutList {
		layoutsByName[l.Name] = l
		layoutsByDisc[Discriminator(l.Name)] = l
	}
}

func discriminator(preimage string) [8]byte {
	sum := sha256.Sum256([]byte(preimage))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// toSnake turns an instruction name into its snake_case form, e.g. swapV2 -> swap_v2.
func toSnake(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Discriminator returns the 8 byte anchor discriminator of kind.
func Discriminator(kind string) [8]byte {
	return discriminator("global:" + toSnake(kind))
}

// SnakeName returns the snake_case form of a kind name, used for table names.
func SnakeName(kind string) string { return toSnake(kind) }

// Kinds returns every registered instruction name, sorted.
func Kinds() []string {
	names := make([]string, 0, len(layoutList))
	for _, l := range layoutList {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names
}

// LayoutOf returns the layout registered for kind.
func LayoutOf(kind string) (Layout, bool) {
	l, ok := layoutsByName[kind]
	if !ok {
		return Layout{}, false
	}
	return *l, true
}

// Lookup returns a zero instruction of the named kind.
func Lookup(kind string) (Instruction, bool) {
	l, ok := layoutsByName[kind]
	if !ok {
		return nil, false
	}
	ix := l.new()
	ix.base().name = l.Name
	return ix, true
}

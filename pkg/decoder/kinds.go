package decoder

import (
	"github.com/holiman/uint256"
)

// Shared argument groups.

type SwapArgs struct {
	Amount                 uint64
	OtherAmountThreshold   uint64
	SqrtPriceLimit         uint256.Int
	AmountSpecifiedIsInput bool
	AToB                   bool
}

func (a *SwapArgs) read(r *reader) {
	a.Amount = r.u64()
	a.OtherAmountThreshold = r.u64()
	a.SqrtPriceLimit = r.u128()
	a.AmountSpecifiedIsInput = r.bool()
	a.AToB = r.bool()
}

type TwoHopSwapArgs struct {
	Amount                 uint64
	OtherAmountThreshold   uint64
	AmountSpecifiedIsInput bool
	AToBOne                bool
	AToBTwo                bool
	SqrtPriceLimitOne      uint256.Int
	SqrtPriceLimitTwo      uint256.Int
}

func (a *TwoHopSwapArgs) read(r *reader) {
	a.Amount = r.u64()
	a.OtherAmountThreshold = r.u64()
	a.AmountSpecifiedIsInput = r.bool()
	a.AToBOne = r.bool()
	a.AToBTwo = r.bool()
	a.SqrtPriceLimitOne = r.u128()
	a.SqrtPriceLimitTwo = r.u128()
}

type IncreaseLiquidityArgs struct {
	LiquidityAmount uint256.Int
	TokenMaxA       uint64
	TokenMaxB       uint64
}

func (a *IncreaseLiquidityArgs) read(r *reader) {
	a.LiquidityAmount = r.u128()
	a.TokenMaxA = r.u64()
	a.TokenMaxB = r.u64()
}

type DecreaseLiquidityArgs struct {
	LiquidityAmount uint256.Int
	TokenMinA       uint64
	TokenMinB       uint64
}

func (a *DecreaseLiquidityArgs) read(r *reader) {
	a.LiquidityAmount = r.u128()
	a.TokenMinA = r.u64()
	a.TokenMinB = r.u64()
}

type RewardEmissionsArgs struct {
	RewardIndex           uint8
	EmissionsPerSecondX64 uint256.Int
}

func (a *RewardEmissionsArgs) read(r *reader) {
	a.RewardIndex = r.u8()
	a.EmissionsPerSecondX64 = r.u128()
}

// Trading and liquidity.

type Swap struct {
	header
	SwapArgs
}

func (ix *Swap) decode(r *reader) { ix.SwapArgs.read(r) }

type SwapV2 struct {
	header
	SwapArgs
	RemainingAccountsInfo RemainingAccountsInfo
}

func (ix *SwapV2) decode(r *reader) {
	ix.SwapArgs.read(r)
	ix.RemainingAccountsInfo = r.remainingAccountsInfo()
}

type TwoHopSwap struct {
	header
	TwoHopSwapArgs
}

func (ix *TwoHopSwap) decode(r *reader) { ix.TwoHopSwapArgs.read(r) }

type TwoHopSwapV2 struct {
	header
	TwoHopSwapArgs
	RemainingAccountsInfo RemainingAccountsInfo
}

func (ix *TwoHopSwapV2) decode(r *reader) {
	ix.TwoHopSwapArgs.read(r)
	ix.RemainingAccountsInfo = r.remainingAccountsInfo()
}

type IncreaseLiquidity struct {
	header
	IncreaseLiquidityArgs
}

func (ix *IncreaseLiquidity) decode(r *reader) { ix.IncreaseLiquidityArgs.read(r) }

type IncreaseLiquidityV2 struct {
	header
	IncreaseLiquidityArgs
	RemainingAccountsInfo RemainingAccountsInfo
}

func (ix *IncreaseLiquidityV2) decode(r *reader) {
	ix.IncreaseLiquidityArgs.read(r)
	ix.RemainingAccountsInfo = r.remainingAccountsInfo()
}

type DecreaseLiquidity struct {
	header
	DecreaseLiquidityArgs
}

func (ix *DecreaseLiquidity) decode(r *reader) { ix.DecreaseLiquidityArgs.read(r) }

type DecreaseLiquidityV2 struct {
	header
	DecreaseLiquidityArgs
	RemainingAccountsInfo RemainingAccountsInfo
}

func (ix *DecreaseLiquidityV2) decode(r *reader) {
	ix.DecreaseLiquidityArgs.read(r)
	ix.RemainingAccountsInfo = r.remainingAccountsInfo()
}

type AdminIncreaseLiquidity struct {
	header
	Liquidity uint256.Int
}

func (ix *AdminIncreaseLiquidity) decode(r *reader) { ix.Liquidity = r.u128() }

// Fees and rewards.

type UpdateFeesAndRewards struct{ header }

func (ix *UpdateFeesAndRewards) decode(*reader) {}

type CollectFees struct{ header }

func (ix *CollectFees) decode(*reader) {}

type CollectFeesV2 struct {
	header
	RemainingAccountsInfo RemainingAccountsInfo
}

func (ix *CollectFeesV2) decode(r *reader) { ix.RemainingAccountsInfo = r.remainingAccountsInfo() }

type CollectProtocolFees struct{ header }

func (ix *CollectProtocolFees) decode(*reader) {}

type CollectProtocolFeesV2 struct {
	header
	RemainingAccountsInfo RemainingAccountsInfo
}

func (ix *CollectProtocolFeesV2) decode(r *reader) {
	ix.RemainingAccountsInfo = r.remainingAccountsInfo()
}

type CollectReward struct {
	header
	RewardIndex uint8
}

func (ix *CollectReward) decode(r *reader) { ix.RewardIndex = r.u8() }

type CollectRewardV2 struct {
	header
	RewardIndex           uint8
	RemainingAccountsInfo RemainingAccountsInfo
}

func (ix *CollectRewardV2) decode(r *reader) {
	ix.RewardIndex = r.u8()
	ix.RemainingAccountsInfo = r.remainingAccountsInfo()
}

type InitializeReward struct {
	header
	RewardIndex uint8
}

func (ix *InitializeReward) decode(r *reader) { ix.RewardIndex = r.u8() }

type InitializeRewardV2 struct {
	header
	RewardIndex uint8
}

func (ix *InitializeRewardV2) decode(r *reader) { ix.RewardIndex = r.u8() }

type SetRewardEmissions struct {
	header
	RewardEmissionsArgs
}

func (ix *SetRewardEmissions) decode(r *reader) { ix.RewardEmissionsArgs.read(r) }

type SetRewardEmissionsV2 struct {
	header
	RewardEmissionsArgs
}

func (ix *SetRewardEmissionsV2) decode(r *reader) { ix.RewardEmissionsArgs.read(r) }

type SetRewardAuthority struct {
	header
	RewardIndex uint8
}

func (ix *SetRewardAuthority) decode(r *reader) { ix.RewardIndex = r.u8() }

type SetRewardAuthorityBySuperAuthority struct {
	header
	RewardIndex uint8
}

func (ix *SetRewardAuthorityBySuperAuthority) decode(r *reader) { ix.RewardIndex = r.u8() }

type SetRewardEmissionsSuperAuthority struct{ header }

func (ix *SetRewardEmissionsSuperAuthority) decode(*reader) {}

// Positions.

type OpenPosition struct {
	header
	PositionBump   uint8
	TickLowerIndex int32
	TickUpperIndex int32
}

func (ix *OpenPosition) decode(r *reader) {
	ix.PositionBump = r.u8()
	ix.TickLowerIndex = r.i32()
	ix.TickUpperIndex = r.i32()
}

type OpenPositionWithMetadata struct {
	header
	PositionBump   uint8
	MetadataBump   uint8
	TickLowerIndex int32
	TickUpperIndex int32
}

func (ix *OpenPositionWithMetadata) decode(r *reader) {
	ix.PositionBump = r.u8()
	ix.MetadataBump = r.u8()
	ix.TickLowerIndex = r.i32()
	ix.TickUpperIndex = r.i32()
}

type OpenPositionWithTokenExtensions struct {
	header
	TickLowerIndex             int32
	TickUpperIndex             int32
	WithTokenMetadataExtension bool
}

func (ix *OpenPositionWithTokenExtensions) decode(r *reader) {
	ix.TickLowerIndex = r.i32()
	ix.TickUpperIndex = r.i32()
	ix.WithTokenMetadataExtension = r.bool()
}

type ClosePosition struct{ header }

func (ix *ClosePosition) decode(*reader) {}

type ClosePositionWithTokenExtensions struct{ header }

func (ix *ClosePositionWithTokenExtensions) decode(*reader) {}

type InitializePositionBundle struct{ header }

func (ix *InitializePositionBundle) decode(*reader) {}

type InitializePositionBundleWithMetadata struct{ header }

func (ix *InitializePositionBundleWithMetadata) decode(*reader) {}

type DeletePositionBundle struct{ header }

func (ix *DeletePositionBundle) decode(*reader) {}

type OpenBundledPosition struct {
	header
	BundleIndex    uint16
	TickLowerIndex int32
	TickUpperIndex int32
}

func (ix *OpenBundledPosition) decode(r *reader) {
	ix.BundleIndex = r.u16()
	ix.TickLowerIndex = r.i32()
	ix.TickUpperIndex = r.i32()
}

type CloseBundledPosition struct {
	header
	BundleIndex uint16
}

func (ix *CloseBundledPosition) decode(r *reader) { ix.BundleIndex = r.u16() }

// LockType is the borsh enum passed to lockPosition.
type LockType uint8

const LockTypePermanent LockType = 0

// String returns the variant as the JSON object the program IDL uses, e.g. {"permanent":{}}.
func (l LockType) String() string {
	switch l {
	case LockTypePermanent:
		return `{"permanent":{}}`
	default:
		return `{"unknown":{}}`
	}
}

type LockPosition struct {
	header
	LockType LockType
}

func (ix *LockPosition) decode(r *reader) { ix.LockType = LockType(r.u8()) }

type TransferLockedPosition struct{ header }

func (ix *TransferLockedPosition) decode(*reader) {}

type ResetPositionRange struct {
	header
	NewTickLowerIndex int32
	NewTickUpperIndex int32
}

func (ix *ResetPositionRange) decode(r *reader) {
	ix.NewTickLowerIndex = r.i32()
	ix.NewTickUpperIndex = r.i32()
}

// Pools, tiers and tick arrays.

type InitializePool struct {
	header
	WhirlpoolBump    uint8
	TickSpacing      uint16
	InitialSqrtPrice uint256.Int
}

func (ix *InitializePool) decode(r *reader) {
	ix.WhirlpoolBump = r.u8()
	ix.TickSpacing = r.u16()
	ix.InitialSqrtPrice = r.u128()
}

type InitializePoolV2 struct {
	header
	TickSpacing      uint16
	InitialSqrtPrice uint256.Int
}

func (ix *InitializePoolV2) decode(r *reader) {
	ix.TickSpacing = r.u16()
	ix.InitialSqrtPrice = r.u128()
}

type InitializePoolWithAdaptiveFee struct {
	header
	InitialSqrtPrice     uint256.Int
	TradeEnableTimestamp *uint64
}

func (ix *InitializePoolWithAdaptiveFee) decode(r *reader) {
	ix.InitialSqrtPrice = r.u128()
	ix.TradeEnableTimestamp = r.optionU64()
}

type InitializeTickArray struct {
	header
	StartTickIndex int32
}

func (ix *InitializeTickArray) decode(r *reader) { ix.StartTickIndex = r.i32() }

type InitializeFeeTier struct {
	header
	TickSpacing    uint16
	DefaultFeeRate uint16
}

func (ix *InitializeFeeTier) decode(r *reader) {
	ix.TickSpacing = r.u16()
	ix.DefaultFeeRate = r.u16()
}

type InitializeAdaptiveFeeTier struct {
	header
	FeeTierIndex             uint16
	TickSpacing              uint16
	InitializePoolAuthority  string
	DelegatedFeeAuthority    string
	DefaultBaseFeeRate       uint16
	FilterPeriod             uint16
	DecayPeriod              uint16
	ReductionFactor          uint16
	AdaptiveFeeControlFactor uint32
	MaxVolatilityAccumulator uint32
	TickGroupSize            uint16
	MajorSwapThresholdTicks  uint16
}

func (ix *InitializeAdaptiveFeeTier) decode(r *reader) {
	ix.FeeTierIndex = r.u16()
	ix.TickSpacing = r.u16()
	ix.InitializePoolAuthority = r.pubkey()
	ix.DelegatedFeeAuthority = r.pubkey()
	ix.DefaultBaseFeeRate = r.u16()
	ix.FilterPeriod = r.u16()
	ix.DecayPeriod = r.u16()
	ix.ReductionFactor = r.u16()
	ix.AdaptiveFeeControlFactor = r.u32()
	ix.MaxVolatilityAccumulator = r.u32()
	ix.TickGroupSize = r.u16()
	ix.MajorSwapThresholdTicks = r.u16()
}

// Configuration and authorities.

type InitializeConfig struct {
	header
	FeeAuthority                  string
	CollectProtocolFeesAuthority  string
	RewardEmissionsSuperAuthority string
	DefaultProtocolFeeRate        uint16
}

func (ix *InitializeConfig) decode(r *reader) {
	ix.FeeAuthority = r.pubkey()
	ix.CollectProtocolFeesAuthority = r.pubkey()
	ix.RewardEmissionsSuperAuthority = r.pubkey()
	ix.DefaultProtocolFeeRate = r.u16()
}

type InitializeConfigExtension struct{ header }

func (ix *InitializeConfigExtension) decode(*reader) {}

type SetCollectProtocolFeesAuthority struct{ header }

func (ix *SetCollectProtocolFeesAuthority) decode(*reader) {}

type SetDefaultFeeRate struct {
	header
	DefaultFeeRate uint16
}

func (ix *SetDefaultFeeRate) decode(r *reader) { ix.DefaultFeeRate = r.u16() }

type SetDefaultProtocolFeeRate struct {
	header
	DefaultProtocolFeeRate uint16
}

func (ix *SetDefaultProtocolFeeRate) decode(r *reader) { ix.DefaultProtocolFeeRate = r.u16() }

type SetFeeAuthority struct{ header }

func (ix *SetFeeAuthority) decode(*reader) {}

type SetFeeRate struct {
	header
	FeeRate uint16
}

func (ix *SetFeeRate) decode(r *reader) { ix.FeeRate = r.u16() }

type SetProtocolFeeRate struct {
	header
	ProtocolFeeRate uint16
}

func (ix *SetProtocolFeeRate) decode(r *reader) { ix.ProtocolFeeRate = r.u16() }

type SetConfigExtensionAuthority struct{ header }

func (ix *SetConfigExtensionAuthority) decode(*reader) {}

type SetTokenBadgeAuthority struct{ header }

func (ix *SetTokenBadgeAuthority) decode(*reader) {}

type InitializeTokenBadge struct{ header }

func (ix *InitializeTokenBadge) decode(*reader) {}

type DeleteTokenBadge struct{ header }

func (ix *DeleteTokenBadge) decode(*reader) {}

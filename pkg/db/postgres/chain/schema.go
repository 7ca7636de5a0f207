package chain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/orca-so/sedimentology/pkg/decoder"
)

// Column types of instruction data.
const (
	colU8   = "SMALLINT"
	colU16  = "INTEGER"
	colU32  = "BIGINT"
	colI32  = "INTEGER"
	colU64  = "NUMERIC(20)"
	colU128 = "NUMERIC(39)"
	colBool = "BOOLEAN"
	colJSON = "JSONB"
)

type column struct {
	name string
	typ  string
	null bool
}

func col(name, typ string) column { return column{name: name, typ: typ} }

// ixTable declares the stored shape of one instruction kind. Data columns come
// first, then keys carried in the instruction data, then the layout's accounts
// and aux keys, then remaining accounts and transfers.
type ixTable struct {
	data     []column
	dataKeys []string
}

var (
	swapData = []column{
		col("amount", colU64), col("other_amount_threshold", colU64), col("sqrt_price_limit", colU128),
		col("amount_specified_is_input", colBool), col("a_to_b", colBool),
	}
	twoHopSwapData = []column{
		col("amount", colU64), col("other_amount_threshold", colU64), col("amount_specified_is_input", colBool),
		col("a_to_b_one", colBool), col("a_to_b_two", colBool),
		col("sqrt_price_limit_one", colU128), col("sqrt_price_limit_two", colU128),
	}
	increaseLiquidityData = []column{col("liquidity_amount", colU128), col("token_max_a", colU64), col("token_max_b", colU64)}
	decreaseLiquidityData = []column{col("liquidity_amount", colU128), col("token_min_a", colU64), col("token_min_b", colU64)}
	rewardIndexData       = []column{col("reward_index", colU8)}
	rewardEmissionsData   = []column{col("reward_index", colU8), col("emissions_per_second_x64", colU128)}
	tickRangeData         = []column{col("tick_lower_index", colI32), col("tick_upper_index", colI32)}
	initializePoolData    = []column{col("tick_spacing", colU16), col("initial_sqrt_price", colU128)}
)

var ixTables = map[string]ixTable{
	"swap":                   {data: swapData},
	"swapV2":                 {data: swapData},
	"twoHopSwap":             {data: twoHopSwapData},
	"twoHopSwapV2":           {data: twoHopSwapData},
	"increaseLiquidity":      {data: increaseLiquidityData},
	"increaseLiquidityV2":    {data: increaseLiquidityData},
	"decreaseLiquidity":      {data: decreaseLiquidityData},
	"decreaseLiquidityV2":    {data: decreaseLiquidityData},
	"adminIncreaseLiquidity": {data: []column{col("liquidity", colU128)}},

	"updateFeesAndRewards":               {},
	"collectFees":                        {},
	"collectFeesV2":                      {},
	"collectProtocolFees":                {},
	"collectProtocolFeesV2":              {},
	"collectReward":                      {data: rewardIndexData},
	"collectRewardV2":                    {data: rewardIndexData},
	"initializeReward":                   {data: rewardIndexData},
	"initializeRewardV2":                 {data: rewardIndexData},
	"setRewardEmissions":                 {data: rewardEmissionsData},
	"setRewardEmissionsV2":               {data: rewardEmissionsData},
	"setRewardAuthority":                 {data: rewardIndexData},
	"setRewardAuthorityBySuperAuthority": {data: rewardIndexData},
	"setRewardEmissionsSuperAuthority":   {},

	"openPosition":             {data: tickRangeData},
	"openPositionWithMetadata": {data: tickRangeData},
	"openPositionWithTokenExtensions": {data: []column{
		col("tick_lower_index", colI32), col("tick_upper_index", colI32), col("with_token_metadata_extension", colBool),
	}},
	"closePosition":                        {},
	"closePositionWithTokenExtensions":     {},
	"initializePositionBundle":             {},
	"initializePositionBundleWithMetadata": {},
	"deletePositionBundle":                 {},
	"openBundledPosition": {data: []column{
		col("bundle_index", colU16), col("tick_lower_index", colI32), col("tick_upper_index", colI32),
	}},
	"closeBundledPosition":   {data: []column{col("bundle_index", colU16)}},
	"lockPosition":           {data: []column{col("lock_type", colJSON)}},
	"transferLockedPosition": {},
	"resetPositionRange":     {data: []column{col("new_tick_lower_index", colI32), col("new_tick_upper_index", colI32)}},

	"initializePool":   {data: initializePoolData},
	"initializePoolV2": {data: initializePoolData},
	"initializePoolWithAdaptiveFee": {data: []column{
		col("initial_sqrt_price", colU128), {name: "trade_enable_timestamp", typ: colU64, null: true},
	}},
	"initializeTickArray": {data: []column{col("start_tick_index", colI32)}},
	"initializeFeeTier":   {data: []column{col("tick_spacing", colU16), col("default_fee_rate", colU16)}},
	"initializeAdaptiveFeeTier": {
		data: []column{
			col("fee_tier_index", colU16), col("tick_spacing", colU16), col("default_base_fee_rate", colU16),
			col("filter_period", colU16), col("decay_period", colU16), col("reduction_factor", colU16),
			col("adaptive_fee_control_factor", colU32), col("max_volatility_accumulator", colU32),
			col("tick_group_size", colU16), col("major_swap_threshold_ticks", colU16),
		},
		dataKeys: []string{"initializePoolAuthority", "delegatedFeeAuthority"},
	},

	"initializeConfig": {
		data:     []column{col("default_protocol_fee_rate", colU16)},
		dataKeys: []string{"feeAuthority", "collectProtocolFeesAuthority", "rewardEmissionsSuperAuthority"},
	},
	"initializeConfigExtension":       {},
	"setCollectProtocolFeesAuthority": {},
	"setDefaultFeeRate":               {data: []column{col("default_fee_rate", colU16)}},
	"setDefaultProtocolFeeRate":       {data: []column{col("default_protocol_fee_rate", colU16)}},
	"setFeeAuthority":                 {},
	"setFeeRate":                      {data: []column{col("fee_rate", colU16)}},
	"setProtocolFeeRate":              {data: []column{col("protocol_fee_rate", colU16)}},
	"setConfigExtensionAuthority":     {},
	"setTokenBadgeAuthority":          {},
	"initializeTokenBadge":            {},
	"deleteTokenBadge":                {},
}

func sortedKinds() []string {
	kinds := make([]string, 0, len(ixTables))
	for k := range ixTables {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func ixTableName(kind string) string {
	return "ixs_" + decoder.SnakeName(kind)
}

func keyColumn(name string) string {
	return "key_" + decoder.SnakeName(name)
}

// keyNames returns every pubkey stored by kind, in column order.
func keyNames(kind string, layout decoder.Layout) []string {
	t := ixTables[kind]
	names := make([]string, 0, len(t.dataKeys)+len(layout.Accounts)+len(layout.Aux))
	names = append(names, t.dataKeys...)
	names = append(names, layout.Accounts...)
	for _, aux := range layout.Aux {
		names = append(names, aux.Name)
	}
	return names
}

// columns returns the full column list of a kind's table, primary key first.
func columns(kind string) ([]column, error) {
	t, ok := ixTables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstruction, kind)
	}
	layout, ok := decoder.LayoutOf(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no layout", ErrUnknownInstruction, kind)
	}

	cols := []column{col("txid", "BIGINT"), col(`"order"`, "INTEGER")}
	cols = append(cols, t.data...)
	for _, name := range keyNames(kind, layout) {
		cols = append(cols, col(keyColumn(name), "BIGINT"))
	}
	if layout.Remaining {
		cols = append(cols, col("remaining_accounts_info", colJSON), col("remaining_accounts", colJSON))
	}
	for i := 0; i < layout.Transfers; i++ {
		n := i + 1
		cols = append(cols, col(fmt.Sprintf("transfer_amount%d", n), colU64))
		if layout.Remaining {
			cols = append(cols,
				col(fmt.Sprintf("transfer_fee_config_initialized%d", n), colBool),
				col(fmt.Sprintf("transfer_fee_config_bps%d", n), colU16),
				col(fmt.Sprintf("transfer_fee_config_max%d", n), colU64),
			)
		}
	}
	return cols, nil
}

func (db *DB) initIxTable(ctx context.Context, kind string) error {
	cols, err := columns(kind)
	if err != nil {
		return err
	}
	return db.Exec(ctx, createTableSQL(ixTableName(kind), cols))
}

func createTableSQL(table string, cols []column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	for _, c := range cols {
		nullability := " NOT NULL"
		if c.null {
			nullability = ""
		}
		fmt.Fprintf(&b, "\t%s %s%s,\n", c.name, c.typ, nullability)
	}
	b.WriteString("\tPRIMARY KEY (txid, \"order\")\n)")
	return b.String()
}

// insertSQL renders the INSERT of a kind. Key columns resolve through
// from_pubkey so the caller passes base58 strings.
func insertSQL(kind string) (string, error) {
	cols, err := columns(kind)
	if err != nil {
		return "", err
	}
	names := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		switch {
		case strings.HasPrefix(c.name, "key_"):
			params[i] = fmt.Sprintf("from_pubkey($%d)", i+1)
		case c.typ == colJSON:
			params[i] = fmt.Sprintf("$%d::jsonb", i+1)
		default:
			params[i] = fmt.Sprintf("$%d", i+1)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ixTableName(kind), strings.Join(names, ", "), strings.Join(params, ", ")), nil
}

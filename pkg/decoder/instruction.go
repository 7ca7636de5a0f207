package decoder

import (
	"encoding/json"
	"errors"
)

var (
	// ErrUnknownInstruction is returned for a Whirlpool instruction whose discriminator is not registered.
	ErrUnknownInstruction = errors.New("unknown whirlpool instruction")
	// ErrMalformedInstruction is returned when instruction data or accounts do not match the layout.
	ErrMalformedInstruction = errors.New("malformed whirlpool instruction")
	// ErrMissingTokenBalance is returned when an owner or decimals lookup finds no token balance entry.
	ErrMissingTokenBalance = errors.New("token balance not found")
)

// Instruction is a decoded Whirlpool instruction. The set of implementations
// is closed; switch on the concrete type to read typed arguments.
type Instruction interface {
	// Name is the camelCase instruction name, e.g. "swapV2".
	Name() string
	// Accounts returns the fixed accounts of the instruction by name.
	Accounts() Accounts
	// Transfers returns the token transfers executed by the instruction.
	Transfers() []Transfer
	// RemainingAccounts returns the keys passed beyond the fixed accounts.
	RemainingAccounts() []string
	// Aux returns an auxiliary key resolved from token balances, e.g. positionTokenAccountOwner.
	Aux(name string) string
	// Decimals returns the decimals of the mint referenced by the named account.
	Decimals(account string) (uint8, bool)

	base() *header
	decode(r *reader)
}

type header struct {
	name      string
	accounts  Accounts
	transfers []Transfer
	remaining []string
	aux       map[string]string
	decimals  map[string]uint8
}

func (h *header) Name() string                { return h.name }
func (h *header) Accounts() Accounts          { return h.accounts }
func (h *header) Transfers() []Transfer       { return h.transfers }
func (h *header) RemainingAccounts() []string { return h.remaining }
func (h *header) Aux(name string) string      { return h.aux[name] }
func (h *header) base() *header               { return h }

func (h *header) Decimals(account string) (uint8, bool) {
	d, ok := h.decimals[account]
	return d, ok
}

// Accounts is the ordered, named account list of an instruction.
type Accounts struct {
	names []string
	keys  []string
}

// Get returns the key of the named account, or "" if the layout has no such account.
func (a Accounts) Get(name string) string {
	for i, n := range a.names {
		if n == name {
			return a.keys[i]
		}
	}
	return ""
}

// Names returns the account names in layout order.
func (a Accounts) Names() []string { return a.names }

// Keys returns the account keys in layout order.
func (a Accounts) Keys() []string { return a.keys }

// TransferFeeConfig is the token-2022 transfer fee in effect for a transfer.
type TransferFeeConfig struct {
	BasisPoints uint16
	MaximumFee  uint64
}

// Transfer is a token transfer executed through CPI by a Whirlpool instruction.
type Transfer struct {
	Amount    uint64
	FeeConfig *TransferFeeConfig
}

// RemainingAccountsSlice describes a run of remaining accounts passed to a V2 instruction.
type RemainingAccountsSlice struct {
	AccountsType uint8
	Length       uint8
}

// RemainingAccountsInfo is nil when the instruction carried None.
type RemainingAccountsInfo []RemainingAccountsSlice

// MarshalJSON encodes the slices as [[accountsType, length], ...]. None encodes as [].
func (r RemainingAccountsInfo) MarshalJSON() ([]byte, error) {
	pairs := make([][2]uint8, 0, len(r))
	for _, s := range r {
		pairs = append(pairs, [2]uint8{s.AccountsType, s.Length})
	}
	return json.Marshal(pairs)
}

// Decoded is the result of decoding one transaction.
type Decoded struct {
	Instructions          []Instruction
	ProgramDeployDetected bool
}

package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Commitment is the Solana commitment level used for reads.
type Commitment string

const (
	Finalized Commitment = "finalized"
	Confirmed Commitment = "confirmed"
)

// JSON-RPC error codes returned for slots that have no block to serve.
const (
	codeBlockNotAvailable       = -32004
	codeSlotSkipped             = -32007
	codeLongTermStorageSlotSkip = -32009
)

var (
	// ErrBlockNotAvailable is returned for skipped, pruned or not yet confirmed slots.
	ErrBlockNotAvailable = errors.New("block not available")
	// ErrMalformedBlock is returned when a getBlock payload misses a required field.
	ErrMalformedBlock = errors.New("malformed block response")
	// ErrUnsafeInteger is returned when a consumed numeric field cannot be represented exactly in a float64.
	ErrUnsafeInteger = errors.New("integer exceeds 2^53")
	// ErrAllEndpointsOpen is returned when every endpoint breaker is open.
	ErrAllEndpointsOpen = errors.New("all rpc endpoints unavailable")
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is maps the slot-unavailable codes onto ErrBlockNotAvailable.
func (e *Error) Is(target error) bool {
	if target != ErrBlockNotAvailable {
		return false
	}
	switch e.Code {
	case codeBlockNotAvailable, codeSlotSkipped, codeLongTermStorageSlotSkip:
		return true
	}
	return false
}

// Block is a getBlock result with transactionDetails=full and encoding=json.
type Block struct {
	BlockHeight       uint64        `json:"blockHeight"`
	BlockTime         int64         `json:"blockTime"`
	Blockhash         string        `json:"blockhash"`
	ParentSlot        uint64        `json:"parentSlot"`
	PreviousBlockhash string        `json:"previousBlockhash"`
	Transactions      []Transaction `json:"transactions"`
}

// Transaction pairs a transaction envelope with its execution metadata.
type Transaction struct {
	Meta        *TransactionMeta `json:"meta"`
	Transaction Envelope         `json:"transaction"`
	Version     json.RawMessage  `json:"version"`
}

// Envelope is the signed transaction.
type Envelope struct {
	Signatures []string `json:"signatures"`
	Message    Message  `json:"message"`
}

// Message is the compiled transaction message.
type Message struct {
	AccountKeys         []string              `json:"accountKeys"`
	RecentBlockhash     string                `json:"recentBlockhash"`
	Instructions        []CompiledInstruction `json:"instructions"`
	AddressTableLookups []AddressTableLookup  `json:"addressTableLookups,omitempty"`
}

// AddressTableLookup references accounts loaded from an address lookup table.
type AddressTableLookup struct {
	AccountKey      string `json:"accountKey"`
	WritableIndexes []int  `json:"writableIndexes"`
	ReadonlyIndexes []int  `json:"readonlyIndexes"`
}

// CompiledInstruction references accounts by index into the flattened address list.
type CompiledInstruction struct {
	ProgramIDIndex int    `json:"programIdIndex"`
	Accounts       []int  `json:"accounts"`
	Data           string `json:"data"`
	StackHeight    *int   `json:"stackHeight"`
}

// InnerInstructionGroup holds the CPI instructions issued by outer instruction Index.
type InnerInstructionGroup struct {
	Index        int                   `json:"index"`
	Instructions []CompiledInstruction `json:"instructions"`
}

// LoadedAddresses are the accounts resolved from address lookup tables (v0 transactions).
type LoadedAddresses struct {
	Writable []string `json:"writable"`
	Readonly []string `json:"readonly"`
}

// UITokenAmount keeps the raw amount as a decimal string.
type UITokenAmount struct {
	Amount   string `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// TokenBalance is an entry of pre/postTokenBalances.
type TokenBalance struct {
	AccountIndex  int           `json:"accountIndex"`
	Mint          string        `json:"mint"`
	Owner         string        `json:"owner"`
	ProgramID     string        `json:"programId"`
	UITokenAmount UITokenAmount `json:"uiTokenAmount"`
}

// TransactionMeta is the execution status of a transaction.
// InnerInstructions stays nil when the RPC answered null, which is distinct
// from an empty list.
type TransactionMeta struct {
	Err               json.RawMessage          `json:"err"`
	Fee               uint64                   `json:"fee"`
	InnerInstructions *[]InnerInstructionGroup `json:"innerInstructions"`
	LoadedAddresses   *LoadedAddresses         `json:"loadedAddresses"`
	PreTokenBalances  []TokenBalance           `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance           `json:"postTokenBalances"`
	LogMessages       []string                 `json:"logMessages"`
}

// Failed reports whether the transaction reverted on-chain.
func (m *TransactionMeta) Failed() bool {
	return len(m.Err) > 0 && string(m.Err) != "null"
}

// AllPubkeys returns static keys followed by loaded writable and readonly keys,
// the order instruction account indexes refer to.
func (t *Transaction) AllPubkeys() []string {
	keys := make([]string, 0, len(t.Transaction.Message.AccountKeys))
	keys = append(keys, t.Transaction.Message.AccountKeys...)
	if t.Meta != nil && t.Meta.LoadedAddresses != nil {
		keys = append(keys, t.Meta.LoadedAddresses.Writable...)
		keys = append(keys, t.Meta.LoadedAddresses.Readonly...)
	}
	return keys
}

// AccountInfo is a getAccountInfo value.
type AccountInfo struct {
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
}

type accountInfoResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value *AccountInfo `json:"value"`
}

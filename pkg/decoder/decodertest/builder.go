// Package decodertest builds getBlock transactions carrying Whirlpool
// instructions for tests.
package decodertest

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/orca-so/sedimentology/pkg/decoder"
	"github.com/orca-so/sedimentology/pkg/rpc"
)

const WhirlpoolProgramID = decoder.WhirlpoolProgramID

// Data encodes borsh instruction arguments after the kind's discriminator.
type Data struct {
	buf []byte
}

func NewData(kind string) *Data {
	d := decoder.Discriminator(kind)
	return &Data{buf: append([]byte{}, d[:]...)}
}

// RawData starts an instruction payload without a discriminator.
func RawData(prefix ...byte) *Data {
	return &Data{buf: append([]byte{}, prefix...)}
}

func (d *Data) U8(v uint8) *Data { d.buf = append(d.buf, v); return d }

func (d *Data) Bool(v bool) *Data {
	if v {
		return d.U8(1)
	}
	return d.U8(0)
}

func (d *Data) U16(v uint16) *Data { d.buf = binary.LittleEndian.AppendUint16(d.buf, v); return d }
func (d *Data) U32(v uint32) *Data { d.buf = binary.LittleEndian.AppendUint32(d.buf, v); return d }
func (d *Data) I32(v int32) *Data  { return d.U32(uint32(v)) }
func (d *Data) U64(v uint64) *Data { d.buf = binary.LittleEndian.AppendUint64(d.buf, v); return d }

// U128 appends a u128 given as its low and high 64 bit halves.
func (d *Data) U128(lo, hi uint64) *Data { return d.U64(lo).U64(hi) }

func (d *Data) Pubkey(b [32]byte) *Data { d.buf = append(d.buf, b[:]...); return d }

func (d *Data) Bytes() []byte { return d.buf }

func (d *Data) Base58() string { return base58.Encode(d.buf) }

// TokenTransfer is an spl-token Transfer payload.
func TokenTransfer(amount uint64) string {
	return RawData(3).U64(amount).Base58()
}

// TokenTransferChecked is an spl-token TransferChecked payload.
func TokenTransferChecked(amount uint64, decimals uint8) string {
	return RawData(12).U64(amount).U8(decimals).Base58()
}

// Tx assembles a transaction with static account keys only.
type Tx struct {
	keys   []string
	outer  []rpc.CompiledInstruction
	inner  map[int][]rpc.CompiledInstruction
	pre    []rpc.TokenBalance
	post   []rpc.TokenBalance
	failed bool
}

// NewTx starts a transaction paid by payer.
func NewTx(payer string) *Tx {
	return &Tx{keys: []string{payer}, inner: map[int][]rpc.CompiledInstruction{}}
}

// Key returns the index of k, adding it if needed.
func (t *Tx) Key(k string) int {
	for i, existing := range t.keys {
		if existing == k {
			return i
		}
	}
	t.keys = append(t.keys, k)
	return len(t.keys) - 1
}

func (t *Tx) compile(program string, accounts []string, data string, stackHeight *int) rpc.CompiledInstruction {
	idx := make([]int, 0, len(accounts))
	for _, a := range accounts {
		idx = append(idx, t.Key(a))
	}
	return rpc.CompiledInstruction{
		ProgramIDIndex: t.Key(program),
		Accounts:       idx,
		Data:           data,
		StackHeight:    stackHeight,
	}
}

// Outer appends a top level instruction and returns its index.
func (t *Tx) Outer(program string, accounts []string, data string) int {
	one := 1
	t.outer = append(t.outer, t.compile(program, accounts, data, &one))
	return len(t.outer) - 1
}

// Inner appends a CPI under outer instruction outer. stackHeight 0 leaves it unreported.
func (t *Tx) Inner(outer int, stackHeight int, program string, accounts []string, data string) *Tx {
	var h *int
	if stackHeight > 0 {
		h = &stackHeight
	}
	t.inner[outer] = append(t.inner[outer], t.compile(program, accounts, data, h))
	return t
}

// Balance records pre and post token amounts for account. An empty pre omits the pre entry.
func (t *Tx) Balance(account, mint, owner string, decimals uint8, pre, post string) *Tx {
	idx := t.Key(account)
	if pre != "" {
		t.pre = append(t.pre, rpc.TokenBalance{AccountIndex: idx, Mint: mint, Owner: owner, UITokenAmount: rpc.UITokenAmount{Amount: pre, Decimals: decimals}})
	}
	if post != "" {
		t.post = append(t.post, rpc.TokenBalance{AccountIndex: idx, Mint: mint, Owner: owner, UITokenAmount: rpc.UITokenAmount{Amount: post, Decimals: decimals}})
	}
	return t
}

// Fail marks the transaction as reverted.
func (t *Tx) Fail() *Tx {
	t.failed = true
	return t
}

// Build returns the transaction. Inner instruction groups are always present.
func (t *Tx) Build(signature string) rpc.Transaction {
	groups := []rpc.InnerInstructionGroup{}
	for i := range t.outer {
		if ixs, ok := t.inner[i]; ok {
			groups = append(groups, rpc.InnerInstructionGroup{Index: i, Instructions: ixs})
		}
	}
	meta := &rpc.TransactionMeta{
		Err:               []byte("null"),
		InnerInstructions: &groups,
		PreTokenBalances:  t.pre,
		PostTokenBalances: t.post,
	}
	if t.failed {
		meta.Err = []byte(`{"InstructionError":[0,"Custom"]}`)
	}
	return rpc.Transaction{
		Meta: meta,
		Transaction: rpc.Envelope{
			Signatures: []string{signature},
			Message: rpc.Message{
				AccountKeys:  append([]string{}, t.keys...),
				Instructions: append([]rpc.CompiledInstruction{}, t.outer...),
			},
		},
	}
}

// AccountsFor returns placeholder keys for every fixed account of kind,
// named prefix+accountName.
func AccountsFor(kind, prefix string) []string {
	l, ok := decoder.LayoutOf(kind)
	if !ok {
		panic("unknown kind " + kind)
	}
	keys := make([]string, 0, len(l.Accounts))
	for _, name := range l.Accounts {
		keys = append(keys, prefix+name)
	}
	return keys
}

// Sample decodes a zero-argument instance of kind with placeholder accounts
// named "<kind>.<account>". Aux owners resolve to "owner" and every mint to 6
// decimals; vault balances are 100 before and 150 after.
func Sample(kind string) (decoder.Instruction, error) {
	l, ok := decoder.LayoutOf(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", decoder.ErrUnknownInstruction, kind)
	}
	accounts := AccountsFor(kind, kind+".")
	data := NewData(kind)
	for i := 0; i < 256; i++ {
		data.U8(0)
	}

	tx := NewTx("payer")
	tx.Outer(WhirlpoolProgramID, accounts, data.Base58())
	for _, aux := range l.Aux {
		tx.Balance(kind+"."+aux.TokenAccount, "mint", "owner", 0, "1", "1")
	}
	for _, mint := range l.Mints {
		tx.Balance("holder."+mint, kind+"."+mint, "holder", 6, "0", "0")
	}
	for _, name := range l.Accounts {
		if strings.HasPrefix(name, "tokenVault") || name == "rewardVault" {
			tx.Balance(kind+"."+name, "mint", "whirlpool", 6, "100", "150")
		}
	}

	built := tx.Build("sig")
	decoded, err := decoder.DecodeTransaction(&built, WhirlpoolProgramID)
	if err != nil {
		return nil, err
	}
	if len(decoded.Instructions) != 1 {
		return nil, fmt.Errorf("%s: decoded %d instructions", kind, len(decoded.Instructions))
	}
	return decoded.Instructions[0], nil
}

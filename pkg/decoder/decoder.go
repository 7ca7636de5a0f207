package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/orca-so/sedimentology/pkg/rpc"
)

// WhirlpoolProgramID is the mainnet Whirlpool program.
const WhirlpoolProgramID = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"

const (
	TokenProgramID          = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID      = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	MemoProgramID           = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	BPFLoaderUpgradeableID  = "BPFLoaderUpgradeab1e11111111111111111111111"
	tokenIxTransfer         = 3
	tokenIxTransferChecked  = 12
	loaderIxUpgrade         = 3
	loaderUpgradeProgramIdx = 1
)

// flatIx is a compiled instruction with its keys resolved.
type flatIx struct {
	program     string
	keys        []string
	data        string
	stackHeight int // 0 when the node did not report it
}

// DecodeTransaction decodes every Whirlpool instruction executed by tx, outer
// and CPI, in execution order. It also reports whether tx upgraded programID.
// tx.Meta.InnerInstructions must not be nil.
func DecodeTransaction(tx *rpc.Transaction, programID string) (*Decoded, error) {
	if tx.Meta == nil || tx.Meta.InnerInstructions == nil {
		return nil, fmt.Errorf("%w: inner instructions missing", ErrMalformedInstruction)
	}
	pubkeys := tx.AllPubkeys()

	inner := map[int][]flatIx{}
	for _, group := range *tx.Meta.InnerInstructions {
		flat := make([]flatIx, 0, len(group.Instructions))
		for _, ci := range group.Instructions {
			f, err := resolve(ci, pubkeys, 0)
			if err != nil {
				return nil, err
			}
			flat = append(flat, f)
		}
		inner[group.Index] = flat
	}

	out := &Decoded{}
	for i, ci := range tx.Transaction.Message.Instructions {
		outer, err := resolve(ci, pubkeys, 1)
		if err != nil {
			return nil, err
		}
		cpis := inner[i]

		// the outer instruction is followed by its own CPIs
		seq := append([]flatIx{outer}, cpis...)
		for j := range seq {
			f := seq[j]
			if isProgramDeploy(f, programID) {
				out.ProgramDeployDetected = true
				continue
			}
			if f.program != programID {
				continue
			}
			ix, err := decodeInstruction(f, seq[j+1:])
			if err != nil {
				return nil, err
			}
			if ix == nil {
				continue
			}
			if err := resolveTokenBalances(ix, tx.Meta, pubkeys); err != nil {
				return nil, err
			}
			out.Instructions = append(out.Instructions, ix)
		}
	}
	return out, nil
}

func resolve(ci rpc.CompiledInstruction, pubkeys []string, defaultHeight int) (flatIx, error) {
	if ci.ProgramIDIndex < 0 || ci.ProgramIDIndex >= len(pubkeys) {
		return flatIx{}, fmt.Errorf("%w: program index %d out of range", ErrMalformedInstruction, ci.ProgramIDIndex)
	}
	keys := make([]string, 0, len(ci.Accounts))
	for _, idx := range ci.Accounts {
		if idx < 0 || idx >= len(pubkeys) {
			return flatIx{}, fmt.Errorf("%w: account index %d out of range", ErrMalformedInstruction, idx)
		}
		keys = append(keys, pubkeys[idx])
	}
	height := defaultHeight
	if ci.StackHeight != nil {
		height = *ci.StackHeight
	}
	return flatIx{
		program:     pubkeys[ci.ProgramIDIndex],
		keys:        keys,
		data:        ci.Data,
		stackHeight: height,
	}, nil
}

func isProgramDeploy(f flatIx, programID string) bool {
	if f.program != BPFLoaderUpgradeableID || len(f.keys) <= loaderUpgradeProgramIdx {
		return false
	}
	data, err := base58.Decode(f.data)
	if err != nil || len(data) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(data) == loaderIxUpgrade && f.keys[loaderUpgradeProgramIdx] == programID
}

// decodeInstruction returns nil, nil for anchor event-cpi invocations.
func decodeInstruction(f flatIx, following []flatIx) (Instruction, error) {
	data, err := base58.Decode(f.data)
	if err != nil {
		return nil, fmt.Errorf("%w: data is not base58: %v", ErrMalformedInstruction, err)
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: data shorter than discriminator", ErrMalformedInstruction)
	}
	var disc [8]byte
	copy(disc[:], data[:8])
	if disc == eventCPITag {
		return nil, nil
	}
	l, ok := layoutsByDisc[disc]
	if !ok {
		return nil, fmt.Errorf("%w: discriminator %x", ErrUnknownInstruction, disc)
	}
	if len(f.keys) < len(l.Accounts) {
		return nil, fmt.Errorf("%w: %s needs %d accounts, got %d", ErrMalformedInstruction, l.Name, len(l.Accounts), len(f.keys))
	}

	ix := l.new()
	h := ix.base()
	h.name = l.Name
	h.accounts = Accounts{names: l.Accounts, keys: f.keys[:len(l.Accounts)]}
	if l.Remaining {
		h.remaining = append([]string{}, f.keys[len(l.Accounts):]...)
	}

	r := newReader(data[8:])
	ix.decode(r)
	if r.err != nil {
		return nil, fmt.Errorf("%s: %w", l.Name, r.err)
	}

	if l.Transfers > 0 {
		transfers, err := collectTransfers(f, following, l.Transfers)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.Name, err)
		}
		h.transfers = transfers
	}
	return ix, nil
}

// collectTransfers reads the token transfers issued directly by the
// instruction at f. When stack heights are known only CPIs one level below f
// are considered, and the scan stops at the next instruction at f's level or
// above. The program skips zero amount transfers, so missing trailing
// transfers are reported as zero.
func collectTransfers(f flatIx, following []flatIx, want int) ([]Transfer, error) {
	transfers := make([]Transfer, 0, want)
	for _, next := range following {
		if len(transfers) == want {
			break
		}
		if f.stackHeight > 0 && next.stackHeight > 0 {
			if next.stackHeight <= f.stackHeight {
				break
			}
			if next.stackHeight != f.stackHeight+1 {
				continue
			}
		}
		if next.program == MemoProgramID {
			continue
		}
		if next.program != TokenProgramID && next.program != Token2022ProgramID {
			if f.stackHeight > 0 && next.stackHeight > 0 {
				// transfer hooks and other CPIs at the same level
				continue
			}
			break
		}
		data, err := base58.Decode(next.data)
		if err != nil {
			return nil, fmt.Errorf("%w: token instruction data: %v", ErrMalformedInstruction, err)
		}
		if len(data) < 9 || (data[0] != tokenIxTransfer && data[0] != tokenIxTransferChecked) {
			continue
		}
		transfers = append(transfers, Transfer{Amount: binary.LittleEndian.Uint64(data[1:9])})
	}
	for len(transfers) < want {
		transfers = append(transfers, Transfer{})
	}
	return transfers, nil
}

// resolveTokenBalances fills aux owners and mint decimals from the token
// balance metadata of the transaction.
func resolveTokenBalances(ix Instruction, meta *rpc.TransactionMeta, pubkeys []string) error {
	l := layoutsByName[ix.Name()]
	h := ix.base()

	if len(l.Aux) > 0 {
		h.aux = make(map[string]string, len(l.Aux))
		for _, a := range l.Aux {
			account := h.accounts.Get(a.TokenAccount)
			tb := findByAccount(meta, pubkeys, account)
			if tb == nil || tb.Owner == "" {
				return fmt.Errorf("%w: %s owner of %s", ErrMissingTokenBalance, a.Name, account)
			}
			h.aux[a.Name] = tb.Owner
		}
	}

	if len(l.Mints) > 0 {
		h.decimals = make(map[string]uint8, len(l.Mints))
		for _, name := range l.Mints {
			mint := h.accounts.Get(name)
			tb := findByMint(meta, mint)
			if tb == nil {
				return fmt.Errorf("%w: decimals of %s %s", ErrMissingTokenBalance, name, mint)
			}
			h.decimals[name] = tb.UITokenAmount.Decimals
		}
	}
	return nil
}

func findByAccount(meta *rpc.TransactionMeta, pubkeys []string, account string) *rpc.TokenBalance {
	for _, list := range [][]rpc.TokenBalance{meta.PostTokenBalances, meta.PreTokenBalances} {
		for i := range list {
			idx := list[i].AccountIndex
			if idx >= 0 && idx < len(pubkeys) && pubkeys[idx] == account {
				return &list[i]
			}
		}
	}
	return nil
}

func findByMint(meta *rpc.TransactionMeta, mint string) *rpc.TokenBalance {
	for _, list := range [][]rpc.TokenBalance{meta.PostTokenBalances, meta.PreTokenBalances} {
		for i := range list {
			if list[i].Mint == mint {
				return &list[i]
			}
		}
	}
	return nil
}

package activity

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/orca-so/sedimentology/pkg/rpc"
)

// ProgramDataAddress is the upgradeable-loader programdata account of the
// Whirlpool program.
const ProgramDataAddress = "CtXfPzz36dH5Ws4UYKZvrQ1Xqzn42ecDW6y8NKuiN8nD"

const (
	programDataLength = 1405485
	programDataTag    = 3
	// tag u32, slot u64, upgrade authority Option<Pubkey>
	programDataHeader = 45
)

var (
	// ErrProgramDataMalformed is returned when the programdata account does
	// not have the expected tag or size.
	ErrProgramDataMalformed = errors.New("malformed program data account")
	// ErrProgramDataSlot is returned when the program was upgraded again after
	// the processed slot. The image deployed at that slot can no longer be read.
	ErrProgramDataSlot = errors.New("program data was modified after the processed slot")
)

// fetchProgramData returns the program image deployed at slot.
func (c *Context) fetchProgramData(ctx context.Context, slot uint64) ([]byte, error) {
	info, err := c.RPC.GetAccountInfo(ctx, ProgramDataAddress, rpc.Finalized, "base64")
	if err != nil {
		return nil, fmt.Errorf("get program data: %w", err)
	}
	return parseProgramData(info, slot)
}

func parseProgramData(info *rpc.AccountInfo, slot uint64) ([]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: account %s not found", ErrProgramDataMalformed, ProgramDataAddress)
	}
	if len(info.Data) != 2 || info.Data[1] != "base64" {
		return nil, fmt.Errorf("%w: unexpected data encoding %v", ErrProgramDataMalformed, info.Data)
	}
	raw, err := base64.StdEncoding.DecodeString(info.Data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgramDataMalformed, err)
	}
	if len(raw) != programDataLength {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrProgramDataMalformed, len(raw), programDataLength)
	}
	if tag := binary.LittleEndian.Uint32(raw[0:4]); tag != programDataTag {
		return nil, fmt.Errorf("%w: tag %d, want %d", ErrProgramDataMalformed, tag, programDataTag)
	}
	if modified := binary.LittleEndian.Uint64(raw[4:12]); modified != slot {
		return nil, fmt.Errorf("%w: last modified at slot %d, processing %d", ErrProgramDataSlot, modified, slot)
	}
	return raw[programDataHeader:], nil
}

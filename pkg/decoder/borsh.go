package decoder

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"
)

// reader reads borsh encoded instruction arguments. The first short read sets
// err and every later read returns a zero value.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedInstruction, n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool {
	return r.u8() != 0
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) i32() int32 {
	return int32(r.u32())
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// u128 reads a little endian u128 into a uint256.
func (r *reader) u128() uint256.Int {
	var z uint256.Int
	b := r.take(16)
	if b == nil {
		return z
	}
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	z.SetBytes(be)
	return z
}

func (r *reader) pubkey() string {
	b := r.take(32)
	if b == nil {
		return ""
	}
	return base58.Encode(b)
}

func (r *reader) optionU64() *uint64 {
	if !r.bool() {
		return nil
	}
	v := r.u64()
	return &v
}

func (r *reader) remainingAccountsInfo() RemainingAccountsInfo {
	if !r.bool() {
		return nil
	}
	n := r.u32()
	if r.err != nil {
		return nil
	}
	// each slice is two bytes
	if int(n)*2 > len(r.buf)-r.off {
		r.err = fmt.Errorf("%w: remaining accounts info length %d", ErrMalformedInstruction, n)
		return nil
	}
	out := make(RemainingAccountsInfo, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, RemainingAccountsSlice{AccountsType: r.u8(), Length: r.u8()})
	}
	return out
}

package client

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// compactUint encodes an unsigned integer in SCALE compact form
func compactUint(v uint64) []byte {
	switch {
	case v < 1<<6:
		return []byte{byte(v << 2)}
	case v < 1<<14:
		x := uint16(v)<<2 | 0b01
		return []byte{byte(x), byte(x >> 8)}
	case v < 1<<30:
		x := uint32(v)<<2 | 0b10
		return []byte{byte(x), byte(x >> 8), byte(x >> 16), byte(x >> 24)}
	default:
		n := (bits.Len64(v) + 7) / 8
		out := make([]byte, n+1)
		out[0] = byte(n-4)<<2 | 0b11
		for i := 0; i < n; i++ {
			out[i+1] = byte(v >> (8 * i))
		}
		return out
	}
}

// compactBig encodes a 256-bit unsigned integer in SCALE compact form
func compactBig(v *uint256.Int) []byte {
	if v == nil || v.IsUint64() {
		var x uint64
		if v != nil {
			x = v.Uint64()
		}
		return compactUint(x)
	}

	be := v.Bytes() // big-endian, no leading zeros
	n := len(be)
	out := make([]byte, n+1)
	out[0] = byte(n-4)<<2 | 0b11
	for i := 0; i < n; i++ {
		out[i+1] = be[n-1-i]
	}
	return out
}

// encodeEra encodes a transaction validity window. An immortal era is
// the single byte 0x00; a mortal era encodes the period and the phase
// of the birth block in two bytes.
func encodeEra(mortal bool, period, birth uint64) []byte {
	if !mortal {
		return []byte{0}
	}

	adjusted := nextPowerOfTwo(period)
	if adjusted < 4 {
		adjusted = 4
	}
	if adjusted > 1<<16 {
		adjusted = 1 << 16
	}

	phase := birth % adjusted
	quantizeFactor := adjusted >> 12
	if quantizeFactor < 1 {
		quantizeFactor = 1
	}

	low := uint64(bits.TrailingZeros64(adjusted)) - 1
	if low < 1 {
		low = 1
	}
	if low > 15 {
		low = 15
	}

	encoded := uint16(low) | uint16(phase/quantizeFactor)<<4
	return []byte{byte(encoded), byte(encoded >> 8)}
}

func nextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	if v&(v-1) == 0 {
		return v
	}
	return 1 << bits.Len64(v)
}

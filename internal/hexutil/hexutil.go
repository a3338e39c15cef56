// Package hexutil implements the wire representation used at every
// boundary of this library: lowercase hexadecimal strings with a 0x
// prefix.
package hexutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Encode returns the lowercase 0x-prefixed hex encoding of b. An empty
// or nil slice encodes as "0x".
func Encode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// Decode parses a 0x-prefixed hex string. Uppercase digits are
// accepted on input even though this library never emits them.
func Decode(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("hex string %q missing 0x prefix", truncate(s))
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", truncate(s), err)
	}
	return b, nil
}

// MustDecode is Decode for hardcoded strings; it panics on bad input.
func MustDecode(s string) []byte {
	b, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return b
}

func truncate(s string) string {
	if len(s) > 32 {
		return s[:32] + "..."
	}
	return s
}

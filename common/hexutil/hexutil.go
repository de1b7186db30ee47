// Package hexutil implements the "0x"-prefixed hex encoding used across the
// genesis file, config, and any JSON representation of block/transaction
// identifiers that Torii's HTTP surface would serialize.
package hexutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Encode returns the "0x"-prefixed lowercase hex encoding of b.
func Encode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// Decode parses a "0x"-prefixed (or bare) hex string into bytes.
func Decode(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hexutil: odd length hex string %q", s)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hexutil: invalid hex string %q: %w", s, err)
	}
	return b, nil
}

// MustDecode is Decode but panics on error; reserved for hardcoded genesis
// constants, never for input coming off the wire.
func MustDecode(s string) []byte {
	b, err := Decode(s)
	if err != nil {
		panic(err)
	}
	return b
}

// Bytes is a []byte that (de)serializes as a "0x"-prefixed JSON string,
// used by genesis.json and config files for key material.
type Bytes []byte

func (b Bytes) MarshalText() ([]byte, error) {
	return []byte(Encode(b)), nil
}

func (b *Bytes) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

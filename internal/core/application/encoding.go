package application

import (
	"encoding/hex"
	"fmt"
)

// hexToArray32 decodes a 64-character hex string into a fixed 32-byte
// array, as used for payment hashes and preimages throughout the envelope
// bodies.
func hexToArray32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

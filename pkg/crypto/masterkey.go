package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrWeakMasterKey wraps every strength-check rejection so callers can
// distinguish configuration faults from runtime errors.
var ErrWeakMasterKey = errors.New("crypto: master key failed strength checks")

// ParseMasterKey accepts a master key as "base64:<value>", bare hex, bare
// base64, or a raw string, and runs the result through ValidateMasterKey.
func ParseMasterKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty key", ErrWeakMasterKey)
	}

	var key []byte
	switch {
	case strings.HasPrefix(value, "base64:"):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "base64:"))
		if err != nil {
			return nil, fmt.Errorf("crypto: invalid base64 master key: %w", err)
		}
		key = decoded
	case isHex(value):
		decoded, err := hex.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("crypto: invalid hex master key: %w", err)
		}
		key = decoded
	case looksBase64(value):
		if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
			key = decoded
		} else {
			key = []byte(value)
		}
	default:
		key = []byte(value)
	}

	if err := ValidateMasterKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ValidateMasterKey rejects keys shorter than 256 bits and keys with
// degenerate structure: a uniform byte, a short repeating block, a
// sequential run, or a Shannon entropy below the floor for the buffer size.
func ValidateMasterKey(key []byte) error {
	if len(key) < keySize {
		return fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakMasterKey, keySize, len(key))
	}
	if blockSize := repeatingBlockSize(key); blockSize > 0 {
		return fmt.Errorf("%w: repeating %d-byte block", ErrWeakMasterKey, blockSize)
	}
	if isSequential(key) {
		return fmt.Errorf("%w: sequential byte pattern", ErrWeakMasterKey)
	}
	if got, want := shannonEntropy(key), entropyFloor(len(key)); got < want {
		return fmt.Errorf("%w: entropy %.2f bits/byte below floor %.2f", ErrWeakMasterKey, got, want)
	}
	return nil
}

// isHex reports whether value is an even-length string of hex digits, the
// shape produced by `openssl rand -hex`.
func isHex(value string) bool {
	if len(value) == 0 || len(value)%2 != 0 {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// looksBase64 reports whether value could be standard base64: a multiple of
// four characters over the standard alphabet, with padding only at the end.
func looksBase64(value string) bool {
	if len(value) == 0 || len(value)%4 != 0 {
		return false
	}
	trimmed := strings.TrimRight(value, "=")
	if len(value)-len(trimmed) > 2 {
		return false
	}
	for _, r := range trimmed {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '+' || r == '/':
		default:
			return false
		}
	}
	return true
}

// repeatingBlockSize returns the size of the smallest block (1-4 bytes) that
// tiles the whole key, or 0 when none does.
func repeatingBlockSize(key []byte) int {
	for block := 1; block <= 4; block++ {
		if len(key)%block != 0 {
			continue
		}
		tiled := true
		for i := block; i < len(key); i++ {
			if key[i] != key[i%block] {
				tiled = false
				break
			}
		}
		if tiled {
			return block
		}
	}
	return 0
}

func isSequential(key []byte) bool {
	ascending, descending := true, true
	for i := 1; i < len(key); i++ {
		if key[i] != key[i-1]+1 {
			ascending = false
		}
		if key[i] != key[i-1]-1 {
			descending = false
		}
		if !ascending && !descending {
			return false
		}
	}
	return true
}

func shannonEntropy(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range buf {
		counts[b]++
	}
	total := float64(len(buf))
	var entropy float64
	for _, count := range counts {
		if count == 0 {
			continue
		}
		p := float64(count) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// entropyFloor is 7.5 bits/byte for buffers large enough to express it; for
// shorter buffers the theoretical maximum is log2(len), so the floor scales
// to three quarters of that.
func entropyFloor(size int) float64 {
	const floor = 7.5
	if max := math.Log2(float64(size)); max < floor {
		return max * 0.75
	}
	return floor
}

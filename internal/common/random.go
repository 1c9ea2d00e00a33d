package common

import (
	"crypto/rand"
	"encoding/hex"
)

// RefreshTokenBytes is the number of random bytes behind a refresh token value.
const RefreshTokenBytes = 32

// MakeRandHexString returns size random bytes encoded as hex, so the result is
// 2*size characters long. It fails only if the system random source does.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray zeroes b in place. Used for passwords read from the terminal.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

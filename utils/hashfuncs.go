package utils

import (
	"crypto/sha256"

	"golang.org/x/crypto/sha3"
)

var InvalidHash Hash

func init() {
	for i := 0; i < HashSize; i++ {
		ZeroHash[i] = 0
		InvalidHash[i] = 0xFF
	}
}

// HashB calculates hash(b) and returns the resulting bytes.
func HashB(b []byte) []byte {
	hash := sha256.Sum256(b)
	return hash[:]
}

// HashH calculates hash(b) and returns the resulting bytes as a Hash.
func HashH(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// DoubleHashB calculates hash(hash(b)) and returns the resulting bytes.
func DoubleHashB(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// DoubleHashH calculates hash(hash(b)) and returns the resulting bytes as a
// Hash.
func DoubleHashH(b []byte) Hash {
	first := sha256.Sum256(b)
	return Hash(sha256.Sum256(first[:]))
}

// ContentHash computes a non-consensus identity digest over b.  It is used
// for template content identity (cache-version tokens), never for header
// hashing, so it intentionally uses a different function than the consensus
// double SHA256.
func ContentHash(b []byte) Hash {
	return sha3.Sum256(b)
}

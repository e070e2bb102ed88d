package utils

import (
	"errors"
)

// ErrNoMerkleLeaves is returned when a merkle root is requested for an empty
// leaf set.  A block always carries at least its coinbase leaf, so this only
// occurs on caller misuse.
var ErrNoMerkleLeaves = errors.New("no merkle leaves to combine")

// MerkleLeafFromRaw derives the working-order merkle leaf for a transaction
// whose raw serialized bytes are available: the byte-reversed double SHA256
// of the raw transaction.
func MerkleLeafFromRaw(raw []byte) Hash {
	var leaf Hash
	copy(leaf[:], ReverseBytes(DoubleHashB(raw)))
	return leaf
}

// MerkleLeafFromTxID derives the working-order merkle leaf from an already
// known transaction id (internal byte order) when the raw bytes are not
// available.
func MerkleLeafFromTxID(txid Hash) Hash {
	var leaf Hash
	copy(leaf[:], ReverseBytes(txid[:]))
	return leaf
}

// hashMerkleBranches combines the left and right working-order nodes into the
// parent node: the byte-reversed double SHA256 of their concatenation.
func hashMerkleBranches(left *Hash, right *Hash) *Hash {
	// Concatenate the left and right nodes.
	var hash [HashSize * 2]byte
	copy(hash[:HashSize], left[:])
	copy(hash[HashSize:], right[:])

	var parent Hash
	copy(parent[:], ReverseBytes(DoubleHashB(hash[:])))
	return &parent
}

// BuildMerkleTreeStore combines the working-order leaves (coinbase leaf
// first, one leaf per transaction, see MerkleLeafFromRaw and
// MerkleLeafFromTxID) pairwise per level until a single value remains.  A
// level with an odd count duplicates its last node.  The returned Hash holds
// the reduced value; its String form is the byte-reversed display root.
//
// Recomputing the root for the same leaves always yields identical bytes, so
// callers may memoize the result keyed on the leaf set.
func BuildMerkleTreeStore(leaves []Hash) (Hash, error) {
	if len(leaves) == 0 {
		return Hash{}, ErrNoMerkleLeaves
	}

	level := make([]*Hash, len(leaves))
	for i := range leaves {
		leaf := leaves[i]
		level[i] = &leaf
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]*Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, hashMerkleBranches(level[i], level[i+1]))
		}
		level = next
	}

	return *level[0], nil
}

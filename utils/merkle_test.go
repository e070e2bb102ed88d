package utils

import (
	"testing"
)

// Reference roots computed independently with the same leaf and branch rules.
func TestBuildMerkleTreeStore(t *testing.T) {
	alpha := []byte("alpha")
	beta := []byte("beta")
	gamma := []byte("gamma")

	t.Run("single_leaf", func(t *testing.T) {
		root, err := BuildMerkleTreeStore([]Hash{MerkleLeafFromRaw(alpha)})
		if err != nil {
			t.Fatal(err)
		}
		want := "aa86be763e41db7eaae266afc79ab46d02343c5d3b05da171d351afbd25c1525"
		if root.String() != want {
			t.Errorf("root mismatch: got %s, want %s", root.String(), want)
		}
	})

	t.Run("pair", func(t *testing.T) {
		leaves := []Hash{MerkleLeafFromRaw(alpha), MerkleLeafFromRaw(beta)}
		root, err := BuildMerkleTreeStore(leaves)
		if err != nil {
			t.Fatal(err)
		}
		want := "7c912f10ec10f5205f3f301ec8005cb69b9f3d5ae9211cba844adb0e9f0cf0cc"
		if root.String() != want {
			t.Errorf("root mismatch: got %s, want %s", root.String(), want)
		}
	})

	t.Run("odd_count_duplicates_last", func(t *testing.T) {
		leaves := []Hash{
			MerkleLeafFromRaw(alpha),
			MerkleLeafFromRaw(beta),
			MerkleLeafFromRaw(gamma),
		}
		root, err := BuildMerkleTreeStore(leaves)
		if err != nil {
			t.Fatal(err)
		}
		want := "c00608218f2f73241d9cc2fe2be45a6b9034702c8a674688a27c6ea23881f7a1"
		if root.String() != want {
			t.Errorf("root mismatch: got %s, want %s", root.String(), want)
		}

		// Explicit duplication of the last leaf must give the same root.
		dup := append(leaves, leaves[2])
		dupRoot, err := BuildMerkleTreeStore(dup)
		if err != nil {
			t.Fatal(err)
		}
		if !root.IsEqual(&dupRoot) {
			t.Errorf("odd-count root %s differs from explicit duplication %s",
				root.String(), dupRoot.String())
		}
	})

	t.Run("empty_leaves", func(t *testing.T) {
		if _, err := BuildMerkleTreeStore(nil); err != ErrNoMerkleLeaves {
			t.Errorf("expected ErrNoMerkleLeaves, got %v", err)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		leaves := []Hash{MerkleLeafFromRaw(alpha), MerkleLeafFromRaw(beta)}
		first, _ := BuildMerkleTreeStore(leaves)
		second, _ := BuildMerkleTreeStore(leaves)
		if !first.IsEqual(&second) {
			t.Error("recomputed root differs for identical leaves")
		}
	})
}

// A leaf from a known txid must equal the leaf derived from the raw bytes the
// txid identifies.
func TestMerkleLeafEquivalence(t *testing.T) {
	raw := []byte("some raw transaction bytes")

	var txid Hash
	if err := txid.SetBytes(DoubleHashB(raw)); err != nil {
		t.Fatal(err)
	}

	fromRaw := MerkleLeafFromRaw(raw)
	fromID := MerkleLeafFromTxID(txid)
	if !fromRaw.IsEqual(&fromID) {
		t.Errorf("leaf from raw %s differs from leaf from txid %s",
			fromRaw.String(), fromID.String())
	}
}

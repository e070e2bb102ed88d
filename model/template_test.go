package model

import (
	"math/big"
	"testing"
	"time"

	"github.com/matrixbuilderops/solominerd/utils"
)

func testTemplate(t *testing.T) *Template {
	t.Helper()
	var prev utils.Hash
	if err := utils.Decode(&prev,
		"000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"); err != nil {
		t.Fatal(err)
	}
	return &Template{
		Height:       100,
		PreviousHash: prev,
		Bits:         0x1f00ffff,
		Version:      0x20000000,
		CurTime:      time.Unix(1700000000, 0),
		Coinbase:     []byte("test coinbase"),
	}
}

func TestTemplateDerived(t *testing.T) {
	t.Run("merkle_root", func(t *testing.T) {
		tmpl := testTemplate(t)
		derived, err := tmpl.Derived()
		if err != nil {
			t.Fatal(err)
		}

		// Single-leaf reference root for the test coinbase.
		want := "f1fcacb863feb26d585dfcc920159f8ffed32e9569e86e442c7e291167ca7347"
		if derived.MerkleRoot.String() != want {
			t.Errorf("merkle root: got %s, want %s",
				derived.MerkleRoot.String(), want)
		}
		if len(derived.MerkleLeaves) != 1 {
			t.Errorf("leaf count: got %d, want 1", len(derived.MerkleLeaves))
		}
		if derived.Token != tmpl.ContentToken() {
			t.Error("derived cache token does not match the content token")
		}
	})

	t.Run("memoized", func(t *testing.T) {
		tmpl := testTemplate(t)
		first, err := tmpl.Derived()
		if err != nil {
			t.Fatal(err)
		}
		second, err := tmpl.Derived()
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Error("derived cache rebuilt for unchanged content")
		}
	})

	t.Run("rebuilt_on_content_change", func(t *testing.T) {
		tmpl := testTemplate(t)
		first, err := tmpl.Derived()
		if err != nil {
			t.Fatal(err)
		}

		tmpl.Transactions = append(tmpl.Transactions,
			Transaction{Raw: []byte("extra transaction")})
		second, err := tmpl.Derived()
		if err != nil {
			t.Fatal(err)
		}
		if first == second {
			t.Error("derived cache not invalidated by content change")
		}
		if second.MerkleRoot.IsEqual(&first.MerkleRoot) {
			t.Error("merkle root unchanged after adding a transaction")
		}
		if len(second.MerkleLeaves) != 2 {
			t.Errorf("leaf count: got %d, want 2", len(second.MerkleLeaves))
		}
	})

	t.Run("txid_only_transaction", func(t *testing.T) {
		tmpl := testTemplate(t)
		var txid utils.Hash
		if err := txid.SetBytes(utils.DoubleHashB([]byte("some tx"))); err != nil {
			t.Fatal(err)
		}
		tmpl.Transactions = []Transaction{{TxID: &txid}}

		derived, err := tmpl.Derived()
		if err != nil {
			t.Fatal(err)
		}
		if len(derived.MerkleLeaves) != 2 {
			t.Errorf("leaf count: got %d, want 2", len(derived.MerkleLeaves))
		}
		// Txid-only transactions have no serialized form.
		if derived.TxHex[0] != "" {
			t.Errorf("txid-only transaction has hex %q", derived.TxHex[0])
		}
	})

	t.Run("transaction_without_identity", func(t *testing.T) {
		tmpl := testTemplate(t)
		tmpl.Transactions = []Transaction{{}}
		if _, err := tmpl.Derived(); err == nil {
			t.Error("transaction with neither raw nor txid accepted")
		}
	})
}

func TestTemplateContentToken(t *testing.T) {
	base := testTemplate(t)

	mutations := map[string]func(*Template){
		"height":    func(c *Template) { c.Height++ },
		"bits":      func(c *Template) { c.Bits++ },
		"version":   func(c *Template) { c.Version++ },
		"curtime":   func(c *Template) { c.CurTime = c.CurTime.Add(time.Second) },
		"coinbase":  func(c *Template) { c.Coinbase = append(c.Coinbase, 0x01) },
		"synthetic": func(c *Template) { c.Synthetic = true },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := testTemplate(t)
			mutate(changed)
			if changed.ContentToken() == base.ContentToken() {
				t.Errorf("token unchanged after %s mutation", name)
			}
		})
	}

	t.Run("stable", func(t *testing.T) {
		if base.ContentToken() != testTemplate(t).ContentToken() {
			t.Error("identical templates yield different tokens")
		}
	})
}

func TestTemplateTarget(t *testing.T) {
	powLimit := new(big.Int).Lsh(big.NewInt(0xffff), 208)

	t.Run("bits_take_precedence", func(t *testing.T) {
		tmpl := testTemplate(t)
		tmpl.Difficulty = 4
		target, err := tmpl.Target(powLimit)
		if err != nil {
			t.Fatal(err)
		}
		if target.Cmp(utils.CompactToBig(tmpl.Bits)) != 0 {
			t.Error("bits did not take precedence over difficulty")
		}
	})

	t.Run("difficulty_fallback", func(t *testing.T) {
		tmpl := testTemplate(t)
		tmpl.Bits = 0
		tmpl.Difficulty = 2
		target, err := tmpl.Target(powLimit)
		if err != nil {
			t.Fatal(err)
		}
		want := new(big.Int).Div(powLimit, big.NewInt(2))
		if target.Cmp(want) != 0 {
			t.Errorf("got %x, want %x", target, want)
		}
	})

	t.Run("no_target", func(t *testing.T) {
		tmpl := testTemplate(t)
		tmpl.Bits = 0
		tmpl.Difficulty = 0
		if _, err := tmpl.Target(powLimit); err != ErrNoTarget {
			t.Errorf("expected ErrNoTarget, got %v", err)
		}
	})
}

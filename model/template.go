package model

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/matrixbuilderops/solominerd/utils"
)

// ErrNoTarget is returned when a template carries neither compact bits nor a
// difficulty value, so no target integer can be derived from it.
var ErrNoTarget = errors.New("template has neither bits nor difficulty")

// Transaction is one template transaction.  Raw serialized bytes are
// preferred; when only the txid is known (internal byte order), the merkle
// leaf is derived from it instead.
type Transaction struct {
	Raw  []byte      `json:"raw,omitempty"`
	TxID *utils.Hash `json:"txid,omitempty"`
}

// DerivedCache holds the values that are O(n) in the transaction count and
// must never be recomputed per nonce: the coinbase hex, the merkle leaves,
// the merkle root, and the per-transaction hex.  The cache is valid only
// while Token matches the owning template's content token.
type DerivedCache struct {
	Token        utils.Hash
	CoinbaseHex  string
	MerkleLeaves []utils.Hash
	MerkleRoot   utils.Hash
	TxHex        []string
}

// Template is the canonical description of a unit of work.  It is owned by
// the template manager and shared by reference with workers; all fields are
// set before publication and treated as immutable afterwards, which is what
// makes the atomic hot-swap safe.
type Template struct {
	Height       int64      `json:"height"`
	PreviousHash utils.Hash `json:"previous_hash"`
	Bits         uint32     `json:"bits"`
	Difficulty   float64    `json:"difficulty,omitempty"`
	Version      int32      `json:"version"`
	CurTime      time.Time  `json:"curtime"`

	// Coinbase holds the resolved raw coinbase transaction bytes.
	Coinbase     []byte        `json:"coinbase"`
	Transactions []Transaction `json:"transactions"`

	// Synthetic marks a fallback template generated when no real template
	// could be obtained.  Candidates built on a synthetic template must
	// never be submitted.
	Synthetic bool `json:"synthetic,omitempty"`

	cacheMtx sync.Mutex
	derived  *DerivedCache
}

// ContentToken returns the identity digest of the template content.  Any
// template substitution yields a different token, which is what invalidates
// the derived cache.  The digest is non-consensus (see utils.ContentHash).
func (t *Template) ContentToken() utils.Hash {
	var buf []byte
	var scratch [8]byte

	binary.LittleEndian.PutUint64(scratch[:], uint64(t.Height))
	buf = append(buf, scratch[:]...)
	buf = append(buf, t.PreviousHash[:]...)
	binary.LittleEndian.PutUint32(scratch[:4], t.Bits)
	buf = append(buf, scratch[:4]...)
	binary.LittleEndian.PutUint32(scratch[:4], uint32(t.Version))
	buf = append(buf, scratch[:4]...)
	binary.LittleEndian.PutUint64(scratch[:], uint64(t.CurTime.Unix()))
	buf = append(buf, scratch[:]...)
	buf = append(buf, t.Coinbase...)
	for i := range t.Transactions {
		tx := &t.Transactions[i]
		if len(tx.Raw) > 0 {
			buf = append(buf, tx.Raw...)
		} else if tx.TxID != nil {
			buf = append(buf, tx.TxID[:]...)
		}
	}
	if t.Synthetic {
		buf = append(buf, 0x01)
	}

	return utils.ContentHash(buf)
}

// Derived returns the memoized derived cache, rebuilding it when the stored
// token no longer matches the template content.  The merkle root is only
// ever produced together with its source leaves.
func (t *Template) Derived() (*DerivedCache, error) {
	t.cacheMtx.Lock()
	defer t.cacheMtx.Unlock()

	token := t.ContentToken()
	if t.derived != nil && t.derived.Token == token {
		return t.derived, nil
	}

	leaves := make([]utils.Hash, 0, len(t.Transactions)+1)
	leaves = append(leaves, utils.MerkleLeafFromRaw(t.Coinbase))

	txHex := make([]string, 0, len(t.Transactions))
	for i := range t.Transactions {
		tx := &t.Transactions[i]
		switch {
		case len(tx.Raw) > 0:
			leaves = append(leaves, utils.MerkleLeafFromRaw(tx.Raw))
			txHex = append(txHex, hex.EncodeToString(tx.Raw))
		case tx.TxID != nil:
			leaves = append(leaves, utils.MerkleLeafFromTxID(*tx.TxID))
			txHex = append(txHex, "")
		default:
			return nil, errors.New("transaction carries neither raw bytes nor txid")
		}
	}

	root, err := utils.BuildMerkleTreeStore(leaves)
	if err != nil {
		return nil, err
	}

	log.Tracef("Rebuilt derived cache for template at height %d (token %s)",
		t.Height, token)

	t.derived = &DerivedCache{
		Token:        token,
		CoinbaseHex:  hex.EncodeToString(t.Coinbase),
		MerkleLeaves: leaves,
		MerkleRoot:   root,
		TxHex:        txHex,
	}
	return t.derived, nil
}

// Target returns the target integer candidates must fall below.  Compact
// bits take precedence; the difficulty-float form is used when bits are
// absent.  Both forms are interchangeable for the hash comparison.
func (t *Template) Target(powLimit *big.Int) (*big.Int, error) {
	if t.Bits != 0 {
		return utils.CompactToBig(t.Bits), nil
	}
	if t.Difficulty > 0 {
		return utils.DiffToTarget(t.Difficulty, powLimit)
	}
	return nil, ErrNoTarget
}

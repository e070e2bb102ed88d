// Package submitmgr re-derives candidate solutions independently of the
// worker that found them and authorizes submission.  A candidate is only
// forwarded upstream after the manager rebuilds the header from its own
// template reference, recomputes the hash, and re-checks both the target and
// the merkle root.
package submitmgr

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/matrixbuilderops/solominerd/chaincfg"
	"github.com/matrixbuilderops/solominerd/durastore"
	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/utils"
	"github.com/matrixbuilderops/solominerd/wire"
)

const component = "submitmgr"

// recentCacheSize bounds the duplicate-suppression cache.  At-least-once
// delivery on the candidate channel means the same candidate may be
// re-validated after a crash; the cache keeps re-validation from producing a
// second proof record or a second upstream submission.
const recentCacheSize = 512

// Submitter forwards an accepted block to the external submission
// collaborator.
type Submitter interface {
	SubmitBlock(serializedHex string) error
}

// Ledger is the append-only report/error collaborator.  Both calls are
// fire-and-forget.
type Ledger interface {
	RecordStatus(ctx context.Context, payload interface{}, component string)
	RecordError(ctx context.Context, payload interface{}, component string)
}

// Config carries the dependencies of a SubmitManager.
type Config struct {
	Store       *durastore.Store
	Layout      *fsbus.Layout
	ChainParams *chaincfg.Params

	// Submitter may be nil when no upstream is connected; validated
	// candidates are then persisted but not forwarded.
	Submitter Submitter

	// Ledger may be nil; the durable store remains the persistence floor.
	Ledger Ledger
}

// SubmitManager validates candidates and drives the submission pipeline.
type SubmitManager struct {
	cfg    Config
	recent *lru.Cache
}

// New returns a SubmitManager.
func New(cfg Config) (*SubmitManager, error) {
	cache, err := lru.New(recentCacheSize)
	if err != nil {
		return nil, err
	}
	return &SubmitManager{cfg: cfg, recent: cache}, nil
}

// Validate re-derives the candidate against the manager's own template
// reference and finalizes its status.  Rejections carry a reason code and
// are non-fatal to the worker: it logs them and resumes searching.
//
// On acceptance exactly one proof record is persisted, the ledger is
// notified, and the block is forwarded to the submitter unless the template
// is synthetic (which is rejected before any other check).
func (m *SubmitManager) Validate(candidate *model.CandidateSolution, t *model.Template) error {
	if candidate == nil {
		return errors.New("nil candidate")
	}
	if t == nil {
		candidate.Status = model.CandidateRejected
		candidate.Reason = model.ReasonMerkleMismatch
		return errors.New("no template to validate against")
	}

	// Candidates built on the synthetic fallback are never submittable.
	if t.Synthetic {
		candidate.Status = model.CandidateRejected
		candidate.Reason = model.ReasonSyntheticTemplate
		log.Warnf("Refusing candidate %s from worker %s: synthetic template",
			candidate.HashString(), candidate.WorkerID)
		return nil
	}

	// Duplicate of an already-validated candidate: report success without
	// a second proof record or submission.
	if m.recent.Contains(candidate.Hash) {
		candidate.Status = model.CandidateValidated
		log.Debugf("Candidate %s already validated, suppressing duplicate",
			candidate.HashString())
		return nil
	}

	derived, err := t.Derived()
	if err != nil {
		candidate.Status = model.CandidateRejected
		candidate.Reason = model.ReasonMerkleMismatch
		return err
	}

	// The declared merkle root must match the independently recomputed
	// one.  A candidate carried over from a different template fails
	// here.
	if !candidate.MerkleRoot.IsEqual(&derived.MerkleRoot) {
		m.reject(candidate, model.ReasonMerkleMismatch)
		return nil
	}

	// Rebuild the header with the candidate's nonce and recompute the
	// hash; the worker's claimed hash is not trusted.
	header := &wire.BlockHeader{
		Version:    t.Version,
		PrevBlock:  t.PreviousHash,
		MerkleRoot: derived.MerkleRoot,
		Timestamp:  t.CurTime,
		Bits:       t.Bits,
		Nonce:      candidate.Nonce,
	}
	hash := header.BlockHash()

	target, err := t.Target(m.cfg.ChainParams.PowLimit)
	if err != nil {
		m.reject(candidate, model.ReasonTargetNotMet)
		return err
	}
	if utils.HashToBig(&hash).Cmp(target) >= 0 {
		m.reject(candidate, model.ReasonTargetNotMet)
		return nil
	}

	// Accepted.
	candidate.Hash = hash
	candidate.Status = model.CandidateValidated
	candidate.Reason = model.ReasonNone
	candidate.HeaderHex = hex.EncodeToString(header.SerializeBytes())
	candidate.LeadingZeroBits = utils.LeadingZeroBits(hash)
	candidate.LeadingZeroHex = utils.LeadingZeroHexDigits(hash)

	blockHex, err := m.assembleBlock(header, t)
	if err != nil {
		log.Warnf("Candidate %s validated but block not assemblable: %v",
			candidate.HashString(), err)
	} else {
		candidate.BlockHex = blockHex
	}

	m.recent.Add(candidate.Hash, struct{}{})
	m.persistProof(candidate)
	m.forward(candidate)
	return nil
}

// ValidatePersisted runs the candidate records an out-of-process worker left
// in its candidate directory through Validate against t.  Workers persist a
// candidate before raising the candidate-ready signal, so this is the daemon
// side of the file-based submission path.  Records built on a different
// template are skipped as stale rather than rejected; re-delivery of an
// already-validated record is suppressed by the duplicate cache.
func (m *SubmitManager) ValidatePersisted(workerID string, t *model.Template) error {
	if t == nil {
		return errors.New("no template to validate against")
	}

	dir := m.cfg.Layout.CandidateDir(workerID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	token := t.ContentToken()
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "candidate") {
			continue
		}

		var candidate model.CandidateSolution
		if !m.cfg.Store.Read(filepath.Join(dir, name), &candidate, nil) {
			continue
		}
		if candidate.TemplateToken != token {
			log.Debugf("Skipping stale candidate record %s from worker %s",
				name, workerID)
			continue
		}

		if err := m.Validate(&candidate, t); err != nil {
			log.Errorf("Persisted candidate %s from worker %s failed validation: %v",
				name, workerID, err)
		}
	}
	return nil
}

// reject finalizes a failed candidate with its reason code.  Protocol
// violations are never silently accepted.
func (m *SubmitManager) reject(candidate *model.CandidateSolution, reason model.RejectReason) {
	candidate.Status = model.CandidateRejected
	candidate.Reason = reason
	log.Infof("Rejected candidate %s from worker %s: %s",
		candidate.HashString(), candidate.WorkerID, reason)

	if m.cfg.Ledger != nil {
		m.cfg.Ledger.RecordError(context.Background(), candidate, component)
	}
}

// persistProof writes the single proof record for a validated candidate.
func (m *SubmitManager) persistProof(candidate *model.CandidateSolution) {
	location := filepath.Join(m.cfg.Layout.CandidateDir(candidate.WorkerID),
		fmt.Sprintf("proof_%s.json", candidate.HashString()))
	outcome := m.cfg.Store.Write(location, candidate, component)
	log.Infof("Proof record for %s persisted on tier %s",
		candidate.HashString(), outcome.Tier)

	if m.cfg.Ledger != nil {
		m.cfg.Ledger.RecordStatus(context.Background(), candidate, component)
	}
}

// forward hands the accepted candidate to the external submission
// collaborator.
func (m *SubmitManager) forward(candidate *model.CandidateSolution) {
	if m.cfg.Submitter == nil {
		log.Warnf("No submitter connected, candidate %s retained locally",
			candidate.HashString())
		return
	}
	if candidate.BlockHex == "" {
		log.Warnf("Candidate %s has no assembled block, not forwarding",
			candidate.HashString())
		return
	}

	if err := m.cfg.Submitter.SubmitBlock(candidate.BlockHex); err != nil {
		log.Errorf("Submission of %s failed: %v", candidate.HashString(), err)
		if m.cfg.Ledger != nil {
			m.cfg.Ledger.RecordError(context.Background(),
				fmt.Sprintf("submit %s: %v", candidate.HashString(), err), component)
		}
		return
	}
	log.Infof("Candidate %s submitted upstream", candidate.HashString())
}

// assembleBlock serializes the full block when every transaction's raw bytes
// are available.  Templates populated from txid-only sources cannot be
// assembled into a submittable block.
func (m *SubmitManager) assembleBlock(header *wire.BlockHeader, t *model.Template) (string, error) {

	msg := wire.MsgBlock{Header: *header}
	msg.AddTransaction(t.Coinbase)
	for i := range t.Transactions {
		tx := &t.Transactions[i]
		if len(tx.Raw) == 0 {
			return "", fmt.Errorf("transaction %d has no raw bytes", i)
		}
		msg.AddTransaction(tx.Raw)
	}

	var buf bytes.Buffer
	buf.Grow(msg.SerializeSize())
	if err := msg.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

package model

import (
	"time"

	"github.com/matrixbuilderops/solominerd/utils"
)

// CandidateStatus is the lifecycle state of a candidate solution.
type CandidateStatus string

const (
	// CandidatePending marks a candidate produced by a worker but not yet
	// validated.
	CandidatePending CandidateStatus = "pending"

	// CandidateValidated marks a candidate whose hash and merkle root were
	// independently re-derived and accepted.
	CandidateValidated CandidateStatus = "validated"

	// CandidateRejected marks a candidate that failed re-validation.
	CandidateRejected CandidateStatus = "rejected"
)

// RejectReason explains why a candidate was rejected.  Protocol violations
// are always rejected explicitly with one of these codes, never silently
// dropped.
type RejectReason string

const (
	// ReasonNone is carried by candidates that are not rejected.
	ReasonNone RejectReason = ""

	// ReasonTargetNotMet means the recomputed hash does not fall below the
	// target.
	ReasonTargetNotMet RejectReason = "target_not_met"

	// ReasonMerkleMismatch means the declared merkle root does not match
	// the independently recomputed one.
	ReasonMerkleMismatch RejectReason = "merkle_mismatch"

	// ReasonSyntheticTemplate means the candidate was built on a synthetic
	// fallback template, which is never submittable.
	ReasonSyntheticTemplate RejectReason = "synthetic_template"
)

// CandidateSolution is a nonce/hash pair a worker believes satisfies the
// target, together with everything the validator and the submission pipeline
// need to re-derive and record it.
type CandidateSolution struct {
	Nonce uint32     `json:"nonce"`
	Hash  utils.Hash `json:"hash"`

	// Template identity the candidate was built against.
	TemplateToken utils.Hash `json:"template_token"`
	Height        int64      `json:"height"`
	PreviousHash  string     `json:"previous_block_hash"`
	MerkleRoot    utils.Hash `json:"merkle_root"`
	Bits          uint32     `json:"bits"`
	Target        string     `json:"target"`

	// Serialized forms: 160 hex chars for the 80 header bytes, plus the
	// full block when assembled for submission.
	HeaderHex string `json:"header_hex"`
	BlockHex  string `json:"block_hex,omitempty"`

	// Leading-zero accounting, bit-exact and display (hex digit) forms.
	LeadingZeroBits int `json:"leading_zero_bits"`
	LeadingZeroHex  int `json:"leading_zero_hex"`

	WorkerID  string    `json:"worker_id"`
	ProcessID int       `json:"process_id"`
	FoundAt   time.Time `json:"found_at"`

	Status CandidateStatus `json:"status"`
	Reason RejectReason    `json:"reason,omitempty"`
}

// HashString returns the display hex of the candidate hash.
func (c *CandidateSolution) HashString() string {
	return c.Hash.String()
}

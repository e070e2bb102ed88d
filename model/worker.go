package model

import (
	"time"

	"github.com/matrixbuilderops/solominerd/utils"
)

// WorkerHandle is the per-process bookkeeping for one worker.  The template
// field is a reference to the manager-owned template, never a copy, so a
// hot-swap becomes visible at the worker's next loop iteration without any
// explicit signaling.
type WorkerHandle struct {
	// ID is the permanent identifier of the worker process.
	ID        string
	ProcessID int

	// Template is the current work unit, nil while idle.
	Template *Template

	// Attempts counts hashes tried against the current template.
	Attempts uint64

	// Best-found bookkeeping.  Informational only: first-found remains
	// authoritative for submission.
	BestLeadingZeroBits int
	BestNonce           uint32
	BestHash            utils.Hash

	// FirstFound is the first candidate that passed the target for the
	// current template, nil until one is found.
	FirstFound *CandidateSolution

	// CommandCursor records when the command location was last polled,
	// enforcing the poll rate limit.
	CommandCursor time.Time
}

// ResetForTemplate clears the per-template bookkeeping when a new template
// is loaded.  First-found state from the prior template never carries over.
func (w *WorkerHandle) ResetForTemplate(t *Template) {
	w.Template = t
	w.Attempts = 0
	w.BestLeadingZeroBits = 0
	w.BestNonce = 0
	w.BestHash = utils.Hash{}
	w.FirstFound = nil
}

// WorkerState is the coordination state of a worker loop.
type WorkerState string

const (
	// WorkerIdle means no usable template is loaded.
	WorkerIdle WorkerState = "idle"

	// WorkerMining means the worker is actively searching against a
	// loaded template.
	WorkerMining WorkerState = "mining"
)

// WorkerStatus is the shared status telemetry a worker publishes after each
// batch.  Each worker writes to its own unique location; aggregates built
// from these records are idempotently recomputable, not strictly ordered.
type WorkerStatus struct {
	WorkerID            string      `json:"worker_id"`
	ProcessID           int         `json:"process_id"`
	State               WorkerState `json:"state"`
	Height              int64       `json:"height,omitempty"`
	TemplateToken       string      `json:"template_token,omitempty"`
	Synthetic           bool        `json:"synthetic,omitempty"`
	Difficulty          float64     `json:"difficulty,omitempty"`
	Attempts            uint64      `json:"attempts"`
	AttemptsPerSec      float64     `json:"attempts_per_sec"`
	BestLeadingZeroBits int         `json:"best_leading_zero_bits"`
	BestHash            string      `json:"best_hash,omitempty"`
	Paused              bool        `json:"paused"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

package submitmgr

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matrixbuilderops/solominerd/chaincfg"
	"github.com/matrixbuilderops/solominerd/durastore"
	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/utils"
)

// recordingSubmitter captures forwarded blocks.
type recordingSubmitter struct {
	blocks []string
	err    error
}

func (s *recordingSubmitter) SubmitBlock(serializedHex string) error {
	if s.err != nil {
		return s.err
	}
	s.blocks = append(s.blocks, serializedHex)
	return nil
}

func testTemplate(t *testing.T) *model.Template {
	t.Helper()
	var prev utils.Hash
	if err := utils.Decode(&prev,
		"000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"); err != nil {
		t.Fatal(err)
	}
	return &model.Template{
		Height:       100,
		PreviousHash: prev,
		Bits:         0x1f00ffff,
		Version:      0x20000000,
		CurTime:      time.Unix(1700000000, 0),
		Coinbase:     []byte("test coinbase"),
	}
}

// testCandidate builds a candidate claiming the given nonce against tmpl, the
// way a worker would.
func testCandidate(t *testing.T, tmpl *model.Template, nonce uint32) *model.CandidateSolution {
	t.Helper()
	derived, err := tmpl.Derived()
	if err != nil {
		t.Fatal(err)
	}
	return &model.CandidateSolution{
		Nonce:         nonce,
		TemplateToken: derived.Token,
		Height:        tmpl.Height,
		MerkleRoot:    derived.MerkleRoot,
		Bits:          tmpl.Bits,
		WorkerID:      "worker-test",
		Status:        model.CandidatePending,
	}
}

func newTestManager(t *testing.T, submitter Submitter) (*SubmitManager, *fsbus.Layout) {
	t.Helper()

	layout := fsbus.NewLayout(filepath.Join(t.TempDir(), "coordination"))
	if err := layout.Provision([]string{"worker-test"}); err != nil {
		t.Fatal(err)
	}

	mgr, err := New(Config{
		Store:       durastore.New(layout.BackupDir(), layout.EmergencyDir()),
		Layout:      layout,
		ChainParams: &chaincfg.MainNetParams,
		Submitter:   submitter,
	})
	if err != nil {
		t.Fatal(err)
	}
	return mgr, layout
}

func TestValidate(t *testing.T) {
	// Nonce 25574 is the precomputed first qualifying nonce for the test
	// template; every nonce below it fails the target.
	const goodNonce = 25574

	t.Run("accepts_valid_candidate", func(t *testing.T) {
		submitter := &recordingSubmitter{}
		mgr, layout := newTestManager(t, submitter)
		tmpl := testTemplate(t)
		candidate := testCandidate(t, tmpl, goodNonce)

		if err := mgr.Validate(candidate, tmpl); err != nil {
			t.Fatal(err)
		}
		if candidate.Status != model.CandidateValidated {
			t.Fatalf("status %s, reason %s", candidate.Status, candidate.Reason)
		}

		// The hash is recomputed, never trusted from the worker.
		want := "000027c3a0c45506de273bcc194ed97d30cd59ed97d3d4fd8742cdeacb42cc2e"
		if candidate.HashString() != want {
			t.Errorf("hash: got %s, want %s", candidate.HashString(), want)
		}
		if candidate.LeadingZeroBits != 18 || candidate.LeadingZeroHex != 4 {
			t.Errorf("leading zeros: %d bits, %d hex digits",
				candidate.LeadingZeroBits, candidate.LeadingZeroHex)
		}
		if len(candidate.HeaderHex) != 160 {
			t.Errorf("header hex length %d", len(candidate.HeaderHex))
		}
		if candidate.BlockHex == "" {
			t.Error("block not assembled")
		}

		// One proof record, one submission.
		proof := filepath.Join(layout.CandidateDir("worker-test"),
			"proof_"+want+".json")
		if _, err := os.Stat(proof); err != nil {
			t.Errorf("proof record missing: %v", err)
		}
		if len(submitter.blocks) != 1 || submitter.blocks[0] != candidate.BlockHex {
			t.Errorf("submitted %d blocks", len(submitter.blocks))
		}
	})

	t.Run("rejects_target_not_met", func(t *testing.T) {
		mgr, _ := newTestManager(t, nil)
		tmpl := testTemplate(t)
		candidate := testCandidate(t, tmpl, 0)

		if err := mgr.Validate(candidate, tmpl); err != nil {
			t.Fatal(err)
		}
		if candidate.Status != model.CandidateRejected ||
			candidate.Reason != model.ReasonTargetNotMet {
			t.Errorf("status %s, reason %s", candidate.Status, candidate.Reason)
		}
	})

	t.Run("rejects_merkle_mismatch", func(t *testing.T) {
		mgr, _ := newTestManager(t, nil)
		tmpl := testTemplate(t)
		candidate := testCandidate(t, tmpl, goodNonce)

		// A candidate carried over from a different template declares a
		// stale merkle root.
		candidate.MerkleRoot[0] ^= 0xff

		if err := mgr.Validate(candidate, tmpl); err != nil {
			t.Fatal(err)
		}
		if candidate.Status != model.CandidateRejected ||
			candidate.Reason != model.ReasonMerkleMismatch {
			t.Errorf("status %s, reason %s", candidate.Status, candidate.Reason)
		}
	})

	t.Run("rejects_synthetic_before_other_checks", func(t *testing.T) {
		submitter := &recordingSubmitter{}
		mgr, _ := newTestManager(t, submitter)
		tmpl := testTemplate(t)
		tmpl.Synthetic = true

		// Even a candidate that would pass every other check is refused.
		candidate := testCandidate(t, tmpl, goodNonce)
		if err := mgr.Validate(candidate, tmpl); err != nil {
			t.Fatal(err)
		}
		if candidate.Status != model.CandidateRejected ||
			candidate.Reason != model.ReasonSyntheticTemplate {
			t.Errorf("status %s, reason %s", candidate.Status, candidate.Reason)
		}
		if len(submitter.blocks) != 0 {
			t.Error("synthetic candidate was submitted")
		}
	})

	t.Run("suppresses_duplicate", func(t *testing.T) {
		submitter := &recordingSubmitter{}
		mgr, layout := newTestManager(t, submitter)
		tmpl := testTemplate(t)

		first := testCandidate(t, tmpl, goodNonce)
		if err := mgr.Validate(first, tmpl); err != nil {
			t.Fatal(err)
		}

		// At-least-once delivery re-validates the same candidate after a
		// crash: it reports success without a second submission.
		redelivered := testCandidate(t, tmpl, goodNonce)
		redelivered.Hash = first.Hash
		if err := mgr.Validate(redelivered, tmpl); err != nil {
			t.Fatal(err)
		}
		if redelivered.Status != model.CandidateValidated {
			t.Errorf("duplicate status %s", redelivered.Status)
		}
		if len(submitter.blocks) != 1 {
			t.Errorf("submitted %d blocks, want 1", len(submitter.blocks))
		}

		entries, err := os.ReadDir(layout.CandidateDir("worker-test"))
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("%d proof records, want 1", len(entries))
		}
	})

	t.Run("nil_inputs", func(t *testing.T) {
		mgr, _ := newTestManager(t, nil)
		if err := mgr.Validate(nil, testTemplate(t)); err == nil {
			t.Error("nil candidate accepted")
		}
		if err := mgr.Validate(testCandidate(t, testTemplate(t), 0), nil); err == nil {
			t.Error("nil template accepted")
		}
	})

	t.Run("submitter_failure_is_non_fatal", func(t *testing.T) {
		submitter := &recordingSubmitter{err: errors.New("upstream down")}
		mgr, layout := newTestManager(t, submitter)
		tmpl := testTemplate(t)
		candidate := testCandidate(t, tmpl, goodNonce)

		// The proof record survives even when forwarding fails.
		if err := mgr.Validate(candidate, tmpl); err != nil {
			t.Fatal(err)
		}
		if candidate.Status != model.CandidateValidated {
			t.Errorf("status %s", candidate.Status)
		}
		entries, err := os.ReadDir(layout.CandidateDir("worker-test"))
		if err != nil || len(entries) != 1 {
			t.Errorf("proof record missing after submit failure: %v", err)
		}
	})

	t.Run("persisted_records_enter_pipeline", func(t *testing.T) {
		// An out-of-process worker persists its candidate record and
		// raises a signal; the daemon picks the record up from the
		// candidate directory and drives it through the pipeline.
		submitter := &recordingSubmitter{}
		mgr, layout := newTestManager(t, submitter)
		tmpl := testTemplate(t)

		candidate := testCandidate(t, tmpl, goodNonce)
		location := durastore.UniqueLocation(
			layout.CandidateDir("worker-test"), "candidate.json")
		mgr.cfg.Store.Write(location, candidate, "test")

		if err := mgr.ValidatePersisted("worker-test", tmpl); err != nil {
			t.Fatal(err)
		}
		if len(submitter.blocks) != 1 {
			t.Fatalf("submitted %d blocks, want 1", len(submitter.blocks))
		}
		want := "000027c3a0c45506de273bcc194ed97d30cd59ed97d3d4fd8742cdeacb42cc2e"
		proof := filepath.Join(layout.CandidateDir("worker-test"),
			"proof_"+want+".json")
		if _, err := os.Stat(proof); err != nil {
			t.Errorf("proof record missing: %v", err)
		}

		// Re-scanning after a crash re-reads the same record; the
		// duplicate cache keeps it from submitting twice.
		if err := mgr.ValidatePersisted("worker-test", tmpl); err != nil {
			t.Fatal(err)
		}
		if len(submitter.blocks) != 1 {
			t.Errorf("rescan submitted %d blocks, want 1", len(submitter.blocks))
		}
	})

	t.Run("persisted_stale_and_corrupt_records_skipped", func(t *testing.T) {
		submitter := &recordingSubmitter{}
		mgr, layout := newTestManager(t, submitter)
		tmpl := testTemplate(t)
		dir := layout.CandidateDir("worker-test")

		// A record built on an older template declares a different
		// content token.
		stale := testTemplate(t)
		stale.Height = 99
		staleCandidate := testCandidate(t, stale, goodNonce)
		mgr.cfg.Store.Write(durastore.UniqueLocation(dir, "candidate.json"),
			staleCandidate, "test")

		if err := os.WriteFile(filepath.Join(dir, "candidate.json_junk.json"),
			[]byte("{broken"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := mgr.ValidatePersisted("worker-test", tmpl); err != nil {
			t.Fatal(err)
		}
		if len(submitter.blocks) != 0 {
			t.Error("stale or corrupt record was submitted")
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), "proof_") {
				t.Errorf("proof record written for %s", entry.Name())
			}
		}

		if err := mgr.ValidatePersisted("worker-test", nil); err == nil {
			t.Error("nil template accepted")
		}
	})

	t.Run("unassemblable_block_retained_locally", func(t *testing.T) {
		submitter := &recordingSubmitter{}
		mgr, _ := newTestManager(t, submitter)
		tmpl := testTemplate(t)

		// A txid-only transaction cannot be serialized into a block.
		var txid utils.Hash
		if err := txid.SetBytes(utils.DoubleHashB([]byte("opaque tx"))); err != nil {
			t.Fatal(err)
		}
		tmpl.Transactions = []model.Transaction{{TxID: &txid}}

		// Nonce 0 qualifies under the regtest-grade target for this
		// header (precomputed reference value).
		tmpl.Bits = 0x207fffff
		candidate := testCandidate(t, tmpl, 0)
		if err := mgr.Validate(candidate, tmpl); err != nil {
			t.Fatal(err)
		}
		if candidate.Status != model.CandidateValidated {
			t.Fatalf("status %s, reason %s", candidate.Status, candidate.Reason)
		}
		if candidate.BlockHex != "" {
			t.Error("txid-only template produced an assembled block")
		}
		if len(submitter.blocks) != 0 {
			t.Error("unassemblable candidate was forwarded")
		}
	})
}

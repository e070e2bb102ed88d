package workermgr

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matrixbuilderops/solominerd/chaincfg"
	"github.com/matrixbuilderops/solominerd/durastore"
	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/utils"
)

// recordingSink captures the candidates handed to the validation pipeline.
type recordingSink struct {
	candidates []*model.CandidateSolution
}

func (s *recordingSink) Validate(candidate *model.CandidateSolution, t *model.Template) error {
	s.candidates = append(s.candidates, candidate)
	return nil
}

// stubSource delivers a fixed template once, then reports nothing pending.
type stubSource struct {
	pending *model.Template
}

func (s *stubSource) Poll() (*model.Template, error) {
	t := s.pending
	s.pending = nil
	return t, nil
}

func testTemplate(t *testing.T, bits uint32) *model.Template {
	t.Helper()
	var prev utils.Hash
	if err := utils.Decode(&prev,
		"000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"); err != nil {
		t.Fatal(err)
	}
	return &model.Template{
		Height:       100,
		PreviousHash: prev,
		Bits:         bits,
		Version:      0x20000000,
		CurTime:      time.Unix(1700000000, 0),
		Coinbase:     []byte("test coinbase"),
	}
}

func newTestWorker(t *testing.T, sink CandidateSink) (*Worker, *fsbus.Layout) {
	t.Helper()

	layout := fsbus.NewLayout(filepath.Join(t.TempDir(), "coordination"))
	w := New(Config{
		ID:                  "worker-test",
		Layout:              layout,
		Store:               durastore.New(layout.BackupDir(), layout.EmergencyDir()),
		ChainParams:         &chaincfg.MainNetParams,
		Sink:                sink,
		CommandPollInterval: time.Millisecond,
		IdleInterval:        time.Millisecond,
	})
	if err := layout.Provision([]string{w.ID()}); err != nil {
		t.Fatal(err)
	}
	return w, layout
}

func TestMineBatch(t *testing.T) {
	t.Run("finds_known_nonce", func(t *testing.T) {
		// For this fixed header prefix the first qualifying nonce under
		// the 0x1f00ffff target is a precomputed reference value.
		sink := &recordingSink{}
		w, layout := newTestWorker(t, sink)
		w.handle.ResetForTemplate(testTemplate(t, 0x1f00ffff))

		w.mineBatch(30000, time.Time{})

		found := w.handle.FirstFound
		if found == nil {
			t.Fatal("no candidate found in batch")
		}
		if found.Nonce != 25574 {
			t.Errorf("nonce: got %d, want 25574", found.Nonce)
		}
		want := "000027c3a0c45506de273bcc194ed97d30cd59ed97d3d4fd8742cdeacb42cc2e"
		if found.HashString() != want {
			t.Errorf("hash: got %s, want %s", found.HashString(), want)
		}
		if found.LeadingZeroBits != 18 {
			t.Errorf("leading zero bits: got %d, want 18", found.LeadingZeroBits)
		}
		if len(found.HeaderHex) != 160 {
			t.Errorf("header hex length: got %d, want 160", len(found.HeaderHex))
		}
		if found.WorkerID != "worker-test" {
			t.Errorf("worker id %q", found.WorkerID)
		}

		// The candidate reached the pipeline and was persisted durably
		// beforehand.
		if len(sink.candidates) != 1 || sink.candidates[0] != found {
			t.Errorf("pipeline received %d candidates", len(sink.candidates))
		}
		entries, err := os.ReadDir(layout.CandidateDir(w.ID()))
		if err != nil || len(entries) == 0 {
			t.Errorf("candidate not persisted: %v", err)
		}
		ready := fsbus.NewSignalChannel(layout.SignalsDir(),
			fsbus.CandidateReadySignal(w.ID()))
		if !ready.IsRaised() {
			t.Error("candidate-ready signal not raised")
		}

		// Best-found telemetry tracks at least the found candidate.
		if w.handle.BestLeadingZeroBits < 18 {
			t.Errorf("best leading zero bits %d", w.handle.BestLeadingZeroBits)
		}
	})

	t.Run("first_found_is_authoritative", func(t *testing.T) {
		sink := &recordingSink{}
		w, _ := newTestWorker(t, sink)
		w.handle.ResetForTemplate(testTemplate(t, 0x1f00ffff))

		w.mineBatch(30000, time.Time{})
		first := w.handle.FirstFound
		if first == nil {
			t.Fatal("no candidate found")
		}

		// Later batches may hit further qualifying nonces; none of them
		// replace the first find.
		w.mineBatch(100000, time.Time{})
		if w.handle.FirstFound != first {
			t.Error("first-found candidate was replaced")
		}
		if len(sink.candidates) != 1 {
			t.Errorf("pipeline received %d candidates, want 1", len(sink.candidates))
		}
	})

	t.Run("batch_bound_respected", func(t *testing.T) {
		w, _ := newTestWorker(t, nil)
		w.handle.ResetForTemplate(testTemplate(t, 0x1f00ffff))

		w.mineBatch(1000, time.Time{})
		if w.handle.Attempts != 1000 {
			t.Errorf("attempts: got %d, want 1000", w.handle.Attempts)
		}
		if w.nonce != 1000 {
			t.Errorf("next nonce: got %d, want 1000", w.nonce)
		}
		if w.handle.FirstFound != nil {
			t.Error("found a candidate below nonce 25574")
		}
	})

	t.Run("nonce_exhaustion_drops_template", func(t *testing.T) {
		w, _ := newTestWorker(t, nil)
		// Compact 0x03000001 is the target value 1, which no hash can
		// fall below.
		w.handle.ResetForTemplate(testTemplate(t, 0x03000001))
		w.nonce = 0xffffff00

		w.mineBatch(1024, time.Time{})
		if w.handle.Template != nil {
			t.Error("template not dropped after nonce space exhaustion")
		}
		if w.handle.FirstFound != nil {
			t.Error("impossible target produced a candidate")
		}
	})

	t.Run("deadline_bounds_instant_pass", func(t *testing.T) {
		w, _ := newTestWorker(t, nil)
		w.handle.ResetForTemplate(testTemplate(t, 0x03000001))

		start := time.Now()
		w.mineBatch(0, start.Add(50*time.Millisecond))
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("instant pass ran %v past its deadline", elapsed)
		}
		if w.handle.Attempts == 0 {
			t.Error("instant pass made no attempts")
		}
	})
}

func TestPollTemplate(t *testing.T) {
	t.Run("hot_swap_resets_state", func(t *testing.T) {
		w, _ := newTestWorker(t, nil)
		source := &stubSource{pending: testTemplate(t, 0x1f00ffff)}
		w.cfg.Templates = source

		w.nonce = 12345
		w.pollTemplate()
		if w.handle.Template == nil {
			t.Fatal("template not installed")
		}
		if w.nonce != 0 {
			t.Error("nonce not reset on template swap")
		}
	})

	t.Run("identical_token_keeps_progress", func(t *testing.T) {
		w, _ := newTestWorker(t, nil)
		tmpl := testTemplate(t, 0x1f00ffff)
		w.handle.ResetForTemplate(tmpl)
		w.nonce = 777

		same := testTemplate(t, 0x1f00ffff)
		w.cfg.Templates = &stubSource{pending: same}
		w.pollTemplate()
		if w.nonce != 777 {
			t.Error("identical template reset the search position")
		}
		if w.handle.Template != tmpl {
			t.Error("identical template replaced the reference")
		}
	})

	t.Run("nothing_pending", func(t *testing.T) {
		w, _ := newTestWorker(t, nil)
		tmpl := testTemplate(t, 0x1f00ffff)
		w.handle.ResetForTemplate(tmpl)
		w.cfg.Templates = &stubSource{}

		w.pollTemplate()
		if w.handle.Template != tmpl {
			t.Error("empty poll disturbed the current template")
		}
	})
}

func TestPollCommand(t *testing.T) {
	send := func(t *testing.T, w *Worker, kind model.CommandKind) {
		t.Helper()
		if err := w.cfg.Commands.Send(model.NewCommand(kind)); err != nil {
			t.Fatal(err)
		}
		// The cursor rate limit is bypassed so the test does not sleep.
		w.handle.CommandCursor = time.Time{}
		w.pollCommand()
	}

	newCommandWorker := func(t *testing.T) (*Worker, *fsbus.Layout) {
		w, layout := newTestWorker(t, nil)
		w.cfg.Commands = fsbus.NewCommandChannel(layout.CommandPath(w.ID()))
		return w, layout
	}

	t.Run("pause_and_stop", func(t *testing.T) {
		w, _ := newCommandWorker(t)

		send(t, w, model.CmdPause)
		if !w.paused {
			t.Error("pause command not applied")
		}

		send(t, w, model.CmdStop)
		if !w.stopping {
			t.Error("stop command not applied")
		}
	})

	t.Run("restart_with_fresh_template", func(t *testing.T) {
		w, _ := newCommandWorker(t)
		w.handle.ResetForTemplate(testTemplate(t, 0x1f00ffff))
		w.nonce = 999
		w.paused = true

		send(t, w, model.CmdRestartFreshTemplate)
		if w.handle.Template != nil {
			t.Error("template not dropped")
		}
		if w.nonce != 0 {
			t.Error("nonce not reset")
		}
		if w.paused {
			t.Error("pause not lifted")
		}
	})

	t.Run("acked_after_acting", func(t *testing.T) {
		w, _ := newCommandWorker(t)
		send(t, w, model.CmdSustainTarget)

		cmd, err := w.cfg.Commands.Receive()
		if err != nil || cmd != nil {
			t.Errorf("command not consumed: %+v, %v", cmd, err)
		}
	})

	t.Run("mine_instant_without_template", func(t *testing.T) {
		w, _ := newCommandWorker(t)
		// Must not panic or mine; there is nothing to mine against.
		send(t, w, model.CmdMineInstant)
		if w.handle.Attempts != 0 {
			t.Error("instant pass ran without a template")
		}
	})

	t.Run("rate_limited", func(t *testing.T) {
		w, _ := newCommandWorker(t)
		w.cfg.CommandPollInterval = time.Hour
		w.handle.CommandCursor = time.Now()

		if err := w.cfg.Commands.Send(model.NewCommand(model.CmdPause)); err != nil {
			t.Fatal(err)
		}
		w.pollCommand()
		if w.paused {
			t.Error("poll ran inside the rate limit window")
		}
	})
}

func TestPublishStatus(t *testing.T) {
	w, layout := newTestWorker(t, nil)
	w.handle.ResetForTemplate(testTemplate(t, 0x1f00ffff))
	w.handle.Attempts = 42

	w.publishStatus()

	var status model.WorkerStatus
	if !w.cfg.Store.Read(layout.ResultPath(w.ID()), &status, nil) {
		t.Fatal("status not published")
	}
	if status.WorkerID != w.ID() || status.State != model.WorkerMining {
		t.Errorf("published %+v", status)
	}
	if status.Attempts != 42 || status.Height != 100 {
		t.Errorf("published %+v", status)
	}
	if status.Difficulty <= 0 {
		t.Errorf("difficulty ratio not published: %+v", status)
	}
}

func TestAttemptCounter(t *testing.T) {
	counter := NewAttemptCounter()
	counter.AddAttempts(120)

	// Backdate creation so the window math sees elapsed time.
	counter.createTime = time.Now().Add(-10 * time.Second)
	got := counter.PerSecond()
	if got < 11 || got > 13 {
		t.Errorf("rate: got %.2f, want ~12", got)
	}
}

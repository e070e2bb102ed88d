package fsbus

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/utils"
)

func testTemplate() *model.Template {
	var prev utils.Hash
	_ = utils.Decode(&prev,
		"000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f")
	return &model.Template{
		Height:       100,
		PreviousHash: prev,
		Bits:         0x207fffff,
		Version:      0x20000000,
		CurTime:      time.Unix(1700000000, 0),
		Coinbase:     []byte("test coinbase"),
	}
}

func TestTemplateHandoff(t *testing.T) {
	t.Run("publish_consume", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "working_template.json")
		handoff := NewTemplateHandoff(path)

		published := testTemplate()
		if err := handoff.Publish(published); err != nil {
			t.Fatal(err)
		}

		consumed, err := handoff.Consume()
		if err != nil {
			t.Fatal(err)
		}
		if consumed == nil {
			t.Fatal("no template consumed")
		}
		if consumed.ContentToken() != published.ContentToken() {
			t.Errorf("token mismatch after handoff: %s vs %s",
				consumed.ContentToken(), published.ContentToken())
		}

		// Consumption removes the file.
		again, err := handoff.Consume()
		if err != nil || again != nil {
			t.Errorf("expected empty handoff, got (%+v, %v)", again, err)
		}
	})

	t.Run("publish_replaces_pending", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "working_template.json")
		handoff := NewTemplateHandoff(path)

		stale := testTemplate()
		if err := handoff.Publish(stale); err != nil {
			t.Fatal(err)
		}
		fresh := testTemplate()
		fresh.Height = 101
		if err := handoff.Publish(fresh); err != nil {
			t.Fatal(err)
		}

		consumed, err := handoff.Consume()
		if err != nil {
			t.Fatal(err)
		}
		if consumed.Height != 101 {
			t.Errorf("stale template delivered: height %d", consumed.Height)
		}
	})

	t.Run("no_temporary_leftovers", func(t *testing.T) {
		dir := t.TempDir()
		handoff := NewTemplateHandoff(filepath.Join(dir, "working_template.json"))
		if err := handoff.Publish(testTemplate()); err != nil {
			t.Fatal(err)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 {
			t.Errorf("expected only the handoff file, found %d entries", len(entries))
		}
	})

	t.Run("malformed_discarded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "working_template.json")
		if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
			t.Fatal(err)
		}

		handoff := NewTemplateHandoff(path)
		if _, err := handoff.Consume(); err == nil {
			t.Fatal("malformed handoff not reported")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("malformed handoff file not removed")
		}
	})
}

func TestSignalChannel(t *testing.T) {
	dir := t.TempDir()
	channel := NewSignalChannel(dir, "refresh_template")

	if channel.IsRaised() {
		t.Fatal("signal raised before Raise")
	}
	if err := channel.Raise(); err != nil {
		t.Fatal(err)
	}
	if !channel.IsRaised() {
		t.Fatal("signal not observed after Raise")
	}

	// Raising twice is a no-op.
	if err := channel.Raise(); err != nil {
		t.Fatal(err)
	}

	if err := channel.Lower(); err != nil {
		t.Fatal(err)
	}
	if channel.IsRaised() {
		t.Fatal("signal still raised after Lower")
	}

	// Lowering an already-lowered signal is harmless.
	if err := channel.Lower(); err != nil {
		t.Errorf("second lower: %v", err)
	}
}

func TestLayoutProvision(t *testing.T) {
	layout := NewLayout(filepath.Join(t.TempDir(), "coordination"))
	if err := layout.Provision([]string{"worker-1"}); err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{
		layout.BackupDir(),
		layout.WorkersDir(),
		layout.ControlDir(),
		layout.SignalsDir(),
		layout.EmergencyDir(),
		layout.WorkerDir("worker-1"),
		layout.CandidateDir("worker-1"),
	} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("%s not provisioned: %v", dir, err)
		}
	}

	// Re-provisioning an existing tree is idempotent.
	if err := layout.Provision([]string{"worker-1", "worker-2"}); err != nil {
		t.Errorf("re-provision failed: %v", err)
	}
}

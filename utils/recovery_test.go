package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMyRecover(t *testing.T) {
	old := panicFilename
	panicFilename = filepath.Join(t.TempDir(), "panic_dump")
	defer func() { panicFilename = old }()

	func() {
		defer MyRecover()
		panic("loop fault")
	}()

	// Reaching here means the panic was absorbed; the dump file carries
	// the panic value and a stack trace.
	matches, err := filepath.Glob(panicFilename + "_*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("found %d panic dumps, want 1", len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "loop fault") {
		t.Error("panic value missing from the dump")
	}
}

package fsbus

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const signalSuffix = ".signal"

// CandidateReadyPrefix prefixes the per-worker signal a worker raises after
// persisting a new candidate, so observers learn of it without polling the
// candidate directories.
const CandidateReadyPrefix = "candidate_ready_"

// CandidateReadySignal names the candidate-ready signal for workerID.
func CandidateReadySignal(workerID string) string {
	return CandidateReadyPrefix + workerID
}

// SignalChannel is a fire-and-forget notification: an empty marker file in
// the signals directory.  Raising an already-raised signal is a no-op, and a
// lost signal is recoverable because consumers also poll the state the
// signal advertises.
type SignalChannel struct {
	dir  string
	name string
}

// NewSignalChannel returns the signal named name in dir.
func NewSignalChannel(dir, name string) *SignalChannel {
	return &SignalChannel{dir: dir, name: name}
}

func (s *SignalChannel) path() string {
	return filepath.Join(s.dir, s.name+signalSuffix)
}

// Raise creates the marker file.
func (s *SignalChannel) Raise() error {
	f, err := os.OpenFile(s.path(), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Lower removes the marker file.
func (s *SignalChannel) Lower() error {
	err := os.Remove(s.path())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsRaised reports whether the marker file exists.
func (s *SignalChannel) IsRaised() bool {
	_, err := os.Stat(s.path())
	return err == nil
}

// SignalWatcher delivers the names of raised signals in a directory.  It
// prefers inotify via fsnotify and degrades to polling on filesystems where
// the watch cannot be established.
type SignalWatcher struct {
	dir          string
	pollInterval time.Duration

	watcher *fsnotify.Watcher
	signals chan string
	quit    chan struct{}
}

// NewSignalWatcher starts watching dir.  pollInterval bounds the notification
// latency in the polling fallback.
func NewSignalWatcher(dir string, pollInterval time.Duration) (*SignalWatcher, error) {
	w := &SignalWatcher{
		dir:          dir,
		pollInterval: pollInterval,
		signals:      make(chan string, 16),
		quit:         make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		err = watcher.Add(dir)
	}
	if err != nil {
		log.Warnf("Signal watch on %s unavailable (%v), falling back to polling", dir, err)
		if watcher != nil {
			_ = watcher.Close()
		}
		go w.pollLoop()
		return w, nil
	}

	w.watcher = watcher
	go w.watchLoop()
	return w, nil
}

// Signals is the channel raised signal names are delivered on.
func (w *SignalWatcher) Signals() <-chan string {
	return w.signals
}

// Close stops the watcher.
func (w *SignalWatcher) Close() {
	close(w.quit)
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

func (w *SignalWatcher) watchLoop() {
	for {
		select {
		case <-w.quit:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 && event.Op&fsnotify.Write == 0 {
				continue
			}
			w.deliver(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("Signal watcher error on %s: %v", w.dir, err)
		}
	}
}

func (w *SignalWatcher) pollLoop() {
	seen := make(map[string]struct{})
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case <-ticker.C:
			entries, err := os.ReadDir(w.dir)
			if err != nil {
				log.Warnf("Signal poll on %s failed: %v", w.dir, err)
				continue
			}
			current := make(map[string]struct{}, len(entries))
			for _, entry := range entries {
				name := entry.Name()
				if !strings.HasSuffix(name, signalSuffix) {
					continue
				}
				current[name] = struct{}{}
				if _, ok := seen[name]; !ok {
					w.deliver(filepath.Join(w.dir, name))
				}
			}
			seen = current
		}
	}
}

// deliver pushes the signal name, dropping it when the consumer is behind.
// Signals are fire-and-forget; the advertised state is re-discoverable by
// polling.
func (w *SignalWatcher) deliver(path string) {
	name := strings.TrimSuffix(filepath.Base(path), signalSuffix)
	if name == filepath.Base(path) {
		return
	}
	select {
	case w.signals <- name:
	default:
		log.Debugf("Dropping signal %s: consumer is behind", name)
	}
}

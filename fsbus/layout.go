// Package fsbus implements the filesystem message bus the processes
// coordinate through: a current-template file plus timestamped backups, one
// folder per worker (working template, result, candidates, private command
// file), a control location for broadcast flags, and lightweight signal
// files for low-latency notifications.
package fsbus

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	currentTemplateName = "current_template.json"
	backupDirName       = "backups"
	workersDirName      = "workers"
	controlDirName      = "control"
	signalsDirName      = "signals"
	emergencyDirName    = "emergency"

	workingTemplateName = "working_template.json"
	commandFileName     = "command.json"
	resultFileName      = "result.json"
	candidatesDirName   = "candidates"
)

// Layout maps the shared coordination directory.  Provisioning the structure
// is a startup responsibility: a missing directory later on is a fatal
// precondition violation at the point of use, not something components
// silently repair.
type Layout struct {
	Root string
}

// NewLayout returns a layout rooted at root.
func NewLayout(root string) *Layout {
	return &Layout{Root: root}
}

// Provision creates the shared directory structure.  Failure here is fatal
// to the calling process; this is the only component allowed to create the
// top-level structure.
func (l *Layout) Provision(workerIDs []string) error {
	dirs := []string{
		l.Root,
		l.BackupDir(),
		l.WorkersDir(),
		l.ControlDir(),
		l.SignalsDir(),
		l.EmergencyDir(),
	}
	for _, id := range workerIDs {
		dirs = append(dirs, l.WorkerDir(id), l.CandidateDir(id))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("unable to provision %s: %w", dir, err)
		}
	}

	log.Debugf("Provisioned coordination layout under %s", l.Root)
	return nil
}

// CurrentTemplatePath is the primary cache location of the canonical
// template.
func (l *Layout) CurrentTemplatePath() string {
	return filepath.Join(l.Root, currentTemplateName)
}

// BackupDir holds timestamped template backups.
func (l *Layout) BackupDir() string {
	return filepath.Join(l.Root, backupDirName)
}

// WorkersDir holds one folder per worker process.
func (l *Layout) WorkersDir() string {
	return filepath.Join(l.Root, workersDirName)
}

// WorkerDir is the private folder of one worker.
func (l *Layout) WorkerDir(workerID string) string {
	return filepath.Join(l.WorkersDir(), workerID)
}

// WorkingTemplatePath is the file handoff location for a worker's template.
func (l *Layout) WorkingTemplatePath(workerID string) string {
	return filepath.Join(l.WorkerDir(workerID), workingTemplateName)
}

// CommandPath is a worker's private command file.
func (l *Layout) CommandPath(workerID string) string {
	return filepath.Join(l.WorkerDir(workerID), commandFileName)
}

// ResultPath is a worker's status/result file.
func (l *Layout) ResultPath(workerID string) string {
	return filepath.Join(l.WorkerDir(workerID), resultFileName)
}

// CandidateDir holds a worker's candidate solution records.
func (l *Layout) CandidateDir(workerID string) string {
	return filepath.Join(l.WorkerDir(workerID), candidatesDirName)
}

// ControlDir is the broadcast-style control flag location.
func (l *Layout) ControlDir() string {
	return filepath.Join(l.Root, controlDirName)
}

// SignalsDir holds the lightweight signal files.
func (l *Layout) SignalsDir() string {
	return filepath.Join(l.Root, signalsDirName)
}

// EmergencyDir holds the per-component emergency logs of the durable store.
func (l *Layout) EmergencyDir() string {
	return filepath.Join(l.Root, emergencyDirName)
}

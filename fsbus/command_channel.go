package fsbus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/utils"
)

// CommandChannel is the point-to-point command path to one worker: a single
// private file the controller replaces and the worker consumes.
//
// Delivery is at-least-once.  The worker reads, acts, and only then deletes;
// a crash between read and delete re-delivers the same command on restart.
// Commands must therefore be safe to re-apply.
type CommandChannel struct {
	path string
}

// NewCommandChannel returns the command channel backed by path.
func NewCommandChannel(path string) *CommandChannel {
	return &CommandChannel{path: path}
}

// Send publishes cmd.  The write goes through a unique temporary file and a
// rename so the consumer never observes a half-written command.
func (c *CommandChannel) Send(cmd *model.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cmd, "", "  ")
	if err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(c.path),
		fmt.Sprintf(".command_%s.tmp", utils.UniqueSuffix()))
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}

// Receive reads the pending command without consuming it.  It returns
// (nil, nil) when no command is present.  A malformed command file is
// deleted and reported, never acted on.
func (c *CommandChannel) Receive() (*model.Command, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cmd model.Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Warnf("Discarding malformed command at %s: %v", c.path, err)
		_ = os.Remove(c.path)
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		log.Warnf("Discarding unknown command at %s: %v", c.path, err)
		_ = os.Remove(c.path)
		return nil, err
	}

	return &cmd, nil
}

// Ack deletes the command file after the command has been acted on.
func (c *CommandChannel) Ack() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

package model

import (
	"fmt"
	"time"
)

// CommandKind enumerates the commands a controller may address to a worker.
type CommandKind string

const (
	// CmdStop asks the worker to set its shutdown flag and exit at the
	// next safe boundary.
	CmdStop CommandKind = "stop"

	// CmdPause suspends hashing while the worker keeps polling for
	// commands.
	CmdPause CommandKind = "pause"

	// CmdRestartFreshTemplate discards the current template and requests
	// a new one before resuming.
	CmdRestartFreshTemplate CommandKind = "restart_with_fresh_template"

	// CmdSustainTarget is acknowledged as a no-op.
	CmdSustainTarget CommandKind = "sustain_target"

	// CmdMineInstant runs one accelerated, time-boxed search pass against
	// the current template, bypassing normal batch sizing.
	CmdMineInstant CommandKind = "mine_instant"
)

// validCommandKinds gates parsing; anything else in a command file is a
// malformed command.
var validCommandKinds = map[CommandKind]struct{}{
	CmdStop:                 {},
	CmdPause:                {},
	CmdRestartFreshTemplate: {},
	CmdSustainTarget:        {},
	CmdMineInstant:          {},
}

// Command is a single point-to-point instruction for one worker.  It is
// created by an external controller, consumed at most once by the addressed
// worker, and deleted after it is acted on.  A crash between read and delete
// re-delivers it: the channel is at-least-once, not exactly-once.
type Command struct {
	Command            CommandKind `json:"command"`
	TargetLeadingZeros *int        `json:"targetLeadingZeros,omitempty"`
	IssuedAt           time.Time   `json:"issuedAt"`
}

// Validate checks that the command kind is known.
func (c *Command) Validate() error {
	if _, ok := validCommandKinds[c.Command]; !ok {
		return fmt.Errorf("unknown command %q", c.Command)
	}
	return nil
}

// NewCommand returns a command of the given kind stamped with the current
// time.
func NewCommand(kind CommandKind) *Command {
	return &Command{
		Command:  kind,
		IssuedAt: time.Now(),
	}
}

// minerctl is a small controller for a running mining deployment.  It talks
// through the shared coordination directory only: worker commands become the
// worker's private command file, daemon requests become raised signal files,
// and status is read straight from the per-worker result files.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/model"
)

// workerCommands are the per-worker commands and their help one-liners.
var workerCommands = map[model.CommandKind]string{
	model.CmdStop:                 "Ask the worker to exit at the next safe boundary",
	model.CmdPause:                "Suspend hashing while the worker keeps polling",
	model.CmdRestartFreshTemplate: "Drop the current template and wait for a fresh one",
	model.CmdSustainTarget:        "Keep mining toward the current target (acknowledged no-op)",
	model.CmdMineInstant:          "Run one accelerated, time-boxed search pass",
}

// daemonSignals are the broadcast signals the daemon reacts to.
var daemonSignals = map[string]string{
	"refresh_template": "Ask the daemon to fetch and republish a fresh template",
	"shutdown":         "Ask the daemon to shut down cleanly",
}

// listCommands categorizes and lists all of the supported commands.
func listCommands() {
	fmt.Println("Worker commands (require --workerid):")
	names := make([]string, 0, len(workerCommands))
	for kind := range workerCommands {
		names = append(names, string(kind))
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-28s %s\n", name, workerCommands[model.CommandKind(name)])
	}

	fmt.Println("Daemon signals:")
	names = names[:0]
	for name := range daemonSignals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-28s %s\n", name, daemonSignals[name])
	}

	fmt.Println("Queries:")
	fmt.Printf("  %-28s %s\n", "status", "Show the latest status of every worker")
}

// sendCommand writes a command into the addressed worker's private command
// file.  An existing unconsumed command is replaced: the newest instruction
// wins.
func sendCommand(cfg *config, layout *fsbus.Layout, kind model.CommandKind) error {
	if cfg.WorkerID == "" {
		return fmt.Errorf("command %s requires --workerid", kind)
	}
	if _, err := os.Stat(layout.WorkerDir(cfg.WorkerID)); err != nil {
		return fmt.Errorf("worker %s is not provisioned under %s",
			cfg.WorkerID, cfg.CoordDir)
	}

	cmd := model.NewCommand(kind)
	if cfg.TargetLeadingZeros > 0 {
		cmd.TargetLeadingZeros = &cfg.TargetLeadingZeros
	}

	channel := fsbus.NewCommandChannel(layout.CommandPath(cfg.WorkerID))
	if err := channel.Send(cmd); err != nil {
		return err
	}
	fmt.Printf("Command %s delivered to worker %s\n", kind, cfg.WorkerID)
	return nil
}

// raiseSignal raises the named daemon signal.  Raising an already-raised
// signal is a no-op.
func raiseSignal(cfg *config, layout *fsbus.Layout, name string) error {
	channel := fsbus.NewSignalChannel(layout.SignalsDir(), name)
	if err := channel.Raise(); err != nil {
		return err
	}
	fmt.Printf("Signal %s raised\n", name)
	return nil
}

// showStatus prints the most recent status record of every provisioned
// worker, or of the single addressed worker when --workerid is given.
func showStatus(cfg *config, layout *fsbus.Layout) error {
	var workerIDs []string
	if cfg.WorkerID != "" {
		workerIDs = []string{cfg.WorkerID}
	} else {
		entries, err := os.ReadDir(layout.WorkersDir())
		if err != nil {
			return fmt.Errorf("unable to list workers under %s: %v",
				cfg.CoordDir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				workerIDs = append(workerIDs, entry.Name())
			}
		}
	}
	if len(workerIDs) == 0 {
		fmt.Println("No workers provisioned")
		return nil
	}
	sort.Strings(workerIDs)

	for _, id := range workerIDs {
		data, err := os.ReadFile(layout.ResultPath(id))
		if err != nil {
			fmt.Printf("%s: no status published\n", id)
			continue
		}
		var status model.WorkerStatus
		if err := json.Unmarshal(data, &status); err != nil {
			fmt.Printf("%s: unreadable status: %v\n", id, err)
			continue
		}
		fmt.Printf("%s: %s height=%d attempts=%d rate=%.0f/s best=%d bits paused=%v synthetic=%v updated=%s\n",
			id, status.State, status.Height, status.Attempts,
			status.AttemptsPerSec, status.BestLeadingZeroBits,
			status.Paused, status.Synthetic,
			status.UpdatedAt.Format("15:04:05"))
	}
	return nil
}

func usage(errorMessage string) {
	appName := "minerctl"
	fmt.Fprintln(os.Stderr, errorMessage)
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintf(os.Stderr, "  %s [OPTIONS] <command>\n\n", appName)
	fmt.Fprintf(os.Stderr,
		"Specify -h for a help message listing options, or -l to list the supported commands\n")
}

func main() {
	cfg, args, err := loadConfig()
	if err != nil {
		os.Exit(1)
	}
	if len(args) < 1 {
		usage("No command specified")
		os.Exit(1)
	}

	command := args[0]
	layout := fsbus.NewLayout(cfg.CoordDir)

	switch {
	case command == "status":
		err = showStatus(cfg, layout)
	case daemonSignals[command] != "":
		err = raiseSignal(cfg, layout, command)
	case workerCommands[model.CommandKind(command)] != "":
		err = sendCommand(cfg, layout, model.CommandKind(command))
	default:
		usage(fmt.Sprintf("Unrecognized command %q", command))
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btclog"

	"github.com/matrixbuilderops/solominerd/durastore"
	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/submitmgr"
	"github.com/matrixbuilderops/solominerd/utils"
	"github.com/matrixbuilderops/solominerd/workermgr"
)

// The worker process logs straight to standard output; log file rotation is
// the daemon's concern.
var (
	backendLog = btclog.NewBackend(os.Stdout)

	log       = backendLog.Logger("MAIN")
	workerLog = backendLog.Logger("WORK")
	submitLog = backendLog.Logger("SBMT")
	duraLog   = backendLog.Logger("DURA")
	fsbusLog  = backendLog.Logger("FSBS")
	modelLog  = backendLog.Logger("MODEL")
	utilsLog  = backendLog.Logger("UTILS")
)

// Initialize package-global logger variables.
func init() {
	workermgr.UseLogger(workerLog)
	submitmgr.UseLogger(submitLog)
	durastore.UseLogger(duraLog)
	fsbus.UseLogger(fsbusLog)
	model.UseLogger(modelLog)
	utils.UseLogger(utilsLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = map[string]btclog.Logger{
	"MAIN":  log,
	"WORK":  workerLog,
	"SBMT":  submitLog,
	"DURA":  duraLog,
	"FSBS":  fsbusLog,
	"MODEL": modelLog,
	"UTILS": utilsLog,
}

// parseAndSetDebugLevels sets the logging level of every subsystem from the
// debug level string, which is a single level name applied across the board.
func parseAndSetDebugLevels(debugLevel string) error {
	level, ok := btclog.LevelFromString(strings.ToLower(debugLevel))
	if !ok {
		return fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
	}
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
	return nil
}

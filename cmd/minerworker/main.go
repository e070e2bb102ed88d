// minerworker is a standalone mining worker process.  It attaches to the
// coordination directory of a running daemon, consumes template handoffs from
// its private working-template file, searches the nonce space, and leaves
// validated candidate proofs behind for the daemon's pipeline.  It never
// talks to the chain itself.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/matrixbuilderops/solominerd/durastore"
	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/submitmgr"
	"github.com/matrixbuilderops/solominerd/utils"
	"github.com/matrixbuilderops/solominerd/workermgr"
)

var cfg *config

func workerMain() error {
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg

	defer log.Info("Shutdown complete")

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = utils.GenerateWorkerID()
		log.Infof("No worker identity given, generated %s", workerID)
	}

	// Provisioning is idempotent; attaching to an existing tree only
	// creates this worker's private folders.
	layout := fsbus.NewLayout(cfg.CoordDir)
	if err := layout.Provision([]string{workerID}); err != nil {
		return err
	}

	store := durastore.New(layout.BackupDir(), layout.EmergencyDir())

	// The local pipeline validates and persists proofs but has no
	// submitter: forwarding upstream is the daemon's job.
	submitMgr, err := submitmgr.New(submitmgr.Config{
		Store:       store,
		Layout:      layout,
		ChainParams: netParams,
	})
	if err != nil {
		return err
	}

	worker := workermgr.New(workermgr.Config{
		ID:          workerID,
		Layout:      layout,
		Store:       store,
		ChainParams: netParams,
		Templates: workermgr.NewHandoffSource(
			fsbus.NewTemplateHandoff(layout.WorkingTemplatePath(workerID))),
		Commands:  fsbus.NewCommandChannel(layout.CommandPath(workerID)),
		Sink:      submitMgr,
		BatchSize: cfg.BatchSize,
	})

	log.Infof("Worker %s attached to %s (network %s)",
		workerID, cfg.CoordDir, netParams.Name)
	worker.Start()

	// The worker ends on an OS signal or on a stop command delivered
	// through its command file.
	stopped := make(chan struct{})
	go func() {
		worker.Join()
		close(stopped)
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-interrupt:
		log.Infof("Received signal %v, shutting down", sig)
		worker.Stop()
	case <-stopped:
	}
	return nil
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := workerMain(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}

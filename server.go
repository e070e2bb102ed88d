package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/matrixbuilderops/solominerd/chainclient"
	"github.com/matrixbuilderops/solominerd/constdef"
	"github.com/matrixbuilderops/solominerd/durastore"
	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/service"
	"github.com/matrixbuilderops/solominerd/submitmgr"
	"github.com/matrixbuilderops/solominerd/templatemgr"
	"github.com/matrixbuilderops/solominerd/utils"
	"github.com/matrixbuilderops/solominerd/workermgr"
)

// Signal names understood by the daemon.  External controllers raise these
// in the signals directory of the coordination tree.
const (
	signalRefreshTemplate = "refresh_template"
	signalShutdown        = "shutdown"
)

type server struct {
	layout      *fsbus.Layout
	store       *durastore.Store
	templateMgr *templatemgr.TemplateManager
	submitMgr   *submitmgr.SubmitManager
	workers     []*workermgr.Worker
	watcher     *fsbus.SignalWatcher
	ledger      service.LedgerService
	chain       *chainClients

	quit chan struct{}
	wg   sync.WaitGroup
}

func newServer(chainCli *chainClients) (*server, error) {
	// Generate the co-located worker identities up front so the whole
	// coordination tree can be provisioned in one pass.
	workerIDs := make([]string, 0, cfg.WorkerNum+len(cfg.ExternalWorkerIDs))
	for i := 0; i < cfg.WorkerNum; i++ {
		workerIDs = append(workerIDs, utils.GenerateWorkerID())
	}
	workerIDs = append(workerIDs, cfg.ExternalWorkerIDs...)

	layout := fsbus.NewLayout(cfg.CoordDir)
	if err := layout.Provision(workerIDs); err != nil {
		return nil, err
	}

	store := durastore.New(layout.BackupDir(), layout.EmergencyDir())

	templateMgr := templatemgr.New(templatemgr.Config{
		Layout:      layout,
		Store:       store,
		ChainParams: netParams,
		QueueDepth:  constdef.DefaultTemplateQueueDepth,
	})

	// External workers get file handoffs; co-located ones share the
	// manager's template reference directly.
	for _, id := range cfg.ExternalWorkerIDs {
		templateMgr.RegisterWorker(id)
	}

	var ledger service.LedgerService
	if cfg.UseDB {
		ledger = service.GetLedgerService()
	}

	var submitter submitmgr.Submitter
	if !cfg.DisableConnectToChain {
		submitter = chainCli
	}
	submitMgr, err := submitmgr.New(submitmgr.Config{
		Store:       store,
		Layout:      layout,
		ChainParams: netParams,
		Submitter:   submitter,
		Ledger:      ledger,
	})
	if err != nil {
		return nil, err
	}

	workers := make([]*workermgr.Worker, 0, cfg.WorkerNum)
	for i := 0; i < cfg.WorkerNum; i++ {
		workers = append(workers, workermgr.New(workermgr.Config{
			ID:          workerIDs[i],
			Layout:      layout,
			Store:       store,
			ChainParams: netParams,
			Templates:   workermgr.NewManagerSource(templateMgr),
			Commands:    fsbus.NewCommandChannel(layout.CommandPath(workerIDs[i])),
			Sink:        submitMgr,
			BatchSize:   cfg.BatchSize,
		}))
	}

	watcher, err := fsbus.NewSignalWatcher(layout.SignalsDir(), 2*time.Second)
	if err != nil {
		return nil, err
	}

	s := &server{
		layout:      layout,
		store:       store,
		templateMgr: templateMgr,
		submitMgr:   submitMgr,
		workers:     workers,
		watcher:     watcher,
		ledger:      ledger,
		chain:       chainCli,
		quit:        make(chan struct{}),
	}

	// Subscribe to chain events once the client connects.
	if chainCli != nil && !cfg.DisableConnectToChain {
		chainCli.whenReady(func(client *chainclient.RPCClient) {
			client.Subscribe(s.handleChainClientNotification)
		})
	}

	return s, nil
}

// handleChainClientNotification reacts to chain client events: new block
// templates become the canonical template, connected blocks are logged (the
// chain client already forces a template refresh itself).
func (s *server) handleChainClientNotification(n *chainclient.Notification) {
	switch n.Type {
	case chainclient.NTTemplateChanged:
		bt, ok := n.Data.(*model.BlockTemplate)
		if !ok {
			log.Errorf("Template changed notification carries unexpected data %T", n.Data)
			return
		}
		t, err := s.templateMgr.ResolveBlockTemplate(bt)
		if err != nil {
			log.Errorf("Unable to resolve block template at height %d: %v", bt.Height, err)
			return
		}
		if err := s.templateMgr.Accept(t); err != nil {
			log.Errorf("Unable to accept template at height %d: %v", t.Height, err)
		}

	case chainclient.NTBlockConnected:
		if ntfn, ok := n.Data.(*model.BlockNotification); ok {
			log.Infof("Block connected at height %d: %s", ntfn.Height, ntfn.BlockHash)
		}

	case chainclient.NTClientConnected:
		log.Info("Chain client connected")
	}
}

// Start bootstraps the template, launches the workers and the background
// loops.
func (s *server) Start() {
	// Bootstrap: recovered cache first, synthetic fallback when running
	// disconnected with no usable cache.  A connected daemon without a
	// cache waits for the first upstream template.
	if recovered := s.templateMgr.Recover(); recovered != nil {
		if err := s.templateMgr.Accept(recovered); err != nil {
			log.Errorf("Recovered template rejected: %v", err)
		}
	} else if cfg.DisableConnectToChain {
		if err := s.templateMgr.Accept(s.templateMgr.Synthetic()); err != nil {
			log.Errorf("Synthetic template rejected: %v", err)
		}
	}

	for _, worker := range s.workers {
		worker.Start()
	}
	log.Infof("Started %d mining %s", len(s.workers),
		pickNoun(uint64(len(s.workers)), "worker", "workers"))

	s.wg.Add(1)
	go s.signalHandler()

	if s.ledger != nil {
		s.wg.Add(1)
		go s.statusReportLoop()
	}
}

// Stop shuts down the workers and background loops.
func (s *server) Stop() {
	close(s.quit)
	s.watcher.Close()
	for _, worker := range s.workers {
		worker.Stop()
	}
	s.wg.Wait()
	log.Info("Server shutdown complete")
}

// signalHandler reacts to raised coordination signals.
func (s *server) signalHandler() {
	defer s.wg.Done()
	defer utils.MyRecover()

	for {
		select {
		case <-s.quit:
			return
		case name, ok := <-s.watcher.Signals():
			if !ok {
				return
			}
			log.Infof("Coordination signal raised: %s", name)
			s.handleSignal(name)
		}
	}
}

func (s *server) handleSignal(name string) {
	channel := fsbus.NewSignalChannel(s.layout.SignalsDir(), name)
	defer func() {
		if err := channel.Lower(); err != nil {
			log.Warnf("Unable to lower signal %s: %v", name, err)
		}
	}()

	switch name {
	case signalRefreshTemplate:
		// Re-resolve from the chain client's latest template; without a
		// chain connection the current template is simply republished.
		if s.chain != nil {
			s.chain.handlerMu.Lock()
			client := s.chain.chainClient
			s.chain.handlerMu.Unlock()
			if client != nil {
				if bt := client.GetTemplate(); bt != nil {
					if t, err := s.templateMgr.ResolveBlockTemplate(bt); err == nil {
						if err := s.templateMgr.Accept(t); err != nil {
							log.Errorf("Unable to accept refreshed template: %v", err)
						}
						return
					}
				}
			}
		}
		if current := s.templateMgr.Current(); current != nil {
			if err := s.templateMgr.Accept(current); err != nil {
				log.Errorf("Unable to republish template: %v", err)
			}
		}

	case signalShutdown:
		simulateInterrupt()

	default:
		if strings.HasPrefix(name, fsbus.CandidateReadyPrefix) {
			workerID := strings.TrimPrefix(name, fsbus.CandidateReadyPrefix)
			log.Infof("Candidate ready from worker %s", workerID)
			// External workers have no submitter of their own; their
			// persisted candidate records enter the pipeline here.  The
			// duplicate cache makes re-validation after a crash safe.
			current := s.templateMgr.Current()
			if current == nil {
				log.Warnf("No template to validate candidates from worker %s against",
					workerID)
				return
			}
			if err := s.submitMgr.ValidatePersisted(workerID, current); err != nil {
				log.Errorf("Unable to validate candidates from worker %s: %v",
					workerID, err)
			}
			return
		}
		log.Debugf("Ignoring unknown signal %s", name)
	}
}

// statusReportLoop periodically copies per-worker status telemetry into the
// ledger.  Aggregates are recomputable from the records, so a missed cycle
// is harmless.
func (s *server) statusReportLoop() {
	defer s.wg.Done()
	defer utils.MyRecover()

	ticker := time.NewTicker(constdef.StatusReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			ctx := context.Background()
			for _, worker := range s.workers {
				var status model.WorkerStatus
				if !s.store.Read(s.layout.ResultPath(worker.ID()), &status, nil) {
					continue
				}
				s.ledger.RecordStatus(ctx, &status, "server")
			}
		}
	}
}

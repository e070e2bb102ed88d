// Package workermgr runs the mining workers: each worker is a polling loop
// that consumes templates, searches the nonce space in bounded batches,
// reacts to file commands, and hands first-found candidates to the
// validation pipeline.
package workermgr

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/matrixbuilderops/solominerd/chaincfg"
	"github.com/matrixbuilderops/solominerd/constdef"
	"github.com/matrixbuilderops/solominerd/durastore"
	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/utils"
	"github.com/matrixbuilderops/solominerd/wire"
)

const component = "workermgr"

// checkInterval is how many nonces an instant pass tries between deadline
// checks.
const checkInterval = 4096

// TemplateSource delivers templates to a worker.  Poll returns (nil, nil)
// when no new template is pending.
type TemplateSource interface {
	Poll() (*model.Template, error)
}

// CandidateSink receives first-found candidates together with the template
// they were built on.
type CandidateSink interface {
	Validate(candidate *model.CandidateSolution, t *model.Template) error
}

// HandoffSource adapts the filesystem template handoff to a TemplateSource.
type HandoffSource struct {
	handoff *fsbus.TemplateHandoff
}

// NewHandoffSource returns a source consuming templates from handoff.
func NewHandoffSource(handoff *fsbus.TemplateHandoff) *HandoffSource {
	return &HandoffSource{handoff: handoff}
}

// Poll consumes the pending handoff file, if any.
func (s *HandoffSource) Poll() (*model.Template, error) {
	return s.handoff.Consume()
}

// Config carries the dependencies and tuning of one Worker.
type Config struct {
	ID          string
	Layout      *fsbus.Layout
	Store       *durastore.Store
	ChainParams *chaincfg.Params
	Templates   TemplateSource
	Commands    *fsbus.CommandChannel
	Sink        CandidateSink

	// BatchSize bounds one search batch; zero selects the default.
	BatchSize uint32

	// CommandPollInterval rate-limits command file reads; zero selects
	// the default.
	CommandPollInterval time.Duration

	// IdleInterval is the sleep while idle or paused; zero selects the
	// default.
	IdleInterval time.Duration

	// InstantDuration time-boxes a mine_instant pass; zero selects the
	// default.
	InstantDuration time.Duration
}

// Worker is one mining loop.  All state is owned by the loop goroutine; the
// only cross-goroutine signal is the quit channel.
type Worker struct {
	cfg    Config
	handle model.WorkerHandle
	rate   *AttemptCounter

	paused   bool
	stopping bool

	// nonce is the next nonce to try against the current template.
	nonce uint32

	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

// New returns a Worker.  A blank ID is replaced with a generated one.
func New(cfg Config) *Worker {
	if cfg.ID == "" {
		cfg.ID = utils.GenerateWorkerID()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = constdef.DefaultBatchSize
	}
	if cfg.CommandPollInterval == 0 {
		cfg.CommandPollInterval = constdef.DefaultCommandPollInterval
	}
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = constdef.DefaultIdleInterval
	}
	if cfg.InstantDuration == 0 {
		cfg.InstantDuration = constdef.DefaultInstantDuration
	}

	w := &Worker{
		cfg:  cfg,
		rate: NewAttemptCounter(),
		quit: make(chan struct{}),
	}
	w.handle.ID = cfg.ID
	w.handle.ProcessID = os.Getpid()
	return w
}

// ID returns the worker identifier.
func (w *Worker) ID() string {
	return w.cfg.ID
}

// Start launches the worker loop.
func (w *Worker) Start() {
	log.Infof("Worker %s starting (pid %d)", w.cfg.ID, w.handle.ProcessID)
	w.wg.Add(1)
	go w.loop()
}

// Stop asks the loop to exit at the next safe boundary and waits for it.
func (w *Worker) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
	w.wg.Wait()
}

// Join waits for the loop to end without asking it to.  It returns when the
// worker exits on its own, for example on a stop command.
func (w *Worker) Join() {
	w.wg.Wait()
}

// loop is the worker state machine.  Every iteration polls for a command
// (rate-limited), polls for a template, then either sleeps or mines one
// bounded batch.  Iteration errors are recorded and the loop continues; only
// a stop command or Stop ends it.
func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.quit:
			w.publishStatus()
			log.Infof("Worker %s stopped", w.cfg.ID)
			return
		default:
		}

		w.iterate()
		if w.stopping {
			w.publishStatus()
			log.Infof("Worker %s stopped on command", w.cfg.ID)
			return
		}
	}
}

// iterate runs one loop step under panic recovery, so a fault in one batch
// never takes the worker down.
func (w *Worker) iterate() {
	defer func() {
		if r := recover(); r != nil {
			utils.DumpPanicInfo(fmt.Sprintf("worker %s: %v", w.cfg.ID, r))
			w.recordLoopError(fmt.Errorf("panic: %v", r))
			time.Sleep(w.cfg.IdleInterval)
		}
	}()

	w.pollCommand()
	if w.stopping {
		return
	}
	w.pollTemplate()

	if w.handle.Template == nil || w.paused {
		w.publishStatus()
		select {
		case <-w.quit:
		case <-time.After(w.cfg.IdleInterval):
		}
		return
	}

	w.mineBatch(w.cfg.BatchSize, time.Time{})
	w.publishStatus()
}

// pollCommand reads the private command file at most once per poll interval
// and acts on whatever it finds.  The file is deleted only after the command
// took effect, so a crash in between re-delivers it.
func (w *Worker) pollCommand() {
	if w.cfg.Commands == nil {
		return
	}
	if time.Since(w.handle.CommandCursor) < w.cfg.CommandPollInterval {
		return
	}
	w.handle.CommandCursor = time.Now()

	cmd, err := w.cfg.Commands.Receive()
	if err != nil {
		w.recordLoopError(err)
		return
	}
	if cmd == nil {
		return
	}

	log.Infof("Worker %s received command %s", w.cfg.ID, cmd.Command)
	switch cmd.Command {
	case model.CmdStop:
		w.stopping = true

	case model.CmdPause:
		w.paused = true

	case model.CmdRestartFreshTemplate:
		// Drop the current template; the next iteration goes idle
		// until a fresh one arrives.
		w.handle.ResetForTemplate(nil)
		w.nonce = 0
		w.paused = false

	case model.CmdSustainTarget:
		// Acknowledged as a no-op.
		log.Debugf("Worker %s sustaining current target", w.cfg.ID)

	case model.CmdMineInstant:
		w.mineInstant()
	}

	if err := w.cfg.Commands.Ack(); err != nil {
		w.recordLoopError(err)
	}
}

// pollTemplate checks the template source and hot-swaps when a new template
// arrives.  The swap is a single pointer replacement; batch state from the
// old template never carries over.
func (w *Worker) pollTemplate() {
	if w.cfg.Templates == nil {
		return
	}

	t, err := w.cfg.Templates.Poll()
	if err != nil {
		w.recordLoopError(err)
		return
	}
	if t == nil {
		return
	}

	if w.handle.Template != nil &&
		w.handle.Template.ContentToken() == t.ContentToken() {
		return
	}

	w.handle.ResetForTemplate(t)
	w.nonce = 0
	log.Infof("Worker %s switched to template at height %d (synthetic=%v)",
		w.cfg.ID, t.Height, t.Synthetic)
}

// mineInstant runs one accelerated, time-boxed pass against the current
// template, bypassing normal batch sizing.  Paused workers run it too; the
// pause resumes afterwards.
func (w *Worker) mineInstant() {
	if w.handle.Template == nil {
		log.Warnf("Worker %s cannot mine instantly without a template", w.cfg.ID)
		return
	}
	deadline := time.Now().Add(w.cfg.InstantDuration)
	log.Infof("Worker %s starting instant pass until %s",
		w.cfg.ID, deadline.Format(time.RFC3339))
	w.mineBatch(0, deadline)
	w.publishStatus()
}

// mineBatch searches the nonce space against the current template.  A
// non-zero batchSize bounds the number of attempts; a non-zero deadline
// bounds wall time instead.  The header is built once and only the nonce
// changes per attempt.
func (w *Worker) mineBatch(batchSize uint32, deadline time.Time) {
	t := w.handle.Template
	derived, err := t.Derived()
	if err != nil {
		w.recordLoopError(err)
		w.handle.ResetForTemplate(nil)
		return
	}
	target, err := t.Target(w.cfg.ChainParams.PowLimit)
	if err != nil {
		w.recordLoopError(err)
		w.handle.ResetForTemplate(nil)
		return
	}

	header := wire.BlockHeader{
		Version:    t.Version,
		PrevBlock:  t.PreviousHash,
		MerkleRoot: derived.MerkleRoot,
		Timestamp:  t.CurTime,
		Bits:       t.Bits,
	}

	var attempts uint64
	for {
		if batchSize != 0 && attempts >= uint64(batchSize) {
			break
		}
		if !deadline.IsZero() && attempts%checkInterval == 0 && time.Now().After(deadline) {
			break
		}

		header.Nonce = w.nonce
		hash := header.BlockHash()
		attempts++

		if lz := utils.LeadingZeroBits(hash); lz > w.handle.BestLeadingZeroBits {
			w.handle.BestLeadingZeroBits = lz
			w.handle.BestNonce = w.nonce
			w.handle.BestHash = hash
		}

		if utils.HashToBig(&hash).Cmp(target) < 0 && w.handle.FirstFound == nil {
			w.foundCandidate(t, derived, target, w.nonce, hash, &header)
		}

		w.nonce++
		if w.nonce == 0 {
			// Nonce space exhausted for this template; go idle until
			// a fresh one arrives.
			log.Warnf("Worker %s exhausted the nonce space at height %d",
				w.cfg.ID, t.Height)
			w.handle.Attempts += attempts
			w.rate.AddAttempts(attempts)
			w.handle.ResetForTemplate(nil)
			return
		}
	}

	w.handle.Attempts += attempts
	w.rate.AddAttempts(attempts)
}

// foundCandidate records the first hash under target for the current
// template and forwards it for validation.  First-found is authoritative for
// submission; later hits on the same template only update the best-found
// telemetry.
func (w *Worker) foundCandidate(t *model.Template, derived *model.DerivedCache,
	target *big.Int, nonce uint32, hash utils.Hash, header *wire.BlockHeader) {

	candidate := &model.CandidateSolution{
		Nonce:           nonce,
		Hash:            hash,
		TemplateToken:   derived.Token,
		Height:          t.Height,
		PreviousHash:    t.PreviousHash.String(),
		MerkleRoot:      derived.MerkleRoot,
		Bits:            t.Bits,
		Target:          fmt.Sprintf("%064x", target),
		HeaderHex:       hex.EncodeToString(header.SerializeBytes()),
		LeadingZeroBits: utils.LeadingZeroBits(hash),
		LeadingZeroHex:  utils.LeadingZeroHexDigits(hash),
		WorkerID:        w.cfg.ID,
		ProcessID:       w.handle.ProcessID,
		FoundAt:         time.Now(),
		Status:          model.CandidatePending,
	}
	w.handle.FirstFound = candidate

	log.Infof("Worker %s found candidate %s (nonce %d, %d leading zero bits)",
		w.cfg.ID, candidate.HashString(), nonce, candidate.LeadingZeroBits)

	// Persist before validation so a crash in the pipeline cannot lose
	// the find.
	location := durastore.UniqueLocation(
		w.cfg.Layout.CandidateDir(w.cfg.ID), "candidate.json")
	w.cfg.Store.Write(location, candidate, component)

	// Low-latency notification for observers that poll less often than
	// the candidate directory changes.
	signal := fsbus.NewSignalChannel(w.cfg.Layout.SignalsDir(),
		fsbus.CandidateReadySignal(w.cfg.ID))
	if err := signal.Raise(); err != nil {
		log.Warnf("Worker %s unable to raise candidate-ready signal: %v",
			w.cfg.ID, err)
	}

	if w.cfg.Sink != nil {
		if err := w.cfg.Sink.Validate(candidate, t); err != nil {
			// Validation faults are non-fatal: log and resume the
			// search.
			log.Errorf("Worker %s candidate validation failed: %v", w.cfg.ID, err)
			w.recordLoopError(err)
		}
	}
}

// publishStatus writes the per-worker telemetry record.  Every worker owns
// its own result location, so concurrent workers never contend for a file.
func (w *Worker) publishStatus() {
	status := model.WorkerStatus{
		WorkerID:            w.cfg.ID,
		ProcessID:           w.handle.ProcessID,
		State:               model.WorkerIdle,
		Attempts:            w.handle.Attempts,
		AttemptsPerSec:      w.rate.PerSecond(),
		BestLeadingZeroBits: w.handle.BestLeadingZeroBits,
		Paused:              w.paused,
		UpdatedAt:           time.Now(),
	}
	if t := w.handle.Template; t != nil {
		status.State = model.WorkerMining
		status.Height = t.Height
		status.TemplateToken = t.ContentToken().String()
		status.Synthetic = t.Synthetic
		if t.Bits != 0 {
			status.Difficulty = utils.CalcDifficultyRatio(
				t.Bits, w.cfg.ChainParams.PowLimit)
		}
	}
	if w.handle.BestLeadingZeroBits > 0 {
		status.BestHash = w.handle.BestHash.String()
	}

	w.cfg.Store.Write(w.cfg.Layout.ResultPath(w.cfg.ID), &status, component)
}

// recordLoopError persists a loop error durably and keeps going.  Loop
// errors never end the worker.
func (w *Worker) recordLoopError(err error) {
	log.Errorf("Worker %s loop error: %v", w.cfg.ID, err)

	record := struct {
		WorkerID string    `json:"worker_id"`
		Error    string    `json:"error"`
		At       time.Time `json:"at"`
	}{
		WorkerID: w.cfg.ID,
		Error:    err.Error(),
		At:       time.Now(),
	}
	location := durastore.UniqueLocation(
		w.cfg.Layout.WorkerDir(w.cfg.ID), "error.json")
	w.cfg.Store.Write(location, &record, component)
}

// Package templatemgr owns the canonical mining template: acquisition,
// durable caching with timestamped backups, recovery, the synthetic
// fallback, and distribution to workers through an in-process queue or the
// filesystem handoff.
package templatemgr

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matrixbuilderops/solominerd/chaincfg"
	"github.com/matrixbuilderops/solominerd/durastore"
	"github.com/matrixbuilderops/solominerd/fsbus"
	"github.com/matrixbuilderops/solominerd/model"
	"github.com/matrixbuilderops/solominerd/utils"
)

const (
	// component tags writes in the durable store.
	component = "templatemgr"

	// backupPrefix names timestamped template backups.
	backupPrefix = "template_"
)

// ErrNoTemplate is returned by the blocking queue when no template arrives
// within the timeout.
var ErrNoTemplate = errors.New("no template available")

// Config carries the dependencies of a TemplateManager.
type Config struct {
	Layout      *fsbus.Layout
	Store       *durastore.Store
	ChainParams *chaincfg.Params

	// QueueDepth bounds the in-process delivery queue.
	QueueDepth int
}

// TemplateManager owns the current template.  The manager is the single
// writer; workers are many readers holding references obtained from
// Current.  Replacing the active template is one atomic store, so a worker
// mid-batch keeps the old template until its next loop iteration and never
// observes a mixed state.
type TemplateManager struct {
	cfg Config

	// current holds the *model.Template being distributed.
	current atomic.Value

	queue chan *model.Template

	handoffMtx sync.Mutex
	handoffs   map[string]*fsbus.TemplateHandoff
}

// New returns a TemplateManager.
func New(cfg Config) *TemplateManager {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 1
	}
	return &TemplateManager{
		cfg:      cfg,
		queue:    make(chan *model.Template, depth),
		handoffs: make(map[string]*fsbus.TemplateHandoff),
	}
}

// Current returns the active template, or nil before the first acceptance.
func (m *TemplateManager) Current() *model.Template {
	t, _ := m.current.Load().(*model.Template)
	return t
}

// RegisterWorker adds a file handoff target for workerID.  Co-located
// workers use the in-process queue instead and do not register.
func (m *TemplateManager) RegisterWorker(workerID string) {
	m.handoffMtx.Lock()
	defer m.handoffMtx.Unlock()
	m.handoffs[workerID] = fsbus.NewTemplateHandoff(
		m.cfg.Layout.WorkingTemplatePath(workerID))
}

// Accept installs t as the active template and distributes it.  The derived
// cache is built once here, so the merkle root exists before any worker sees
// the template and is never recomputed per nonce.  Persistence failures
// degrade through the durable store and are non-fatal.
func (m *TemplateManager) Accept(t *model.Template) error {
	if t == nil {
		return errors.New("nil template")
	}
	if _, err := t.Derived(); err != nil {
		return fmt.Errorf("template rejected: %w", err)
	}

	// Hot-swap: a single atomic store.
	m.current.Store(t)
	log.Infof("Installed template at height %d (synthetic=%v, token %s)",
		t.Height, t.Synthetic, t.ContentToken())

	m.persist(t)
	m.distribute(t)
	return nil
}

// Next blocks until a template is delivered on the in-process queue or the
// timeout elapses.  The queue is the blocking delivery variant for consumers
// that want to wait for acceptance; polling consumers read Current (or a
// source wrapping it) instead.
func (m *TemplateManager) Next(timeout time.Duration) (*model.Template, error) {
	select {
	case t := <-m.queue:
		return t, nil
	case <-time.After(timeout):
		return nil, ErrNoTemplate
	}
}

// persist writes the accepted template to the primary cache location and a
// timestamped backup.  Synthetic templates are not persisted: recovering one
// later would launder the flag into a cache hit.
func (m *TemplateManager) persist(t *model.Template) {
	if t.Synthetic {
		return
	}

	outcome := m.cfg.Store.Write(m.cfg.Layout.CurrentTemplatePath(), t, component)
	if !outcome.Succeeded {
		log.Errorf("Template at height %d could not be persisted on any tier", t.Height)
	}

	backupName := fmt.Sprintf("%s%d_%d.json", backupPrefix, t.Height, time.Now().Unix())
	m.cfg.Store.Write(filepath.Join(m.cfg.Layout.BackupDir(), backupName), t, component)
}

// distribute pushes t to the in-process queue (replacing any stale entry)
// and to every registered file handoff.
func (m *TemplateManager) distribute(t *model.Template) {
	for {
		select {
		case m.queue <- t:
		default:
			// Queue full of stale templates: drop the oldest and
			// retry the send.  A concurrent receiver may have
			// drained the queue already; the retry covers that too.
			select {
			case <-m.queue:
			default:
			}
			continue
		}
		break
	}

	m.handoffMtx.Lock()
	defer m.handoffMtx.Unlock()
	for workerID, handoff := range m.handoffs {
		if err := handoff.Publish(t); err != nil {
			log.Warnf("Template handoff to worker %s failed: %v", workerID, err)
		}
	}
}

// Recover loads the newest usable template from the primary cache location,
// falling back to the newest valid timestamped backup.  It returns nil when
// neither yields a usable template.
func (m *TemplateManager) Recover() *model.Template {
	var t model.Template
	if m.cfg.Store.Read(m.cfg.Layout.CurrentTemplatePath(), &t, nil) && usable(&t) {
		log.Infof("Recovered template at height %d from primary cache", t.Height)
		return &t
	}

	backup := m.newestValidBackup()
	if backup != nil {
		log.Infof("Recovered template at height %d from backup", backup.Height)
	}
	return backup
}

// newestValidBackup scans the backup directory newest-first and returns the
// first template that parses and is usable.  Corrupt backups are skipped and
// left untouched.
func (m *TemplateManager) newestValidBackup() *model.Template {
	entries, err := os.ReadDir(m.cfg.Layout.BackupDir())
	if err != nil {
		log.Debugf("Backup scan failed: %v", err)
		return nil
	}

	type stamped struct {
		name string
		ts   int64
	}
	var backups []stamped
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		backups = append(backups, stamped{name: name, ts: backupStamp(name)})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].ts > backups[j].ts })

	for _, b := range backups {
		data, err := os.ReadFile(filepath.Join(m.cfg.Layout.BackupDir(), b.name))
		if err != nil {
			continue
		}
		var t model.Template
		if err := json.Unmarshal(data, &t); err != nil {
			log.Warnf("Skipping corrupt backup %s: %v", b.name, err)
			continue
		}
		if usable(&t) {
			return &t
		}
	}
	return nil
}

// Synthetic generates the fallback template used when no real template can
// be obtained from any source.  It is explicitly flagged; downstream
// components refuse to forward candidates built on it.
func (m *TemplateManager) Synthetic() *model.Template {
	params := m.cfg.ChainParams
	t := &model.Template{
		Height:    0,
		Bits:      params.PowLimitBits,
		Version:   params.BlockVersion,
		CurTime:   time.Now(),
		Coinbase:  buildPlaceholderCoinbase(0, []byte("synthetic")),
		Synthetic: true,
	}
	log.Warnf("No template source available, generated synthetic fallback (non-submittable)")
	return t
}

// ResolveBlockTemplate converts the upstream getblocktemplate form into a
// canonical template.  A missing coinbase is replaced with a structurally
// valid placeholder.
func (m *TemplateManager) ResolveBlockTemplate(bt *model.BlockTemplate) (*model.Template, error) {
	if bt == nil {
		return nil, errors.New("nil block template")
	}
	if bt.Height < 0 {
		return nil, fmt.Errorf("invalid template height %d", bt.Height)
	}

	var prev utils.Hash
	if err := utils.Decode(&prev, bt.PreviousHash); err != nil {
		return nil, fmt.Errorf("invalid previous hash %q: %w", bt.PreviousHash, err)
	}

	bits64, err := strconv.ParseUint(bt.Bits, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid bits %q: %w", bt.Bits, err)
	}

	var coinbase []byte
	if bt.CoinbaseTxn != nil && bt.CoinbaseTxn.Data != "" {
		coinbase, err = hex.DecodeString(bt.CoinbaseTxn.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid coinbase data: %w", err)
		}
	} else {
		coinbase = buildPlaceholderCoinbase(bt.Height, nil)
	}

	txs := make([]model.Transaction, 0, len(bt.Transactions))
	for _, rtx := range bt.Transactions {
		var tx model.Transaction
		if rtx.Data != "" {
			raw, err := hex.DecodeString(rtx.Data)
			if err != nil {
				return nil, fmt.Errorf("invalid transaction data: %w", err)
			}
			tx.Raw = raw
		} else if rtx.TxID != "" {
			txid, err := utils.NewHashFromStr(rtx.TxID)
			if err != nil {
				return nil, fmt.Errorf("invalid txid %q: %w", rtx.TxID, err)
			}
			tx.TxID = txid
		} else {
			return nil, errors.New("template transaction carries neither data nor txid")
		}
		txs = append(txs, tx)
	}

	curTime := bt.CurTime
	if curTime == 0 {
		curTime = time.Now().Unix()
	}

	return &model.Template{
		Height:       bt.Height,
		PreviousHash: prev,
		Bits:         uint32(bits64),
		Version:      bt.Version,
		CurTime:      time.Unix(curTime, 0),
		Coinbase:     coinbase,
		Transactions: txs,
	}, nil
}

// usable reports whether a recovered template can still be distributed.
func usable(t *model.Template) bool {
	if t == nil || t.Synthetic {
		return false
	}
	if t.Bits == 0 && t.Difficulty <= 0 {
		return false
	}
	if len(t.Coinbase) == 0 {
		return false
	}
	_, err := t.Derived()
	return err == nil
}

// backupStamp extracts the unix timestamp suffix from a backup name,
// returning 0 for names that do not parse (sorted last).
func backupStamp(name string) int64 {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), ".json")
	idx := strings.LastIndexByte(trimmed, '_')
	if idx < 0 {
		return 0
	}
	ts, err := strconv.ParseInt(trimmed[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return ts
}

// Package durastore provides the tiered, never-fail persistence primitive
// every other component writes through.  A write degrades through the
// primary location, a per-component backup location, and a human-readable
// emergency log before it is finally surfaced on the console; it never
// returns an error to the caller.
package durastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/matrixbuilderops/solominerd/utils"
)

// Tier identifies which fallback level a write ended up on.
type Tier int

const (
	// TierNone means no tier succeeded.
	TierNone Tier = iota

	// TierPrimary means the intended location was written directly.
	TierPrimary

	// TierBackup means the payload landed in the per-component backup
	// location under its original base name.
	TierBackup

	// TierEmergency means the payload was appended to the component
	// emergency log.
	TierEmergency
)

// tierStrings maps tiers back to their names for pretty printing.
var tierStrings = map[Tier]string{
	TierNone:      "none",
	TierPrimary:   "primary",
	TierBackup:    "backup",
	TierEmergency: "emergency",
}

// String returns the Tier in human-readable form.
func (t Tier) String() string {
	if s, ok := tierStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown tier (%d)", int(t))
}

// WriteOutcome reports where a write landed.  Succeeded=false is a
// logged-but-non-fatal condition for callers, never an error to propagate.
type WriteOutcome struct {
	Succeeded bool
	Tier      Tier
	Location  string
}

// Store is the durable store.  The zero value is not usable; construct with
// New.
type Store struct {
	// backupRoot holds one backup directory per component.
	backupRoot string

	// emergencyRoot holds one append-only emergency log per component.
	emergencyRoot string
}

// New returns a Store that degrades into backupRoot and emergencyRoot.  The
// roots are provisioned lazily on first use of each tier.
func New(backupRoot, emergencyRoot string) *Store {
	return &Store{
		backupRoot:    backupRoot,
		emergencyRoot: emergencyRoot,
	}
}

// marshalPayload renders the payload for persistence.  Byte slices and
// strings are written verbatim; everything else is JSON.
func marshalPayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	default:
		return json.MarshalIndent(payload, "", "  ")
	}
}

// Write persists payload for component, attempting each tier in order until
// one succeeds.  It never returns an error: the outcome records the tier
// used, and Succeeded=false after the console tier.
//
// Concurrent writers to the same shared location are not serialized here;
// the read-modify-write race on shared aggregates is an accepted weak spot.
// High-contention writers should target per-writer-unique locations instead
// (see UniqueLocation).
func (s *Store) Write(location string, payload interface{}, component string) WriteOutcome {
	data, err := marshalPayload(payload)
	if err != nil {
		// An unmarshalable payload can still be preserved for forensics
		// through the emergency tiers via its Go representation.
		data = []byte(fmt.Sprintf("%+v", payload))
	}

	var errChain []error

	// Tier 1: the intended location, creating parent directories.
	if err := writeFile(location, data); err == nil {
		return WriteOutcome{Succeeded: true, Tier: TierPrimary, Location: location}
	} else {
		errChain = append(errChain, err)
		log.Warnf("Primary write for %s to %s failed: %v", component, location, err)
	}

	// Tier 2: per-component backup location, original base name.
	backupLoc := filepath.Join(s.backupRoot, component, filepath.Base(location))
	if err := writeFile(backupLoc, data); err == nil {
		log.Infof("Payload for %s diverted to backup location %s", component, backupLoc)
		return WriteOutcome{Succeeded: true, Tier: TierBackup, Location: backupLoc}
	} else {
		errChain = append(errChain, err)
		log.Warnf("Backup write for %s to %s failed: %v", component, backupLoc, err)
	}

	// Tier 3: append a human-readable record to the component emergency
	// log.
	emergencyLoc := filepath.Join(s.emergencyRoot, component+"_emergency.log")
	if err := s.appendEmergency(emergencyLoc, component, location, data, errChain); err == nil {
		log.Warnf("Payload for %s appended to emergency log %s", component, emergencyLoc)
		return WriteOutcome{Succeeded: true, Tier: TierEmergency, Location: emergencyLoc}
	} else {
		errChain = append(errChain, err)
	}

	// Tier 4: console.  Callers treat this as logged-but-non-fatal.
	log.Criticalf("All write tiers failed for %s (intended %s): %v; payload: %s",
		component, location, errChain, data)
	return WriteOutcome{Succeeded: false, Tier: TierNone, Location: ""}
}

// Read unmarshals the JSON at location into out.  A missing file or
// malformed content is tolerated: skeleton (when non-nil) is invoked to
// populate out with a known-good structure, false is returned, and the
// corrupt original is left untouched for forensics.
func (s *Store) Read(location string, out interface{}, skeleton func()) bool {
	data, err := os.ReadFile(location)
	if err != nil {
		log.Debugf("Read of %s failed: %v", location, err)
		if skeleton != nil {
			skeleton()
		}
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		log.Warnf("Malformed content at %s, substituting skeleton: %v", location, err)
		if skeleton != nil {
			skeleton()
		}
		return false
	}

	return true
}

// UniqueLocation derives a per-writer-unique location inside dir, keyed by
// process id and timestamp, for writers that would otherwise contend on one
// shared aggregate file.
func UniqueLocation(dir, base string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", base, utils.UniqueSuffix()))
}

// writeFile writes data to location, creating parent directories first.
func writeFile(location string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(location), 0700); err != nil {
		return err
	}
	return os.WriteFile(location, data, 0644)
}

// appendEmergency appends a timestamped human-readable record to the
// component emergency log.
func (s *Store) appendEmergency(location, component, intended string, data []byte, errChain []error) error {
	if err := os.MkdirAll(filepath.Dir(location), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(location, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	record := fmt.Sprintf("--- %s component=%s intended=%s errors=%v\n%s\n",
		time.Now().Format(time.RFC3339), component, intended, errChain, data)
	_, err = f.WriteString(record)
	return err
}

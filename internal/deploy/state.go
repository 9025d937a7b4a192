package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/emilejacobs/rollout/pkg/api"
)

// StateEntry is the last-known result for one host. The file holding
// these entries is inspected and hand-edited by operators, so unknown
// fields are tolerated on load and the layout stays flat.
type StateEntry struct {
	Status    api.Status `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Error     string     `json:"error,omitempty"`
}

// StateStore is a durable host -> StateEntry mapping backed by a
// single JSON file. Record calls are serialized; concurrent writers
// follow a last-writer-wins contract in completion order, which under
// parallel execution is intentionally nondeterministic.
type StateStore struct {
	path string

	mu      sync.Mutex
	entries map[string]StateEntry
}

// OpenState loads the state file at path. A missing or corrupt file
// is treated as empty: state problems must never abort orchestration.
func OpenState(path string) *StateStore {
	s := &StateStore{path: path, entries: map[string]StateEntry{}}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		log.Warn().Str("path", path).Err(err).Msg("state file unreadable, starting empty")
		s.entries = map[string]StateEntry{}
	}
	return s
}

// Get returns the last recorded status for a host.
func (s *StateStore) Get(host string) (api.Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[host]
	return e.Status, ok
}

// Record upserts the entry for the outcome's host and persists the
// whole map durably before returning. The map is rewritten wholesale
// on every call; attempt volume is bounded by fleet size, so the
// O(hosts) write cost is negligible.
func (s *StateStore) Record(oc api.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := StateEntry{Status: api.StatusSuccess, Timestamp: time.Now()}
	if !oc.Success {
		entry.Status = api.StatusFailed
		entry.Error = oc.Error
	}
	s.entries[oc.Host] = entry
	return s.persistLocked()
}

// persistLocked writes the map atomically: a temp file in the same
// directory renamed over the old state, so a crash mid-write loses at
// most the in-flight outcome.
func (s *StateStore) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".rollout-state-*")
	if err != nil {
		return fmt.Errorf("temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

package meterstate

import (
	"sync"
	"time"

	"shelly2fronius/pkg/shelly3em"
	"shelly2fronius/pkg/sunspec"
)

// Store is the single shared cell between the two producers and the
// emulated server. One writer at a time, snapshots under a read lock.
type Store struct {
	mu     sync.RWMutex
	policy Policy
	grid   *shelly3em.GridReading
	bias   BiasReading
}

func NewStore(policy Policy) *Store {
	return &Store{policy: policy}
}

// UpdateGrid installs a new meter reading and returns the recomputed
// merged state.
func (s *Store) UpdateGrid(reading *shelly3em.GridReading) MergedReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grid = reading
	return Merge(s.grid, s.bias, s.policy, time.Now())
}

// UpdateBiasExport installs a fresh virtual export value. The import
// side keeps its own timestamp.
func (s *Store) UpdateBiasExport(watt float32, at time.Time) MergedReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bias.VirtualExportWatt = watt
	s.bias.ExportUpdatedAt = at
	return Merge(s.grid, s.bias, s.policy, time.Now())
}

// UpdateBiasImport installs a fresh virtual import value.
func (s *Store) UpdateBiasImport(watt float32, at time.Time) MergedReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bias.VirtualImportWatt = watt
	s.bias.ImportUpdatedAt = at
	return Merge(s.grid, s.bias, s.policy, time.Now())
}

// Snapshot recomputes the merged state from the current inputs so
// staleness windows are evaluated against the caller's clock.
// ComputedAt records that clock; between updates every other field is
// a pure function of the stored inputs and comes back bit-identical.
func (s *Store) Snapshot() MergedReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Merge(s.grid, s.bias, s.policy, time.Now())
}

// LiveValues is the snapshot provider wired into the emulated device.
func (s *Store) LiveValues() sunspec.LiveValues {
	return s.Snapshot().LiveValues()
}

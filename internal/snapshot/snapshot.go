// Package snapshot holds immutable, generation-numbered views of every
// dataset. A reload builds a complete new snapshot before publishing it, so
// the engine never sees a partially loaded collection.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Loader materializes every dataset in full.
type Loader interface {
	LoadAll(ctx context.Context) (map[domain.Dataset][]domain.Record, error)
}

// Snapshot is one fully materialized load of every dataset.
// It must not be modified after it is published.
type Snapshot struct {
	Generation uint64
	LoadedAt   time.Time
	datasets   map[domain.Dataset][]domain.Record
}

// New builds a snapshot. The map and slices are owned by the snapshot afterwards.
func New(generation uint64, loadedAt time.Time, datasets map[domain.Dataset][]domain.Record) *Snapshot {
	if datasets == nil {
		datasets = make(map[domain.Dataset][]domain.Record)
	}
	return &Snapshot{Generation: generation, LoadedAt: loadedAt, datasets: datasets}
}

// Records returns the records of one dataset. Callers must treat the slice
// as read-only.
func (s *Snapshot) Records(d domain.Dataset) []domain.Record {
	return s.datasets[d]
}

// Size returns the total record count across datasets.
func (s *Snapshot) Size() int {
	n := 0
	for _, recs := range s.datasets {
		n += len(recs)
	}
	return n
}

// Store publishes the current snapshot. Reads are lock-free; reloads are
// serialized so generations increase monotonically.
type Store struct {
	loader  Loader
	clock   clockwork.Clock
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]

	reloadMu sync.Mutex
	next     uint64
}

// NewStore creates an empty store. Pass nil for clock to use the real clock.
func NewStore(loader Loader, clock clockwork.Clock, logger *slog.Logger) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{loader: loader, clock: clock, logger: logger}
}

// Current returns the latest snapshot, or nil before the first reload.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Reload loads every dataset and swaps in a new snapshot. If the load fails
// or ctx is cancelled before it completes, the current snapshot is kept.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	datasets, err := s.loader.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("reload snapshot: superseded: %w", err)
	}

	s.next++
	snap := New(s.next, s.clock.Now().UTC(), datasets)
	s.current.Store(snap)

	s.logger.Info("snapshot published", "generation", snap.Generation, "records", snap.Size())
	return snap, nil
}

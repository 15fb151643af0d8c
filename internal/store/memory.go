package store

import (
	"context"
	"sync"
	"time"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// MemoryStore keeps everything in process memory. Used for tests and
// for runs where persistence across restarts does not matter.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[models.ASIN][]models.Snapshot
	attempts  map[models.ASIN][]models.PurchaseAttempt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[models.ASIN][]models.Snapshot),
		attempts:  make(map[models.ASIN][]models.PurchaseAttempt),
	}
}

func (m *MemoryStore) Append(_ context.Context, snap models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	series := m.snapshots[snap.ASIN]
	if n := len(series); n > 0 && snap.ObservedAt.Before(series[n-1].ObservedAt) {
		return ErrOutOfOrder
	}

	m.snapshots[snap.ASIN] = append(series, snap)
	return nil
}

func (m *MemoryStore) Latest(_ context.Context, asin models.ASIN) (*models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.snapshots[asin]
	if len(series) == 0 {
		return nil, nil
	}

	snap := series[len(series)-1]
	return &snap, nil
}

func (m *MemoryStore) History(_ context.Context, asin models.ASIN, since time.Time) ([]models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Snapshot
	for _, snap := range m.snapshots[asin] {
		if !snap.ObservedAt.Before(since) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (m *MemoryStore) Record(_ context.Context, attempt models.PurchaseAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts[attempt.ASIN] = append(m.attempts[attempt.ASIN], attempt)
	return nil
}

func (m *MemoryStore) List(_ context.Context, asin models.ASIN) ([]models.PurchaseAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	recorded := m.attempts[asin]
	out := make([]models.PurchaseAttempt, len(recorded))
	for i, attempt := range recorded {
		out[len(recorded)-1-i] = attempt
	}
	return out, nil
}

// ASINs returns every ASIN with at least one snapshot.
func (m *MemoryStore) ASINs() []models.ASIN {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ASIN, 0, len(m.snapshots))
	for asin := range m.snapshots {
		out = append(out, asin)
	}
	return out
}

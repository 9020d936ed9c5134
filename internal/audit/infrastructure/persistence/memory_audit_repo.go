package persistence

import (
	"context"
	"sync"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/audit/domain"
)

// MemoryRepository is an in-process audit trail.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []domain.Entry
}

// NewMemoryRepository creates an empty audit trail.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Append(_ context.Context, entries ...domain.Entry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entries...)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, table, recordID string) ([]domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Entry
	for _, e := range r.entries {
		if e.Table == table && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every entry in append order.
func (r *MemoryRepository) All() []domain.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

var _ domain.Repository = (*MemoryRepository)(nil)

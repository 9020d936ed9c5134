package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
)

// MemoryRecordRepository keeps record versions in memory.
type MemoryRecordRepository struct {
	mu     sync.RWMutex
	byLead map[uuid.UUID][]*domain.Record
}

// NewMemoryRecordRepository creates an empty repository.
func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{byLead: make(map[uuid.UUID][]*domain.Record)}
}

func (r *MemoryRecordRepository) Save(_ context.Context, record *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byLead[record.LeadID] {
		if existing.Version == record.Version {
			return fmt.Errorf("enrichment version %d of lead %s already exists", record.Version, record.LeadID)
		}
	}
	cp := copyRecord(record)
	r.byLead[record.LeadID] = append(r.byLead[record.LeadID], cp)
	return nil
}

func (r *MemoryRecordRepository) Latest(_ context.Context, leadID uuid.UUID) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Record
	for _, rec := range r.byLead[leadID] {
		if latest == nil || rec.Version > latest.Version {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyRecord(latest), nil
}

func (r *MemoryRecordRepository) ListVersions(_ context.Context, leadID uuid.UUID) ([]*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.byLead[leadID]
	out := make([]*domain.Record, 0, len(versions))
	for _, rec := range versions {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *MemoryRecordRepository) MarkBilled(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, versions := range r.byLead {
		for _, rec := range versions {
			if rec.ID == id {
				rec.Billed = true
				return nil
			}
		}
	}
	return domain.ErrRecordNotFound
}

func copyRecord(r *domain.Record) *domain.Record {
	cp := *r
	cp.Fields = r.Fields.Clone()
	cp.Missing = append([]domain.FieldName{}, r.Missing...)
	cp.ProvidersUsed = append([]string{}, r.ProvidersUsed...)
	cp.Steps = append([]domain.StepRecord{}, r.Steps...)
	return &cp
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"emailtracker/internal/model"
)

// MemoryRecordRepository keeps records in process; used by tests and the memory driver.
type MemoryRecordRepository struct {
	mu      sync.RWMutex
	records map[string]model.EmailRecord
}

func NewMemoryRecordRepository() *MemoryRecordRepository {
	return &MemoryRecordRepository{records: make(map[string]model.EmailRecord)}
}

func (r *MemoryRecordRepository) Put(_ context.Context, record model.EmailRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Domain] = record.Clone()
	return nil
}

func (r *MemoryRecordRepository) PutMany(_ context.Context, records []model.EmailRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range records {
		r.records[record.Domain] = record.Clone()
	}
	return nil
}

func (r *MemoryRecordRepository) Get(_ context.Context, domain string) (*model.EmailRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.records[domain]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", domain, model.ErrNotFound)
	}
	out := record.Clone()
	return &out, nil
}

func (r *MemoryRecordRepository) All(_ context.Context) ([]model.EmailRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(model.EmailRecord) bool { return true }), nil
}

func (r *MemoryRecordRepository) FindByEmail(_ context.Context, email string) ([]model.EmailRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(rec model.EmailRecord) bool { return rec.Email == email }), nil
}

func (r *MemoryRecordRepository) Delete(_ context.Context, domain string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, domain)
	return nil
}

func (r *MemoryRecordRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]model.EmailRecord)
	return nil
}

func (r *MemoryRecordRepository) Ping(context.Context) error {
	return nil
}

func (r *MemoryRecordRepository) sortedLocked(keep func(model.EmailRecord) bool) []model.EmailRecord {
	out := make([]model.EmailRecord, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

package repo

import (
	"context"
	"fmt"
	"sync"

	"edugen/internal/domain"
)

// ArtifactRepositoryMemory keeps records in process. It backs local runs
// without a database.
type ArtifactRepositoryMemory struct {
	mu      sync.RWMutex
	records map[string]domain.ArtifactRecord
}

func NewArtifactRepositoryMemory() *ArtifactRepositoryMemory {
	return &ArtifactRepositoryMemory{records: make(map[string]domain.ArtifactRecord)}
}

func (r *ArtifactRepositoryMemory) Create(_ context.Context, rec *domain.ArtifactRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return fmt.Errorf("artifact %s already exists", rec.ID)
	}
	cp := *rec
	cp.Content = append([]byte(nil), rec.Content...)
	r.records[rec.ID] = cp
	return nil
}

func (r *ArtifactRepositoryMemory) GetByID(_ context.Context, id string) (*domain.ArtifactRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

// Len reports the number of stored records.
func (r *ArtifactRepositoryMemory) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryMemory)(nil)

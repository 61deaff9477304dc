package jobs

import (
	"sync"

	"github.com/xkilldash9x/swapflow/api/schemas"
)

// Registry keeps the latest known record per job and refuses to move a job
// back to an earlier status. Remote reads can arrive out of order (retries,
// concurrent pollers); the registry is what makes polling idempotent.
type Registry struct {
	mu      sync.RWMutex
	records map[string]schemas.JobRecord
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]schemas.JobRecord)}
}

// Observe merges rec into the registry and returns the record callers should
// act on. Once a job is terminal it never changes again.
func (r *Registry) Observe(rec schemas.JobRecord) schemas.JobRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.records[rec.ID]
	if !ok {
		r.records[rec.ID] = rec
		return rec
	}
	if prev.Status.Terminal() || rec.Status.Rank() < prev.Status.Rank() {
		return prev
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = prev.StartedAt
	}
	if rec.OutputStoreRef == "" {
		rec.OutputStoreRef = prev.OutputStoreRef
	}
	r.records[rec.ID] = rec
	return rec
}

// Get returns the last observed record for id.
func (r *Registry) Get(id string) (schemas.JobRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
)

// OptimizationJobRepository keeps the job ledger in process memory.
type OptimizationJobRepository struct {
	mu    sync.RWMutex
	items map[string]optimization.Job
}

var _ optimization.Repository = (*OptimizationJobRepository)(nil)

func NewOptimizationJobRepository() *OptimizationJobRepository {
	return &OptimizationJobRepository{items: make(map[string]optimization.Job)}
}

func (r *OptimizationJobRepository) Upsert(_ context.Context, job optimization.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[job.RequestID] = job.Clone()
	return nil
}

func (r *OptimizationJobRepository) Get(_ context.Context, requestID string) (optimization.Job, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[requestID]
	if !ok {
		return optimization.Job{}, false, nil
	}
	return item.Clone(), true, nil
}

func (r *OptimizationJobRepository) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, job := range r.items {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(r.items, id)
			removed++
		}
	}
	return removed, nil
}

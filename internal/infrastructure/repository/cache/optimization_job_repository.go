package cache

import (
	"context"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	basecache "github.com/riskibarqy/lineup-orchestrator/internal/platform/cache"
)

const jobKeyPrefix = "ledger:job:"

// OptimizationJobRepository fronts a job ledger with the shared cache.
// Only terminal jobs are cached since they no longer change.
type OptimizationJobRepository struct {
	next  optimization.Repository
	cache *basecache.Store
	ttl   time.Duration
}

var _ optimization.Repository = (*OptimizationJobRepository)(nil)

func NewOptimizationJobRepository(next optimization.Repository, cache *basecache.Store, ttl time.Duration) *OptimizationJobRepository {
	return &OptimizationJobRepository{next: next, cache: cache, ttl: ttl}
}

func (r *OptimizationJobRepository) Upsert(ctx context.Context, job optimization.Job) error {
	if err := r.next.Upsert(ctx, job); err != nil {
		return err
	}
	r.cache.Remove(ctx, jobKeyPrefix+job.RequestID)
	return nil
}

func (r *OptimizationJobRepository) Get(ctx context.Context, requestID string) (optimization.Job, bool, error) {
	key := jobKeyPrefix + requestID

	var cached optimization.Job
	if r.cache.Get(ctx, key, &cached) {
		return cached, true, nil
	}

	job, exists, err := r.next.Get(ctx, requestID)
	if err != nil || !exists {
		return job, exists, err
	}
	if job.Status.Terminal() {
		_ = r.cache.Set(ctx, key, job, r.ttl)
	}
	return job, true, nil
}

func (r *OptimizationJobRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted, err := r.next.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.cache.RemovePrefix(ctx, jobKeyPrefix)
	}
	return deleted, nil
}

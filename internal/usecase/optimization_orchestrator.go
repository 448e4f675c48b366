package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/cache"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/metrics"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/resilience"
	"github.com/sourcegraph/conc"
)

const (
	defaultPollInterval      = 2 * time.Second
	defaultJobRetention      = time.Hour
	defaultOptimizationTTL   = 24 * time.Hour
	defaultCancelTimeout     = 10 * time.Second
	progressSubscriberBuffer = 16
)

type OrchestratorConfig struct {
	PollInterval  time.Duration
	JobRetention  time.Duration
	CacheTTL      time.Duration
	CancelTimeout time.Duration
}

type OrchestratorDeps struct {
	Remote  optimization.RemoteService
	Guard   *resilience.Guard
	Cache   *cache.Store
	Stores  *StoreRegistry
	Jobs    optimization.Repository
	Pool    Submitter
	Logger  *logging.Logger
	Metrics *metrics.Collectors
}

// Handle identifies one Start call. It stays valid after the job ends.
type Handle struct {
	RequestID   string
	Fingerprint string
}

type jobRun struct {
	job     optimization.Job
	cancel  context.CancelFunc
	done    chan struct{}
	subs    map[int]chan optimization.Progress
	nextSub int
}

func (r *jobRun) progress(at time.Time) optimization.Progress {
	return optimization.Progress{
		RequestID:       r.job.RequestID,
		Status:          r.job.Status,
		ProgressPercent: r.job.ProgressPercent,
		Error:           r.job.Error,
		At:              at,
	}
}

// OptimizationOrchestrator submits optimization and trade-analysis runs,
// polls them to completion and reconciles lineup results into the store.
type OptimizationOrchestrator struct {
	deps     OrchestratorDeps
	cfg      OrchestratorConfig
	logger   *logging.Logger
	validate *validator.Validate

	ctx    context.Context
	cancel context.CancelFunc
	polls  conc.WaitGroup

	mu   sync.Mutex
	runs map[string]*jobRun

	now   func() time.Time
	newID func() string
}

func NewOptimizationOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *OptimizationOrchestrator {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Pool == nil {
		deps.Pool = inlineSubmitter{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.JobRetention <= 0 {
		cfg.JobRetention = defaultJobRetention
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultOptimizationTTL
	}
	if cfg.CancelTimeout <= 0 {
		cfg.CancelTimeout = defaultCancelTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &OptimizationOrchestrator{
		deps:     deps,
		cfg:      cfg,
		logger:   deps.Logger,
		validate: validator.New(),
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]*jobRun),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Start validates params and either answers from the result cache or
// submits a remote run and begins polling it.
func (o *OptimizationOrchestrator) Start(ctx context.Context, params optimization.Params) (Handle, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.OptimizationOrchestrator.Start")
	defer span.End()

	params = params.Normalize()
	if err := o.validate.StructCtx(ctx, params); err != nil {
		return Handle{}, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	if err := params.CheckTrade(); err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	fingerprint, err := optimization.Fingerprint(params)
	if err != nil {
		return Handle{}, fmt.Errorf("fingerprint params: %w", err)
	}

	now := o.now()
	job := optimization.Job{
		RequestID:   o.newID(),
		TeamID:      params.TeamID,
		Fingerprint: fingerprint,
		Params:      params,
		Status:      optimization.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	handle := Handle{RequestID: job.RequestID, Fingerprint: fingerprint}

	var cached optimization.Result
	if o.deps.Cache.Get(ctx, fingerprint, &cached) {
		job.Status = optimization.StatusCompleted
		job.ProgressPercent = 100
		job.Result = &cached
		job.Cached = true
		job.CompletedAt = &now

		run := &jobRun{job: job, done: make(chan struct{})}
		close(run.done)
		o.track(run)
		o.persist(ctx, job)
		o.deps.Metrics.OptimizationJob(string(params.Kind), "cache_hit")
		o.logger.InfoContext(ctx, "optimization served from cache", "request_id", job.RequestID, "fingerprint", fingerprint)

		o.reconcile(ctx, job)
		return handle, nil
	}

	run := &jobRun{job: job, done: make(chan struct{}), subs: make(map[int]chan optimization.Progress)}
	o.track(run)
	o.persist(ctx, job)

	remoteID, err := resilience.Call(ctx, o.deps.Guard, submitClass(params.Kind), func(ctx context.Context) (string, error) {
		return o.deps.Remote.Submit(ctx, params)
	})
	if err != nil {
		o.finish(ctx, job.RequestID, optimization.StatusFailed, nil, err.Error())
		o.logger.WarnContext(ctx, "optimization submit failed", "request_id", job.RequestID, "error", err)
		return handle, fmt.Errorf("%w: %w", ErrOptimizationFailed, err)
	}

	pollCtx, cancel := context.WithCancel(o.ctx)
	o.mu.Lock()
	if run.job.Status.Terminal() {
		// Cancelled while the submit was in flight.
		o.mu.Unlock()
		cancel()
		o.cancelRemote(job.RequestID, remoteID)
		return handle, nil
	}
	run.job.RemoteJobID = remoteID
	run.job.UpdatedAt = o.now()
	run.cancel = cancel
	snapshot := run.job
	o.mu.Unlock()
	o.persist(ctx, snapshot)

	o.logger.InfoContext(ctx, "optimization submitted",
		"request_id", job.RequestID,
		"remote_job_id", remoteID,
		"kind", params.Kind,
	)

	requestID := job.RequestID
	o.polls.Go(func() {
		defer cancel()
		o.poll(pollCtx, requestID, remoteID)
	})
	return handle, nil
}

func submitClass(kind optimization.Kind) resilience.OperationClass {
	if kind == optimization.KindTrade {
		return resilience.OpTradeSubmit
	}
	return resilience.OpOptimizationSubmit
}

func (o *OptimizationOrchestrator) poll(ctx context.Context, requestID, remoteID string) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := resilience.Call(ctx, o.deps.Guard, resilience.OpOptimizationStatus, func(ctx context.Context) (optimization.RemoteStatus, error) {
			return o.deps.Remote.Status(ctx, remoteID)
		})
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			o.logger.WarnContext(ctx, "optimization polling failed", "request_id", requestID, "error", err)
			o.finish(ctx, requestID, optimization.StatusFailed, nil, err.Error())
			return
		}

		if o.observe(ctx, requestID, status) {
			return
		}
	}
}

// observe applies one poll answer. It reports true once the job is
// terminal or no longer tracked.
func (o *OptimizationOrchestrator) observe(ctx context.Context, requestID string, status optimization.RemoteStatus) bool {
	switch status.Status {
	case optimization.StatusCompleted:
		o.finish(ctx, requestID, optimization.StatusCompleted, status.Result, "")
		return true
	case optimization.StatusFailed:
		msg := status.Error
		if msg == "" {
			msg = "remote optimization failed"
		}
		o.finish(ctx, requestID, optimization.StatusFailed, nil, msg)
		return true
	case optimization.StatusCancelled:
		o.finish(ctx, requestID, optimization.StatusCancelled, nil, status.Error)
		return true
	}

	o.mu.Lock()
	run, ok := o.runs[requestID]
	if !ok || run.job.Status.Terminal() {
		o.mu.Unlock()
		return true
	}
	changed := false
	if status.Status == optimization.StatusRunning && run.job.Status != optimization.StatusRunning {
		run.job.Status = optimization.StatusRunning
		changed = true
	}
	if status.ProgressPercent > run.job.ProgressPercent {
		run.job.ProgressPercent = min(status.ProgressPercent, 100)
		changed = true
	}
	if !changed {
		o.mu.Unlock()
		return false
	}
	run.job.UpdatedAt = o.now()
	o.publishLocked(run, false)
	snapshot := run.job
	o.mu.Unlock()

	o.persist(ctx, snapshot)
	return false
}

// finish moves a job to a terminal state. A job that is already terminal
// keeps its state, which is how late results for cancelled jobs are
// dropped.
func (o *OptimizationOrchestrator) finish(ctx context.Context, requestID string, status optimization.Status, result *optimization.Result, errMsg string) {
	o.mu.Lock()
	run, ok := o.runs[requestID]
	if !ok || run.job.Status.Terminal() {
		o.mu.Unlock()
		if ok {
			o.logger.DebugContext(ctx, "discarding late optimization update", "request_id", requestID, "status", status)
		}
		return
	}

	now := o.now()
	run.job.Status = status
	run.job.Error = errMsg
	run.job.UpdatedAt = now
	run.job.CompletedAt = &now
	if status == optimization.StatusCompleted {
		run.job.ProgressPercent = 100
		run.job.Result = result
	}
	if run.cancel != nil {
		run.cancel()
	}
	o.publishLocked(run, true)
	job := run.job
	o.mu.Unlock()

	// Waiters see the job only once its result is cached and reconciled.
	defer close(run.done)

	o.persist(ctx, job)
	o.deps.Metrics.OptimizationJob(string(job.Params.Kind), string(status))

	if status != optimization.StatusCompleted || job.Result == nil {
		return
	}
	if err := o.deps.Cache.Set(ctx, job.Fingerprint, job.Result, o.cfg.CacheTTL); err != nil {
		o.logger.WarnContext(ctx, "cache optimization result failed", "request_id", requestID, "error", err)
	}
	o.reconcile(ctx, job)
}

// reconcile pushes a completed lineup result into the live store, if any.
func (o *OptimizationOrchestrator) reconcile(ctx context.Context, job optimization.Job) {
	if job.Params.Kind != optimization.KindLineup || !job.Result.HasLineup() || o.deps.Stores == nil {
		return
	}
	store, ok := o.deps.Stores.Lookup(job.Params.TeamID, job.Params.ScoringPeriod)
	if !ok {
		return
	}
	if !store.ReconcileServerLineup(ctx, lineup.Lineup{
		TeamID:            job.Params.TeamID,
		ScoringPeriod:     job.Params.ScoringPeriod,
		Sport:             job.Params.Sport,
		Starters:          job.Result.Starters,
		Bench:             job.Result.Bench,
		OptimizationScore: job.Result.OptimizationScore,
	}) {
		o.logger.DebugContext(ctx, "optimization result not reconciled", "request_id", job.RequestID)
	}
}

// Cancel marks the job CANCELLED at once and asks the remote to stop in
// the background. Cancelling a finished job is a no-op.
func (o *OptimizationOrchestrator) Cancel(ctx context.Context, h Handle) error {
	o.mu.Lock()
	run, ok := o.runs[h.RequestID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: optimization %s", ErrNotFound, h.RequestID)
	}
	if run.job.Status.Terminal() {
		o.mu.Unlock()
		return nil
	}

	now := o.now()
	run.job.Status = optimization.StatusCancelled
	run.job.UpdatedAt = now
	run.job.CompletedAt = &now
	if run.cancel != nil {
		run.cancel()
	}
	o.publishLocked(run, true)
	close(run.done)
	job := run.job
	o.mu.Unlock()

	o.persist(ctx, job)
	o.deps.Metrics.OptimizationJob(string(job.Params.Kind), string(optimization.StatusCancelled))
	o.logger.InfoContext(ctx, "optimization cancelled", "request_id", job.RequestID, "progress", job.ProgressPercent)

	if job.RemoteJobID != "" {
		o.cancelRemote(job.RequestID, job.RemoteJobID)
	}
	return nil
}

func (o *OptimizationOrchestrator) cancelRemote(requestID, remoteID string) {
	task := func() {
		ctx, cancel := context.WithTimeout(o.ctx, o.cfg.CancelTimeout)
		defer cancel()
		err := o.deps.Guard.Execute(ctx, resilience.OpOptimizationCancel, func(ctx context.Context) error {
			return o.deps.Remote.Cancel(ctx, remoteID)
		})
		if err != nil {
			o.logger.WarnContext(ctx, "remote optimization cancel failed", "request_id", requestID, "remote_job_id", remoteID, "error", err)
		}
	}
	if err := o.deps.Pool.Submit(task); err != nil {
		o.logger.Warn("schedule remote cancel failed", "request_id", requestID, "error", err)
	}
}

// SubscribeProgress streams progress for a job. The current state is sent
// first; the channel closes when the job ends or cancel is called.
func (o *OptimizationOrchestrator) SubscribeProgress(h Handle) (<-chan optimization.Progress, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	run, ok := o.runs[h.RequestID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: optimization %s", ErrNotFound, h.RequestID)
	}

	ch := make(chan optimization.Progress, progressSubscriberBuffer)
	ch <- run.progress(o.now())
	if run.job.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	id := run.nextSub
	run.nextSub++
	run.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if existing, ok := run.subs[id]; ok {
				delete(run.subs, id)
				close(existing)
			}
		})
	}, nil
}

// publishLocked fans progress out and, when last is set, closes every
// subscriber. Requires o.mu.
func (o *OptimizationOrchestrator) publishLocked(run *jobRun, last bool) {
	p := run.progress(o.now())
	for id, ch := range run.subs {
		select {
		case ch <- p:
		default:
		}
		if last {
			delete(run.subs, id)
			close(ch)
		}
	}
}

// Get returns a tracked job, falling back to the ledger.
func (o *OptimizationOrchestrator) Get(ctx context.Context, requestID string) (optimization.Job, error) {
	o.mu.Lock()
	run, ok := o.runs[requestID]
	if ok {
		job := run.job
		o.mu.Unlock()
		return job, nil
	}
	o.mu.Unlock()

	if o.deps.Jobs != nil {
		job, exists, err := o.deps.Jobs.Get(ctx, requestID)
		if err != nil {
			return optimization.Job{}, fmt.Errorf("get optimization job: %w", err)
		}
		if exists {
			return job, nil
		}
	}
	return optimization.Job{}, fmt.Errorf("%w: optimization %s", ErrNotFound, requestID)
}

// Wait blocks until the job is terminal or ctx ends.
func (o *OptimizationOrchestrator) Wait(ctx context.Context, h Handle) (optimization.Job, error) {
	o.mu.Lock()
	run, ok := o.runs[h.RequestID]
	o.mu.Unlock()
	if !ok {
		return o.Get(ctx, h.RequestID)
	}

	select {
	case <-run.done:
	case <-ctx.Done():
		return optimization.Job{}, ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return run.job, nil
}

// Active lists non-terminal jobs, oldest first.
func (o *OptimizationOrchestrator) Active() []optimization.Job {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]optimization.Job, 0)
	for _, run := range o.runs {
		if !run.job.Status.Terminal() {
			out = append(out, run.job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Latest returns the newest tracked lineup job for a team and period.
func (o *OptimizationOrchestrator) Latest(teamID string, period int) (optimization.Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var (
		latest optimization.Job
		found  bool
	)
	for _, run := range o.runs {
		job := run.job
		if job.Params.Kind != optimization.KindLineup || job.TeamID != teamID || job.Params.ScoringPeriod != period {
			continue
		}
		if !found || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
			found = true
		}
	}
	return latest, found
}

// Sweep forgets terminal jobs older than the retention window.
func (o *OptimizationOrchestrator) Sweep(ctx context.Context) (int, error) {
	cutoff := o.now().Add(-o.cfg.JobRetention)

	o.mu.Lock()
	removed := 0
	for id, run := range o.runs {
		if run.job.Status.Terminal() && run.job.UpdatedAt.Before(cutoff) {
			delete(o.runs, id)
			removed++
		}
	}
	o.mu.Unlock()

	if o.deps.Jobs == nil {
		return removed, nil
	}
	if _, err := o.deps.Jobs.DeleteTerminalBefore(ctx, cutoff); err != nil {
		return removed, fmt.Errorf("delete terminal jobs: %w", err)
	}
	return removed, nil
}

// RunJanitor sweeps periodically until ctx ends.
func (o *OptimizationOrchestrator) RunJanitor(ctx context.Context) {
	interval := o.cfg.JobRetention / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := o.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				o.logger.WarnContext(ctx, "optimization janitor sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				o.logger.DebugContext(ctx, "optimization janitor swept jobs", "removed", removed)
			}
		}
	}
}

// Close stops every poller and waits for them to exit.
func (o *OptimizationOrchestrator) Close() {
	o.cancel()
	o.polls.Wait()
}

func (o *OptimizationOrchestrator) track(run *jobRun) {
	o.mu.Lock()
	o.runs[run.job.RequestID] = run
	o.mu.Unlock()
}

func (o *OptimizationOrchestrator) persist(ctx context.Context, job optimization.Job) {
	if o.deps.Jobs == nil {
		return
	}
	if err := o.deps.Jobs.Upsert(context.WithoutCancel(ctx), job); err != nil {
		o.logger.WarnContext(ctx, "persist optimization job failed", "request_id", job.RequestID, "error", err)
	}
}

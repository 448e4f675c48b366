package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/cache"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/fault"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/resilience"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultLineupCacheTTL    = 15 * time.Minute
	defaultLastKnownCacheTTL = 24 * time.Hour
)

type StoreEventKind string

const (
	StoreEventChanged   StoreEventKind = "changed"
	StoreEventConfirmed StoreEventKind = "confirmed"
	StoreEventRejected  StoreEventKind = "rejected"
	StoreEventStale     StoreEventKind = "stale"
	StoreEventMerged    StoreEventKind = "merged"
)

type StoreEvent struct {
	Kind      StoreEventKind
	RequestID string
	Err       error
	Lineup    lineup.Lineup
	At        time.Time
}

type LoadResult struct {
	Lineup lineup.Lineup
	Stale  bool
}

type StoreSnapshot struct {
	Lineup         lineup.Lineup
	Loaded         bool
	Loading        bool
	Stale          bool
	PendingChanges int
}

// StoreDeps are the process-wide collaborators shared by every store.
type StoreDeps struct {
	Remote   lineup.RemoteService
	Guard    *resilience.Guard
	Cache    *cache.Store
	Pool     Submitter
	Rules    lineup.Rules
	CacheTTL time.Duration
	// LastKnownTTL keeps the last good lineup readable for the stale
	// fallback after the fresh entry has expired.
	LastKnownTTL time.Duration
	Logger       *logging.Logger
}

// LineupStore owns the lineup of one (team, period). The visible lineup
// is the confirmed server state with pending local changes overlaid in
// submission order. All local mutations go through applyBuilt.
type LineupStore struct {
	teamID string
	period int
	deps   StoreDeps
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	loaded    bool
	loading   bool
	stale     bool
	closed    bool
	confirmed lineup.Lineup
	pending   []lineup.PendingChange

	submitMu sync.Mutex
	inflight sync.WaitGroup

	subsMu  sync.Mutex
	subs    map[int]chan StoreEvent
	nextSub int

	now   func() time.Time
	newID func() string
}

func NewLineupStore(teamID string, period int, deps StoreDeps) *LineupStore {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Pool == nil {
		deps.Pool = inlineSubmitter{}
	}
	if deps.CacheTTL <= 0 {
		deps.CacheTTL = defaultLineupCacheTTL
	}
	if deps.LastKnownTTL < deps.CacheTTL {
		deps.LastKnownTTL = defaultLastKnownCacheTTL
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &LineupStore{
		teamID: teamID,
		period: period,
		deps:   deps,
		logger: deps.Logger.With("team_id", teamID, "period", period),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan StoreEvent),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

func lineupCacheKey(teamID string, period int) string {
	return "lineup:" + teamID + ":" + strconv.Itoa(period)
}

func (s *LineupStore) cacheKey() string {
	return lineupCacheKey(s.teamID, s.period)
}

func (s *LineupStore) lastKnownKey() string {
	return "lineup-last-known:" + s.teamID + ":" + strconv.Itoa(s.period)
}

func (s *LineupStore) TeamID() string { return s.teamID }
func (s *LineupStore) Period() int    { return s.period }

func (s *LineupStore) LineupID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed.ID
}

// Load returns the cached lineup when fresh, otherwise fetches it through
// the guard. When the fetch fails and a lineup was loaded before, by this
// store or into the last-known cache entry, that lineup comes back with
// Stale set instead of an error.
func (s *LineupStore) Load(ctx context.Context) (LoadResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LineupStore.Load", teamAttrs(s.teamID, s.period)...)
	defer span.End()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return LoadResult{}, ErrStoreClosed
	}
	s.loading = true
	s.mu.Unlock()

	var fetched lineup.Lineup
	var fromRemote atomic.Bool
	err := s.deps.Cache.GetOrLoad(ctx, s.cacheKey(), s.deps.CacheTTL, &fetched, func(ctx context.Context) (any, error) {
		l, err := resilience.Call(ctx, s.deps.Guard, resilience.OpLineupRead, func(ctx context.Context) (lineup.Lineup, error) {
			return s.deps.Remote.Fetch(ctx, s.teamID, s.period)
		})
		fromRemote.Store(err == nil)
		return l, err
	})

	if err != nil {
		return s.loadFailed(ctx, err)
	}

	s.mu.Lock()
	s.loading = false
	s.adoptLocked(fetched)
	s.stale = false
	view := s.viewLocked()
	confirmed := s.confirmed.Clone()
	s.mu.Unlock()

	if fromRemote.Load() {
		s.rememberLastKnown(ctx, confirmed)
	}
	return LoadResult{Lineup: view}, nil
}

func (s *LineupStore) loadFailed(ctx context.Context, err error) (LoadResult, error) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()

	var last lineup.Lineup
	recovered := !loaded && s.deps.Cache.Get(ctx, s.lastKnownKey(), &last)

	s.mu.Lock()
	s.loading = false
	if recovered && !s.loaded {
		s.adoptLocked(last)
	}
	if !s.loaded {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "load lineup failed", "error", err)
		return LoadResult{}, fmt.Errorf("load lineup %s/%d: %w", s.teamID, s.period, err)
	}
	s.stale = true
	view := s.viewLocked()
	s.mu.Unlock()

	staleErr := fault.Wrap(fault.StaleData, "lineup.load", err)
	s.logger.WarnContext(ctx, "serving stale lineup", "error", err, "last_known", recovered)
	s.publish(StoreEvent{Kind: StoreEventStale, Err: staleErr, Lineup: view})
	return LoadResult{Lineup: view, Stale: true}, nil
}

// ApplyOptimistic applies change to the visible lineup at once and submits
// it in the background. The returned request ID tags the confirm or
// reject event.
func (s *LineupStore) ApplyOptimistic(ctx context.Context, change lineup.Change) (string, error) {
	return s.apply(ctx, change, func(view lineup.Lineup) error {
		return lineup.CheckSlotUpdates(view, change.Slots, s.deps.Rules)
	})
}

// Swap exchanges two slots under lineup.CheckSwap.
func (s *LineupStore) Swap(ctx context.Context, sourceIndex, targetIndex int) (string, error) {
	return s.applyBuilt(ctx, func(view lineup.Lineup) (lineup.Change, error) {
		if err := lineup.CheckSwap(view, sourceIndex, targetIndex, s.deps.Rules); err != nil {
			return lineup.Change{}, err
		}
		return lineup.SwapChange(view, sourceIndex, targetIndex), nil
	})
}

// UpdateSlots writes up to lineup.MaxLineupChanges absolute slot values.
func (s *LineupStore) UpdateSlots(ctx context.Context, slots map[int]lineup.Slot) (string, error) {
	return s.ApplyOptimistic(ctx, lineup.Change{Operation: lineup.OperationBulkUpdate, Slots: slots})
}

func (s *LineupStore) apply(ctx context.Context, change lineup.Change, check func(lineup.Lineup) error) (string, error) {
	return s.applyBuilt(ctx, func(view lineup.Lineup) (lineup.Change, error) {
		if change.Operation == "" {
			change.Operation = lineup.OperationBulkUpdate
		}
		if err := check(view); err != nil {
			return lineup.Change{}, err
		}
		return change, nil
	})
}

// applyBuilt is the single mutation entry point: build validates against
// the current view and returns the change to record.
func (s *LineupStore) applyBuilt(ctx context.Context, build func(lineup.Lineup) (lineup.Change, error)) (string, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LineupStore.Apply", teamAttrs(s.teamID, s.period)...)
	defer span.End()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrStoreClosed
	}
	if !s.loaded {
		s.mu.Unlock()
		return "", ErrLineupNotLoaded
	}

	view := s.viewLocked()
	change, err := build(view)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}

	pc := lineup.PendingChange{
		TargetLineupID: view.ID,
		Operation:      change.Operation,
		SubmittedAt:    s.now(),
		RequestID:      s.newID(),
		Slots:          copySlots(change.Slots),
	}
	s.pending = append(s.pending, pc)
	view = s.viewLocked()
	s.inflight.Add(1)
	s.mu.Unlock()

	submitCtx := trace.ContextWithSpanContext(s.ctx, trace.SpanContextFromContext(ctx))
	if err := s.deps.Pool.Submit(func() {
		defer s.inflight.Done()
		s.submit(submitCtx, pc)
	}); err != nil {
		s.inflight.Done()
		s.mu.Lock()
		s.removePendingLocked(pc.RequestID)
		s.mu.Unlock()
		return "", fmt.Errorf("submit lineup change: %w", err)
	}

	s.logger.DebugContext(ctx, "lineup change applied optimistically",
		"request_id", pc.RequestID,
		"operation", pc.Operation,
		"slots", len(pc.Slots),
	)
	s.publish(StoreEvent{Kind: StoreEventChanged, RequestID: pc.RequestID, Lineup: view})
	return pc.RequestID, nil
}

// submit sends confirmed state plus this change only, one change at a
// time per store, so a rejected earlier change never rides along.
func (s *LineupStore) submit(ctx context.Context, pc lineup.PendingChange) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	s.mu.Lock()
	if !s.hasPendingLocked(pc.RequestID) {
		s.mu.Unlock()
		return
	}
	payload := s.confirmed.Clone()
	for index, slot := range pc.Slots {
		payload.SetSlot(index, slot)
	}
	s.mu.Unlock()

	confirmed, err := resilience.Call(ctx, s.deps.Guard, resilience.OpLineupWrite, func(ctx context.Context) (lineup.Lineup, error) {
		return s.deps.Remote.Put(ctx, s.teamID, s.period, payload.Starters, payload.Bench)
	})
	if err != nil {
		s.reject(ctx, pc, err)
		return
	}
	s.confirm(ctx, pc, confirmed)
}

func (s *LineupStore) confirm(ctx context.Context, pc lineup.PendingChange, server lineup.Lineup) {
	s.mu.Lock()
	if !s.removePendingLocked(pc.RequestID) {
		s.mu.Unlock()
		return
	}

	previous := s.confirmed.LastUpdated
	next := s.withIdentity(server)
	if next.LastUpdated.IsZero() {
		next.LastUpdated = s.now()
	}
	if next.LastUpdated.Before(previous) {
		next.LastUpdated = previous
	}
	lineup.Revalidate(&next, s.deps.Rules)
	s.confirmed = next
	s.stale = false
	cached := s.confirmed.Clone()
	view := s.viewLocked()
	s.mu.Unlock()

	s.refreshCache(ctx, cached)
	s.logger.InfoContext(ctx, "lineup change confirmed", "request_id", pc.RequestID)
	s.publish(StoreEvent{Kind: StoreEventConfirmed, RequestID: pc.RequestID, Lineup: view})
}

func (s *LineupStore) reject(ctx context.Context, pc lineup.PendingChange, cause error) {
	s.mu.Lock()
	if !s.removePendingLocked(pc.RequestID) {
		s.mu.Unlock()
		return
	}
	view := s.viewLocked()
	s.mu.Unlock()

	kind := fault.KindOf(cause)
	switch kind {
	case fault.AuthRequired:
		s.logger.WarnContext(ctx, "lineup change rejected, credential required", "request_id", pc.RequestID, "error", cause)
	case fault.Validation:
		s.logger.InfoContext(ctx, "lineup change rejected by remote", "request_id", pc.RequestID, "error", cause)
	default:
		s.logger.WarnContext(ctx, "lineup change failed, reverted", "request_id", pc.RequestID, "kind", kind, "error", cause)
	}
	s.publish(StoreEvent{Kind: StoreEventRejected, RequestID: pc.RequestID, Err: cause, Lineup: view})
}

// MergeRemoteDelta applies a pushed change to confirmed state. Slots with
// a pending local change keep showing the local value until it resolves.
// Deltas for another lineup or older than LastUpdated are discarded.
func (s *LineupStore) MergeRemoteDelta(delta lineup.Delta) bool {
	s.mu.Lock()
	if s.closed || !s.loaded || delta.LineupID == "" || delta.LineupID != s.confirmed.ID {
		s.mu.Unlock()
		return false
	}
	if delta.Timestamp.Before(s.confirmed.LastUpdated) {
		s.mu.Unlock()
		return false
	}

	for index, slot := range delta.Slots {
		s.confirmed.SetSlot(index, slot)
	}
	if delta.OptimizationScore != nil {
		s.confirmed.OptimizationScore = *delta.OptimizationScore
	}
	s.confirmed.LastUpdated = delta.Timestamp
	lineup.Revalidate(&s.confirmed, s.deps.Rules)
	cached := s.confirmed.Clone()
	view := s.viewLocked()
	s.mu.Unlock()

	s.refreshCache(s.ctx, cached)
	s.publish(StoreEvent{Kind: StoreEventMerged, Lineup: view})
	return true
}

// ReconcileServerLineup adopts a server-produced lineup such as an
// optimizer result. Locked slots keep their current value. A store that
// never loaded has no lock state or lineup identity, so the result is
// dropped and the next Load fetches the server lineup.
func (s *LineupStore) ReconcileServerLineup(ctx context.Context, next lineup.Lineup) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if !s.loaded {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "dropping server lineup for unloaded store")
		return false
	}

	next = s.withIdentity(next)
	for i := 0; i < s.confirmed.SlotCount(); i++ {
		current, _ := s.confirmed.SlotAt(i)
		if current.Locked {
			next.SetSlot(i, current)
		}
	}
	if next.LastUpdated.IsZero() {
		next.LastUpdated = s.now()
	}
	if next.LastUpdated.Before(s.confirmed.LastUpdated) {
		next.LastUpdated = s.confirmed.LastUpdated
	}
	lineup.Revalidate(&next, s.deps.Rules)
	s.confirmed = next
	cached := s.confirmed.Clone()
	view := s.viewLocked()
	s.mu.Unlock()

	s.refreshCache(ctx, cached)
	s.publish(StoreEvent{Kind: StoreEventConfirmed, Lineup: view})
	return true
}

func (s *LineupStore) Snapshot() StoreSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StoreSnapshot{
		Lineup:         s.viewLocked(),
		Loaded:         s.loaded,
		Loading:        s.loading,
		Stale:          s.stale,
		PendingChanges: len(s.pending),
	}
}

// PendingChanges returns outstanding changes in submission order.
func (s *LineupStore) PendingChanges() []lineup.PendingChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lineup.PendingChange, len(s.pending))
	copy(out, s.pending)
	return out
}

// Subscribe streams store events. Slow subscribers miss events rather
// than block mutations.
func (s *LineupStore) Subscribe(buffer int) (<-chan StoreEvent, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan StoreEvent, buffer)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs == nil {
		close(ch)
		s.subsMu.Unlock()
		return ch, func() {}
	}
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			if existing, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(existing)
			}
			s.subsMu.Unlock()
		})
	}
}

// Flush waits until every submitted change has been confirmed or rejected.
func (s *LineupStore) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight submissions and ends all subscriptions.
func (s *LineupStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	s.subsMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subs = nil
	s.subsMu.Unlock()
}

func (s *LineupStore) adoptLocked(fetched lineup.Lineup) {
	fetched = s.withIdentity(fetched)
	if s.loaded && fetched.LastUpdated.Before(s.confirmed.LastUpdated) {
		return
	}
	lineup.Revalidate(&fetched, s.deps.Rules)
	s.confirmed = fetched
	s.loaded = true
}

func (s *LineupStore) withIdentity(l lineup.Lineup) lineup.Lineup {
	l = l.Clone()
	if l.ID == "" {
		l.ID = s.confirmed.ID
	}
	l.TeamID = s.teamID
	l.ScoringPeriod = s.period
	if l.Sport == "" {
		l.Sport = s.confirmed.Sport
	}
	if l.Sport == "" {
		l.Sport = s.deps.Rules.Sport
	}
	return l
}

// viewLocked overlays pending changes on confirmed state. Requires s.mu.
func (s *LineupStore) viewLocked() lineup.Lineup {
	view := s.confirmed.Clone()
	if len(s.pending) == 0 {
		return view
	}
	for _, pc := range s.pending {
		indices := make([]int, 0, len(pc.Slots))
		for index := range pc.Slots {
			indices = append(indices, index)
		}
		sort.Ints(indices)
		for _, index := range indices {
			view.SetSlot(index, pc.Slots[index])
		}
	}
	lineup.Revalidate(&view, s.deps.Rules)
	return view
}

func (s *LineupStore) hasPendingLocked(requestID string) bool {
	for _, pc := range s.pending {
		if pc.RequestID == requestID {
			return true
		}
	}
	return false
}

func (s *LineupStore) removePendingLocked(requestID string) bool {
	for i, pc := range s.pending {
		if pc.RequestID == requestID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (s *LineupStore) refreshCache(ctx context.Context, l lineup.Lineup) {
	if err := s.deps.Cache.Set(ctx, s.cacheKey(), l, s.deps.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "refresh lineup cache failed", "error", err)
	}
	s.rememberLastKnown(ctx, l)
}

func (s *LineupStore) rememberLastKnown(ctx context.Context, l lineup.Lineup) {
	if err := s.deps.Cache.Set(ctx, s.lastKnownKey(), l, s.deps.LastKnownTTL); err != nil {
		s.logger.WarnContext(ctx, "remember last known lineup failed", "error", err)
	}
}

func (s *LineupStore) publish(ev StoreEvent) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func copySlots(in map[int]lineup.Slot) map[int]lineup.Slot {
	out := make(map[int]lineup.Slot, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

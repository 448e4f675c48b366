package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/resilience"
)

// LineupState is what the UI renders for one team and period.
type LineupState struct {
	Loading              bool
	Error                string
	Lineup               *lineup.Lineup
	Stale                bool
	OptimizationProgress *optimization.Progress
	SyncStatus           StateSyncStatus
}

type StateSyncStatus struct {
	Synced         bool
	LastSyncTime   *time.Time
	PendingChanges int
}

// ServiceStatus backs the sync status endpoint.
type ServiceStatus struct {
	Sync     SyncStatus
	Circuits map[resilience.OperationClass]resilience.CircuitSnapshot
	Stores   []string
	Pending  int
	Active   int
}

type SwapInput struct {
	TeamID      string
	Period      int
	SourceIndex int
	TargetIndex int
}

type UpdateLineupInput struct {
	TeamID string
	Period int
	Slots  map[int]lineup.Slot
}

type heldStore struct {
	store   *LineupStore
	release func()
}

// LineupService is the surface the UI shell talks to. It keeps every
// store it has touched acquired until Close.
type LineupService struct {
	registry     *StoreRegistry
	orchestrator *OptimizationOrchestrator
	sync         *SyncChannel
	guard        *resilience.Guard
	logger       *logging.Logger

	mu   sync.Mutex
	held map[storeKey]heldStore
}

func NewLineupService(
	registry *StoreRegistry,
	orchestrator *OptimizationOrchestrator,
	syncChannel *SyncChannel,
	guard *resilience.Guard,
	logger *logging.Logger,
) *LineupService {
	if logger == nil {
		logger = logging.Default()
	}
	return &LineupService{
		registry:     registry,
		orchestrator: orchestrator,
		sync:         syncChannel,
		guard:        guard,
		logger:       logger,
		held:         make(map[storeKey]heldStore),
	}
}

func (s *LineupService) GetState(ctx context.Context, teamID string, period int) (LineupState, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LineupService.GetState", teamAttrs(teamID, period)...)
	defer span.End()

	store, err := s.storeFor(teamID, period)
	if err != nil {
		return LineupState{}, err
	}

	state := LineupState{}
	result, loadErr := store.Load(ctx)
	if loadErr != nil {
		state.Error = loadErr.Error()
	}
	s.fill(&state, store, teamID, period)
	if loadErr != nil {
		return state, loadErr
	}
	state.Stale = result.Stale
	return state, nil
}

func (s *LineupService) UpdateLineup(ctx context.Context, input UpdateLineupInput) (string, LineupState, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LineupService.UpdateLineup", teamAttrs(input.TeamID, input.Period)...)
	defer span.End()

	store, err := s.loadedStore(ctx, input.TeamID, input.Period)
	if err != nil {
		return "", LineupState{}, err
	}

	requestID, err := store.UpdateSlots(ctx, input.Slots)
	state := LineupState{}
	s.fill(&state, store, input.TeamID, input.Period)
	if err != nil {
		return "", state, mutationError(err)
	}
	return requestID, state, nil
}

func (s *LineupService) SwapPlayers(ctx context.Context, input SwapInput) (string, LineupState, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LineupService.SwapPlayers", teamAttrs(input.TeamID, input.Period)...)
	defer span.End()

	store, err := s.loadedStore(ctx, input.TeamID, input.Period)
	if err != nil {
		return "", LineupState{}, err
	}

	requestID, err := store.Swap(ctx, input.SourceIndex, input.TargetIndex)
	state := LineupState{}
	s.fill(&state, store, input.TeamID, input.Period)
	if err != nil {
		return "", state, mutationError(err)
	}
	return requestID, state, nil
}

// OptimizeLineup starts a lineup optimization. The store for the team is
// loaded and held first, so the result reconciles against known locks.
func (s *LineupService) OptimizeLineup(ctx context.Context, params optimization.Params) (optimization.Job, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LineupService.OptimizeLineup", teamAttrs(params.TeamID, params.ScoringPeriod)...)
	defer span.End()

	params.Kind = optimization.KindLineup
	if _, err := s.loadedStore(ctx, params.TeamID, params.ScoringPeriod); err != nil {
		return optimization.Job{}, err
	}
	return s.start(ctx, params)
}

func (s *LineupService) AnalyzeTrade(ctx context.Context, params optimization.Params) (optimization.Job, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LineupService.AnalyzeTrade")
	defer span.End()

	params.Kind = optimization.KindTrade
	return s.start(ctx, params)
}

func (s *LineupService) start(ctx context.Context, params optimization.Params) (optimization.Job, error) {
	handle, err := s.orchestrator.Start(ctx, params)
	if err != nil {
		if handle.RequestID == "" {
			return optimization.Job{}, err
		}
		job, getErr := s.orchestrator.Get(ctx, handle.RequestID)
		if getErr != nil {
			return optimization.Job{}, err
		}
		return job, err
	}
	return s.orchestrator.Get(ctx, handle.RequestID)
}

func (s *LineupService) CancelOptimization(ctx context.Context, requestID string) (optimization.Job, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return optimization.Job{}, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	if err := s.orchestrator.Cancel(ctx, Handle{RequestID: requestID}); err != nil {
		return optimization.Job{}, err
	}
	return s.orchestrator.Get(ctx, requestID)
}

func (s *LineupService) GetOptimization(ctx context.Context, requestID string) (optimization.Job, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return optimization.Job{}, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	return s.orchestrator.Get(ctx, requestID)
}

func (s *LineupService) Status() ServiceStatus {
	status := ServiceStatus{
		Sync:    s.syncStatus(),
		Stores:  s.registry.Keys(),
		Pending: s.registry.PendingChanges(),
		Active:  len(s.orchestrator.Active()),
	}
	if s.guard != nil {
		status.Circuits = s.guard.Snapshots()
	}
	return status
}

// Close releases every held store.
func (s *LineupService) Close() {
	s.mu.Lock()
	held := s.held
	s.held = make(map[storeKey]heldStore)
	s.mu.Unlock()

	for _, h := range held {
		h.release()
	}
}

func (s *LineupService) storeFor(teamID string, period int) (*LineupStore, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return nil, fmt.Errorf("%w: team id is required", ErrInvalidInput)
	}
	if period < lineup.MinScoringPeriod || period > lineup.MaxScoringPeriod {
		return nil, fmt.Errorf("%w: scoring period must be between %d and %d", ErrInvalidInput, lineup.MinScoringPeriod, lineup.MaxScoringPeriod)
	}

	key := storeKey{teamID: teamID, period: period}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.held[key]; ok {
		return h.store, nil
	}
	store, release := s.registry.Acquire(teamID, period)
	s.held[key] = heldStore{store: store, release: release}
	return store, nil
}

func (s *LineupService) loadedStore(ctx context.Context, teamID string, period int) (*LineupStore, error) {
	store, err := s.storeFor(teamID, period)
	if err != nil {
		return nil, err
	}
	if store.Snapshot().Loaded {
		return store, nil
	}
	if _, err := store.Load(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *LineupService) fill(state *LineupState, store *LineupStore, teamID string, period int) {
	snap := store.Snapshot()
	state.Loading = snap.Loading
	state.Stale = snap.Stale
	if snap.Loaded {
		l := snap.Lineup
		state.Lineup = &l
	}

	sync := s.syncStatus()
	state.SyncStatus = StateSyncStatus{
		Synced:         sync.Synced,
		LastSyncTime:   sync.LastSyncTime,
		PendingChanges: snap.PendingChanges,
	}

	if job, ok := s.orchestrator.Latest(teamID, period); ok {
		state.OptimizationProgress = &optimization.Progress{
			RequestID:       job.RequestID,
			Status:          job.Status,
			ProgressPercent: job.ProgressPercent,
			Error:           job.Error,
			At:              job.UpdatedAt,
		}
	}
}

func (s *LineupService) syncStatus() SyncStatus {
	if s.sync == nil {
		return SyncStatus{State: SyncDisconnected}
	}
	return s.sync.Status()
}

// mutationError tags rule violations as invalid input so every surface
// maps them the same way.
func mutationError(err error) error {
	for _, target := range []error{lineup.ErrInvalidSwap, lineup.ErrInvalidUpdate, lineup.ErrTooManyChanges, lineup.ErrUnknownPosition} {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return err
}

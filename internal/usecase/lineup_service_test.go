package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/resilience"
	"github.com/stretchr/testify/mock"

	lineupmock "github.com/riskibarqy/lineup-orchestrator/internal/mocks/domain/lineup"
	optimizationmock "github.com/riskibarqy/lineup-orchestrator/internal/mocks/domain/optimization"
)

type serviceFixture struct {
	service  *LineupService
	lineups  *lineupmock.RemoteService
	remote   *optimizationmock.RemoteService
	registry *StoreRegistry
}

func newServiceFixture(t *testing.T) serviceFixture {
	t.Helper()

	lineups := lineupmock.NewRemoteService(t)
	deps := newTestStoreDeps(t, lineups)
	registry := NewStoreRegistry(deps)
	t.Cleanup(registry.Close)

	remote := optimizationmock.NewRemoteService(t)
	orchestrator := NewOptimizationOrchestrator(OrchestratorDeps{
		Remote: remote,
		Guard:  deps.Guard,
		Cache:  deps.Cache,
		Stores: registry,
		Logger: logging.NewNop(),
	}, OrchestratorConfig{PollInterval: 5 * time.Millisecond})
	t.Cleanup(orchestrator.Close)

	syncChannel := NewSyncChannel(&fakeFeed{}, registry, SyncConfig{}, logging.NewNop(), nil)
	service := NewLineupService(registry, orchestrator, syncChannel, deps.Guard, logging.NewNop())
	t.Cleanup(service.Close)

	return serviceFixture{service: service, lineups: lineups, remote: remote, registry: registry}
}

func TestLineupService_GetStateLoadsOnce(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.lineups.On("Fetch", mock.Anything, "team-1", 5).Return(sampleLineup(), nil).Once()

	state, err := f.service.GetState(ctx, "team-1", 5)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Lineup == nil || state.Lineup.ID != "lineup-1" {
		t.Fatalf("expected loaded lineup, got %+v", state.Lineup)
	}
	if state.Loading || state.Stale || state.Error != "" {
		t.Fatalf("unexpected state flags: %+v", state)
	}
	if state.SyncStatus.Synced || state.SyncStatus.PendingChanges != 0 {
		t.Fatalf("unexpected sync status: %+v", state.SyncStatus)
	}

	if _, err := f.service.GetState(ctx, "team-1", 5); err != nil {
		t.Fatalf("second get state: %v", err)
	}
	f.lineups.AssertNumberOfCalls(t, "Fetch", 1)

	if keys := f.registry.Keys(); len(keys) != 1 {
		t.Fatalf("expected the service to hold one store, got %v", keys)
	}
	f.service.Close()
	if keys := f.registry.Keys(); len(keys) != 0 {
		t.Fatalf("expected Close to release held stores, got %v", keys)
	}
}

func TestLineupService_InputValidation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
	}{
		{name: "blank team", run: func() error { _, err := f.service.GetState(ctx, " ", 5); return err }},
		{name: "period zero", run: func() error { _, err := f.service.GetState(ctx, "team-1", 0); return err }},
		{name: "period too large", run: func() error { _, err := f.service.GetState(ctx, "team-1", 54); return err }},
		{name: "blank request id", run: func() error { _, err := f.service.GetOptimization(ctx, ""); return err }},
		{name: "blank cancel id", run: func() error { _, err := f.service.CancelOptimization(ctx, ""); return err }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestLineupService_SwapPlayers(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.lineups.On("Fetch", mock.Anything, "team-1", 5).Return(sampleLineup(), nil).Once()

	_, _, err := f.service.SwapPlayers(ctx, SwapInput{TeamID: "team-1", Period: 5, SourceIndex: 5, TargetIndex: 9})
	if !errors.Is(err, ErrInvalidInput) || !errors.Is(err, lineup.ErrInvalidSwap) {
		t.Fatalf("expected invalid swap as invalid input, got %v", err)
	}

	release := make(chan struct{})
	defer close(release)
	f.lineups.On("Put", mock.Anything, "team-1", 5, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(sampleLineup(), nil).Maybe()

	requestID, state, err := f.service.SwapPlayers(ctx, SwapInput{TeamID: "team-1", Period: 5, SourceIndex: 3, TargetIndex: 4})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if requestID == "" {
		t.Fatalf("expected request id")
	}
	if state.SyncStatus.PendingChanges != 1 {
		t.Fatalf("expected one pending change, got %d", state.SyncStatus.PendingChanges)
	}
	if slotPlayer(t, *state.Lineup, 3) != "wr-2" {
		t.Fatalf("expected swap to be visible in returned state")
	}
}

func TestLineupService_UpdateLineupRequiresLoadableLineup(t *testing.T) {
	f := newServiceFixture(t)

	f.lineups.On("Fetch", mock.Anything, "team-9", 2).Return(lineup.Lineup{}, errors.New("offline")).Once()

	_, _, err := f.service.UpdateLineup(context.Background(), UpdateLineupInput{
		TeamID: "team-9",
		Period: 2,
		Slots:  map[int]lineup.Slot{0: {Position: lineup.PositionQB, PlayerID: "qb-1"}},
	})
	if err == nil {
		t.Fatalf("expected load failure to surface")
	}
}

func TestLineupService_OptimizeLineupShowsProgress(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.lineups.On("Fetch", mock.Anything, "team-1", 5).Return(sampleLineup(), nil).Once()
	f.remote.On("Submit", mock.Anything, mock.MatchedBy(func(p optimization.Params) bool {
		return p.Kind == optimization.KindLineup
	})).Return("remote-1", nil).Once()
	f.remote.On("Status", mock.Anything, "remote-1").Return(optimization.RemoteStatus{
		Status: optimization.StatusCompleted,
		Result: optimizedResult(),
	}, nil).Once()

	params := lineupParams()
	params.Kind = optimization.KindTrade
	job, err := f.service.OptimizeLineup(ctx, params)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if job.Params.Kind != optimization.KindLineup {
		t.Fatalf("expected kind to be forced to lineup")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := f.service.orchestrator.Wait(waitCtx, Handle{RequestID: job.RequestID}); err != nil {
		t.Fatalf("wait: %v", err)
	}

	state, err := f.service.GetState(ctx, "team-1", 5)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.OptimizationProgress == nil || state.OptimizationProgress.Status != optimization.StatusCompleted {
		t.Fatalf("expected completed progress, got %+v", state.OptimizationProgress)
	}
	if state.Lineup == nil || state.Lineup.OptimizationScore != 128.4 {
		t.Fatalf("expected optimized lineup to be reconciled")
	}
	if state.Lineup.ID != "lineup-1" || slotPlayer(t, *state.Lineup, 0) != "qb-2" || slotPlayer(t, *state.Lineup, 5) != "te-1" {
		t.Fatalf("expected optimizer result on top of the server lineup with locks kept, got %+v", state.Lineup)
	}

	merged := f.registry.MergeRemoteDelta(lineup.Delta{
		LineupID:  "lineup-1",
		Slots:     map[int]lineup.Slot{6: {Position: lineup.PositionK, PlayerID: "k-2", InjuryStatus: lineup.InjuryActive}},
		Timestamp: time.Now(),
	})
	if !merged {
		t.Fatalf("expected realtime delta to merge into the optimized lineup")
	}
	f.lineups.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestLineupService_OptimizeLineupFailsWithoutServerLineup(t *testing.T) {
	f := newServiceFixture(t)

	f.lineups.On("Fetch", mock.Anything, "team-3", 5).Return(lineup.Lineup{}, errors.New("offline")).Once()

	params := lineupParams()
	params.TeamID = "team-3"
	if _, err := f.service.OptimizeLineup(context.Background(), params); err == nil {
		t.Fatalf("expected optimize to fail when the lineup cannot be loaded")
	}
	f.remote.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestLineupService_Status(t *testing.T) {
	f := newServiceFixture(t)

	status := f.service.Status()
	if status.Sync.State != SyncDisconnected {
		t.Fatalf("expected DISCONNECTED before run, got %s", status.Sync.State)
	}
	if status.Active != 0 || status.Pending != 0 || len(status.Circuits) != 0 {
		t.Fatalf("unexpected initial status: %+v", status)
	}

	f.lineups.On("Fetch", mock.Anything, "team-1", 5).Return(sampleLineup(), nil).Once()
	if _, err := f.service.GetState(context.Background(), "team-1", 5); err != nil {
		t.Fatalf("get state: %v", err)
	}

	status = f.service.Status()
	snapshot, ok := status.Circuits[resilience.OpLineupRead]
	if !ok || snapshot.Status != resilience.CircuitClosed {
		t.Fatalf("expected closed lineup read circuit, got %v", status.Circuits)
	}
	if len(status.Stores) != 1 || status.Stores[0] != "team-1/5" {
		t.Fatalf("unexpected stores: %v", status.Stores)
	}
}

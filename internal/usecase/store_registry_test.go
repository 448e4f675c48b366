package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/stretchr/testify/mock"

	lineupmock "github.com/riskibarqy/lineup-orchestrator/internal/mocks/domain/lineup"
)

func TestStoreRegistry_SharesStoreUntilLastRelease(t *testing.T) {
	remote := lineupmock.NewRemoteService(t)
	registry := NewStoreRegistry(newTestStoreDeps(t, remote))
	defer registry.Close()

	first, releaseFirst := registry.Acquire("team-1", 5)
	second, releaseSecond := registry.Acquire("team-1", 5)
	if first != second {
		t.Fatalf("expected one store per team and period")
	}
	other, releaseOther := registry.Acquire("team-1", 6)
	defer releaseOther()
	if other == first {
		t.Fatalf("expected a separate store for another period")
	}

	releaseFirst()
	releaseFirst()
	if _, ok := registry.Lookup("team-1", 5); !ok {
		t.Fatalf("store must stay live while a holder remains")
	}

	releaseSecond()
	if _, ok := registry.Lookup("team-1", 5); ok {
		t.Fatalf("expected store to be dropped after last release")
	}
	if _, err := first.Load(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected released store to be closed, got %v", err)
	}

	if keys := registry.Keys(); len(keys) != 1 || keys[0] != "team-1/6" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestStoreRegistry_RoutesDeltaByLineupID(t *testing.T) {
	remote := lineupmock.NewRemoteService(t)
	registry := NewStoreRegistry(newTestStoreDeps(t, remote))
	defer registry.Close()

	remote.On("Fetch", mock.Anything, "team-1", 5).Return(sampleLineup(), nil).Once()
	store, release := registry.Acquire("team-1", 5)
	defer release()
	if _, err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	delta := lineup.Delta{
		LineupID:  "lineup-1",
		Slots:     map[int]lineup.Slot{6: {Position: lineup.PositionK, PlayerID: "k-2", InjuryStatus: lineup.InjuryActive}},
		Timestamp: testNow,
	}
	if !registry.MergeRemoteDelta(delta) {
		t.Fatalf("expected delta to reach the owning store")
	}
	if got := slotPlayer(t, store.Snapshot().Lineup, 6); got != "k-2" {
		t.Fatalf("expected merged kicker, got %s", got)
	}

	delta.LineupID = "lineup-unknown"
	if registry.MergeRemoteDelta(delta) {
		t.Fatalf("expected delta for unknown lineup to be dropped")
	}
	if registry.PendingChanges() != 0 {
		t.Fatalf("expected no pending changes")
	}
}

func TestStoreRegistry_CloseClosesEveryStore(t *testing.T) {
	remote := lineupmock.NewRemoteService(t)
	registry := NewStoreRegistry(newTestStoreDeps(t, remote))

	store, release := registry.Acquire("team-2", 3)
	registry.Close()
	release()

	if _, err := store.Load(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected closed store, got %v", err)
	}

	late, lateRelease := registry.Acquire("team-2", 3)
	defer lateRelease()
	if _, err := late.Load(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected store from closed registry to be closed, got %v", err)
	}
}

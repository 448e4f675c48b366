package memory

import (
	"context"
	"testing"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
)

func TestOptimizationJobRepository_UpsertGetIsolatesCopies(t *testing.T) {
	repo := NewOptimizationJobRepository()
	ctx := context.Background()

	weather := lineup.WeatherLow
	job := optimization.Job{
		RequestID: "req-1",
		TeamID:    "team-1",
		Status:    optimization.StatusCompleted,
		Params: optimization.Params{
			Kind:  optimization.KindTrade,
			Trade: &optimization.TradeParams{OfferedPlayerIDs: []string{"wr-1"}, RequestedPlayerIDs: []string{"rb-9"}, CounterpartyTeamID: "team-2"},
		},
		Result: &optimization.Result{
			Starters: []lineup.Slot{{Position: lineup.PositionWR, PlayerID: "wr-1", WeatherImpact: &weather}},
		},
	}
	if err := repo.Upsert(ctx, job); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	job.Params.Trade.OfferedPlayerIDs[0] = "mutated"
	job.Result.Starters[0].PlayerID = "mutated"

	got, ok, err := repo.Get(ctx, "req-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Params.Trade.OfferedPlayerIDs[0] != "wr-1" || got.Result.Starters[0].PlayerID != "wr-1" {
		t.Fatalf("stored job shares memory with caller: %+v", got)
	}

	if _, ok, _ := repo.Get(ctx, "missing"); ok {
		t.Fatalf("expected missing job")
	}
}

func TestOptimizationJobRepository_DeleteTerminalBefore(t *testing.T) {
	repo := NewOptimizationJobRepository()
	ctx := context.Background()
	now := time.Date(2026, 10, 4, 17, 0, 0, 0, time.UTC)

	jobs := []optimization.Job{
		{RequestID: "old-done", Status: optimization.StatusCompleted, UpdatedAt: now.Add(-2 * time.Hour)},
		{RequestID: "old-running", Status: optimization.StatusRunning, UpdatedAt: now.Add(-2 * time.Hour)},
		{RequestID: "fresh-failed", Status: optimization.StatusFailed, UpdatedAt: now.Add(-time.Minute)},
	}
	for _, job := range jobs {
		if err := repo.Upsert(ctx, job); err != nil {
			t.Fatalf("upsert %s: %v", job.RequestID, err)
		}
	}

	removed, err := repo.DeleteTerminalBefore(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed job, got %d", removed)
	}
	if _, ok, _ := repo.Get(ctx, "old-done"); ok {
		t.Fatalf("expected old terminal job to be removed")
	}
	for _, id := range []string{"old-running", "fresh-failed"} {
		if _, ok, _ := repo.Get(ctx, id); !ok {
			t.Fatalf("expected %s to be kept", id)
		}
	}
}

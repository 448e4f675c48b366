package postgres

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
)

func newMockRepository(t *testing.T) (*OptimizationJobRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewOptimizationJobRepository(sqlx.NewDb(db, "postgres")), mock
}

type jsonContains string

func (c jsonContains) Match(v driver.Value) bool {
	s, ok := v.(string)
	return ok && strings.Contains(s, string(c))
}

func TestOptimizationJobRepository_Upsert(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 10, 4, 17, 0, 0, 0, time.UTC)
	completed := created.Add(time.Minute)

	job := optimization.Job{
		RequestID:   "req-1",
		RemoteJobID: "job-9",
		TeamID:      "team-1",
		Fingerprint: "fp-abc",
		Params: optimization.Params{
			Kind:          optimization.KindLineup,
			TeamID:        "team-1",
			ScoringPeriod: 5,
			Sport:         lineup.SportNFL,
			Simulations:   500,
		},
		Status:          optimization.StatusCompleted,
		ProgressPercent: 100,
		Result: &optimization.Result{
			Starters:          []lineup.Slot{{Position: lineup.PositionQB, PlayerID: "qb-2"}},
			OptimizationScore: 128.4,
		},
		CreatedAt:   created,
		UpdatedAt:   completed,
		CompletedAt: &completed,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO optimization_jobs (request_id, remote_job_id")).
		WithArgs(
			"req-1", "job-9", "team-1", "lineup", "fp-abc",
			jsonContains(`"simulations":500`),
			"COMPLETED", 100.0,
			jsonContains(`"playerId":"qb-2"`),
			nil, false, created, completed, &completed,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), job); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOptimizationJobRepository_UpsertRequiresRequestID(t *testing.T) {
	repo, _ := newMockRepository(t)
	if err := repo.Upsert(context.Background(), optimization.Job{}); err == nil {
		t.Fatalf("expected error for empty request id")
	}
}

func TestOptimizationJobRepository_Get(t *testing.T) {
	repo, mock := newMockRepository(t)
	created := time.Date(2026, 10, 4, 17, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(optimizationJobColumns).AddRow(
		"req-2", "job-3", "team-1", "trade", "fp-trade",
		`{"kind":"trade","teamId":"team-1","scoringPeriod":5,"sport":"NFL","simulations":1000,"trade":{"offeredPlayerIds":["wr-1"],"requestedPlayerIds":["rb-9"],"counterpartyTeamId":"team-2"}}`,
		"COMPLETED", 100.0,
		`{"optimizationScore":0,"confidence":0.8,"tradeAnalysis":{"acceptanceProbability":0.35,"valueDelta":4.5,"riskScore":0.2,"summary":"fair"}}`,
		nil, true, created, created, nil,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM optimization_jobs WHERE request_id = $1")).
		WithArgs("req-2").
		WillReturnRows(rows)

	job, ok, err := repo.Get(context.Background(), "req-2")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if job.Params.Kind != optimization.KindTrade || job.Params.Trade == nil || job.Params.Trade.CounterpartyTeamID != "team-2" {
		t.Fatalf("unexpected params: %+v", job.Params)
	}
	if job.Result == nil || job.Result.HasLineup() || job.Result.TradeAnalysis.ValueDelta != 4.5 {
		t.Fatalf("unexpected result: %+v", job.Result)
	}
	if !job.Cached || job.CompletedAt != nil {
		t.Fatalf("unexpected job flags: %+v", job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestOptimizationJobRepository_GetMissing(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM optimization_jobs")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(optimizationJobColumns))

	_, ok, err := repo.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("expected missing job")
	}
}

func TestOptimizationJobRepository_DeleteTerminalBefore(t *testing.T) {
	repo, mock := newMockRepository(t)
	cutoff := time.Date(2026, 10, 3, 17, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM optimization_jobs WHERE status IN ($1, $2, $3) AND updated_at < $4")).
		WithArgs("COMPLETED", "FAILED", "CANCELLED", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := repo.DeleteTerminalBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed rows, got %d", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

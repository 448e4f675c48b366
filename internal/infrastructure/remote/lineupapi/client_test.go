package lineupapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/fault"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL+"/", StaticToken("token-abc"), logging.NewNop())
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	payload, err := sonic.Marshal(v)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func TestClientFetch_SendsBearerAndParsesLineup(t *testing.T) {
	updated := time.Date(2026, 10, 4, 16, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/v1/teams/team-1/lineups/5" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-abc" {
			t.Fatalf("unexpected authorization header: %q", got)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":            "lineup-1",
			"teamId":        "team-1",
			"scoringPeriod": 5,
			"sport":         "NFL",
			"starters": []map[string]any{
				{"position": "QB", "playerId": "qb-1", "locked": true, "projectedPoints": 21.5, "weatherImpact": "LOW", "injuryStatus": "QUESTIONABLE"},
			},
			"bench":             []map[string]any{{"position": "RB", "playerId": "rb-3"}},
			"optimizationScore": 97.2,
			"lastUpdated":       updated.Format(time.RFC3339),
		})
	})

	got, err := client.Fetch(context.Background(), "team-1", 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.ID != "lineup-1" || got.Sport != lineup.SportNFL || got.OptimizationScore != 97.2 {
		t.Fatalf("unexpected lineup: %+v", got)
	}
	if !got.LastUpdated.Equal(updated) {
		t.Fatalf("unexpected last updated: %s", got.LastUpdated)
	}
	qb := got.Starters[0]
	if !qb.Locked || qb.WeatherImpact == nil || *qb.WeatherImpact != lineup.WeatherLow || qb.InjuryStatus != lineup.InjuryQuestionable {
		t.Fatalf("unexpected starter: %+v", qb)
	}
	if got.Bench[0].InjuryStatus != lineup.InjuryActive {
		t.Fatalf("expected missing injury status to default to ACTIVE")
	}
}

func TestClientPut_EncodesSlots(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("expected json content type")
		}
		raw, _ := io.ReadAll(r.Body)
		var req putLineupRequest
		if err := sonic.Unmarshal(raw, &req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Starters) != 1 || req.Starters[0].PlayerID != "wr-2" || len(req.Bench) != 1 {
			t.Fatalf("unexpected request: %+v", req)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":       "lineup-1",
			"starters": req.Starters,
			"bench":    req.Bench,
		})
	})

	got, err := client.Put(context.Background(), "team-1", 5,
		[]lineup.Slot{{Position: lineup.PositionWR, PlayerID: "wr-2"}},
		[]lineup.Slot{{Position: lineup.PositionWR, PlayerID: "wr-1"}},
	)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if got.Starters[0].PlayerID != "wr-2" || got.Bench[0].PlayerID != "wr-1" {
		t.Fatalf("unexpected lineup: %+v", got)
	}
}

func TestClient_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		want   fault.Kind
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: map[string]string{"code": "token_expired", "message": "login again"}, want: fault.AuthRequired},
		{name: "forbidden", status: http.StatusForbidden, want: fault.AuthRequired},
		{name: "bad request", status: http.StatusBadRequest, body: map[string]string{"code": "invalid_roster", "message": "too many QBs"}, want: fault.Validation},
		{name: "request timeout", status: http.StatusRequestTimeout, want: fault.Timeout},
		{name: "rate limited", status: http.StatusTooManyRequests, want: fault.Network},
		{name: "server error", status: http.StatusInternalServerError, want: fault.Network},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tc.status, tc.body)
			})

			_, err := client.Fetch(context.Background(), "team-1", 5)
			if got := fault.KindOf(err); got != tc.want {
				t.Fatalf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestClient_TransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	client := NewClient(nil, base, nil, logging.NewNop())
	_, err := client.Fetch(context.Background(), "team-1", 5)
	if got := fault.KindOf(err); got != fault.Network {
		t.Fatalf("expected network error, got %s (%v)", got, err)
	}
}

func TestClientOptimizationLifecycle(t *testing.T) {
	var cancelled bool
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/optimizations":
			raw, _ := io.ReadAll(r.Body)
			var params optimization.Params
			if err := sonic.Unmarshal(raw, &params); err != nil {
				t.Fatalf("decode params: %v", err)
			}
			if params.TeamID != "team-1" || params.Simulations != 250 {
				t.Fatalf("unexpected params: %+v", params)
			}
			writeJSON(t, w, http.StatusAccepted, map[string]string{"jobId": "job-9"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/optimizations/job-9":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"jobId":           "job-9",
				"status":          "completed",
				"progressPercent": 100,
				"result": map[string]any{
					"optimizationScore": 120.5,
					"confidence":        0.7,
					"tradeAnalysis":     map[string]any{"acceptanceProbability": 0.4, "valueDelta": -2.5},
				},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/optimizations/job-9/cancel":
			cancelled = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	jobID, err := client.Submit(ctx, optimization.Params{Kind: optimization.KindLineup, TeamID: "team-1", ScoringPeriod: 5, Sport: lineup.SportNFL, Simulations: 250})
	if err != nil || jobID != "job-9" {
		t.Fatalf("submit: id=%q err=%v", jobID, err)
	}

	status, err := client.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != optimization.StatusCompleted || status.Result == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Result.HasLineup() {
		t.Fatalf("trade result must not carry a lineup")
	}
	if status.Result.TradeAnalysis == nil || status.Result.TradeAnalysis.ValueDelta != -2.5 {
		t.Fatalf("unexpected trade analysis: %+v", status.Result.TradeAnalysis)
	}

	if err := client.Cancel(ctx, jobID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled {
		t.Fatalf("expected cancel endpoint to be called")
	}
}

func TestClientStatus_RejectsUnknownStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"jobId": "job-1", "status": "PAUSED"})
	})

	if _, err := client.Status(context.Background(), "job-1"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

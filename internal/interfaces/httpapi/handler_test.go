package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/fault"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/resilience"
	"github.com/riskibarqy/lineup-orchestrator/internal/usecase"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type lineupServiceMock struct {
	mock.Mock
}

func (m *lineupServiceMock) GetState(ctx context.Context, teamID string, period int) (usecase.LineupState, error) {
	args := m.Called(ctx, teamID, period)
	return args.Get(0).(usecase.LineupState), args.Error(1)
}

func (m *lineupServiceMock) UpdateLineup(ctx context.Context, input usecase.UpdateLineupInput) (string, usecase.LineupState, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Get(1).(usecase.LineupState), args.Error(2)
}

func (m *lineupServiceMock) SwapPlayers(ctx context.Context, input usecase.SwapInput) (string, usecase.LineupState, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Get(1).(usecase.LineupState), args.Error(2)
}

func (m *lineupServiceMock) OptimizeLineup(ctx context.Context, params optimization.Params) (optimization.Job, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(optimization.Job), args.Error(1)
}

func (m *lineupServiceMock) AnalyzeTrade(ctx context.Context, params optimization.Params) (optimization.Job, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(optimization.Job), args.Error(1)
}

func (m *lineupServiceMock) CancelOptimization(ctx context.Context, requestID string) (optimization.Job, error) {
	args := m.Called(ctx, requestID)
	return args.Get(0).(optimization.Job), args.Error(1)
}

func (m *lineupServiceMock) GetOptimization(ctx context.Context, requestID string) (optimization.Job, error) {
	args := m.Called(ctx, requestID)
	return args.Get(0).(optimization.Job), args.Error(1)
}

func (m *lineupServiceMock) Status() usecase.ServiceStatus {
	return m.Called().Get(0).(usecase.ServiceStatus)
}

type envelope struct {
	APIVersion string           `json:"apiVersion"`
	Data       map[string]any   `json:"data"`
	Error      *googleErrorBody `json:"error"`
}

func serve(t *testing.T, svc *lineupServiceMock, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	router := NewRouter(NewHandler(svc, lineup.SportNFL, logging.NewNop()), nil, logging.NewNop(), []string{"*"})
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var out envelope
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func sampleState() usecase.LineupState {
	weather := lineup.WeatherLow
	return usecase.LineupState{
		Lineup: &lineup.Lineup{
			ID:            "lineup-1",
			TeamID:        "team-1",
			ScoringPeriod: 5,
			Sport:         lineup.SportNFL,
			Starters: []lineup.Slot{
				{Position: lineup.PositionQB, PlayerID: "qb-1", InjuryStatus: lineup.InjuryActive, WeatherImpact: &weather},
				{Position: lineup.PositionRB, PlayerID: "rb-1", InjuryStatus: lineup.InjuryActive},
			},
			Bench:            []lineup.Slot{{Position: lineup.PositionRB, PlayerID: "rb-2", InjuryStatus: lineup.InjuryActive}},
			ValidationStatus: lineup.StatusValid,
		},
		SyncStatus: usecase.StateSyncStatus{Synced: true, PendingChanges: 1},
	}
}

func TestHandler_GetLineup(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("GetState", mock.Anything, "team-1", 5).Return(sampleState(), nil).Once()

	rec, body := serve(t, svc, http.MethodGet, "/v1/teams/team-1/lineups/5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	lineupBody := body.Data["lineup"].(map[string]any)
	require.Equal(t, "lineup-1", lineupBody["id"])
	bench := lineupBody["bench"].([]any)
	require.Equal(t, float64(2), bench[0].(map[string]any)["index"])
	require.Equal(t, float64(1), body.Data["syncStatus"].(map[string]any)["pendingChanges"])
	svc.AssertExpectations(t)
}

func TestHandler_GetLineupServesLastKnownGoodOnFailure(t *testing.T) {
	svc := new(lineupServiceMock)
	state := sampleState()
	state.Stale = true
	state.Error = "circuit open"
	svc.On("GetState", mock.Anything, "team-1", 5).
		Return(state, fault.New(fault.CircuitOpen, "lineup.read", "circuit open")).Once()

	rec, body := serve(t, svc, http.MethodGet, "/v1/teams/team-1/lineups/5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body.Data["stale"])
	require.Equal(t, "circuit open", body.Data["error"])
}

func TestHandler_GetLineupWithoutLineupReturnsError(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("GetState", mock.Anything, "team-1", 5).
		Return(usecase.LineupState{Error: "timeout"}, fault.New(fault.Timeout, "lineup.read", "timeout")).Once()

	rec, body := serve(t, svc, http.MethodGet, "/v1/teams/team-1/lineups/5", "")

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.NotNil(t, body.Error)
	require.Equal(t, "DEADLINE_EXCEEDED", body.Error.Status)
}

func TestHandler_GetLineupRejectsNonNumericPeriod(t *testing.T) {
	svc := new(lineupServiceMock)

	rec, _ := serve(t, svc, http.MethodGet, "/v1/teams/team-1/lineups/five", "")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "GetState", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_SwapPlayers(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("SwapPlayers", mock.Anything, usecase.SwapInput{TeamID: "team-1", Period: 5, SourceIndex: 1, TargetIndex: 2}).
		Return("req-1", sampleState(), nil).Once()

	rec, body := serve(t, svc, http.MethodPost, "/v1/teams/team-1/lineups/5/swap", `{"sourceIndex":1,"targetIndex":2}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "req-1", body.Data["requestId"])
	svc.AssertExpectations(t)
}

func TestHandler_SwapPlayersInvalidSwap(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("SwapPlayers", mock.Anything, mock.Anything).
		Return("", sampleState(), fmt.Errorf("%w: %w", usecase.ErrInvalidInput, lineup.ErrInvalidSwap)).Once()

	rec, body := serve(t, svc, http.MethodPost, "/v1/teams/team-1/lineups/5/swap", `{"sourceIndex":0,"targetIndex":1}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_ARGUMENT", body.Error.Status)
}

func TestHandler_SwapPlayersValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing target", body: `{"sourceIndex":1}`},
		{name: "negative index", body: `{"sourceIndex":-1,"targetIndex":2}`},
		{name: "unknown field", body: `{"sourceIndex":1,"targetIndex":2,"force":true}`},
		{name: "malformed", body: `{"sourceIndex":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(lineupServiceMock)
			rec, _ := serve(t, svc, http.MethodPost, "/v1/teams/team-1/lineups/5/swap", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			svc.AssertNotCalled(t, "SwapPlayers", mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_UpdateLineup(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("UpdateLineup", mock.Anything, mock.MatchedBy(func(in usecase.UpdateLineupInput) bool {
		slot, ok := in.Slots[3]
		return in.TeamID == "team-1" && in.Period == 5 && ok &&
			slot.PlayerID == "wr-9" &&
			slot.InjuryStatus == lineup.InjuryActive &&
			slot.WeatherImpact != nil && *slot.WeatherImpact == lineup.WeatherHigh
	})).Return("req-2", sampleState(), nil).Once()

	rec, body := serve(t, svc, http.MethodPut, "/v1/teams/team-1/lineups/5",
		`{"slots":{"3":{"position":"WR","playerId":"wr-9","projectedPoints":14.5,"weatherImpact":"HIGH"}}}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "req-2", body.Data["requestId"])
	svc.AssertExpectations(t)
}

func TestHandler_UpdateLineupRejectsBadSlots(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: `{"slots":{}}`},
		{name: "non numeric key", body: `{"slots":{"first":{"position":"QB"}}}`},
		{name: "bad weather", body: `{"slots":{"0":{"position":"QB","weatherImpact":"STORMY"}}}`},
		{name: "missing position", body: `{"slots":{"0":{"playerId":"qb-1"}}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(lineupServiceMock)
			rec, _ := serve(t, svc, http.MethodPut, "/v1/teams/team-1/lineups/5", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandler_OptimizeLineupDefaults(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("OptimizeLineup", mock.Anything, optimization.Params{
		TeamID:          "team-1",
		ScoringPeriod:   5,
		Sport:           lineup.SportNFL,
		IncludeInjuries: true,
		IncludeWeather:  false,
		IncludeMatchups: true,
	}).Return(optimization.Job{RequestID: "req-3", Status: optimization.StatusQueued}, nil).Once()

	rec, body := serve(t, svc, http.MethodPost, "/v1/teams/team-1/lineups/5/optimize", `{"includeWeather":false}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "req-3", body.Data["requestId"])
	svc.AssertExpectations(t)
}

func TestHandler_OptimizeLineupEmptyBody(t *testing.T) {
	svc := new(lineupServiceMock)
	now := time.Date(2026, 10, 4, 12, 0, 0, 0, time.UTC)
	svc.On("OptimizeLineup", mock.Anything, mock.Anything).Return(optimization.Job{
		RequestID:       "req-4",
		Status:          optimization.StatusCompleted,
		ProgressPercent: 100,
		Cached:          true,
		CompletedAt:     &now,
		Result:          &optimization.Result{OptimizationScore: 120.5, Confidence: 0.8},
	}, nil).Once()

	rec, body := serve(t, svc, http.MethodPost, "/v1/teams/team-1/lineups/5/optimize", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body.Data["cached"])
	require.Equal(t, 120.5, body.Data["result"].(map[string]any)["optimizationScore"])
}

func TestHandler_AnalyzeTrade(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("AnalyzeTrade", mock.Anything, mock.MatchedBy(func(p optimization.Params) bool {
		return p.TeamID == "team-1" && p.ScoringPeriod == 6 && p.Trade != nil &&
			p.Trade.CounterpartyTeamID == "team-2" && len(p.Trade.OfferedPlayerIDs) == 1
	})).Return(optimization.Job{RequestID: "req-5", Status: optimization.StatusRunning}, nil).Once()

	rec, _ := serve(t, svc, http.MethodPost, "/v1/teams/team-1/trades/analyze",
		`{"scoringPeriod":6,"offeredPlayerIds":["rb-1"],"requestedPlayerIds":["wr-7"],"counterpartyTeamId":"team-2"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_AnalyzeTradeRequiresPlayers(t *testing.T) {
	svc := new(lineupServiceMock)

	rec, _ := serve(t, svc, http.MethodPost, "/v1/teams/team-1/trades/analyze",
		`{"scoringPeriod":6,"offeredPlayerIds":[],"requestedPlayerIds":["wr-7"],"counterpartyTeamId":"team-2"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_StartFailureSurfacesError(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("OptimizeLineup", mock.Anything, mock.Anything).Return(
		optimization.Job{RequestID: "req-6", Status: optimization.StatusFailed},
		fmt.Errorf("%w: %w", usecase.ErrOptimizationFailed, fault.New(fault.CircuitOpen, "optimization.submit", "open")),
	).Once()

	rec, body := serve(t, svc, http.MethodPost, "/v1/teams/team-1/lineups/5/optimize", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "circuitOpen", body.Error.Errors[0].Reason)
}

func TestHandler_OptimizationLifecycle(t *testing.T) {
	svc := new(lineupServiceMock)
	svc.On("GetOptimization", mock.Anything, "req-7").
		Return(optimization.Job{RequestID: "req-7", Status: optimization.StatusRunning, ProgressPercent: 40}, nil).Once()
	svc.On("CancelOptimization", mock.Anything, "req-7").
		Return(optimization.Job{RequestID: "req-7", Status: optimization.StatusCancelled, ProgressPercent: 40}, nil).Once()
	svc.On("GetOptimization", mock.Anything, "missing").
		Return(optimization.Job{}, fmt.Errorf("%w: optimization missing", usecase.ErrNotFound)).Once()

	rec, body := serve(t, svc, http.MethodGet, "/v1/optimizations/req-7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(40), body.Data["progressPercent"])

	rec, body = serve(t, svc, http.MethodDelete, "/v1/optimizations/req-7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "CANCELLED", body.Data["status"])

	rec, _ = serve(t, svc, http.MethodGet, "/v1/optimizations/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_SyncStatus(t *testing.T) {
	svc := new(lineupServiceMock)
	opened := time.Date(2026, 10, 4, 12, 0, 0, 0, time.UTC)
	svc.On("Status").Return(usecase.ServiceStatus{
		Sync: usecase.SyncStatus{State: usecase.SyncReconnecting, ReconnectAttempts: 2},
		Circuits: map[resilience.OperationClass]resilience.CircuitSnapshot{
			resilience.OpLineupRead: {Status: resilience.CircuitOpen, ConsecutiveFailures: 5, OpenedAt: opened},
		},
		Stores:  []string{"team-1/5", "team-2/5"},
		Pending: 3,
	}).Once()

	rec, body := serve(t, svc, http.MethodGet, "/v1/sync/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "RECONNECTING", body.Data["state"])
	circuit := body.Data["circuits"].(map[string]any)["lineup.read"].(map[string]any)
	require.Equal(t, "OPEN", circuit["status"])
	require.Equal(t, []any{"team-1/5", "team-2/5"}, body.Data["stores"])
}

func TestHandler_Healthz(t *testing.T) {
	rec, body := serve(t, new(lineupServiceMock), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body.Data["status"])
}

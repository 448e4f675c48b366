package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/usecase"
)

const maxRequestBytes = 1 << 20

// LineupService is the part of usecase.LineupService the handlers call.
type LineupService interface {
	GetState(ctx context.Context, teamID string, period int) (usecase.LineupState, error)
	UpdateLineup(ctx context.Context, input usecase.UpdateLineupInput) (string, usecase.LineupState, error)
	SwapPlayers(ctx context.Context, input usecase.SwapInput) (string, usecase.LineupState, error)
	OptimizeLineup(ctx context.Context, params optimization.Params) (optimization.Job, error)
	AnalyzeTrade(ctx context.Context, params optimization.Params) (optimization.Job, error)
	CancelOptimization(ctx context.Context, requestID string) (optimization.Job, error)
	GetOptimization(ctx context.Context, requestID string) (optimization.Job, error)
	Status() usecase.ServiceStatus
}

var _ LineupService = (*usecase.LineupService)(nil)

type Handler struct {
	lineupService LineupService
	sport         lineup.Sport
	logger        *logging.Logger
	validator     *validator.Validate
}

func NewHandler(lineupService LineupService, sport lineup.Sport, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		lineupService: lineupService,
		sport:         sport,
		logger:        logger,
		validator:     validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetLineup answers with the last known-good lineup even when the refresh
// failed; the failure is reported in the state instead.
func (h *Handler) GetLineup(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetLineup")
	defer span.End()

	teamID, period, err := lineupPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	state, err := h.lineupService.GetState(ctx, teamID, period)
	if err != nil {
		h.logger.WarnContext(ctx, "get lineup failed", "team_id", teamID, "period", period, "error", err)
		if state.Lineup == nil {
			writeError(ctx, w, err)
			return
		}
	}
	writeSuccess(w, http.StatusOK, stateToDTO(state))
}

func (h *Handler) UpdateLineup(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UpdateLineup")
	defer span.End()

	teamID, period, err := lineupPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req updateLineupRequest
	if err := h.decode(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	requestID, state, err := h.lineupService.UpdateLineup(ctx, usecase.UpdateLineupInput{
		TeamID: teamID,
		Period: period,
		Slots:  req.toDomain(),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "update lineup failed", "team_id", teamID, "period", period, "error", err)
		writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, mutationDTO{RequestID: requestID, State: stateToDTO(state)})
}

func (h *Handler) SwapPlayers(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SwapPlayers")
	defer span.End()

	teamID, period, err := lineupPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req swapRequest
	if err := h.decode(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	requestID, state, err := h.lineupService.SwapPlayers(ctx, usecase.SwapInput{
		TeamID:      teamID,
		Period:      period,
		SourceIndex: *req.SourceIndex,
		TargetIndex: *req.TargetIndex,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "swap players failed",
			"team_id", teamID,
			"period", period,
			"source_index", *req.SourceIndex,
			"target_index", *req.TargetIndex,
			"error", err,
		)
		writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, mutationDTO{RequestID: requestID, State: stateToDTO(state)})
}

func (h *Handler) OptimizeLineup(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.OptimizeLineup")
	defer span.End()

	teamID, period, err := lineupPath(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	var req optimizeRequest
	if err := h.decodeOptional(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	job, err := h.lineupService.OptimizeLineup(ctx, req.params(teamID, period, h.sport))
	h.writeJob(ctx, w, job, err, "optimize lineup failed")
}

func (h *Handler) AnalyzeTrade(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.AnalyzeTrade")
	defer span.End()

	teamID := strings.TrimSpace(r.PathValue("teamID"))
	var req analyzeTradeRequest
	if err := h.decode(ctx, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	params := req.params(teamID, req.ScoringPeriod, h.sport)
	params.Trade = &optimization.TradeParams{
		OfferedPlayerIDs:   req.OfferedPlayerIDs,
		RequestedPlayerIDs: req.RequestedPlayerIDs,
		CounterpartyTeamID: req.CounterpartyTeamID,
	}
	job, err := h.lineupService.AnalyzeTrade(ctx, params)
	h.writeJob(ctx, w, job, err, "analyze trade failed")
}

func (h *Handler) GetOptimization(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetOptimization")
	defer span.End()

	job, err := h.lineupService.GetOptimization(ctx, r.PathValue("requestID"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, jobToDTO(job))
}

func (h *Handler) CancelOptimization(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CancelOptimization")
	defer span.End()

	requestID := r.PathValue("requestID")
	job, err := h.lineupService.CancelOptimization(ctx, requestID)
	if err != nil {
		h.logger.WarnContext(ctx, "cancel optimization failed", "request_id", requestID, "error", err)
		writeError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, jobToDTO(job))
}

func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, serviceStatusToDTO(h.lineupService.Status()))
}

// writeJob answers a start request. A run that failed after it was
// registered still has a request id, so the error is returned alongside the
// job the client can poll.
func (h *Handler) writeJob(ctx context.Context, w http.ResponseWriter, job optimization.Job, err error, msg string) {
	if err != nil {
		h.logger.WarnContext(ctx, msg, "request_id", job.RequestID, "error", err)
		writeError(ctx, w, err)
		return
	}

	status := http.StatusAccepted
	if job.Status.Terminal() {
		status = http.StatusOK
	}
	writeSuccess(w, status, jobToDTO(job))
}

func (h *Handler) decode(ctx context.Context, r *http.Request, out any) error {
	decoder := sonic.ConfigDefault.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err)
	}
	return h.validateRequest(ctx, out)
}

// decodeOptional accepts an empty body as the zero request.
func (h *Handler) decodeOptional(ctx context.Context, r *http.Request, out any) error {
	if r.ContentLength == 0 {
		return h.validateRequest(ctx, out)
	}
	return h.decode(ctx, r, out)
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}

func lineupPath(r *http.Request) (string, int, error) {
	teamID := strings.TrimSpace(r.PathValue("teamID"))
	period, err := strconv.Atoi(strings.TrimSpace(r.PathValue("period")))
	if err != nil {
		return "", 0, fmt.Errorf("%w: scoring period must be a number", usecase.ErrInvalidInput)
	}
	return teamID, period, nil
}

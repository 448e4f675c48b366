package httpapi

import (
	"context"
	"errors"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/fault"
	"github.com/riskibarqy/lineup-orchestrator/internal/usecase"
)

const (
	googleAPIVersion = "2.0"
	errorDomain      = "lineup-orchestrator"
)

type googleResponseEnvelope struct {
	APIVersion string           `json:"apiVersion"`
	Data       any              `json:"data,omitempty"`
	Error      *googleErrorBody `json:"error,omitempty"`
}

type googleErrorBody struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Status  string            `json:"status"`
	Errors  []googleErrorItem `json:"errors,omitempty"`
}

type googleErrorItem struct {
	Domain  string `json:"domain"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type mappedError struct {
	HTTPStatus int
	Reason     string
	Status     string
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = sonic.ConfigDefault.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, googleResponseEnvelope{APIVersion: googleAPIVersion, Data: data})
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	_, span := startSpan(ctx, "httpapi.writeError")
	defer span.End()

	mapped := mapError(err)
	message := err.Error()
	if mapped.HTTPStatus == http.StatusInternalServerError {
		message = "internal server error"
	}

	writeJSON(w, mapped.HTTPStatus, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Error: &googleErrorBody{
			Code:    mapped.HTTPStatus,
			Message: message,
			Status:  mapped.Status,
			Errors: []googleErrorItem{
				{Domain: errorDomain, Reason: mapped.Reason, Message: message},
			},
		},
	})
}

func writeInternalError(w http.ResponseWriter) {
	const msg = "internal server error"
	writeJSON(w, http.StatusInternalServerError, googleResponseEnvelope{
		APIVersion: googleAPIVersion,
		Error: &googleErrorBody{
			Code:    http.StatusInternalServerError,
			Message: msg,
			Status:  "INTERNAL",
			Errors:  []googleErrorItem{{Domain: errorDomain, Reason: "internalError", Message: msg}},
		},
	})
}

// mapError checks local sentinels first, then falls back to the remote
// failure kind carried in the chain.
func mapError(err error) mappedError {
	switch {
	case errors.Is(err, usecase.ErrInvalidInput):
		return mappedError{HTTPStatus: http.StatusBadRequest, Reason: "invalidInput", Status: "INVALID_ARGUMENT"}
	case errors.Is(err, usecase.ErrNotFound):
		return mappedError{HTTPStatus: http.StatusNotFound, Reason: "notFound", Status: "NOT_FOUND"}
	case errors.Is(err, usecase.ErrLineupNotLoaded):
		return mappedError{HTTPStatus: http.StatusConflict, Reason: "lineupNotLoaded", Status: "FAILED_PRECONDITION"}
	case errors.Is(err, usecase.ErrStoreClosed):
		return mappedError{HTTPStatus: http.StatusServiceUnavailable, Reason: "shuttingDown", Status: "UNAVAILABLE"}
	}

	switch fault.KindOf(err) {
	case fault.Validation:
		return mappedError{HTTPStatus: http.StatusUnprocessableEntity, Reason: "remoteRejected", Status: "FAILED_PRECONDITION"}
	case fault.AuthRequired:
		return mappedError{HTTPStatus: http.StatusUnauthorized, Reason: "authRequired", Status: "UNAUTHENTICATED"}
	case fault.CircuitOpen:
		return mappedError{HTTPStatus: http.StatusServiceUnavailable, Reason: "circuitOpen", Status: "UNAVAILABLE"}
	case fault.Timeout:
		return mappedError{HTTPStatus: http.StatusGatewayTimeout, Reason: "remoteTimeout", Status: "DEADLINE_EXCEEDED"}
	case fault.Network:
		return mappedError{HTTPStatus: http.StatusBadGateway, Reason: "remoteUnavailable", Status: "UNAVAILABLE"}
	case fault.StaleData:
		return mappedError{HTTPStatus: http.StatusConflict, Reason: "staleData", Status: "ABORTED"}
	case fault.Canceled:
		return mappedError{HTTPStatus: http.StatusRequestTimeout, Reason: "canceled", Status: "CANCELLED"}
	case fault.Unknown:
	}

	if errors.Is(err, usecase.ErrOptimizationFailed) {
		return mappedError{HTTPStatus: http.StatusBadGateway, Reason: "optimizationFailed", Status: "UNAVAILABLE"}
	}
	return mappedError{HTTPStatus: http.StatusInternalServerError, Reason: "internalError", Status: "INTERNAL"}
}

package httpapi

import (
	"net/http"

	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
)

// NewRouter wires every route behind tracing, request logging, CORS and
// panic recovery. A nil metrics handler leaves /metrics unregistered.
func NewRouter(handler *Handler, metrics http.Handler, logger *logging.Logger, corsAllowedOrigins []string) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerSystemRoutes(mux, handler, metrics)
	registerLineupRoutes(mux, handler)
	registerOptimizationRoutes(mux, handler)

	return RequestTracing(RequestLogging(logger, CORS(corsAllowedOrigins, recoverPanic(logger, mux))))
}

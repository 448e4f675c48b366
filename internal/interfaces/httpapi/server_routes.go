package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, metrics http.Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	mux.HandleFunc("GET /v1/sync/status", handler.SyncStatus)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
}

func registerLineupRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/teams/{teamID}/lineups/{period}", handler.GetLineup)
	mux.HandleFunc("PUT /v1/teams/{teamID}/lineups/{period}", handler.UpdateLineup)
	mux.HandleFunc("POST /v1/teams/{teamID}/lineups/{period}/swap", handler.SwapPlayers)
	mux.HandleFunc("POST /v1/teams/{teamID}/lineups/{period}/optimize", handler.OptimizeLineup)
}

func registerOptimizationRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("POST /v1/teams/{teamID}/trades/analyze", handler.AnalyzeTrade)
	mux.HandleFunc("GET /v1/optimizations/{requestID}", handler.GetOptimization)
	mux.HandleFunc("DELETE /v1/optimizations/{requestID}", handler.CancelOptimization)
}

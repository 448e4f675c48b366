package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantStatus int
		wantOrigin string
		wantVary   string
	}{
		{
			name:       "configured origin",
			allowed:    []string{"https://lineups.example.com"},
			method:     http.MethodGet,
			origin:     "https://lineups.example.com",
			wantStatus: http.StatusOK,
			wantOrigin: "https://lineups.example.com",
			wantVary:   "Origin",
		},
		{
			name:       "wildcard preflight",
			allowed:    []string{"*"},
			method:     http.MethodOptions,
			origin:     "https://lineups.example.com",
			wantStatus: http.StatusNoContent,
			wantOrigin: "*",
		},
		{
			name:       "unknown origin",
			allowed:    []string{"https://allowed.example.com"},
			method:     http.MethodGet,
			origin:     "https://not-allowed.example.com",
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/v1/teams/team-1/lineups/5/swap", nil)
			req.Header.Set("Origin", tc.origin)
			rec := httptest.NewRecorder()
			CORS(tc.allowed, ok).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("Access-Control-Allow-Origin = %q, want %q", got, tc.wantOrigin)
			}
			if tc.wantVary != "" && rec.Header().Get("Vary") != tc.wantVary {
				t.Fatalf("Vary = %q, want %q", rec.Header().Get("Vary"), tc.wantVary)
			}
		})
	}
}

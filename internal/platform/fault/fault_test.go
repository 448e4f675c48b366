package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, AuthRequired},
		{http.StatusForbidden, AuthRequired},
		{http.StatusRequestTimeout, Timeout},
		{http.StatusTooManyRequests, Network},
		{http.StatusBadGateway, Network},
		{http.StatusInternalServerError, Network},
		{http.StatusBadRequest, Validation},
		{http.StatusConflict, Validation},
		{http.StatusOK, Unknown},
	}

	for _, tc := range tests {
		if got := KindForStatus(tc.status); got != tc.want {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.want, got)
		}
	}
}

func TestKindOf(t *testing.T) {
	t.Run("explicit kind survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("load lineup: %w", Wrap(AuthRequired, "lineup.fetch", errors.New("token expired")))
		if got := KindOf(err); got != AuthRequired {
			t.Fatalf("expected auth_required, got %s", got)
		}
	})

	t.Run("context deadline is timeout", func(t *testing.T) {
		if got := KindOf(fmt.Errorf("call: %w", context.DeadlineExceeded)); got != Timeout {
			t.Fatalf("expected timeout, got %s", got)
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		if got := KindOf(context.Canceled); got != Canceled {
			t.Fatalf("expected canceled, got %s", got)
		}
	})

	t.Run("net op error is network", func(t *testing.T) {
		err := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		if got := KindOf(err); got != Network {
			t.Fatalf("expected network, got %s", got)
		}
	})

	t.Run("plain error is unknown", func(t *testing.T) {
		if got := KindOf(errors.New("boom")); got != Unknown {
			t.Fatalf("expected unknown, got %s", got)
		}
	})
}

func TestErrorsIsMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("execute: %w", FromStatus("optimization.submit", http.StatusServiceUnavailable, errors.New("unavailable")))
	if !errors.Is(err, E(Network)) {
		t.Fatalf("expected errors.Is to match network sentinel")
	}
	if errors.Is(err, E(Validation)) {
		t.Fatalf("did not expect validation sentinel to match")
	}
}

func TestKindPolicies(t *testing.T) {
	if !Network.Retryable() || !Timeout.Retryable() {
		t.Fatalf("network and timeout must be retryable")
	}
	if Validation.Retryable() || AuthRequired.Retryable() || CircuitOpen.Retryable() {
		t.Fatalf("terminal kinds must not be retryable")
	}
	if Validation.PenalizesCircuit() || AuthRequired.PenalizesCircuit() || Canceled.PenalizesCircuit() {
		t.Fatalf("client-side kinds must not penalize the circuit")
	}
	if StaleData.Terminal() {
		t.Fatalf("stale data is informational")
	}
}

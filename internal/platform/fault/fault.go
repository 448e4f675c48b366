// Package fault defines the closed set of failure kinds that cross
// component boundaries in the orchestration core.
package fault

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	crerr "github.com/cockroachdb/errors"
)

// Kind is a closed enumeration. Boundaries switch over it exhaustively.
type Kind uint8

const (
	Unknown Kind = iota
	Network
	Timeout
	CircuitOpen
	Validation
	AuthRequired
	StaleData
	Canceled
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case CircuitOpen:
		return "circuit_open"
	case Validation:
		return "validation"
	case AuthRequired:
		return "auth_required"
	case StaleData:
		return "stale_data"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Retryable reports whether the guard may attempt the call again.
func (k Kind) Retryable() bool {
	switch k {
	case Network, Timeout:
		return true
	default:
		return false
	}
}

// PenalizesCircuit reports whether a final failure of this kind counts
// against the breaker of its operation class.
func (k Kind) PenalizesCircuit() bool {
	switch k {
	case Network, Timeout, Unknown:
		return true
	default:
		return false
	}
}

// Terminal reports whether the failure should roll back optimistic state.
func (k Kind) Terminal() bool {
	return k != StaleData
}

// Error carries a Kind alongside the failing operation and an optional
// remote status code.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (status=%d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, fault.E(kind)) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Status == 0 && t.Err == nil && t.Kind == e.Kind
}

// E returns a bare sentinel for kind, useful with errors.Is.
func E(kind Kind) *Error {
	return &Error{Kind: kind}
}

func New(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: crerr.Newf(format, args...)}
}

// Wrap annotates err with kind. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// FromStatus builds an error for a non-2xx remote response.
func FromStatus(op string, status int, err error) error {
	return &Error{Kind: KindForStatus(status), Op: op, Status: status, Err: err}
}

func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return AuthRequired
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return Timeout
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return Network
	case status >= http.StatusBadRequest:
		return Validation
	default:
		return Unknown
	}
}

// KindOf classifies any error. Explicit *Error annotations win over
// context and net inspection.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}

	var fe *Error
	if stderrors.As(err, &fe) {
		return fe.Kind
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	if stderrors.Is(err, context.Canceled) {
		return Canceled
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout
		}
		return Network
	}

	return Unknown
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

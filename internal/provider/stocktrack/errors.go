package stocktrack

import (
	"errors"
	"fmt"
)

// Kind classifies a failed upstream call.
type Kind string

const (
	KindTransport   Kind = "transport"    // network error, timeout, cancelled wait
	KindStatus      Kind = "status"       // non-200 response
	KindDecode      Kind = "decode"       // body is not the expected JSON
	KindCircuitOpen Kind = "circuit_open" // breaker rejected the call
)

// Error is returned by every Client method.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("stocktrack %s: %s error (HTTP %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("stocktrack %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

package remote

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors for backend error classification.
// Use errors.Is(err, remote.ErrUnavailable) to check.
var (
	ErrUnavailable      = errors.New("remote: backend unavailable")
	ErrUnauthenticated  = errors.New("remote: unauthenticated")
	ErrPermissionDenied = errors.New("remote: permission denied")
	ErrNotFound         = errors.New("remote: not found")
	ErrAborted          = errors.New("remote: transaction aborted")
)

// StoreError wraps a sentinel with the gRPC code and the backend message
// for debugging.
type StoreError struct {
	Code    codes.Code
	Op      string
	Message string
	Err     error // sentinel, for errors.Is()
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("remote: %s: %s (%s)", e.Op, e.Message, e.Code)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Classify converts a backend error into a StoreError carrying the matching
// sentinel. Non-gRPC errors (including context deadline) map to
// ErrUnavailable because they present identically to the caller: the write
// did not happen and a later retry may succeed.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || errors.Is(err, context.DeadlineExceeded) {
		return &StoreError{Code: codes.Unavailable, Op: op, Message: err.Error(), Err: ErrUnavailable}
	}

	sentinel := ErrUnavailable

	switch st.Code() {
	case codes.Unauthenticated:
		sentinel = ErrUnauthenticated
	case codes.PermissionDenied:
		sentinel = ErrPermissionDenied
	case codes.NotFound:
		sentinel = ErrNotFound
	case codes.Aborted:
		sentinel = ErrAborted
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		sentinel = ErrUnavailable
	}

	return &StoreError{Code: st.Code(), Op: op, Message: st.Message(), Err: sentinel}
}

// IsTransient reports whether err is worth retrying on the next trigger.
// Authentication and permission failures are not transient — retrying them
// without user action only burns quota.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrAborted)
}

package flight

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Query errors. Every error returned by Executor and BatchStream wraps one
// of these.
var (
	// ErrUnauthenticated is returned when authentication fails or the backend
	// rejects the session token after one re-authentication.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNoExecutionEndpoint is returned when a plan carries no endpoint with a ticket.
	ErrNoExecutionEndpoint = errors.New("no execution endpoint")

	// ErrTimeout is returned when the query deadline expires.
	ErrTimeout = errors.New("query timed out")

	// ErrTransport is returned for any other RPC failure.
	ErrTransport = errors.New("transport failure")

	// ErrDecode is returned when the result stream fails after it was opened.
	ErrDecode = errors.New("result stream failed")
)

// classify maps an RPC failure of operation op to a query error.
func classify(ctx context.Context, op string, err error) error {
	if timedOut(ctx, err) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s: %w", ErrUnauthenticated, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func timedOut(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		status.Code(err) == codes.DeadlineExceeded
}

// isRPCError reports whether err carries a gRPC status or a context error,
// as opposed to a local decoding failure.
func isRPCError(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	_, ok := status.FromError(err)
	return ok
}

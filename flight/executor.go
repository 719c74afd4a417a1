// Package flight submits SQL to a Spice Flight SQL backend and decodes the
// resulting Arrow record batches.
//
// A query runs in two phases: planning (GetFlightInfo with a statement
// command) returns endpoints, and fetching (DoGet with the selected ticket)
// streams the batches. Both phases carry the session token from package auth.
package flight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/hugr-lab/spice-go/auth"
)

// ExecutorConfig contains configuration for an Executor.
type ExecutorConfig struct {
	// Backend identifies the tier, selecting the default ticket fixup and
	// labelling logs.
	Backend Backend

	// APIKey is the "<id>|<secret>" credential. Its format is checked on the
	// first query, before any network call.
	// REQUIRED unless Session is set.
	APIKey string

	// Authenticator is the handshake strategy.
	// OPTIONAL: Uses auth.BasicToken() if nil.
	Authenticator auth.Authenticator

	// Session replaces the session the executor would build from APIKey and
	// Authenticator.
	// OPTIONAL.
	Session *auth.Session

	// TicketFixup rewrites tickets before fetching.
	// OPTIONAL: Uses TicketFixupFor(Backend) if nil.
	TicketFixup TicketFixup

	// Allocator for decoded batches.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for query events.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Executor runs queries against one backend channel. Safe for concurrent use.
type Executor struct {
	client    *flightsql.Client
	session   *auth.Session
	fixup     TicketFixup
	backend   Backend
	sessionID string
	alloc     memory.Allocator
	logger    *slog.Logger
}

// NewExecutor creates an Executor over conn. The channel stays owned by the caller.
func NewExecutor(conn grpc.ClientConnInterface, cfg ExecutorConfig) (*Executor, error) {
	if conn == nil {
		return nil, errors.New("executor requires a connection")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", cfg.Backend.String())

	alloc := cfg.Allocator
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	fixup := cfg.TicketFixup
	if fixup == nil {
		fixup = TicketFixupFor(cfg.Backend)
	}

	client := flight.NewClientFromConn(conn, nil)

	session := cfg.Session
	if session == nil {
		session = auth.NewSession(client, cfg.APIKey, cfg.Authenticator, logger)
	}

	return &Executor{
		client:    &flightsql.Client{Client: client, Alloc: alloc},
		session:   session,
		fixup:     fixup,
		backend:   cfg.Backend,
		sessionID: uuid.NewString(),
		alloc:     alloc,
		logger:    logger,
	}, nil
}

// Session returns the executor's authentication session.
func (e *Executor) Session() *auth.Session {
	return e.session
}

// QueryOption configures a single query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	timeout time.Duration
}

// WithTimeout bounds planning, fetching and reading the stream.
// A zero or negative value means no deadline beyond the caller's context.
func WithTimeout(d time.Duration) QueryOption {
	return func(o *queryOptions) {
		o.timeout = d
	}
}

// Query plans sql, fetches the first executable endpoint and returns the
// stream of result batches. The caller must Close the stream or read it to
// the end.
//
// If planning or fetching is rejected as unauthorized, the session is
// refreshed and the whole plan and fetch is run once more with a fresh
// ticket. A second rejection is returned as ErrUnauthenticated. A rejected
// handshake is never retried.
func (e *Executor) Query(ctx context.Context, sql string, opts ...QueryOption) (*BatchStream, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	logger := e.logger.With("trace_id", traceID)

	var cancel context.CancelFunc
	if o.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	logger.Debug("Submitting query", "query", sql, "timeout", o.timeout)

	stream, token, err := e.execute(ctx, sql, traceID, cancel, logger)
	if err != nil && ctx.Err() == nil && retryable(err) {
		logger.Debug("Call rejected, re-authenticating", "error", err)
		e.session.Invalidate(token)
		stream, _, err = e.execute(ctx, sql, traceID, cancel, logger)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	return stream, nil
}

// execute runs one authenticate, plan and fetch sequence. It returns the token
// the calls carried so a rejection can invalidate exactly that token.
func (e *Executor) execute(ctx context.Context, sql, traceID string, cancel context.CancelFunc, logger *slog.Logger) (*BatchStream, string, error) {
	if err := e.session.EnsureAuthenticated(ctx); err != nil {
		switch {
		case timedOut(ctx, err):
			return nil, "", fmt.Errorf("%w: authenticate: %w", ErrTimeout, err)
		case ctx.Err() != nil:
			return nil, "", fmt.Errorf("%w: authenticate: %w", ErrTransport, err)
		}
		return nil, "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	header, token := e.session.Authorization()
	callCtx := callMeta{
		Authorization: header,
		SessionID:     e.sessionID,
		TraceID:       traceID,
	}.outgoing(ctx)

	info, err := e.client.Execute(callCtx, sql)
	if err != nil {
		return nil, token, classify(ctx, "plan", err)
	}

	endpoint, err := SelectEndpoint(info)
	if err != nil {
		return nil, token, err
	}
	logger.Debug("Query planned",
		"endpoints", len(info.GetEndpoint()),
		"locations", endpointLocations(endpoint),
		"total_records", info.GetTotalRecords(),
	)

	ticket := e.fixup.Fix(endpoint.GetTicket().GetTicket())
	fetch, err := e.client.Client.DoGet(callCtx, &flight.Ticket{Ticket: ticket})
	if err != nil {
		return nil, token, classify(ctx, "fetch", err)
	}

	stream, err := NewBatchStream(ctx, fetch, StreamOptions{
		Allocator: e.alloc,
		Logger:    logger,
		Cancel:    cancel,
	})
	if err != nil {
		return nil, token, err
	}
	return stream, token, nil
}

// retryable reports whether err is a rejection of an issued token, as
// opposed to a rejected handshake or malformed credential.
func retryable(err error) bool {
	return errors.Is(err, ErrUnauthenticated) &&
		!errors.Is(err, auth.ErrAuthFailed) &&
		!errors.Is(err, auth.ErrInvalidCredentialFormat)
}

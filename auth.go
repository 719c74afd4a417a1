package spice

import (
	"context"
	"time"

	"github.com/hugr-lab/spice-go/auth"
	"github.com/hugr-lab/spice-go/flight"
	"github.com/hugr-lab/spice-go/transport"
)

// Authenticator runs the credential handshake against one backend.
// This is re-exported from the auth package for convenience.
type Authenticator = auth.Authenticator

// BasicToken sends the API key as a Basic authorization header and reads the
// bearer token from the response headers. This is the default strategy.
func BasicToken() Authenticator {
	return auth.BasicToken()
}

// PayloadHandshake sends the API key inside the handshake payload and reads
// the token from the response payload.
func PayloadHandshake() Authenticator {
	return auth.PayloadHandshake()
}

// HeaderOnly skips the handshake and sends the raw API key as the bearer on
// every call. Use it for backends that validate keys per request.
//
// Example:
//
//	cfg := spice.DefaultConfig(apiKey)
//	cfg.SecondaryAuth = spice.HeaderOnly()
func HeaderOnly() Authenticator {
	return auth.HeaderOnly()
}

// BatchStream is a forward-only stream of query results.
type BatchStream = flight.BatchStream

// QueryOption customizes a single query.
type QueryOption = flight.QueryOption

// WithTimeout bounds authentication, planning, fetching and streaming of one
// query. Expiry surfaces as ErrTimeout.
func WithTimeout(d time.Duration) QueryOption {
	return flight.WithTimeout(d)
}

// WithTraceID returns a context whose queries carry traceID in request
// metadata instead of a generated one.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return flight.WithTraceID(ctx, traceID)
}

// TicketFixup rewrites a ticket between planning and fetching.
type TicketFixup = flight.TicketFixup

// StripFrame returns a ticket fixup removing everything through the first '}'
// of tickets starting with opener, or of any ticket when opener is 0.
//
// Example:
//
//	cfg := spice.DefaultConfig(apiKey)
//	cfg.SecondaryTicketFixup = spice.StripFrame(0)
func StripFrame(opener byte) TicketFixup {
	return flight.StripFrame(opener)
}

// Errors re-exported for errors.Is checks against the root package.
var (
	ErrInvalidCredentialFormat = auth.ErrInvalidCredentialFormat
	ErrAuthFailed              = auth.ErrAuthFailed
	ErrUnauthenticated         = flight.ErrUnauthenticated
	ErrNoExecutionEndpoint     = flight.ErrNoExecutionEndpoint
	ErrTimeout                 = flight.ErrTimeout
	ErrTransport               = flight.ErrTransport
	ErrDecode                  = flight.ErrDecode
	ErrInvalidAddress          = transport.ErrInvalidAddress
	ErrConnect                 = transport.ErrConnect
	ErrTrustStore              = transport.ErrTrustStore
)

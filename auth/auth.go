// Package auth implements the credential handshake for Spice Flight backends.
//
// An API key has the form "<id>|<secret>". A Session validates the key, runs
// one Authenticator strategy against the backend and caches the resulting
// bearer token for every subsequent call.
package auth

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc"
)

var (
	// ErrInvalidCredentialFormat is returned when an API key does not split
	// into exactly two non-empty "id|secret" segments. No network call is made.
	ErrInvalidCredentialFormat = errors.New("invalid credential format: expected <id>|<secret>")

	// ErrAuthFailed is returned when the backend rejects the handshake.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNoToken is returned when a handshake succeeds without yielding a token.
	ErrNoToken = errors.New("handshake returned no token")
)

// HandshakeClient is the part of the Flight service used for authentication.
// flight.Client and flight.FlightServiceClient satisfy it.
type HandshakeClient interface {
	Handshake(ctx context.Context, opts ...grpc.CallOption) (flight.FlightService_HandshakeClient, error)
}

// Authenticator exchanges a credential for a bearer token.
// Implementations MUST be goroutine-safe.
type Authenticator interface {
	// Authenticate performs the handshake and returns the session token.
	// An empty token with nil error means calls carry the raw credential.
	Authenticate(ctx context.Context, client HandshakeClient, cred Credential) (token string, err error)

	// Name identifies the strategy in logs.
	Name() string
}

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// HandshakeTimeout bounds a shared handshake. The handshake is detached from
// the cancellation of the caller that started it, so it needs its own limit.
const HandshakeTimeout = 30 * time.Second

// Session owns the token lifecycle for one backend: absent, then acquired,
// then cleared again when a call is rejected.
// Safe for concurrent use; at most one handshake is in flight.
type Session struct {
	client        HandshakeClient
	apiKey        string
	authenticator Authenticator
	logger        *slog.Logger

	mu       sync.RWMutex
	token    string
	acquired bool

	group    singleflight.Group
	attempts atomic.Int64
}

// NewSession creates a Session for apiKey.
// A nil authenticator selects BasicToken; a nil logger selects slog.Default().
func NewSession(client HandshakeClient, apiKey string, authenticator Authenticator, logger *slog.Logger) *Session {
	if authenticator == nil {
		authenticator = BasicToken()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client:        client,
		apiKey:        apiKey,
		authenticator: authenticator,
		logger:        logger,
	}
}

// EnsureAuthenticated acquires a token unless one is already held.
//
// The key format is checked first and fails with ErrInvalidCredentialFormat
// without touching the network. A rejected handshake returns an error wrapping
// ErrAuthFailed and leaves the session unauthenticated.
//
// Concurrent callers share one handshake. Each caller waits only as long as
// its own ctx allows and then returns ctx.Err(); the handshake keeps running
// for the remaining callers.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	cred, err := ParseAPIKey(s.apiKey)
	if err != nil {
		return err
	}
	if s.Authenticated() {
		return nil
	}

	ch := s.group.DoChan("handshake", func() (any, error) {
		if s.Authenticated() {
			return nil, nil
		}

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), HandshakeTimeout)
		defer cancel()

		s.attempts.Add(1)
		s.logger.Debug("Authenticating",
			"strategy", s.authenticator.Name(),
			"credential_id", cred.ID,
		)

		token, err := s.authenticator.Authenticate(hctx, s.client, cred)
		if err != nil {
			s.logger.Debug("Authentication rejected",
				"strategy", s.authenticator.Name(),
				"credential_id", cred.ID,
				"error", err,
			)
			return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}

		s.mu.Lock()
		s.token = token
		s.acquired = true
		s.mu.Unlock()

		s.logger.Debug("Authenticated",
			"strategy", s.authenticator.Name(),
			"credential_id", cred.ID,
			"has_token", token != "",
		)
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("authenticate: %w", ctx.Err())
	}
}

// Authenticated reports whether a handshake has succeeded and not been invalidated.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acquired
}

// Authorization returns the authorization header value for the next call and
// the token it carries. Without a token the raw credential is sent.
func (s *Session) Authorization() (header string, token string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token != "" {
		return BearerHeader(s.token), s.token
	}
	return BearerHeader(s.apiKey), ""
}

// Invalidate drops the session state if token is still the current token.
// A token refreshed by a concurrent caller is kept.
func (s *Session) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acquired && s.token == token {
		s.token = ""
		s.acquired = false
	}
}

// HandshakeCount returns the number of handshakes performed.
func (s *Session) HandshakeCount() int64 {
	return s.attempts.Load()
}

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/flight"

	"github.com/hugr-lab/spice-go/auth"
	"github.com/hugr-lab/spice-go/internal/flighttest"
	"github.com/hugr-lab/spice-go/transport"
)

func dialBackend(t *testing.T, backend *flighttest.Backend) flight.Client {
	t.Helper()

	conn, err := transport.Connect(context.Background(), backend.Address, transport.Options{
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return flight.NewClientFromConn(conn, nil)
}

// TestStrategiesAgainstBackend tests that each handshake flavor yields a token
// the backend accepts.
func TestStrategiesAgainstBackend(t *testing.T) {
	strategies := []auth.Authenticator{auth.BasicToken(), auth.PayloadHandshake()}

	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			backend := flighttest.Start(t, flighttest.Config{})
			client := dialBackend(t, backend)

			session := auth.NewSession(client, flighttest.APIKey, strategy, nil)
			if err := session.EnsureAuthenticated(context.Background()); err != nil {
				t.Fatalf("EnsureAuthenticated failed: %v", err)
			}

			header, token := session.Authorization()
			if token == "" {
				t.Fatal("Expected a session token")
			}
			if header != auth.BearerHeader(token) {
				t.Errorf("Unexpected header %q", header)
			}
			if backend.Handshakes() != 1 {
				t.Errorf("Expected 1 handshake, got %d", backend.Handshakes())
			}
		})
	}
}

// TestStrategiesRejectWrongSecret tests that a rejected handshake is an auth failure.
func TestStrategiesRejectWrongSecret(t *testing.T) {
	strategies := []auth.Authenticator{auth.BasicToken(), auth.PayloadHandshake()}

	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			backend := flighttest.Start(t, flighttest.Config{})
			client := dialBackend(t, backend)

			session := auth.NewSession(client, "test-app|wrong", strategy, nil)
			err := session.EnsureAuthenticated(context.Background())
			if !errors.Is(err, auth.ErrAuthFailed) {
				t.Fatalf("Expected ErrAuthFailed, got %v", err)
			}
			if session.Authenticated() {
				t.Error("Session must stay unauthenticated")
			}
			if backend.Handshakes() != 1 {
				t.Errorf("Expected 1 handshake, got %d", backend.Handshakes())
			}
		})
	}
}

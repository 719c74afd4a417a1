// Package transport establishes gRPC channels to Spice backends.
//
// A backend is named by a URI. Secure schemes (grpc+tls, https, tls) verify the
// server against a root bundle built from the platform trust store; plaintext
// schemes (grpc, grpc+tcp, http) connect in the clear.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	// ErrInvalidAddress indicates a malformed or unsupported backend URI.
	ErrInvalidAddress = errors.New("invalid backend address")

	// ErrTrustStore indicates the root certificate bundle could not be loaded.
	ErrTrustStore = errors.New("trust store unavailable")

	// ErrConnect indicates the channel could not reach the Ready state.
	ErrConnect = errors.New("connect failed")
)

const (
	// DefaultConnectTimeout bounds channel establishment when Options.ConnectTimeout is 0.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultMaxMessageSize is the receive limit used for Arrow batches when
	// Options.MaxMessageSize is 0.
	DefaultMaxMessageSize = 16 * 1024 * 1024
)

// Options configures Connect. The zero value is usable.
type Options struct {
	// TrustStore loads root certificates for secure schemes.
	// OPTIONAL: Uses SystemTrustStore if nil.
	TrustStore TrustStore

	// ExtraRootsPEM is appended to the trust store bundle.
	// OPTIONAL.
	ExtraRootsPEM []byte

	// ConnectTimeout bounds the wait for the channel to become ready.
	// OPTIONAL: Uses DefaultConnectTimeout if 0.
	ConnectTimeout time.Duration

	// MaxMessageSize sets the maximum received gRPC message size in bytes.
	// OPTIONAL: Uses DefaultMaxMessageSize if 0.
	MaxMessageSize int

	// UserAgent is sent as the gRPC user agent prefix.
	// OPTIONAL.
	UserAgent string

	// DialOptions are appended after the options derived above.
	// OPTIONAL.
	DialOptions []grpc.DialOption

	// Logger for connection events.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Connect opens a channel to address and waits until it is ready.
//
// Errors wrap one of ErrInvalidAddress, ErrTrustStore or ErrConnect so callers
// can tell configuration mistakes from network failures.
func Connect(ctx context.Context, address string, opts Options) (*grpc.ClientConn, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialOpts, err := dialOptions(addr, opts)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(addr.Target(), dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Debug("Connecting to backend",
		"address", addr.String(),
		"secure", addr.Secure,
	)

	if err := waitReady(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}

	logger.Debug("Backend channel ready", "address", addr.String())

	return conn, nil
}

func dialOptions(addr Address, opts Options) ([]grpc.DialOption, error) {
	maxMsg := opts.MaxMessageSize
	if maxMsg <= 0 {
		maxMsg = DefaultMaxMessageSize
	}

	dialOpts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(maxMsg)),
	}
	if opts.UserAgent != "" {
		dialOpts = append(dialOpts, grpc.WithUserAgent(opts.UserAgent))
	}

	if addr.Secure {
		roots, err := rootBundle(opts.TrustStore, opts.ExtraRootsPEM)
		if err != nil {
			return nil, err
		}
		creds := credentials.NewTLS(&tls.Config{
			RootCAs:    roots,
			ServerName: addr.Host,
			MinVersion: tls.VersionTLS12,
		})
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	return append(dialOpts, opts.DialOptions...), nil
}

// waitReady drives conn out of idle and blocks until it is ready.
// A transient failure is reported immediately instead of waiting out backoff.
func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("channel state %s", state)
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

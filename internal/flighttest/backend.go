// Package flighttest runs an in-process Flight SQL backend for tests.
//
// The backend accepts one API key, issues bearer tokens through either
// handshake flavor, plans every statement into a single ticket and streams a
// fixed set of record batches. Knobs reproduce the behaviors a client must
// cope with: expired tokens, framed tickets, empty endpoints, mid-stream
// failures and slow responses. Every call is counted.
package flighttest

import (
	"crypto/tls"
	"io"
	"log"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
)

// APIKey is the credential accepted by default.
const APIKey = "test-app|s3cr3t"

// Config controls backend behavior. The zero value serves Fixture(2, 5)
// over plaintext for APIKey.
type Config struct {
	// APIKey is the accepted "<id>|<secret>" credential.
	// OPTIONAL: Uses APIKey if empty.
	APIKey string

	// Schema and Batches are streamed for every ticket. The backend retains
	// its own references and releases them on Stop.
	// OPTIONAL: Uses Fixture(2, 5) if Batches is nil.
	Schema  *arrow.Schema
	Batches []arrow.RecordBatch

	// TicketFrame is prepended to every issued ticket and must be stripped
	// by the client before DoGet.
	// OPTIONAL.
	TicketFrame []byte

	// LeadingEmptyEndpoint adds an endpoint without a ticket before the real one.
	LeadingEmptyEndpoint bool

	// NoEndpoints makes planning return a FlightInfo without endpoints.
	NoEndpoints bool

	// FailAfter makes DoGet fail with an Internal status after streaming
	// this many batches. Zero disables the failure.
	FailAfter int

	// HandshakeDelay, PlanDelay and BatchDelay slow down the handshake,
	// planning and each streamed batch.
	// OPTIONAL.
	HandshakeDelay time.Duration
	PlanDelay      time.Duration
	BatchDelay     time.Duration

	// TLS serves over TLS when set.
	// OPTIONAL.
	TLS *tls.Config

	// Logger for server events.
	// OPTIONAL: Discards logs if nil.
	Logger *slog.Logger
}

// Backend is a running mock service.
type Backend struct {
	// Address is the URI clients dial, e.g. "grpc://127.0.0.1:41235".
	Address string

	cfg      Config
	alloc    memory.Allocator
	logger   *slog.Logger
	server   *grpc.Server
	listener net.Listener
	stopOnce sync.Once

	handshakes atomic.Int64
	plans      atomic.Int64
	fetches    atomic.Int64
	rejectNext atomic.Int64

	mu         sync.Mutex
	tokens     map[string]struct{}
	statements map[string]string
	lastMD     metadata.MD
}

// Start launches a backend on 127.0.0.1 and stops it when the test ends.
func Start(t testing.TB, cfg Config) *Backend {
	t.Helper()

	b, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to start flight backend: %v", err)
	}
	t.Cleanup(b.Stop)
	return b
}

// New launches a backend on a random local port. Callers must call Stop.
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = APIKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	alloc := memory.NewGoAllocator()
	if cfg.Batches == nil {
		cfg.Schema, cfg.Batches = Fixture(alloc, 2, 5)
	} else {
		for _, batch := range cfg.Batches {
			batch.Retain()
		}
	}
	if cfg.Schema == nil && len(cfg.Batches) > 0 {
		cfg.Schema = cfg.Batches[0].Schema()
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		releaseAll(cfg.Batches)
		return nil, err
	}

	b := &Backend{
		cfg:        cfg,
		alloc:      alloc,
		logger:     cfg.Logger,
		listener:   lis,
		tokens:     make(map[string]struct{}),
		statements: make(map[string]string),
	}

	scheme := "grpc://"
	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(b.unaryInterceptor()),
		grpc.ChainStreamInterceptor(b.streamInterceptor()),
	}
	if cfg.TLS != nil {
		scheme = "grpc+tls://"
		opts = append(opts, grpc.Creds(credentials.NewTLS(cfg.TLS)))
	}
	b.Address = scheme + lis.Addr().String()

	b.server = grpc.NewServer(opts...)
	flight.RegisterFlightServiceServer(b.server, &service{
		FlightServer: flightsql.NewFlightServerWithAllocator(&statementServer{backend: b}, alloc),
		backend:      b,
	})

	go func() {
		if err := b.server.Serve(lis); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	return b, nil
}

// Stop shuts the server down and releases the fixture batches.
func (b *Backend) Stop() {
	b.stopOnce.Do(func() {
		b.server.Stop()
		_ = b.listener.Close()
		releaseAll(b.cfg.Batches)
	})
}

// Handshakes returns the number of Handshake calls received.
func (b *Backend) Handshakes() int64 { return b.handshakes.Load() }

// Plans returns the number of GetFlightInfo calls received, rejected ones included.
func (b *Backend) Plans() int64 { return b.plans.Load() }

// Fetches returns the number of DoGet calls received, rejected ones included.
func (b *Backend) Fetches() int64 { return b.fetches.Load() }

// RejectNext makes the next n planning or fetch calls fail with
// Unauthenticated whatever token they carry.
func (b *Backend) RejectNext(n int) { b.rejectNext.Store(int64(n)) }

// ExpireTokens forgets every issued token, as a server restart would.
func (b *Backend) ExpireTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.tokens)
}

// LastMetadata returns the request metadata of the most recent planning or
// fetch call.
func (b *Backend) LastMetadata() metadata.MD {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastMD.Copy()
}

// Rows returns the total number of fixture rows streamed per ticket.
func (b *Backend) Rows() int64 {
	var n int64
	for _, batch := range b.cfg.Batches {
		n += batch.NumRows()
	}
	return n
}

func (b *Backend) issueToken() string {
	token := uuid.NewString()
	b.mu.Lock()
	b.tokens[token] = struct{}{}
	b.mu.Unlock()
	return token
}

func (b *Backend) validToken(token string) bool {
	if token == b.cfg.APIKey {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tokens[token]
	return ok
}

func (b *Backend) validCredential(id, secret string) bool {
	return id+"|"+secret == b.cfg.APIKey
}

func (b *Backend) addStatement(query string) string {
	handle := uuid.NewString()
	b.mu.Lock()
	b.statements[handle] = query
	b.mu.Unlock()
	return handle
}

// takeStatement consumes a handle; tickets are single use.
func (b *Backend) takeStatement(handle string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	query, ok := b.statements[handle]
	delete(b.statements, handle)
	return query, ok
}

func releaseAll(batches []arrow.RecordBatch) {
	for _, batch := range batches {
		batch.Release()
	}
}

package spice

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/spice-go/auth"
	"github.com/hugr-lab/spice-go/transport"
)

// Version is reported in the user agent of every request.
const Version = "0.1.0"

// Public Spice endpoints used by DefaultConfig.
const (
	DefaultFlightAddress    = "grpc+tls://flight.spiceai.io"
	DefaultFirecacheAddress = "grpc+tls://firecache.spiceai.io"
	DefaultHTTPAddress      = "https://data.spiceai.io"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvAPIKey           = "SPICE_API_KEY"
	EnvAPIKeyFallback   = "API_KEY"
	EnvFlightAddress    = "SPICE_FLIGHT_ADDRESS"
	EnvFirecacheAddress = "SPICE_FIRECACHE_ADDRESS"
	EnvHTTPAddress      = "SPICE_HTTP_ADDRESS"
)

var (
	// ErrInvalidConfig is returned when Config fails validation.
	ErrInvalidConfig = errors.New("invalid client configuration")

	// ErrNoSecondaryBackend is returned by SecondaryQuery when the client
	// was built without a secondary address.
	ErrNoSecondaryBackend = errors.New("secondary backend not configured")
)

// Config contains configuration for a Spice client.
type Config struct {
	// APIKey is the "<app-id>|<secret>" credential shared by every backend.
	// REQUIRED.
	APIKey string

	// PrimaryAddress is the Flight SQL endpoint for Query,
	// e.g. "grpc+tls://flight.spiceai.io".
	// REQUIRED.
	PrimaryAddress string

	// SecondaryAddress is the Flight SQL endpoint for SecondaryQuery.
	// OPTIONAL: SecondaryQuery fails with ErrNoSecondaryBackend if empty.
	SecondaryAddress string

	// HTTPAddress is the root of the price API.
	// OPTIONAL: Uses DefaultHTTPAddress if empty.
	HTTPAddress string

	// PrimaryAuth and SecondaryAuth select the handshake strategy per backend.
	// OPTIONAL: Use auth.BasicToken() if nil.
	PrimaryAuth   auth.Authenticator
	SecondaryAuth auth.Authenticator

	// SecondaryTicketFixup rewrites secondary tickets before fetching.
	// OPTIONAL: Uses flight.FramePrefixFixup if nil.
	SecondaryTicketFixup TicketFixup

	// TrustStore loads root certificates for grpc+tls addresses.
	// OPTIONAL: Uses the system pool if nil.
	TrustStore transport.TrustStore

	// ExtraRootsPEM is appended to the trusted roots.
	// OPTIONAL.
	ExtraRootsPEM []byte

	// ConnectTimeout bounds connection setup per backend.
	// OPTIONAL: Uses transport.DefaultConnectTimeout if 0.
	ConnectTimeout time.Duration

	// MaxMessageSize caps received gRPC messages in bytes.
	// OPTIONAL: Uses transport.DefaultMaxMessageSize if 0.
	MaxMessageSize int

	// Allocator for decoded record batches.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for client events.
	// OPTIONAL: Uses slog.Default() if nil (or a stderr text logger at
	// LogLevel when LogLevel is set).
	Logger *slog.Logger

	// LogLevel builds a text logger on stderr when Logger is nil.
	// OPTIONAL.
	LogLevel *slog.Level

	// HTTPClient performs price API requests.
	// OPTIONAL: Uses a client with prices.DefaultTimeout if nil.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config for the public Spice endpoints.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:           apiKey,
		PrimaryAddress:   DefaultFlightAddress,
		SecondaryAddress: DefaultFirecacheAddress,
		HTTPAddress:      DefaultHTTPAddress,
	}
}

// ConfigFromEnv returns DefaultConfig with values overridden by the
// environment. SPICE_API_KEY takes precedence over API_KEY.
func ConfigFromEnv() Config {
	apiKey := os.Getenv(EnvAPIKey)
	if apiKey == "" {
		apiKey = os.Getenv(EnvAPIKeyFallback)
	}

	cfg := DefaultConfig(strings.TrimSpace(apiKey))
	if v := strings.TrimSpace(os.Getenv(EnvFlightAddress)); v != "" {
		cfg.PrimaryAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFirecacheAddress)); v != "" {
		cfg.SecondaryAddress = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHTTPAddress)); v != "" {
		cfg.HTTPAddress = v
	}
	return cfg
}

// validateConfig checks required fields. Addresses and the key format are
// validated again, with specific errors, when they are used.
func validateConfig(cfg Config) error {
	if cfg.APIKey == "" {
		return errors.New("APIKey is required")
	}
	if _, err := auth.ParseAPIKey(cfg.APIKey); err != nil {
		return err
	}
	if cfg.PrimaryAddress == "" {
		return errors.New("PrimaryAddress is required")
	}
	if _, err := transport.ParseAddress(cfg.PrimaryAddress); err != nil {
		return err
	}
	if cfg.SecondaryAddress != "" {
		if _, err := transport.ParseAddress(cfg.SecondaryAddress); err != nil {
			return err
		}
	}
	if cfg.ConnectTimeout < 0 {
		return errors.New("ConnectTimeout must not be negative")
	}
	if cfg.MaxMessageSize < 0 {
		return errors.New("MaxMessageSize must not be negative")
	}
	return nil
}

func newLogger(cfg Config) *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	if cfg.LogLevel != nil {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: *cfg.LogLevel}))
	}
	return slog.Default()
}

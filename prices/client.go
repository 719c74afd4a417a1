// Package prices is a client for the Spice price HTTP API.
//
// Responses are JSON, optionally zstd or gzip compressed. Numeric values are
// accepted either as JSON numbers or as strings holding a number.
package prices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hugr-lab/spice-go/internal/compress"
)

const (
	// DefaultBaseURL is the public Spice HTTP endpoint.
	DefaultBaseURL = "https://data.spiceai.io"

	// DefaultTimeout bounds each request when Config.HTTPClient is nil.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseSize caps response bodies when Config.MaxResponseSize is 0.
	DefaultMaxResponseSize = 32 << 20

	maxErrorBody  = 512
	headerAPIKey  = "X-API-Key"
	defaultUAgent = "spice-go"
)

// Config contains configuration for a price Client.
type Config struct {
	// APIKey is sent as the X-API-Key header.
	// REQUIRED.
	APIKey string

	// BaseURL is the API root.
	// OPTIONAL: Uses DefaultBaseURL if empty.
	BaseURL string

	// HTTPClient performs requests.
	// OPTIONAL: Uses a client with DefaultTimeout if nil.
	HTTPClient *http.Client

	// UserAgent is sent with every request.
	// OPTIONAL: Uses "spice-go" if empty.
	UserAgent string

	// MaxResponseSize caps response bodies in bytes, before and after
	// decompression.
	// OPTIONAL: Uses DefaultMaxResponseSize if 0.
	MaxResponseSize int64

	// Logger for request events.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger
}

// Client calls the price API. Safe for concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	userAgent    string
	http         *http.Client
	decompressor *compress.Decompressor
	maxSize      int64
	logger       *slog.Logger
}

// NewClient creates a price Client. Call Close to release its decoder.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxSize := cfg.MaxResponseSize
	if maxSize <= 0 {
		maxSize = DefaultMaxResponseSize
	}

	decompressor, err := compress.NewDecompressor(maxSize)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		userAgent:    userAgent,
		http:         httpClient,
		decompressor: decompressor,
		maxSize:      maxSize,
		logger:       logger,
	}, nil
}

// Close releases the client's decoder.
func (c *Client) Close() {
	c.decompressor.Close()
}

// SupportedPairs calls GET /v1/prices/pairs.
func (c *Client) SupportedPairs(ctx context.Context) ([]string, error) {
	var pairs []string
	if err := c.get(ctx, "/v1/prices/pairs", nil, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// Prices calls GET /v1/prices for the latest quotes of pairs.
func (c *Client) Prices(ctx context.Context, pairs ...string) (LatestPrices, error) {
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}

	var raw map[string]priceDetailJSON
	query := url.Values{"pairs": {strings.Join(pairs, ",")}}
	if err := c.get(ctx, "/v1/prices", query, &raw); err != nil {
		return nil, err
	}

	latest := make(LatestPrices, len(raw))
	for pair, detail := range raw {
		latest[pair] = detail.detail()
	}
	return latest, nil
}

// HistoricalPrices calls GET /v1/prices/historical. Start and End are sent
// as Unix seconds.
func (c *Client) HistoricalPrices(ctx context.Context, pairs []string, opts HistoricalOptions) (map[string][]HistoricalPrice, error) {
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}

	query := url.Values{"pairs": {strings.Join(pairs, ",")}}
	if !opts.Start.IsZero() {
		query.Set("start", strconv.FormatInt(opts.Start.Unix(), 10))
	}
	if !opts.End.IsZero() {
		query.Set("end", strconv.FormatInt(opts.End.Unix(), 10))
	}
	if opts.Granularity != "" {
		query.Set("granularity", opts.Granularity)
	}

	var raw map[string][]historicalPriceJSON
	if err := c.get(ctx, "/v1/prices/historical", query, &raw); err != nil {
		return nil, err
	}

	series := make(map[string][]HistoricalPrice, len(raw))
	for pair, points := range raw {
		out := make([]HistoricalPrice, 0, len(points))
		for _, p := range points {
			out = append(out, p.price())
		}
		series[pair] = out
	}
	return series, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", compress.AcceptEncoding)
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return fmt.Errorf("GET %s: read body: %w", path, err)
	}
	tooLarge := int64(len(body)) > c.maxSize
	if tooLarge {
		body = body[:c.maxSize]
	}
	decoded, decodeErr := c.decompressor.Decompress(resp.Header.Get("Content-Encoding"), body)

	c.logger.Debug("Price request completed",
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			statusErr.Body = truncate(decoded, maxErrorBody)
		}
		return statusErr
	}
	if tooLarge {
		return fmt.Errorf("GET %s: %w: body exceeds %d bytes", path, ErrResponseTooLarge, c.maxSize)
	}
	if errors.Is(decodeErr, compress.ErrTooLarge) {
		return fmt.Errorf("GET %s: %w: %w", path, ErrResponseTooLarge, decodeErr)
	}
	if decodeErr != nil {
		return fmt.Errorf("GET %s: %w", path, decodeErr)
	}
	body = decoded

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return nil
}

func truncate(body []byte, n int) string {
	s := strings.TrimSpace(string(body))
	if len(s) > n {
		return s[:n]
	}
	return s
}

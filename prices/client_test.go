package prices

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hugr-lab/spice-go/internal/compress"
)

const testKey = "test-app|s3cr3t"

// requestLog keeps the most recent request a test server received.
type requestLog struct {
	mu   sync.Mutex
	last *http.Request
}

func (l *requestLog) set(r *http.Request) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = r
}

func (l *requestLog) get() *http.Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// newTestServer serves body for path with the given encoding and records the
// last request.
func newTestServer(t *testing.T, path, encoding string, status int, body string) (*httptest.Server, *requestLog) {
	t.Helper()

	compressor, err := compress.NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor failed: %v", err)
	}
	t.Cleanup(func() { compressor.Close() })

	encoded, err := compressor.Compress(encoding, []byte(body))
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	log := &requestLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.set(r.Clone(context.Background()))
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		if encoding != "" {
			w.Header().Set("Content-Encoding", encoding)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(encoded)
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewClient(Config{APIKey: testKey, BaseURL: baseURL, UserAgent: "spice-go/test"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// TestSupportedPairs tests the pairs listing and request headers.
func TestSupportedPairs(t *testing.T) {
	srv, log := newTestServer(t, "/v1/prices/pairs", "", http.StatusOK, `["BTC-USD","ETH-USD"]`)
	client := newTestClient(t, srv.URL+"/")

	pairs, err := client.SupportedPairs(context.Background())
	if err != nil {
		t.Fatalf("SupportedPairs failed: %v", err)
	}
	last := log.get()
	if len(pairs) != 2 || pairs[0] != "BTC-USD" || pairs[1] != "ETH-USD" {
		t.Errorf("Unexpected pairs %v", pairs)
	}

	if got := last.Header.Get("X-API-Key"); got != testKey {
		t.Errorf("Expected API key header, got %q", got)
	}
	if got := last.Header.Get("Accept"); got != "application/json" {
		t.Errorf("Expected JSON accept header, got %q", got)
	}
	if got := last.Header.Get("Accept-Encoding"); got != compress.AcceptEncoding {
		t.Errorf("Expected Accept-Encoding %q, got %q", compress.AcceptEncoding, got)
	}
	if got := last.Header.Get("User-Agent"); got != "spice-go/test" {
		t.Errorf("Expected user agent, got %q", got)
	}
}

// TestPrices tests string-quoted numbers in a zstd body.
func TestPrices(t *testing.T) {
	body := `{
		"BTC-USD": {"prices": {"coinbase": "27000.5", "kraken": "26999.25"}, "minPrice": "26999.25", "maxPrice": "27000.5", "meanPrice": 26999.875},
		"ETH-USD": {"prices": {"coinbase": "1650.1"}}
	}`
	srv, log := newTestServer(t, "/v1/prices", "zstd", http.StatusOK, body)
	client := newTestClient(t, srv.URL)

	latest, err := client.Prices(context.Background(), "BTC-USD", "ETH-USD")
	if err != nil {
		t.Fatalf("Prices failed: %v", err)
	}
	last := log.get()

	if got := last.URL.Query().Get("pairs"); got != "BTC-USD,ETH-USD" {
		t.Errorf("Expected pairs query, got %q", got)
	}

	btc, ok := latest["BTC-USD"]
	if !ok {
		t.Fatal("Missing BTC-USD")
	}
	if btc.Prices["coinbase"] != 27000.5 || btc.Prices["kraken"] != 26999.25 {
		t.Errorf("Unexpected quotes %v", btc.Prices)
	}
	if btc.MinPrice == nil || *btc.MinPrice != 26999.25 {
		t.Errorf("Unexpected min price %v", btc.MinPrice)
	}
	if btc.MeanPrice == nil || *btc.MeanPrice != 26999.875 {
		t.Errorf("Unexpected mean price %v", btc.MeanPrice)
	}

	eth := latest["ETH-USD"]
	if eth.MinPrice != nil || eth.MaxPrice != nil || eth.MeanPrice != nil {
		t.Errorf("Expected absent aggregates, got %+v", eth)
	}
}

// TestPricesRequiresPairs tests that no request is sent without pairs.
func TestPricesRequiresPairs(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	if _, err := client.Prices(context.Background()); !errors.Is(err, ErrNoPairs) {
		t.Errorf("Expected ErrNoPairs, got %v", err)
	}
	if _, err := client.HistoricalPrices(context.Background(), nil, HistoricalOptions{}); !errors.Is(err, ErrNoPairs) {
		t.Errorf("Expected ErrNoPairs, got %v", err)
	}
}

// TestHistoricalPrices tests the query parameters and a gzip body.
func TestHistoricalPrices(t *testing.T) {
	body := `{"BTC-USD": [
		{"timestamp": "2024-01-01T00:00:00Z", "price": 42000.5, "high": 42100, "low": "41900.25"},
		{"timestamp": "2024-01-01T01:00:00Z", "price": "42050"}
	]}`
	srv, log := newTestServer(t, "/v1/prices/historical", "gzip", http.StatusOK, body)
	client := newTestClient(t, srv.URL)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	series, err := client.HistoricalPrices(context.Background(), []string{"BTC-USD"}, HistoricalOptions{
		Start:       start,
		End:         end,
		Granularity: "1h",
	})
	if err != nil {
		t.Fatalf("HistoricalPrices failed: %v", err)
	}

	last := log.get()
	query := last.URL.Query()
	if query.Get("start") != "1704067200" || query.Get("end") != "1704074400" || query.Get("granularity") != "1h" {
		t.Errorf("Unexpected query %s", last.URL.RawQuery)
	}

	points := series["BTC-USD"]
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}
	if !points[0].Timestamp.Equal(start) || points[0].Price != 42000.5 {
		t.Errorf("Unexpected first point %+v", points[0])
	}
	if points[0].High == nil || *points[0].High != 42100 || points[0].Low == nil || *points[0].Low != 41900.25 {
		t.Errorf("Unexpected high/low %+v", points[0])
	}
	if points[0].Open != nil || points[0].Close != nil {
		t.Errorf("Expected absent open/close %+v", points[0])
	}
	if points[1].Price != 42050 {
		t.Errorf("Unexpected second price %v", points[1].Price)
	}
}

// TestHistoricalPricesOmitsUnset tests that zero options are not sent.
func TestHistoricalPricesOmitsUnset(t *testing.T) {
	srv, log := newTestServer(t, "/v1/prices/historical", "", http.StatusOK, `{}`)
	client := newTestClient(t, srv.URL)

	if _, err := client.HistoricalPrices(context.Background(), []string{"BTC-USD"}, HistoricalOptions{}); err != nil {
		t.Fatalf("HistoricalPrices failed: %v", err)
	}
	last := log.get()
	query := last.URL.Query()
	for _, key := range []string{"start", "end", "granularity"} {
		if query.Has(key) {
			t.Errorf("Unexpected %s parameter in %s", key, last.URL.RawQuery)
		}
	}
}

// TestStatusMapping tests error classification of non-200 responses.
func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{status: http.StatusBadRequest, want: ErrBadRequest},
		{status: http.StatusTooManyRequests, want: ErrRateLimited},
		{status: http.StatusInternalServerError, want: ErrServerError},
		{status: http.StatusServiceUnavailable, want: nil},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := newTestServer(t, "/v1/prices/pairs", "gzip", tt.status, `{"error":"nope"}`)
			client := newTestClient(t, srv.URL)

			_, err := client.SupportedPairs(context.Background())

			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				t.Fatalf("Expected *StatusError, got %v", err)
			}
			if statusErr.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, statusErr.StatusCode)
			}
			if statusErr.Body != `{"error":"nope"}` {
				t.Errorf("Expected decoded body, got %q", statusErr.Body)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if tt.want == nil {
				for _, sentinel := range []error{ErrBadRequest, ErrRateLimited, ErrServerError} {
					if errors.Is(err, sentinel) {
						t.Errorf("Status %d must not match %v", tt.status, sentinel)
					}
				}
			}
		})
	}
}

// TestMalformedBody tests that invalid JSON and invalid numbers fail.
func TestMalformedBody(t *testing.T) {
	tests := map[string]string{
		"NotJSON":     `not json`,
		"BadNumber":   `{"BTC-USD": {"prices": {"coinbase": "abc"}}}`,
		"WrongShapes": `["BTC-USD"]`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			srv, _ := newTestServer(t, "/v1/prices", "", http.StatusOK, body)
			client := newTestClient(t, srv.URL)

			if _, err := client.Prices(context.Background(), "BTC-USD"); err == nil {
				t.Error("Expected decode error")
			}
		})
	}
}

// TestResponseSizeLimit tests that oversized bodies fail explicitly, both
// on the wire and after decompression.
func TestResponseSizeLimit(t *testing.T) {
	pairs := make([]string, 64)
	for i := range pairs {
		pairs[i] = `"BTC-USD"`
	}
	large := "[" + strings.Join(pairs, ",") + "]"

	for _, encoding := range []string{"", "gzip", "zstd"} {
		t.Run("encoding="+encoding, func(t *testing.T) {
			srv, _ := newTestServer(t, "/v1/prices/pairs", encoding, http.StatusOK, large)
			client, err := NewClient(Config{APIKey: testKey, BaseURL: srv.URL, MaxResponseSize: 256})
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			defer client.Close()

			if _, err := client.SupportedPairs(context.Background()); !errors.Is(err, ErrResponseTooLarge) {
				t.Errorf("Expected ErrResponseTooLarge, got %v", err)
			}
		})
	}

	t.Run("WithinLimit", func(t *testing.T) {
		srv, _ := newTestServer(t, "/v1/prices/pairs", "gzip", http.StatusOK, `["BTC-USD"]`)
		client, err := NewClient(Config{APIKey: testKey, BaseURL: srv.URL, MaxResponseSize: 256})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		defer client.Close()

		pairs, err := client.SupportedPairs(context.Background())
		if err != nil {
			t.Fatalf("SupportedPairs failed: %v", err)
		}
		if len(pairs) != 1 {
			t.Errorf("Unexpected pairs %v", pairs)
		}
	})
}

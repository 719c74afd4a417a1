package spice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/hugr-lab/spice-go/flight"
	"github.com/hugr-lab/spice-go/prices"
	"github.com/hugr-lab/spice-go/transport"
)

// Client queries Spice over Flight SQL and the price API.
// Safe for concurrent use.
type Client struct {
	primary   *flight.Executor
	secondary *flight.Executor
	prices    *prices.Client
	conns     []*grpc.ClientConn
	logger    *slog.Logger
}

// NewClient connects to the configured backends and returns a ready Client.
//
// The function:
//  1. Validates the Config
//  2. Connects the primary and secondary backends concurrently
//  3. Builds one query executor per backend and the price client
//
// Both connections must succeed. Authentication is deferred to the first
// query on each backend. Call Close to release the connections.
//
// Example:
//
//	client, err := spice.NewClient(ctx, spice.DefaultConfig(os.Getenv("SPICE_API_KEY")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func NewClient(ctx context.Context, config Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	logger := newLogger(config)
	userAgent := "spice-go/" + Version

	opts := transport.Options{
		TrustStore:     config.TrustStore,
		ExtraRootsPEM:  config.ExtraRootsPEM,
		ConnectTimeout: config.ConnectTimeout,
		MaxMessageSize: config.MaxMessageSize,
		UserAgent:      userAgent,
		Logger:         logger,
	}

	var primaryConn, secondaryConn *grpc.ClientConn
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		conn, err := transport.Connect(egCtx, config.PrimaryAddress, opts)
		if err != nil {
			return fmt.Errorf("primary backend: %w", err)
		}
		primaryConn = conn
		return nil
	})
	if config.SecondaryAddress != "" {
		eg.Go(func() error {
			conn, err := transport.Connect(egCtx, config.SecondaryAddress, opts)
			if err != nil {
				return fmt.Errorf("secondary backend: %w", err)
			}
			secondaryConn = conn
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		closeConns(primaryConn, secondaryConn)
		return nil, err
	}

	c := &Client{logger: logger}
	c.conns = append(c.conns, primaryConn)

	var err error
	c.primary, err = flight.NewExecutor(primaryConn, flight.ExecutorConfig{
		Backend:       flight.Primary,
		APIKey:        config.APIKey,
		Authenticator: config.PrimaryAuth,
		Allocator:     config.Allocator,
		Logger:        logger,
	})
	if err != nil {
		closeConns(primaryConn, secondaryConn)
		return nil, err
	}

	if secondaryConn != nil {
		c.conns = append(c.conns, secondaryConn)
		c.secondary, err = flight.NewExecutor(secondaryConn, flight.ExecutorConfig{
			Backend:       flight.Secondary,
			APIKey:        config.APIKey,
			Authenticator: config.SecondaryAuth,
			TicketFixup:   config.SecondaryTicketFixup,
			Allocator:     config.Allocator,
			Logger:        logger,
		})
		if err != nil {
			closeConns(primaryConn, secondaryConn)
			return nil, err
		}
	}

	c.prices, err = prices.NewClient(prices.Config{
		APIKey:     config.APIKey,
		BaseURL:    config.HTTPAddress,
		HTTPClient: config.HTTPClient,
		UserAgent:  userAgent,
		Logger:     logger,
	})
	if err != nil {
		closeConns(primaryConn, secondaryConn)
		return nil, err
	}

	logger.Info("Spice client connected",
		"primary", config.PrimaryAddress,
		"secondary", config.SecondaryAddress,
	)

	return c, nil
}

// Query runs sql on the primary backend. The caller must Close the stream.
func (c *Client) Query(ctx context.Context, sql string, opts ...QueryOption) (*BatchStream, error) {
	return c.primary.Query(ctx, sql, opts...)
}

// SecondaryQuery runs sql on the secondary (accelerated) backend.
func (c *Client) SecondaryQuery(ctx context.Context, sql string, opts ...QueryOption) (*BatchStream, error) {
	if c.secondary == nil {
		return nil, ErrNoSecondaryBackend
	}
	return c.secondary.Query(ctx, sql, opts...)
}

// Prices returns the price API client.
func (c *Client) Prices() *prices.Client {
	return c.prices
}

// Close releases both channels and the price client. Open streams fail
// after Close.
func (c *Client) Close() error {
	c.prices.Close()

	var errs []error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeConns(conns ...*grpc.ClientConn) {
	for _, conn := range conns {
		if conn != nil {
			_ = conn.Close()
		}
	}
}

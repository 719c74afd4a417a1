// Package spice is a Go client for Spice.ai data over Apache Arrow Flight SQL.
//
// A Client holds one gRPC channel per backend tier: the primary Flight
// endpoint and, optionally, the secondary accelerated (firecache) endpoint.
// SQL text is planned with Flight SQL, the first endpoint carrying a ticket
// is fetched, and the result is returned as a stream of Arrow record batches.
// A price HTTP client is exposed alongside for market data.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/hugr-lab/spice-go"
//	)
//
//	func main() {
//	    ctx := context.Background()
//	    client, err := spice.NewClient(ctx, spice.ConfigFromEnv())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    stream, err := client.Query(ctx, "SELECT number, hash FROM eth.recent_blocks LIMIT 10")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    for batch, err := range stream.All() {
//	        if err != nil {
//	            log.Fatal(err)
//	        }
//	        fmt.Println(batch.NumRows())
//	        batch.Release()
//	    }
//	}
//
// # Authentication
//
// API keys have the form "<app-id>|<secret>". Each backend authenticates
// lazily on its first query through a Flight handshake and caches the
// returned bearer token. Concurrent first queries share one handshake. When a
// backend rejects the cached token, the query re-authenticates and retries
// exactly once. The handshake strategy is selectable per backend with
// BasicToken, PayloadHandshake or HeaderOnly.
//
// # Errors
//
// Errors wrap package sentinels and are matched with errors.Is:
//   - ErrInvalidConfig, ErrInvalidCredentialFormat: bad configuration, no network call made
//   - ErrInvalidAddress, ErrTrustStore: a backend address or its TLS roots are unusable
//   - ErrConnect: a backend channel could not be established
//   - ErrUnauthenticated, ErrAuthFailed: credentials rejected
//   - ErrNoExecutionEndpoint: the plan had nothing to fetch
//   - ErrTimeout: the WithTimeout deadline expired
//   - ErrTransport: any other RPC failure before the stream opened
//   - ErrDecode: the result stream failed after it opened
//
// # Memory Management
//
// Arrow uses manual reference counting. Batches returned by BatchStream.Next
// or yielded by BatchStream.All belong to the caller and MUST be released.
// Always Close a stream obtained from Query; breaking out of All closes it.
//
// # Logging
//
// The package logs through Config.Logger, or slog.Default() when unset.
// API keys and tokens are never logged.
package spice

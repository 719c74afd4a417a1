package flighttest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// FixtureSchema is the schema of Fixture batches.
var FixtureSchema = arrow.NewSchema([]arrow.Field{
	{Name: "block_number", Type: arrow.PrimitiveTypes.Int64},
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "price", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Fixture builds n batches of rows rows each. block_number runs from 0
// across all batches. Caller must release every batch.
func Fixture(alloc memory.Allocator, n, rows int) (*arrow.Schema, []arrow.RecordBatch) {
	builder := array.NewRecordBuilder(alloc, FixtureSchema)
	defer builder.Release()

	symbols := []string{"BTC-USD", "ETH-USD", "SOL-USD"}
	batches := make([]arrow.RecordBatch, 0, n)
	var next int64
	for range n {
		for range rows {
			builder.Field(0).(*array.Int64Builder).Append(next)
			builder.Field(1).(*array.StringBuilder).Append(symbols[next%int64(len(symbols))])
			builder.Field(2).(*array.Float64Builder).Append(float64(next) * 1.5)
			next++
		}
		batches = append(batches, builder.NewRecordBatch())
	}
	return FixtureSchema, batches
}

// SelfSignedTLS returns a server TLS config valid for 127.0.0.1 and
// localhost, plus the PEM certificate clients must trust.
func SelfSignedTLS(t testing.TB) (*tls.Config, []byte) {
	t.Helper()

	cfg, certPEM, err := selfSigned()
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	return cfg, certPEM
}

func selfSigned() (*tls.Config, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "flighttest"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, certPEM, nil
}

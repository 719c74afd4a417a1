package transport

import (
	"crypto/x509"
	"fmt"
)

// TrustStore loads the root certificates used to verify a secure backend.
type TrustStore func() (*x509.CertPool, error)

// SystemTrustStore loads the platform's native root certificates.
func SystemTrustStore() (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, fmt.Errorf("load system roots: %w", err)
	}
	return pool, nil
}

// PEMTrustStore returns a TrustStore containing only the given PEM roots.
// Useful for private CAs and tests.
func PEMTrustStore(pemCerts []byte) TrustStore {
	return func() (*x509.CertPool, error) {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemCerts) {
			return nil, fmt.Errorf("no certificates found in PEM bundle")
		}
		return pool, nil
	}
}

// rootBundle loads the store and concatenates extra PEM roots into one pool.
func rootBundle(store TrustStore, extraPEM []byte) (*x509.CertPool, error) {
	if store == nil {
		store = SystemTrustStore
	}

	pool, err := store()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrustStore, err)
	}
	if pool == nil {
		pool = x509.NewCertPool()
	}

	if len(extraPEM) > 0 && !pool.AppendCertsFromPEM(extraPEM) {
		return nil, fmt.Errorf("%w: extra roots contain no certificates", ErrTrustStore)
	}

	return pool, nil
}

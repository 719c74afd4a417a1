package transport

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Address is a parsed backend endpoint URI.
type Address struct {
	// Scheme is the lower-cased URI scheme (e.g., "grpc+tls").
	Scheme string
	// Host is the hostname without port. Used as the TLS server name.
	Host string
	// Port is the explicit or default port.
	Port string
	// Secure reports whether the scheme requests transport security.
	Secure bool
}

// Target returns the host:port dial target.
func (a Address) Target() string {
	return net.JoinHostPort(a.Host, a.Port)
}

func (a Address) String() string {
	return a.Scheme + "://" + a.Target()
}

var secureSchemes = map[string]bool{
	"grpc+tls": true,
	"https":    true,
	"tls":      true,
	"grpc":     false,
	"grpc+tcp": false,
	"http":     false,
}

// ParseAddress validates a backend URI such as "grpc+tls://flight.spiceai.io".
// Secure schemes default to port 443, plaintext schemes to port 80.
// Returns an error wrapping ErrInvalidAddress on malformed input.
func ParseAddress(address string) (Address, error) {
	if strings.TrimSpace(address) == "" {
		return Address{}, fmt.Errorf("%w: address is empty", ErrInvalidAddress)
	}
	if !strings.Contains(address, "://") {
		return Address{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidAddress, address)
	}

	u, err := url.Parse(address)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}

	scheme := strings.ToLower(u.Scheme)
	secure, known := secureSchemes[scheme]
	if !known {
		return Address{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Address{}, fmt.Errorf("%w: %q has no host", ErrInvalidAddress, address)
	}
	if u.Path != "" && u.Path != "/" {
		return Address{}, fmt.Errorf("%w: unexpected path %q", ErrInvalidAddress, u.Path)
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if secure {
			port = "443"
		}
	}

	return Address{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Secure: secure,
	}, nil
}

package auth

import (
	"encoding/base64"
	"strings"
)

const apiKeySeparator = "|"

// Credential is a parsed API key.
type Credential struct {
	ID     string
	Secret string
}

// ParseAPIKey splits an "<id>|<secret>" key.
// Returns ErrInvalidCredentialFormat unless both segments are present and non-empty.
func ParseAPIKey(key string) (Credential, error) {
	parts := strings.Split(key, apiKeySeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Credential{}, ErrInvalidCredentialFormat
	}
	return Credential{ID: parts[0], Secret: parts[1]}, nil
}

// Raw returns the key in its original "<id>|<secret>" form.
func (c Credential) Raw() string {
	return c.ID + apiKeySeparator + c.Secret
}

// String masks the secret so credentials are safe to log.
func (c Credential) String() string {
	return c.ID + apiKeySeparator + "***"
}

// HeaderAuthorization is the gRPC metadata key carrying credentials.
const HeaderAuthorization = "authorization"

const (
	bearerPrefix = "Bearer "
	basicPrefix  = "Basic "
)

// BearerHeader formats an authorization value for token.
func BearerHeader(token string) string {
	return bearerPrefix + token
}

// BasicHeader formats the HTTP basic authorization value for cred.
func BasicHeader(cred Credential) string {
	return basicPrefix + base64.RawStdEncoding.EncodeToString([]byte(cred.ID+":"+cred.Secret))
}

// TokenFromAuthorizationHeader extracts the token from a "Bearer <token>" value.
// The scheme is matched case-insensitively.
func TokenFromAuthorizationHeader(header string) (string, error) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

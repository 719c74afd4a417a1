package prices

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBadRequest is matched by a 400 response.
	ErrBadRequest = errors.New("bad request")
	// ErrRateLimited is matched by a 429 response.
	ErrRateLimited = errors.New("rate limit exceeded, slow down")
	// ErrServerError is matched by a 500 response.
	ErrServerError = errors.New("internal server error")
	// ErrNoPairs is returned when a call names no pair.
	ErrNoPairs = errors.New("at least one pair is required")
	// ErrResponseTooLarge is returned when a response body, raw or
	// decompressed, exceeds Config.MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// StatusError is returned for every non-200 response.
// errors.Is matches it against ErrBadRequest, ErrRateLimited or
// ErrServerError according to the status code.
type StatusError struct {
	StatusCode int
	// Body is the beginning of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("unexpected response status: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusInternalServerError:
		return ErrServerError
	default:
		return nil
	}
}

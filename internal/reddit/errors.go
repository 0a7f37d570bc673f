package reddit

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrResponseTooLarge is returned when a response body exceeds the read limit.
var ErrResponseTooLarge = errors.New("response body too large")

// StatusError is a non-2xx answer from the Reddit API.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string // truncated response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("reddit %s %s: %d %s", e.Method, e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("reddit %s %s: %d %s: %s", e.Method, e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Retryable reports whether the request may succeed if sent again:
// rate limiting, server errors and expired tokens.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode >= http.StatusInternalServerError
}

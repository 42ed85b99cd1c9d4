package retry

import (
	"errors"
	"net"
	"net/http"
)

// HTTPStatusError wraps a non-2xx HTTP response so callers can classify it
// without re-parsing the response.
type HTTPStatusError struct {
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	if e.Status != "" {
		return e.Status
	}
	return http.StatusText(e.StatusCode)
}

// ClassifyHTTPStatus wraps an HTTP error by status code into either a
// retryable error or a Permanent one, per spec.md §4.3/§4.9: network
// timeouts, 5xx, and 429 are transient; any other 4xx is terminal.
func ClassifyHTTPStatus(statusCode int, status string) error {
	err := &HTTPStatusError{StatusCode: statusCode, Status: status}
	if IsTransientStatus(statusCode) {
		return err
	}
	return Permanent(err)
}

// IsTransientStatus reports whether an HTTP status code belongs to the
// transient category (5xx or 429) that warrants a retry.
func IsTransientStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// ClassifyNetworkError wraps a network-level error (dial/timeout/connection
// reset) as retryable; everything else the caller passes through is left as
// a permanent, non-retried error by convention of this action-executor
// package (auth/4xx-non-429 failures should already be Permanent by the time
// they reach here).
func ClassifyNetworkError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return err
	}
	return err
}

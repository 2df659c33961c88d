package scraper

import (
	"errors"
	"fmt"
)

// TransportError covers network failures, timeouts and non-2xx responses.
// Status is 0 when the request never produced a response.
type TransportError struct {
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("transport error: %s", e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// ParseError marks a page whose required structure is absent, e.g. a work
// page with no preface or a chapter with no body. These are hard failures
// for the call and are never retried automatically.
type ParseError struct {
	Missing string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("page structure missing: %s", e.Missing)
}

// Retryable reports whether a failed operation is worth retrying with
// backoff. Missing pages and malformed markup are logic failures, not
// transient ones.
func Retryable(err error) bool {
	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.Status == 0 || te.Status == 429 || te.Status >= 500
}

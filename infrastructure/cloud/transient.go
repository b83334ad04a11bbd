package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
)

// TransientError marks a failure worth retrying
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient error (http %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so IsTransient reports true
func Transient(statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{StatusCode: statusCode, Err: err}
}

// IsTransient reports whether err is a network failure, a rate limit or a server-side error
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// a cancelled request is the caller giving up, not the service failing
	if errors.Is(err, context.Canceled) {
		return false
	}

	if code := StatusCode(err); code > 0 {
		return TransientStatus(code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}

// TransientStatus reports whether an HTTP status is retryable
func TransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// StatusCode extracts the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var te *TransientError
	if errors.As(err, &te) && te.StatusCode > 0 {
		return te.StatusCode
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

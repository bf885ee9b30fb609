package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NavigationErrorKind classifies why a page could not be opened.
type NavigationErrorKind string

const (
	// KindTimeout means the navigation did not finish within its timeout.
	KindTimeout NavigationErrorKind = "timeout"

	// KindNetwork means DNS, TCP, TLS or another transport error.
	KindNetwork NavigationErrorKind = "network"

	// KindHTTPStatus means the server answered with a non-2xx status.
	KindHTTPStatus NavigationErrorKind = "http_status"
)

// NavigationError is returned by Browser.Open when a page cannot be loaded.
// It is recorded per target and never halts a run on its own.
type NavigationError struct {
	// Kind is the failure class.
	Kind NavigationErrorKind

	// URL is the address that was requested.
	URL string

	// Status is the HTTP status for KindHTTPStatus errors.
	Status int

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *NavigationError) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("navigate %s: http status %d", e.URL, e.Status)
	default:
		if e.Err != nil {
			return fmt.Sprintf("navigate %s: %s: %v", e.URL, e.Kind, e.Err)
		}
		return fmt.Sprintf("navigate %s: %s", e.URL, e.Kind)
	}
}

// Unwrap returns the underlying error.
func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the navigation may succeed.
// Timeouts, transport errors and 5xx/429 responses are transient.
func (e *NavigationError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork:
		return true
	case KindHTTPStatus:
		return e.Status >= 500 || e.Status == 429
	default:
		return false
	}
}

var (
	// ErrQuiescenceTimeout is returned by Page.WaitQuiescent when network
	// activity did not settle in time. Callers capture anyway.
	ErrQuiescenceTimeout = errors.New("page did not reach network idle before timeout")

	// ErrRegionUnavailable is returned when a section element is no longer
	// present or resolves to zero area.
	ErrRegionUnavailable = errors.New("region unavailable")

	// ErrBrowserClosed is returned when the browser was closed or never started.
	ErrBrowserClosed = errors.New("browser is closed")
)

// ErrorKind returns a stable, machine-readable class for an error returned by
// this package. It returns "" for nil errors.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var navErr *NavigationError
	switch {
	case errors.As(err, &navErr):
		return string(navErr.Kind)
	case errors.Is(err, ErrRegionUnavailable):
		return "region_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return string(KindTimeout)
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "render"
	}
}

// classifyNavigation converts a browser navigation failure into a
// NavigationError. Chrome reports transport problems as "net::ERR_*" reasons.
func classifyNavigation(rawURL string, err error) *NavigationError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &NavigationError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	msg := err.Error()
	if strings.Contains(msg, "ERR_TIMED_OUT") || strings.Contains(msg, "ERR_CONNECTION_TIMED_OUT") {
		return &NavigationError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &NavigationError{Kind: KindNetwork, URL: rawURL, Err: err}
}

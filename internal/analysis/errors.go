package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Failure kinds recorded in the manifest.
const (
	KindRateLimited     = "rate_limited"
	KindQuotaExceeded   = "quota_exceeded"
	KindInvalidResponse = "invalid_response"
	KindTimeout         = "timeout"
	KindTransport       = "transport"
	KindCancelled       = "cancelled"
)

var (
	// ErrEmptyResponse is returned when the model answered without text.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrNoJSON is returned when no JSON value could be found in the response.
	ErrNoJSON = errors.New("no JSON found in model response")

	// ErrMissingImage is returned for requests without prepared image data.
	ErrMissingImage = errors.New("request has no prepared image")
)

// Failure is a typed analysis failure.
type Failure struct {
	Kind string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("analysis %s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// APIError is a non-2xx answer from the model endpoint.
type APIError struct {
	StatusCode int
	// Status is the RPC status name, e.g. "RESOURCE_EXHAUSTED".
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("model api returned %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("model api returned %d: %s", e.StatusCode, e.Message)
}

// retryableStatus lists HTTP statuses worth another attempt.
var retryableStatus = map[int]bool{
	408: true, 409: true, 425: true, 429: true,
	500: true, 502: true, 503: true, 504: true,
}

// mentionsLimit reports whether a message points at rate limits or quota.
func mentionsLimit(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "quota")
}

// Retryable reports whether err is worth retrying.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus[apiErr.StatusCode] || mentionsLimit(apiErr.Status+" "+apiErr.Message)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return mentionsLimit(err.Error())
}

// Classify wraps err in a *Failure with a stable kind.
// A 429 is rate_limited unless it names a quota; RESOURCE_EXHAUSTED on any
// other status is quota_exceeded.
func Classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	kind := KindTransport
	var apiErr *APIError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		kind = KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, ErrNoJSON):
		kind = KindInvalidResponse
	case errors.As(err, &apiErr):
		msg := strings.ToLower(apiErr.Message)
		switch {
		case apiErr.StatusCode == 429 && !strings.Contains(msg, "quota"):
			kind = KindRateLimited
		case apiErr.Status == "RESOURCE_EXHAUSTED" || strings.Contains(msg, "quota"):
			kind = KindQuotaExceeded
		case strings.Contains(msg, "rate limit"):
			kind = KindRateLimited
		case apiErr.StatusCode == 408 || apiErr.StatusCode == 504:
			kind = KindTimeout
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &Failure{Kind: kind, Err: err}
}

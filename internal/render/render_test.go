package render

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNavigationError(t *testing.T) {
	t.Parallel()

	t.Run("http status message", func(t *testing.T) {
		t.Parallel()
		err := &NavigationError{Kind: KindHTTPStatus, URL: "https://example.com/", Status: 503}
		if got := err.Error(); got != "navigate https://example.com/: http status 503" {
			t.Errorf("unexpected message %q", got)
		}
	})

	t.Run("unwraps cause", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("net::ERR_NAME_NOT_RESOLVED")
		err := fmt.Errorf("capture: %w", &NavigationError{Kind: KindNetwork, URL: "u", Err: cause})
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause")
		}
		var navErr *NavigationError
		if !errors.As(err, &navErr) || navErr.Kind != KindNetwork {
			t.Error("expected errors.As to find the navigation error")
		}
	})

	t.Run("transient classification", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			err  *NavigationError
			want bool
		}{
			{&NavigationError{Kind: KindTimeout}, true},
			{&NavigationError{Kind: KindNetwork}, true},
			{&NavigationError{Kind: KindHTTPStatus, Status: 502}, true},
			{&NavigationError{Kind: KindHTTPStatus, Status: 429}, true},
			{&NavigationError{Kind: KindHTTPStatus, Status: 404}, false},
		}
		for _, tt := range tests {
			if got := tt.err.Transient(); got != tt.want {
				t.Errorf("%v: Transient() = %v, want %v", tt.err, got, tt.want)
			}
		}
	})
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"navigation timeout", &NavigationError{Kind: KindTimeout}, "timeout"},
		{"wrapped http status", fmt.Errorf("x: %w", &NavigationError{Kind: KindHTTPStatus, Status: 404}), "http_status"},
		{"region", fmt.Errorf("%w: gone", ErrRegionUnavailable), "region_unavailable"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"cancelled", context.Canceled, "cancelled"},
		{"other", errors.New("boom"), "render"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyNavigation(t *testing.T) {
	t.Parallel()

	if got := classifyNavigation("u", context.DeadlineExceeded); got.Kind != KindTimeout {
		t.Errorf("expected timeout, got %s", got.Kind)
	}
	if got := classifyNavigation("u", errors.New("navigation failed: net::ERR_TIMED_OUT")); got.Kind != KindTimeout {
		t.Errorf("expected timeout, got %s", got.Kind)
	}
	if got := classifyNavigation("u", errors.New("navigation failed: net::ERR_NAME_NOT_RESOLVED")); got.Kind != KindNetwork {
		t.Errorf("expected network, got %s", got.Kind)
	}
}

func TestParseCookies(t *testing.T) {
	t.Parallel()

	cookies := parseCookies("https://example.com/app?x=1", "session=abc; theme=dark;broken; =nope")
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	if cookies[0].Name != "session" || cookies[0].Value != "abc" || cookies[0].URL != "https://example.com/" {
		t.Errorf("unexpected first cookie %+v", cookies[0])
	}
	if parseCookies("https://example.com/", "  ") != nil {
		t.Error("expected no cookies for blank header")
	}
}

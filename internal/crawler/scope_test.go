package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func TestScopeCheck(t *testing.T) {
	t.Parallel()

	scope, err := NewScope("https://example.com/", ScopeOptions{
		SameDomainOnly:    true,
		AllowedSubdomains: []string{"docs.example.com", "*.cdn.example.com"},
		IncludePatterns:   []string{`^/($|docs|pricing|start|a$)`},
		ExcludePatterns:   []string{`^/admin`, `\.pdf$`},
	})
	if err != nil {
		t.Fatalf("NewScope failed: %v", err)
	}

	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/pricing", ""},
		{"https://docs.example.com/start", ""},
		{"https://eu.cdn.example.com/a", ""},
		{"https://cdn.example.com/a", RejectDomain},
		{"https://blog.example.com/", RejectDomain},
		{"https://other.org/", RejectDomain},
		{"https://example.com/admin/users", RejectPath},
		{"https://example.com/docs/guide.pdf", RejectPath},
	}
	for _, tt := range tests {
		if got := scope.Check(context.Background(), tt.url); got != tt.want {
			t.Errorf("Check(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestScopeAnyDomain(t *testing.T) {
	t.Parallel()

	scope, err := NewScope("https://example.com/", ScopeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := scope.Check(context.Background(), "https://other.org/x"); got != "" {
		t.Errorf("expected other domains to pass when same-domain is off, got %q", got)
	}
}

func TestScopeInvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := NewScope("https://example.com/", ScopeOptions{ExcludePatterns: []string{"("}}); err == nil {
		t.Error("expected invalid regexp to fail")
	}
}

type denyAll struct{}

func (denyAll) Allowed(context.Context, *url.URL) bool { return false }

func TestScopeRobotsIsCheckedLast(t *testing.T) {
	t.Parallel()

	scope, err := NewScope("https://example.com/", ScopeOptions{
		SameDomainOnly:  true,
		ExcludePatterns: []string{`^/private`},
		Robots:          denyAll{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := scope.Check(context.Background(), "https://example.com/private"); got != RejectPath {
		t.Errorf("expected path rejection first, got %q", got)
	}
	if got := scope.Check(context.Background(), "https://example.com/open"); got != RejectRobots {
		t.Errorf("expected robots rejection, got %q", got)
	}
}

func TestRobotsAgent(t *testing.T) {
	t.Parallel()

	t.Run("rules are applied and cached", func(t *testing.T) {
		t.Parallel()
		var fetches atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/robots.txt" {
				http.NotFound(w, r)
				return
			}
			fetches.Add(1)
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		}))
		t.Cleanup(srv.Close)

		agent := NewRobotsAgent("uxaudit", WithRobotsClient(srv.Client()))
		open, _ := url.Parse(srv.URL + "/docs")
		closed, _ := url.Parse(srv.URL + "/private/area")

		if !agent.Allowed(context.Background(), open) {
			t.Error("expected /docs to be allowed")
		}
		if agent.Allowed(context.Background(), closed) {
			t.Error("expected /private to be disallowed")
		}
		if n := fetches.Load(); n != 1 {
			t.Errorf("expected robots.txt to be fetched once, got %d", n)
		}
	})

	t.Run("missing robots allows everything", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		t.Cleanup(srv.Close)

		agent := NewRobotsAgent("", WithRobotsClient(srv.Client()))
		u, _ := url.Parse(srv.URL + "/anything")
		if !agent.Allowed(context.Background(), u) {
			t.Error("expected allow when robots.txt is missing")
		}
	})

	t.Run("unreachable host fails open", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		agent := NewRobotsAgent("uxaudit")
		u, _ := url.Parse(srv.URL + "/")
		if !agent.Allowed(context.Background(), u) {
			t.Error("expected fail-open on fetch errors")
		}
	})
}

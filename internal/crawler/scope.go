package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Rejection reasons recorded for out-of-scope links.
const (
	// RejectDomain means the host is neither the seed host nor allowed.
	RejectDomain = "domain"

	// RejectPath means an include/exclude path pattern rejected the URL.
	RejectPath = "path"

	// RejectRobots means robots.txt disallows the URL.
	RejectRobots = "robots"
)

// RobotsPolicy decides whether robots.txt permits crawling a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, target *url.URL) bool
}

// ScopeOptions configures a Scope.
type ScopeOptions struct {
	// SameDomainOnly restricts links to the seed host and AllowedSubdomains.
	SameDomainOnly bool

	// AllowedSubdomains lists extra hosts. "*.example.com" matches every
	// subdomain of example.com; other entries match exactly.
	AllowedSubdomains []string

	// IncludePatterns, when non-empty, require the path to match one of them.
	IncludePatterns []string

	// ExcludePatterns reject paths matching any of them.
	ExcludePatterns []string

	// Robots is consulted last. Nil disables robots checks.
	Robots RobotsPolicy
}

// Scope is the domain and path policy of a run. It is immutable and safe for
// concurrent use (the robots policy must be as well).
type Scope struct {
	seedHost   string
	sameDomain bool
	exact      map[string]struct{}
	suffixes   []string
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
	robots     RobotsPolicy
}

// NewScope builds the policy for a normalized seed URL.
func NewScope(seedURL string, opts ScopeOptions) (*Scope, error) {
	u, err := url.Parse(seedURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: seed %q", ErrInvalidURL, seedURL)
	}
	s := &Scope{
		seedHost:   strings.ToLower(u.Hostname()),
		sameDomain: opts.SameDomainOnly,
		exact:      make(map[string]struct{}),
		robots:     opts.Robots,
	}
	for _, entry := range opts.AllowedSubdomains {
		entry = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(entry)), ".")
		if entry == "" {
			continue
		}
		if suffix, ok := strings.CutPrefix(entry, "*."); ok {
			host, err := canonicalHost(suffix)
			if err != nil {
				return nil, err
			}
			s.suffixes = append(s.suffixes, "."+host)
			continue
		}
		host, err := canonicalHost(entry)
		if err != nil {
			return nil, err
		}
		s.exact[host] = struct{}{}
	}

	if s.include, err = compilePatterns(opts.IncludePatterns); err != nil {
		return nil, err
	}
	if s.exclude, err = compilePatterns(opts.ExcludePatterns); err != nil {
		return nil, err
	}
	return s, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Check returns "" when the normalized URL is in scope, or the rejection
// reason. Domain is checked before path, and path before robots.
func (s *Scope) Check(ctx context.Context, canonicalURL string) string {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return RejectDomain
	}
	if !s.HostAllowed(u.Hostname()) {
		return RejectDomain
	}
	if !s.PathAllowed(u.Path) {
		return RejectPath
	}
	if s.robots != nil && !s.robots.Allowed(ctx, u) {
		return RejectRobots
	}
	return ""
}

// HostAllowed reports whether host passes the domain policy.
func (s *Scope) HostAllowed(host string) bool {
	if !s.sameDomain {
		return true
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == s.seedHost {
		return true
	}
	if _, ok := s.exact[host]; ok {
		return true
	}
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// PathAllowed reports whether a URL path passes the include/exclude patterns.
// Exclusions win over inclusions.
func (s *Scope) PathAllowed(p string) bool {
	if p == "" {
		p = "/"
	}
	for _, re := range s.exclude {
		if re.MatchString(p) {
			return false
		}
	}
	if len(s.include) == 0 {
		return true
	}
	for _, re := range s.include {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

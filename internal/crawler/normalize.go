package crawler

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
)

// Normalizer produces canonical URL forms.
//
// The canonical form has a lower-case scheme and host, an ASCII (punycode)
// host without a trailing dot, no default port, no user info, a cleaned
// non-empty path, no fragment, and a query sorted by key with excluded
// parameters removed. Normalize is idempotent.
//
// Design decision: We drop every fragment because:
//  1. Fragments only scroll within a document already being captured
//  2. In-page targets are tracked as sections, not as pages
//  3. Single-page routers that rely on "#/" are out of scope for a visual crawl
type Normalizer struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewNormalizer creates a Normalizer that strips the given query parameters.
// A trailing "*" matches by prefix ("utm_*"). Matching is case-insensitive.
func NewNormalizer(excludeParams []string) *Normalizer {
	n := &Normalizer{exact: make(map[string]struct{}, len(excludeParams))}
	for _, p := range excludeParams {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			n.prefixes = append(n.prefixes, prefix)
			continue
		}
		n.exact[p] = struct{}{}
	}
	return n
}

// Normalize returns the canonical form of an absolute http(s) URL.
func (n *Normalizer) Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	return n.canonical(u)
}

// Resolve resolves ref against base and returns the canonical result.
// Relative references, protocol-relative URLs and absolute URLs are accepted.
func (n *Normalizer) Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base %q: %w", ErrInvalidURL, base, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	return n.canonical(b.ResolveReference(r))
}

func (n *Normalizer) canonical(u *url.URL) (string, error) {
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https":
	case "":
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, u.String())
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	if u.Opaque != "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, u.String())
	}

	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return "", err
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host = net.JoinHostPort(strings.Trim(host, "[]"), port)
	}

	out := &url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     cleanPath(u.Path),
		RawQuery: n.cleanQuery(u.RawQuery),
	}
	return out.String(), nil
}

// canonicalHost lower-cases the host and converts IDNs to punycode.
// Hosts that the IDNA lookup profile rejects (underscores, for instance)
// are kept lower-cased as they are.
func canonicalHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidURL)
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host, nil //nolint:nilerr // fall back to the lower-cased host
	}
	return strings.ToLower(ascii), nil
}

// cleanPath resolves dot segments and keeps a significant trailing slash.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func (n *Normalizer) cleanQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil && len(values) == 0 {
		return ""
	}
	for key := range values {
		if n.excluded(key) {
			delete(values, key)
		}
	}
	return values.Encode()
}

func (n *Normalizer) excluded(key string) bool {
	key = strings.ToLower(key)
	if _, ok := n.exact[key]; ok {
		return true
	}
	for _, prefix := range n.prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

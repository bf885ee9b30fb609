package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// DefaultRobotsTTL is how long fetched robots.txt rules are reused.
const DefaultRobotsTTL = 30 * time.Minute

// RobotsAgent evaluates robots.txt rules with a per-host cache.
//
// Design decision: We fail open when robots.txt cannot be fetched or parsed
// because:
//  1. Most sites without robots.txt answer 404 or time out
//  2. The audit captures a handful of pages the user asked for explicitly
//  3. A broken robots file should not turn into an empty report
type RobotsAgent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// RobotsOption configures a RobotsAgent.
type RobotsOption func(*RobotsAgent)

// WithRobotsClient sets the HTTP client used to fetch robots.txt.
func WithRobotsClient(client *http.Client) RobotsOption {
	return func(a *RobotsAgent) {
		if client != nil {
			a.client = client
		}
	}
}

// WithRobotsTTL sets the cache lifetime.
func WithRobotsTTL(ttl time.Duration) RobotsOption {
	return func(a *RobotsAgent) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithRobotsLogger sets the logger.
func WithRobotsLogger(logger *slog.Logger) RobotsOption {
	return func(a *RobotsAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewRobotsAgent creates an agent that matches rules for userAgent.
func NewRobotsAgent(userAgent string, opts ...RobotsOption) *RobotsAgent {
	a := &RobotsAgent{
		client:    &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
		ttl:       DefaultRobotsTTL,
		logger:    slog.New(slog.DiscardHandler),
		cache:     make(map[string]robotsEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allowed reports whether target may be crawled.
func (a *RobotsAgent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	rules, err := a.rules(ctx, target)
	if err != nil {
		a.logger.Debug("robots.txt unavailable, allowing", "host", target.Host, "error", err)
		return true
	}
	path := target.EscapedPath()
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return rules.TestAgent(path, a.agentName())
}

func (a *RobotsAgent) agentName() string {
	if a.userAgent == "" {
		return "*"
	}
	return a.userAgent
}

func (a *RobotsAgent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	a.mu.RLock()
	entry, ok := a.cache[host]
	a.mu.RUnlock()
	if ok && time.Since(entry.fetched) < a.ttl {
		return entry.rules, nil
	}

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	// FromResponse maps 4xx to allow-all and 5xx to disallow-all.
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse robots.txt: %w", err)
	}

	a.mu.Lock()
	a.cache[host] = robotsEntry{fetched: time.Now(), rules: data}
	a.mu.Unlock()
	return data, nil
}

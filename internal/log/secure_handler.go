package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// redactedKeys are attribute keys (lower case) whose values are never logged.
// The groups mirror where secrets enter a run: the model API key, the
// session of the audited site, and arbitrary --header values.
var redactedKeys = keySet(
	// Model credentials
	"api_key", "apikey", "api-key", "key", "x-goog-api-key", "x-api-key",

	// Site session
	"cookie", "set-cookie", "session", "session_id", "sessionid", "sid",

	// Request headers
	"authorization", "proxy-authorization", "x-auth-token",

	// Generic credentials
	"password", "passwd", "secret", "token", "access_token", "refresh_token",
	"credential", "credentials", "auth",
)

// redactedFragments mask any key containing them, such as "site_cookie" or
// "db_password". "key" is absent on purpose: "cache_key" and "run_key" are
// content digests, not secrets.
var redactedFragments = []string{
	"password", "passwd", "secret", "token", "auth", "credential", "cookie",
}

// secretValuePatterns match values that are secrets whatever their key.
var secretValuePatterns = []*regexp.Regexp{
	// Google API keys (Gemini)
	regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}$`),

	// Authorization header values
	regexp.MustCompile(`(?i)^(bearer|basic)\s+\S+`),

	// JWTs
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
}

// secretQueryParams are URL query parameters masked inside URL values.
// The Gemini REST API accepts the API key as ?key=..., which would otherwise
// leak through request URLs in debug logs.
var secretQueryParams = []string{"key", "api_key", "token", "access_token"}

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// SecureHandler wraps an slog.Handler and redacts secrets from every
// attribute before the record reaches the wrapped handler.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because:
//  1. It integrates seamlessly with standard slog APIs
//  2. It works with any underlying handler (text, JSON, etc.)
//  3. Every component already accepts a plain *slog.Logger
type SecureHandler struct {
	next slog.Handler
}

// NewSecureHandler creates a SecureHandler wrapping next.
// A nil next wraps slog.Default().Handler().
func NewSecureHandler(next slog.Handler) *SecureHandler {
	if next == nil {
		next = slog.Default().Handler()
	}
	return &SecureHandler{next: next}
}

// Enabled implements slog.Handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(redact(a))
		return true
	})
	return h.next.Handle(ctx, clean)
}

// WithAttrs implements slog.Handler. Bound attributes are redacted once here.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		clean = append(clean, redact(a))
	}
	return &SecureHandler{next: h.next.WithAttrs(clean)}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{next: h.next.WithGroup(name)}
}

// redact returns a with secrets masked. Groups are walked recursively.
func redact(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		clean := make([]slog.Attr, 0, len(members))
		for _, m := range members {
			clean = append(clean, redact(m))
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(clean...)}
	}

	if isSecretKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}

	v := a.Value.String()
	for _, p := range secretValuePatterns {
		if p.MatchString(v) {
			return slog.String(a.Key, MaskValue)
		}
	}
	if masked, ok := maskURLSecrets(v); ok {
		return slog.String(a.Key, masked)
	}
	return a
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	if _, ok := redactedKeys[k]; ok {
		return true
	}
	for _, f := range redactedFragments {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// maskURLSecrets masks sensitive query parameters of an absolute URL value.
// It returns false when the value is not a URL or carries nothing to mask.
func maskURLSecrets(value string) (string, bool) {
	if !strings.Contains(value, "://") || !strings.Contains(value, "?") {
		return "", false
	}
	u, err := url.Parse(value)
	if err != nil || u.RawQuery == "" {
		return "", false
	}
	q := u.Query()
	changed := false
	for _, p := range secretQueryParams {
		if q.Has(p) {
			q.Set(p, MaskValue)
			changed = true
		}
	}
	if !changed {
		return "", false
	}
	u.RawQuery = q.Encode()
	return u.String(), true
}

// NewSecureLogger returns a text logger that redacts secrets.
// verbose selects Debug level; otherwise only warnings and errors are logged.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}

// Discard returns a logger that drops every record. Components use it as
// their default so library use stays silent.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

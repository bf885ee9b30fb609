package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes Validate.
func validConfig() *Config {
	cfg := NewConfig()
	cfg.SeedURL = "https://example.com/"
	cfg.APIKey = "test-key"
	return cfg
}

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// This test ensures that changes to defaults are intentional.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("budgets default to a single page audit", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxPages != 1 || cfg.MaxTotalScreenshots != 1 {
			t.Errorf("expected 1/1, got %d/%d", cfg.MaxPages, cfg.MaxTotalScreenshots)
		}
		if cfg.MaxSectionsPerPage != 8 {
			t.Errorf("expected 8 sections per page, got %d", cfg.MaxSectionsPerPage)
		}
	})

	t.Run("default viewport is 1440x900", func(t *testing.T) {
		t.Parallel()
		if cfg.Viewport.Width != 1440 || cfg.Viewport.Height != 900 {
			t.Errorf("unexpected viewport %+v", cfg.Viewport)
		}
	})

	t.Run("default navigation timeout is 45 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.NavigationTimeout != 45*time.Second {
			t.Errorf("expected 45s, got %v", cfg.NavigationTimeout)
		}
	})

	t.Run("same domain only by default", func(t *testing.T) {
		t.Parallel()
		if !cfg.SameDomainOnly {
			t.Error("expected SameDomainOnly to be true")
		}
	})

	t.Run("image budget matches analysis limits", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxImageDimension != 1600 || cfg.MaxImageBytes != 2_000_000 {
			t.Errorf("unexpected image budget %d/%d", cfg.MaxImageDimension, cfg.MaxImageBytes)
		}
	})

	t.Run("tracking params are excluded", func(t *testing.T) {
		t.Parallel()
		found := false
		for _, p := range cfg.ExcludeQueryParams {
			if p == "utm_*" {
				found = true
			}
		}
		if !found {
			t.Error("expected utm_* in default exclude params")
		}
	})
}

func TestEffectiveMaxCaptureAttempts(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.MaxTotalScreenshots = 4
	if got := cfg.EffectiveMaxCaptureAttempts(); got != 12 {
		t.Errorf("expected derived 12, got %d", got)
	}
	cfg.MaxCaptureAttempts = 5
	if got := cfg.EffectiveMaxCaptureAttempts(); got != 5 {
		t.Errorf("expected explicit 5, got %d", got)
	}
}

func TestResolveModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", "gemini-3-flash-preview"},
		{"flash", "gemini-3-flash-preview"},
		{" PRO ", "gemini-3-pro-preview"},
		{"gemini-3-pro-preview", "gemini-3-pro-preview"},
		{"gemini-2.5-flash", "gemini-2.5-flash"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := ResolveModel(tt.in); got != tt.want {
				t.Errorf("ResolveModel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if IsKnownModel("gemini-2.5-flash") {
		t.Error("expected unknown model")
	}
	if !IsKnownModel("pro") {
		t.Error("expected alias to be known")
	}
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("UXAUDIT_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google")

	if got := APIKeyFromEnv(); got != "google" {
		t.Errorf("expected google, got %q", got)
	}

	t.Setenv("GEMINI_API_KEY", "gemini")
	if got := APIKeyFromEnv(); got != "gemini" {
		t.Errorf("expected gemini to take precedence, got %q", got)
	}

	t.Setenv("UXAUDIT_API_KEY", "uxaudit")
	if got := APIKeyFromEnv(); got != "uxaudit" {
		t.Errorf("expected uxaudit to take precedence, got %q", got)
	}
}

// TestValidate checks each validation rule in isolation.
func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid config", func(*Config) {}, nil},
		{"missing seed", func(c *Config) { c.SeedURL = "" }, ErrInvalidSeedURL},
		{"relative seed", func(c *Config) { c.SeedURL = "/about" }, ErrInvalidSeedURL},
		{"ftp seed", func(c *Config) { c.SeedURL = "ftp://example.com/" }, ErrInvalidSeedURL},
		{"zero pages", func(c *Config) { c.MaxPages = 0 }, ErrInvalidMaxPages},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, ErrInvalidMaxDepth},
		{"zero depth is allowed", func(c *Config) { c.MaxDepth = 0 }, nil},
		{"negative sections", func(c *Config) { c.MaxSectionsPerPage = -1 }, ErrInvalidMaxSections},
		{"zero screenshots", func(c *Config) { c.MaxTotalScreenshots = 0 }, ErrInvalidMaxScreenshots},
		{"attempts below budget", func(c *Config) { c.MaxTotalScreenshots = 5; c.MaxCaptureAttempts = 3 }, ErrInvalidMaxAttempts},
		{"bad viewport", func(c *Config) { c.Viewport.Width = 0 }, ErrInvalidViewport},
		{"zero navigation timeout", func(c *Config) { c.NavigationTimeout = 0 }, ErrInvalidTimeout},
		{"zero quiescence timeout", func(c *Config) { c.QuiescenceTimeout = 0 }, ErrInvalidTimeout},
		{"negative threshold", func(c *Config) { c.DedupSimilarityThreshold = -1 }, ErrInvalidThreshold},
		{"zero workers", func(c *Config) { c.WorkerConcurrency = 0 }, ErrInvalidConcurrency},
		{"zero failure limit", func(c *Config) { c.MaxConsecutiveFailures = 0 }, ErrInvalidFailureLimit},
		{"bad pattern", func(c *Config) { c.ExcludePathPatterns = []string{"(unclosed"} }, ErrInvalidPattern},
		{"zero image bytes", func(c *Config) { c.MaxImageBytes = 0 }, ErrInvalidImageBudget},
		{"unknown format", func(c *Config) { c.ReportFormat = "pdf" }, ErrInvalidReportFormat},
		{"backoff factor below one", func(c *Config) { c.AnalysisBackoffFactor = 0.5 }, ErrInvalidRetry},
		{"missing api key", func(c *Config) { c.APIKey = "" }, ErrMissingAPIKey},
		{"missing api key without analysis", func(c *Config) { c.APIKey = ""; c.AnalysisEnabled = false }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestApplySiteConfig(t *testing.T) {
	t.Parallel()

	t.Run("merges site values for the seed host", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.SeedURL = "https://www.example.com/start"
		cfg.ExcludePathPatterns = []string{"^/admin"}
		cfg.SiteConfigs = &File{
			Defaults: SiteConfig{ExcludePatterns: []string{"^/logout"}},
			Sites: map[string]SiteConfig{
				"www.example.com": {
					Cookie:            "session=abc",
					Headers:           map[string]string{"X-Env": "staging"},
					MaxDepth:          4,
					AllowedSubdomains: []string{"docs.example.com"},
				},
			},
		}
		cfg.ApplySiteConfig()

		if cfg.Cookie != "session=abc" {
			t.Errorf("expected cookie from site config, got %q", cfg.Cookie)
		}
		if cfg.Headers["X-Env"] != "staging" {
			t.Errorf("expected header from site config")
		}
		if cfg.MaxDepth != 4 {
			t.Errorf("expected depth 4, got %d", cfg.MaxDepth)
		}
		if strings.Join(cfg.ExcludePathPatterns, ",") != "^/admin,^/logout" {
			t.Errorf("unexpected exclude patterns %v", cfg.ExcludePathPatterns)
		}
		if len(cfg.AllowedSubdomains) != 1 {
			t.Errorf("expected allowed subdomain, got %v", cfg.AllowedSubdomains)
		}
	})

	t.Run("flag values take precedence", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Cookie = "flag=1"
		cfg.SiteConfigs = &File{Defaults: SiteConfig{Cookie: "file=1"}}
		cfg.ApplySiteConfig()
		if cfg.Cookie != "flag=1" {
			t.Errorf("expected flag cookie, got %q", cfg.Cookie)
		}
	})
}

func TestForSeed(t *testing.T) {
	t.Parallel()

	base := validConfig()
	base.ExcludePathPatterns = []string{"^/admin"}
	base.Headers = map[string]string{"X-Base": "1"}
	base.SiteConfigs = &File{
		Sites: map[string]SiteConfig{
			"a.example": {Cookie: "a=1", ExcludePatterns: []string{"^/a"}, Headers: map[string]string{"X-Site": "a"}},
			"b.example": {Cookie: "b=1"},
		},
	}

	a := base.ForSeed("https://a.example/")
	b := base.ForSeed("https://b.example/")

	if a.SeedURL != "https://a.example/" || a.Cookie != "a=1" || b.Cookie != "b=1" {
		t.Errorf("unexpected per-seed values: a=%q/%q b=%q", a.SeedURL, a.Cookie, b.Cookie)
	}
	if strings.Join(a.ExcludePathPatterns, ",") != "^/admin,^/a" {
		t.Errorf("unexpected patterns for a: %v", a.ExcludePathPatterns)
	}
	if strings.Join(b.ExcludePathPatterns, ",") != "^/admin" {
		t.Errorf("site patterns leaked into b: %v", b.ExcludePathPatterns)
	}
	if _, ok := b.Headers["X-Site"]; ok {
		t.Error("site header leaked into b")
	}
	if _, ok := base.Headers["X-Site"]; ok || base.Cookie != "" {
		t.Error("base config was modified")
	}
}

func TestGetSiteConfig(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: SiteConfig{Cookie: "d=1", Headers: map[string]string{"A": "1"}, IncludePatterns: []string{"^/docs"}},
		Sites: map[string]SiteConfig{
			"example.com": {Headers: map[string]string{"B": "2"}, IncludePatterns: []string{"^/blog"}},
		},
	}

	site := cf.GetSiteConfig("example.com")
	if site.Cookie != "d=1" {
		t.Errorf("expected default cookie, got %q", site.Cookie)
	}
	if site.Headers["A"] != "1" || site.Headers["B"] != "2" {
		t.Errorf("expected merged headers, got %v", site.Headers)
	}
	if len(site.IncludePatterns) != 2 {
		t.Errorf("expected merged include patterns, got %v", site.IncludePatterns)
	}

	// Merging must not mutate the defaults.
	if len(cf.Defaults.Headers) != 1 || len(cf.Defaults.IncludePatterns) != 1 {
		t.Error("defaults were mutated by GetSiteConfig")
	}

	other := cf.GetSiteConfig("unknown.example")
	if len(other.IncludePatterns) != 1 {
		t.Errorf("expected only default patterns, got %v", other.IncludePatterns)
	}
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.uxaudit")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), ".uxaudit")

		content := `defaults:
  maxDepth: 3
  excludePatterns:
    - "^/logout"
sites:
  www.example.com:
    cookie: "session=xyz"
    userAgent: "uxaudit-test"
    headers:
      Authorization: "Bearer token"
    allowedSubdomains:
      - "*.example.com"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Defaults.MaxDepth != 3 {
			t.Errorf("expected default depth 3, got %d", cfg.Defaults.MaxDepth)
		}
		site, ok := cfg.Sites["www.example.com"]
		if !ok {
			t.Fatal("expected www.example.com in sites")
		}
		if site.Headers["Authorization"] != "Bearer token" {
			t.Errorf("expected Authorization header")
		}
		if site.UserAgent != "uxaudit-test" {
			t.Errorf("expected user agent, got %q", site.UserAgent)
		}
		if len(site.AllowedSubdomains) != 1 {
			t.Errorf("expected 1 allowed subdomain, got %d", len(site.AllowedSubdomains))
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), ".uxaudit")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), ".uxaudit")
		if err := os.WriteFile(configPath, []byte("defaults:\n  maxDepth: 1\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()
		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()
		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{"data": XDGDataDir(), "config": XDGConfigDir(), "cache": XDGCacheDir()} {
		if dir == "" {
			t.Errorf("expected non-empty %s dir", name)
		}
		if filepath.Base(dir) != AppName {
			t.Errorf("expected %s dir to end with %q, got %q", name, AppName, dir)
		}
	}
}

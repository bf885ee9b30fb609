package config

// SiteConfig holds site-specific configuration for a single host.
// This allows customizing crawl behavior per audited website, for example
// supplying a session cookie for a staging environment.
type SiteConfig struct {
	// Cookie is an HTTP cookie to use when rendering this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// MaxDepth overrides the default crawl depth for this site.
	// If zero, the global MaxDepth is used.
	MaxDepth int `yaml:"maxDepth,omitempty"`

	// UserAgent overrides the browser user agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// IncludePatterns are path regular expressions; when set, only matching
	// URLs are crawled.
	IncludePatterns []string `yaml:"includePatterns,omitempty"`

	// ExcludePatterns are path regular expressions to skip during crawling.
	ExcludePatterns []string `yaml:"excludePatterns,omitempty"`

	// AllowedSubdomains are extra hosts considered in scope.
	AllowedSubdomains []string `yaml:"allowedSubdomains,omitempty"`
}

// File represents the structure of the .uxaudit configuration file.
type File struct {
	// Sites maps hosts to their site-specific configurations.
	// Keys are host names without scheme or port (e.g., "www.example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific host.
// It merges the site-specific configuration with defaults: scalar values
// override, headers are merged key by key, pattern lists are appended.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	result.Headers = copyHeaders(cf.Defaults.Headers)
	result.IncludePatterns = append([]string(nil), cf.Defaults.IncludePatterns...)
	result.ExcludePatterns = append([]string(nil), cf.Defaults.ExcludePatterns...)
	result.AllowedSubdomains = append([]string(nil), cf.Defaults.AllowedSubdomains...)

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.MaxDepth != 0 {
		result.MaxDepth = siteConfig.MaxDepth
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	result.IncludePatterns = append(result.IncludePatterns, siteConfig.IncludePatterns...)
	result.ExcludePatterns = append(result.ExcludePatterns, siteConfig.ExcludePatterns...)
	result.AllowedSubdomains = append(result.AllowedSubdomains, siteConfig.AllowedSubdomains...)

	return result
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

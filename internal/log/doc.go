// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (API keys, cookies, tokens)
//   - Masking of API keys passed as URL query parameters
//   - Configurable log levels with verbose mode support
//
// Even in verbose mode, sensitive values are masked so that logs of an
// audit run can be shared without leaking the model API key or the session
// cookie used to render a staging site.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//	logger.Debug("analysis request",
//	    "url", "https://generativelanguage.googleapis.com/...?key=AIza...", // key masked
//	    "cookie", "session=abc123", // masked
//	)
package log

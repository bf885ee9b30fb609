package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/nao1215/uxaudit/internal/model"
)

const (
	// DefaultBaseURL is the public Gemini REST endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultTimeout bounds one generateContent request.
	DefaultTimeout = 60 * time.Second

	// MaxBackoff caps any single retry delay.
	MaxBackoff = 30 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Generator produces model text for a prompt and an image.
type Generator interface {
	Generate(ctx context.Context, prompt string, image *model.PreparedImage) (string, error)
}

// RetryConfig controls retries of failed model requests.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first request.
	MaxRetries int
	// Initial is the first delay. Zero retries immediately.
	Initial time.Duration
	// Factor multiplies the delay after every retry.
	Factor float64
	// Jitter is the random spread applied to every delay, as a fraction.
	Jitter float32
}

// DefaultRetryConfig mirrors the CLI defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, Initial: time.Second, Factor: 2, Jitter: 0.2}
}

// GeminiClient calls the generateContent endpoint.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	client  *http.Client
	retry   RetryConfig
	logger  *slog.Logger
}

// GeminiOption configures a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) GeminiOption {
	return func(c *GeminiClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(c *GeminiClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout bounds each request attempt.
func WithTimeout(d time.Duration) GeminiOption {
	return func(c *GeminiClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetry sets the retry configuration.
func WithRetry(cfg RetryConfig) GeminiOption {
	return func(c *GeminiClient) {
		c.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GeminiOption {
	return func(c *GeminiClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewGeminiClient creates a client for the named model.
func NewGeminiClient(apiKey, modelName string, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		apiKey:  apiKey,
		model:   modelName,
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		client:  &http.Client{},
		retry:   DefaultRetryConfig(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model name requests are sent to.
func (c *GeminiClient) Model() string {
	return c.model
}

// newRetryPolicy builds the failsafe retry policy for model requests.
func newRetryPolicy(cfg RetryConfig, logger *slog.Logger) retrypolicy.RetryPolicy[string] {
	builder := retrypolicy.NewBuilder[string]().
		HandleIf(func(_ string, err error) bool { return Retryable(err) }).
		WithMaxRetries(max(cfg.MaxRetries, 0)).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[string]) {
			logger.Warn("model request failed, retrying", "attempt", e.Attempts(), "error", e.LastError())
		})

	initial := min(cfg.Initial, MaxBackoff)
	switch {
	case initial <= 0:
	case cfg.Factor > 1 && initial < MaxBackoff:
		builder = builder.WithBackoffFactor(initial, MaxBackoff, float32(cfg.Factor))
	default:
		builder = builder.WithDelay(initial)
	}
	if initial > 0 && cfg.Jitter > 0 && cfg.Jitter < 1 {
		builder = builder.WithJitterFactor(cfg.Jitter)
	}
	return builder.Build()
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate sends the prompt and image and returns the model text.
// Transient failures are retried with exponential backoff; the error of the
// last attempt is returned when retries run out.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, image *model.PreparedImage) (string, error) {
	if image == nil || len(image.Data) == 0 {
		return "", ErrMissingImage
	}
	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MIMEType: image.MIMEType, Data: base64.StdEncoding.EncodeToString(image.Data)}},
			},
		}},
		GenerationConfig: generationConfig{ResponseMIMEType: "application/json"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	policy := newRetryPolicy(c.retry, c.logger)
	return failsafe.With(policy).WithContext(ctx).Get(func() (string, error) {
		return c.generateOnce(ctx, body)
	})
}

func (c *GeminiClient) generateOnce(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", decodeAPIError(resp)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoJSON, err)
	}
	var text strings.Builder
	for _, cand := range out.Candidates {
		for _, p := range cand.Content.Parts {
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			break
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Error.Message != "" {
		apiErr.Status = er.Error.Status
		apiErr.Message = er.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// Package alphavantage fetches daily prices and quarterly fundamentals from
// the Alpha Vantage query API.
package alphavantage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"stockcast/internal/ratelimit"
	"stockcast/pkg/model"
)

const (
	// DefaultBaseURL is the Alpha Vantage query endpoint
	DefaultBaseURL = "https://www.alphavantage.co/query"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the free-tier request budget per minute
	DefaultRateLimit = 5

	// DefaultMaxRetries bounds retries of retryable failures
	DefaultMaxRetries = 3

	name = "alphavantage"
)

// ProviderError represents a failed Alpha Vantage call
type ProviderError struct {
	Provider  string
	Function  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Function == "" {
		return e.Provider + ": " + e.Err.Error()
	}
	return e.Provider + " " + e.Function + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a provider error worth retrying
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// Client is an Alpha Vantage API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	maxRetries int
	maxBackoff time.Duration
	logger     zerolog.Logger
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets the request budget per minute
func WithRateLimit(perMinute int) ClientOption {
	return func(c *Client) {
		c.limiter = ratelimit.NewLimiter(name, perMinute)
	}
}

// WithLimiter shares an existing limiter
func WithLimiter(l *ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithMaxRetries sets how often a retryable failure is retried
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithMaxBackoff caps the wait between retries of a throttled request
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithLogger sets a logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewLimiter(name, DefaultRateLimit)
	}
	if c.maxBackoff > 0 {
		c.limiter.SetMaxWait(c.maxBackoff)
	}
	c.logger = c.logger.With().Str("component", name).Logger()
	return c
}

// IsAvailable checks if the client has an API key
func (c *Client) IsAvailable() bool {
	return c.apiKey != ""
}

// apiMessage is the JSON body Alpha Vantage answers with instead of data
// when a call is throttled or rejected
type apiMessage struct {
	Note        string `json:"Note"`
	Information string `json:"Information"`
	Error       string `json:"Error Message"`
}

// FetchDaily downloads the full daily price history of symbol as CSV
func (c *Client) FetchDaily(ctx context.Context, symbol string) ([]byte, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "full")
	params.Set("datatype", "csv")
	return c.call(ctx, params)
}

// FetchStatement downloads the fundamentals payload of one category
func (c *Client) FetchStatement(ctx context.Context, symbol string, category model.Category) ([]byte, error) {
	info, err := category.Info()
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("function", info.Function)
	params.Set("symbol", symbol)
	return c.call(ctx, params)
}

// call performs a query with retries on throttling and transport errors
func (c *Client) call(ctx context.Context, params url.Values) ([]byte, error) {
	if !c.IsAvailable() {
		return nil, &ProviderError{Provider: name, Function: params.Get("function"), Err: errors.New("no API key configured")}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn().
				Str("function", params.Get("function")).
				Str("limiter", c.limiter.Name()).
				Int("attempt", attempt).
				Dur("backoff", c.limiter.GetBackoff()).
				Err(lastErr).
				Msg("retrying request")
			if err := c.limiter.Backoff(ctx); err != nil {
				return nil, err
			}
		}
		body, err := c.get(ctx, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	function := params.Get("function")
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	c.logger.Debug().Str("function", function).Str("symbol", params.Get("symbol")).Msg("api request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: name, Function: function, Err: err, Retryable: ctx.Err() == nil}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: name, Function: function, Err: errors.New("rate limited"), Retryable: true}
	}
	if resp.StatusCode >= 500 {
		return nil, &ProviderError{Provider: name, Function: function, Err: fmt.Errorf("status %d", resp.StatusCode), Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: name, Function: function, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: name, Function: function, Err: fmt.Errorf("reading body: %w", err), Retryable: true}
	}

	if msg, ok := decodeMessage(body); ok {
		switch {
		case msg.Error != "":
			return nil, &ProviderError{Provider: name, Function: function, Err: errors.New(msg.Error)}
		case msg.Note != "":
			c.limiter.SignalRateLimited()
			return nil, &ProviderError{Provider: name, Function: function, Err: fmt.Errorf("rate limited: %s", msg.Note), Retryable: true}
		case msg.Information != "":
			c.limiter.SignalRateLimited()
			return nil, &ProviderError{Provider: name, Function: function, Err: fmt.Errorf("rate limited: %s", msg.Information), Retryable: true}
		}
	}

	c.limiter.ResetBackoff()
	return body, nil
}

// decodeMessage recognizes the small JSON notices Alpha Vantage sends in
// place of data. Data payloads never carry these keys at top level.
func decodeMessage(body []byte) (apiMessage, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return apiMessage{}, false
	}
	var msg apiMessage
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return apiMessage{}, false
	}
	if msg.Note == "" && msg.Information == "" && msg.Error == "" {
		return apiMessage{}, false
	}
	return msg, true
}

// Package phabricator implements a Conduit API client: form-encoded POST
// requests carrying a JSON params blob, with retries, backoff and a circuit
// breaker around transient failures.
package phabricator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mozilla-conduit/review/internal/logger"
)

// Default configuration values
const (
	// DefaultMaxRetries is the default maximum number of retry attempts
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the default base delay for exponential backoff
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay is the default maximum delay between retries
	DefaultMaxDelay = 30 * time.Second

	// DefaultTimeout is the default request timeout
	DefaultTimeout = 30 * time.Second

	// DefaultMaxFailures is the failure count that opens the circuit breaker
	DefaultMaxFailures = 5

	// DefaultResetTimeout is how long the circuit stays open
	DefaultResetTimeout = 60 * time.Second

	userAgent = "moz-review"
)

// Client talks to a Phabricator instance over the Conduit API
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	retryPolicy    *RetryPolicy
	circuitBreaker *CircuitBreaker
}

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithToken sets the API token used for authentication
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) error {
		if client == nil {
			return fmt.Errorf("http client must not be nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.httpClient.Timeout = timeout
		return nil
	}
}

// WithMaxRetries sets the maximum number of retry attempts
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) error {
		if maxRetries < 0 {
			return fmt.Errorf("max retries must not be negative")
		}
		c.retryPolicy.MaxRetries = maxRetries
		return nil
	}
}

// WithRetryPolicy replaces the whole retry policy
func WithRetryPolicy(policy *RetryPolicy) ClientOption {
	return func(c *Client) error {
		if policy == nil {
			return fmt.Errorf("retry policy must not be nil")
		}
		c.retryPolicy = policy
		return nil
	}
}

// NewClient creates a Conduit client for the given Phabricator URL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("phabricator URL must not be empty")
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		retryPolicy:    DefaultRetryPolicy(),
		circuitBreaker: NewCircuitBreaker(DefaultMaxFailures, DefaultResetTimeout),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// BaseURL returns the Phabricator instance URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// conduitResponse is the envelope every Conduit method answers with
type conduitResponse struct {
	Result    json.RawMessage `json:"result"`
	ErrorCode string          `json:"error_code"`
	ErrorInfo string          `json:"error_info"`
}

// Call invokes a Conduit method. params are serialized to JSON alongside the
// API token and posted form-encoded to <baseURL>/api/<method>. A non-nil
// result receives the unmarshaled "result" field.
func (c *Client) Call(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	if !c.circuitBreaker.Allow() {
		return NewRetryableError("circuit breaker open, refusing request", nil)
	}

	payload := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["__conduit__"] = map[string]string{"token": c.token}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s params: %w", method, err)
	}

	form := url.Values{
		"params":      {string(encoded)},
		"output":      {"json"},
		"__conduit__": {"True"},
	}
	endpoint := c.baseURL + "/api/" + method

	logger.Debug().
		Str("method", method).
		Str("url", endpoint).
		Msg("Calling Conduit API")

	resp, err := RetryWithBackoff(ctx, c.retryPolicy, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("failed to build %s request: %w", method, err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("User-Agent", userAgent)
		return c.httpClient.Do(req)
	})
	if err != nil {
		c.circuitBreaker.RecordFailure()
		return fmt.Errorf("conduit call %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.circuitBreaker.RecordFailure()
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.circuitBreaker.RecordFailure()
		return NewAuthenticationError(fmt.Sprintf("%s returned HTTP %d", method, resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		c.circuitBreaker.RecordFailure()
		return fmt.Errorf("conduit call %s returned HTTP %d", method, resp.StatusCode)
	}

	var envelope conduitResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.circuitBreaker.RecordFailure()
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if envelope.ErrorCode != "" {
		apiErr := &APIError{Code: envelope.ErrorCode, Info: envelope.ErrorInfo}
		if authErrorCodes[envelope.ErrorCode] {
			c.circuitBreaker.RecordFailure()
			return NewAuthenticationError(envelope.ErrorInfo, apiErr)
		}
		c.circuitBreaker.RecordSuccess()
		return apiErr
	}

	c.circuitBreaker.RecordSuccess()

	if result != nil && len(envelope.Result) > 0 && string(envelope.Result) != "null" {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}

	return nil
}

// Ping checks connectivity to the Conduit API
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, "conduit.ping", map[string]interface{}{}, nil)
}

// User describes the owner of the configured API token
type User struct {
	PHID         string `json:"phid"`
	UserName     string `json:"userName"`
	RealName     string `json:"realName"`
	PrimaryEmail string `json:"primaryEmail"`
}

// WhoAmI returns the user the API token belongs to
func (c *Client) WhoAmI(ctx context.Context) (*User, error) {
	var user User
	if err := c.Call(ctx, "user.whoami", map[string]interface{}{}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Package client provides the HTTP client for the StreamQueue service
// API. It covers the two extension endpoints used by replay plus the
// service maintenance operations, and handles authentication and retry
// logic.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/otherjamesbrown/sqr-cli/pkg/harlog"
)

// API endpoint paths.
const (
	AudioPath    = "/api/v1/extension/audio"
	SpeakersPath = "/api/v1/extension/speakers"
)

// Default client settings.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// Options configures the Client behavior.
type Options struct {
	// Timeout is the per-request timeout. Ignored when HTTPClient is set.
	Timeout time.Duration

	// UserToken is the bearer token for extension endpoints.
	UserToken string

	// ServiceToken is the bearer token for service maintenance endpoints.
	ServiceToken string

	// MaxRetries is the maximum number of retry attempts in WithRetry.
	MaxRetries int

	// InitialBackoff is the initial backoff duration for retries.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration for retries.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// DefaultOptions returns Options with default values.
func DefaultOptions() *Options {
	return &Options{
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// Client talks to the StreamQueue service. It satisfies the replay
// Sender contract, so a replay run can dispatch straight through it.
type Client struct {
	baseURL string
	options *Options
	http    *http.Client
}

// NewClient creates a Client for the service at baseURL.
func NewClient(baseURL string, opts *Options) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: baseURL,
		options: opts,
		http:    httpClient,
	}
}

// BaseURL returns the configured service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SendAudio uploads one audio chunk. The query parameters reproduce the
// extension's upload call: meeting id, connection id, chunk index, unix
// timestamp and the live flag.
func (c *Client) SendAudio(ctx context.Context, call *harlog.AudioCall) error {
	params := url.Values{}
	params.Set("meeting_id", call.MeetingID)
	params.Set("connection_id", call.ConnectionID)
	params.Set("i", strconv.Itoa(call.ChunkIndex))
	params.Set("ts", strconv.FormatInt(call.Timestamp.Unix(), 10))
	params.Set("l", "1")

	return c.do(ctx, http.MethodPut, AudioPath, params, call.Body,
		"application/octet-stream", c.options.UserToken)
}

// SendSpeakers uploads one speaker-activity update. The body is
// re-encoded from the parsed states, so a replayed update is always a
// well-formed pair list even when the capture carried extra elements.
func (c *Client) SendSpeakers(ctx context.Context, call *harlog.SpeakersCall) error {
	if len(call.Speakers) == 0 {
		return fmt.Errorf("speakers call for meeting %s has no speaker states", call.MeetingID)
	}

	body, err := harlog.EncodeSpeakerStates(call.Speakers)
	if err != nil {
		return fmt.Errorf("encoding speaker states: %w", err)
	}

	params := url.Values{}
	params.Set("meeting_id", call.MeetingID)
	params.Set("ts", strconv.FormatInt(call.Timestamp.Unix(), 10))
	params.Set("l", "1")
	if call.ConnectionID != "" {
		params.Set("connection_id", call.ConnectionID)
	}
	if call.CallName != "" {
		params.Set("call_name", call.CallName)
	}

	return c.do(ctx, http.MethodPut, SpeakersPath, params, body,
		"application/json", c.options.UserToken)
}

// do issues one authenticated request and checks the response status.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, contentType, token string) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	return checkResponse(resp, method, path)
}

// checkResponse converts non-2xx responses into errors carrying a
// truncated response body.
func checkResponse(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: service returned %s: %s", method, path, resp.Status, snippet)
}

// WithRetry executes the given function with automatic retry on failure.
// Uses exponential backoff between retry attempts.
func (c *Client) WithRetry(ctx context.Context, fn func() error) error {
	backoff := c.options.InitialBackoff
	if backoff <= 0 {
		backoff = DefaultInitialBackoff
	}
	maxRetries := c.options.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := fn(); err != nil {
			lastErr = err

			if attempt == maxRetries {
				break
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("operation cancelled: %w", ctx.Err())
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * c.options.BackoffMultiplier)
			if c.options.MaxBackoff > 0 && backoff > c.options.MaxBackoff {
				backoff = c.options.MaxBackoff
			}

			continue
		}

		return nil
	}

	return fmt.Errorf("operation failed after %d attempts: %w", maxRetries+1, lastErr)
}

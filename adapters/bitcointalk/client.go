// Package bitcointalk fetches and parses bitcointalk.org board and topic pages.
package bitcointalk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/coregx/forumwatch"
)

const (
	// DefaultListingURL is the board watched by default (Altcoin announcements).
	DefaultListingURL = "https://bitcointalk.org/index.php?board=159.0"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default request rate (requests per second).
	DefaultRateLimit = 2

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "forumwatch/1.0"

	// maxPageSize caps a single page body.
	maxPageSize = 8 << 20
)

// Client is a forumwatch.PageFetcher for the forum's HTML pages.
// Bodies are transcoded to UTF-8.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	logger     forumwatch.Logger
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRateLimit sets a custom request rate. Fractional rates are allowed.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithLogger sets a logger.
func WithLogger(logger forumwatch.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		userAgent: DefaultUserAgent,
		limiter:   rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:    &forumwatch.NoopLogger{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch performs a GET request and returns the UTF-8 body.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeFetch, "rate limiter wait aborted", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeFetch, "failed to create request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	c.logger.Debugf("GET %s", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeFetch, "failed to execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageSize))
		return nil, forumwatch.NewError(forumwatch.ErrCodeFetch,
			fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, url))
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageSize), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeFetch, "unsupported response encoding", err)
	}

	page, err := io.ReadAll(body)
	if err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeFetch, "failed to read response", err)
	}
	return page, nil
}

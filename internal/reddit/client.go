// Package reddit implements the Reddit API calls the modmail bot depends on:
// modmail conversations and actions, wiki pages, subreddit membership lists and
// user profiles.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/solatis/modmail/internal/core/auth"
	"github.com/solatis/modmail/internal/telemetry"
)

/*
 * HTTP transport for the Reddit OAuth API.
 *
 * Every call goes through do(), which retries with exponential backoff:
 *   - network errors, 429 and 5xx are retried
 *   - 401 drops the cached token and is retried with a fresh one
 *   - other 4xx and credential errors are permanent
 *   - each attempt gets its own RequestTimeout deadline
 *
 * Responses are requested with raw_json=1 so markdown is not HTML-escaped.
 */

const (
	defaultBaseURL = "https://oauth.reddit.com"
	maxBodyBytes   = 8 << 20
	maxErrorBody   = 512
)

// Authorizer attaches credentials to outgoing requests. Implemented by *auth.TokenSource.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
	Invalidate()
}

// Options configures a Client. Zero values use defaults.
type Options struct {
	BaseURL        string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	MaxRetries     uint
	Logger         *slog.Logger

	// NewBackOff returns the delay policy for one call; tests use zero delays.
	NewBackOff func() backoff.BackOff
}

// Client calls the Reddit API. Safe for concurrent use.
type Client struct {
	baseURL    string
	http       *http.Client
	auth       Authorizer
	timeout    time.Duration
	maxRetries uint
	logger     *slog.Logger
	newBackOff func() backoff.BackOff

	users singleflight.Group
}

// NewClient creates a client authorizing requests with a.
func NewClient(a Authorizer, opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		http:       opts.HTTPClient,
		auth:       a,
		timeout:    opts.RequestTimeout,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
		newBackOff: opts.NewBackOff,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.maxRetries == 0 {
		c.maxRetries = 5
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.newBackOff == nil {
		c.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		}
	}
	return c
}

// call describes one API request. endpoint is a low-cardinality metrics label.
type call struct {
	endpoint string
	method   string
	path     string
	query    url.Values
	form     url.Values
}

// do sends the call with retries and decodes a JSON answer into out when non-nil.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	op := func() (struct{}, error) {
		body, err := c.attempt(ctx, cl)
		if err != nil {
			return struct{}{}, err
		}
		if out == nil || len(body) == 0 {
			return struct{}{}, nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("decode %s response: %w", cl.endpoint, err))
		}
		return struct{}{}, nil
	}

	notify := func(err error, next time.Duration) {
		telemetry.RedditRetries.WithLabelValues(cl.endpoint).Inc()
		c.logger.Debug("retrying reddit request",
			"endpoint", cl.endpoint,
			"error", err,
			"backoff", next)
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxRetries),
		backoff.WithNotify(notify),
	)
	return err
}

// attempt performs a single HTTP exchange and classifies failures for backoff.
func (c *Client) attempt(ctx context.Context, cl call) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if err := c.auth.Authorize(ctx, req); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrMissingCredentials) {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("authorize: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	telemetry.RedditRequestDuration.WithLabelValues(cl.endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.RedditRequests.WithLabelValues(cl.endpoint, cl.method, "error").Inc()
		return nil, fmt.Errorf("reddit %s %s: %w", cl.method, cl.endpoint, err)
	}
	defer resp.Body.Close()
	telemetry.RedditRequests.WithLabelValues(cl.endpoint, cl.method, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", cl.endpoint, err)
	}
	if len(body) > maxBodyBytes {
		return nil, backoff.Permanent(fmt.Errorf("reddit %s %s: %w (limit %d bytes)", cl.method, cl.endpoint, ErrResponseTooLarge, maxBodyBytes))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	serr := &StatusError{
		Method:     cl.method,
		Endpoint:   cl.endpoint,
		StatusCode: resp.StatusCode,
		Body:       truncate(strings.TrimSpace(string(body)), maxErrorBody),
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.auth.Invalidate()
	}
	if serr.Retryable() {
		return nil, serr
	}
	return nil, backoff.Permanent(serr)
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	query := url.Values{}
	for k, v := range cl.query {
		query[k] = v
	}
	query.Set("raw_json", "1")

	u := c.baseURL + cl.path + "?" + query.Encode()

	var body io.Reader
	if cl.form != nil {
		body = strings.NewReader(cl.form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", cl.endpoint, err)
	}
	if cl.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

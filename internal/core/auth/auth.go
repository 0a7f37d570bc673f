// Package auth provides Reddit OAuth password-grant authentication for API requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// refreshMargin is how long before expiry a cached token is renewed.
const refreshMargin = time.Minute

// tokenRequestTimeout bounds a token exchange, which oauth2 runs without the caller's context.
const tokenRequestTimeout = 30 * time.Second

// Credentials identify a Reddit script application and the account it acts as.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

func (c Credentials) complete() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.Username != "" && c.Password != ""
}

// TokenSource fetches and caches bearer tokens.
// Holds one token at a time; safe for concurrent use by every stream worker.
type TokenSource struct {
	creds  Credentials
	grant  *passwordGrant
	mu     sync.Mutex
	cached oauth2.TokenSource
}

// NewTokenSource creates a token source. A nil client uses a client with a
// request timeout.
func NewTokenSource(tokenURL string, creds Credentials, client *http.Client) *TokenSource {
	if client == nil {
		client = &http.Client{Timeout: tokenRequestTimeout}
	}
	ua := *client
	ua.Transport = &userAgentTransport{base: client.Transport, agent: creds.UserAgent}

	grant := &passwordGrant{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		creds: creds,
		ctx:   context.WithValue(context.Background(), oauth2.HTTPClient, &ua),
	}
	return &TokenSource{
		creds:  creds,
		grant:  grant,
		cached: oauth2.ReuseTokenSourceWithExpiry(nil, grant, refreshMargin),
	}
}

// Token returns a valid bearer token, fetching a new one when the cached token
// is missing or within refreshMargin of expiry.
func (s *TokenSource) Token(ctx context.Context) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	src := s.cached
	s.mu.Unlock()
	return src.Token()
}

// Invalidate drops the cached token. Called after the API answers 401.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.cached = oauth2.ReuseTokenSourceWithExpiry(nil, s.grant, refreshMargin)
	s.mu.Unlock()
}

// Authorize sets the bearer token and user agent on req.
func (s *TokenSource) Authorize(ctx context.Context, req *http.Request) error {
	tok, err := s.Token(ctx)
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	req.Header.Set("User-Agent", s.creds.UserAgent)
	return nil
}

// passwordGrant exchanges the account password for a token on every call.
// Caching is left to the oauth2 reuse source wrapping it.
type passwordGrant struct {
	config *oauth2.Config
	creds  Credentials
	ctx    context.Context
}

func (g *passwordGrant) Token() (*oauth2.Token, error) {
	if !g.creds.complete() {
		return nil, ErrMissingCredentials
	}

	tok, err := g.config.PasswordCredentialsToken(g.ctx, g.creds.Username, g.creds.Password)
	if err != nil {
		return nil, classify(err)
	}
	if tok.Expiry.IsZero() {
		return nil, fmt.Errorf("%w: missing expires_in", ErrTokenResponse)
	}
	return tok, nil
}

// classify maps oauth2 failures onto the package sentinels. Reddit reports bad
// passwords as 200 with an error field, which oauth2 surfaces as a RetrieveError.
func classify(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		status := 0
		if rerr.Response != nil {
			status = rerr.Response.StatusCode
		}
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return ErrInvalidCredentials
		case rerr.ErrorCode != "":
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, rerr.ErrorCode)
		default:
			return fmt.Errorf("token endpoint returned %d: %w", status, err)
		}
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("token request: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrTokenResponse, err)
}

// userAgentTransport stamps the token request with the bot's user agent.
// Reddit throttles requests that carry a generic one.
type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.agent == "" {
		return base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return base.RoundTrip(r)
}

// Package github publishes generated test cases as GitHub issues.
package github

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v60/github"
)

// ErrNoToken is returned when a client is created without credentials.
var ErrNoToken = errors.New("github token is required")

// Client wraps the GitHub API client with token authentication.
type Client struct {
	inner *gh.Client
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	baseURL   string
	transport http.RoundTripper
}

// WithBaseURL points the client at a GitHub Enterprise or fake API root.
func WithBaseURL(u string) ClientOption {
	return func(c *clientConfig) { c.baseURL = u }
}

// WithTransport sets the underlying transport; the token is still added.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *clientConfig) { c.transport = rt }
}

// NewClient creates a GitHub API client with the given token.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	cfg := clientConfig{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&cfg)
	}

	httpClient := &http.Client{
		Transport: &tokenTransport{token: token, base: cfg.transport},
	}
	client := gh.NewClient(httpClient)

	if cfg.baseURL != "" {
		base := cfg.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}
	return &Client{inner: client}, nil
}

// tokenTransport adds Bearer token auth to HTTP requests.
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}

// ParseRepo splits an "owner/name" repository reference.
func ParseRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(strings.TrimSpace(repo), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", fmt.Errorf("invalid repo format %q, expected owner/name", repo)
	}
	return parts[0], parts[1], nil
}

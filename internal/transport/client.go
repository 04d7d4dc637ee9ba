package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/internal/session"
	"github.com/angelmondragon/packfinderz-storefront/pkg/logger"
	"github.com/angelmondragon/packfinderz-storefront/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout         = 30 * time.Second
	defaultPrincipalHeader = "X-Customer-Id"
	defaultRefreshPath     = "/auth/refresh"
	responseBodyReadLimit  = 4 << 20

	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// SessionEndedFunc is invoked once per unrecoverable credential failure, after
// the session has been cleared.
type SessionEndedFunc func(ctx context.Context, cause error)

// Client performs backend calls with the stored credentials and recovers
// from access-token expiry by refreshing once and replaying the request.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	store           session.Store
	logg            *logger.Logger
	metrics         *metrics.ClientMetrics
	principalHeader string
	userAgent       string
	refreshPath     string
	timeout         time.Duration
	onSessionEnded  SessionEndedFunc

	refreshes singleflight.Group
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-attempt timeout. A client passed through
// WithHTTPClient is copied rather than modified.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithPrincipalHeader names the header that carries the principal id.
func WithPrincipalHeader(name string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			c.principalHeader = trimmed
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(ua)
	}
}

// WithRefreshPath overrides the token refresh endpoint.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			c.refreshPath = trimmed
		}
	}
}

// WithSessionEndedHandler registers the signal raised when the session ends.
func WithSessionEndedHandler(fn SessionEndedFunc) Option {
	return func(c *Client) {
		c.onSessionEnded = fn
	}
}

// New builds a client for the backend rooted at baseURL.
func New(baseURL string, store session.Store, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url must be absolute")
	}
	if store == nil {
		return nil, fmt.Errorf("session store required")
	}

	client := &Client{
		httpClient:      &http.Client{Timeout: defaultTimeout},
		baseURL:         strings.TrimRight(parsed.String(), "/"),
		store:           store,
		logg:            logger.Nop(),
		principalHeader: defaultPrincipalHeader,
		refreshPath:     defaultRefreshPath,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.timeout > 0 {
		httpClient := *client.httpClient
		httpClient.Timeout = client.timeout
		client.httpClient = &httpClient
	}
	return client, nil
}

// Store exposes the session store the client reads credentials from.
func (c *Client) Store() session.Store {
	return c.store
}

// PrincipalHeader is the header name that carries the principal id.
func (c *Client) PrincipalHeader() string {
	return c.principalHeader
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

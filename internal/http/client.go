// Package http provides the pooled HTTP client and request helpers shared
// by the provider clients.
package http

import (
	"net/http"
	"time"
)

// ClientConfig configures the HTTP client used to reach a provider.
type ClientConfig struct {
	Timeout   time.Duration `json:"timeout,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`

	// Transport configuration
	MaxIdleConns          int           `json:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `json:"max_idle_conns_per_host,omitempty"`
	MaxConnsPerHost       int           `json:"max_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `json:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `json:"expect_continue_timeout,omitempty"`
}

// DefaultUserAgent is sent when ClientConfig.UserAgent is empty.
const DefaultUserAgent = "blueprint-core/1.0"

func (c *ClientConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	if c.MaxIdleConnsPerHost == 0 {
		c.MaxIdleConnsPerHost = 10
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	if c.TLSHandshakeTimeout == 0 {
		c.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.ExpectContinueTimeout == 0 {
		c.ExpectContinueTimeout = 1 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// NewClient creates an *http.Client with connection pooling. It performs no
// retries: retry and fallback decisions belong to the dispatcher.
func NewClient(config ClientConfig) *http.Client {
	config.applyDefaults()
	return &http.Client{
		Timeout: config.Timeout,
		Transport: &userAgentTransport{
			userAgent: config.UserAgent,
			base:      createTransport(config),
		},
	}
}

// createTransport creates an http.Transport with the specified configuration
func createTransport(config ClientConfig) *http.Transport {
	return &http.Transport{
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: config.ExpectContinueTimeout,
		ForceAttemptHTTP2:     true,
		Proxy:                 http.ProxyFromEnvironment,
	}
}

// userAgentTransport sets the User-Agent header on every request that
// does not carry one.
type userAgentTransport struct {
	userAgent string
	base      http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

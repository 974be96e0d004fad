// Package http builds the outbound HTTP clients used for settlement
// providers and merchant webhooks.
package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// Profile sizes the connection pool and transport timeouts of one client
type Profile struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	DisableCompression bool
}

// ProviderProfile is tuned for a handful of provider hosts, each seeing
// every worker at once. Bank rails can hold a response for a long time.
func ProviderProfile() Profile {
	return Profile{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 25,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,

		DialTimeout:           10 * time.Second,
		KeepAlive:             60 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,

		// Hex envelopes barely compress
		DisableCompression: true,
	}
}

// WebhookProfile is tuned for many merchant hosts with a few connections
// each
func WebhookProfile() Profile {
	return Profile{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     5,
		IdleConnTimeout:     30 * time.Second,

		DialTimeout:           5 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
}

// NewClient returns a client for p with an overall per-request timeout.
// Redirects are not followed: a provider or merchant answering with one is
// treated as a failed call.
func NewClient(p Profile, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   p.DialTimeout,
		KeepAlive: p.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        p.MaxIdleConns,
		MaxIdleConnsPerHost: p.MaxIdleConnsPerHost,
		MaxConnsPerHost:     p.MaxConnsPerHost,
		IdleConnTimeout:     p.IdleConnTimeout,

		TLSHandshakeTimeout:   p.TLSHandshakeTimeout,
		ResponseHeaderTimeout: p.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,

		DisableCompression: p.DisableCompression,
		TLSClientConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:  true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

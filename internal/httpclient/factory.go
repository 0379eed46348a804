// Package httpclient builds the HTTP clients used by probe workers.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientConfig configures a probe client. Each worker owns one client for
// its lifetime so connection pools are reused, never shared across workers.
type ClientConfig struct {
	Timeout         time.Duration
	VerifyTLS       bool
	FollowRedirects bool
	MaxRedirects    int
}

// DefaultConfig returns the probe defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Timeout:         10 * time.Second,
		VerifyTLS:       true,
		FollowRedirects: true,
		MaxRedirects:    5,
	}
}

// New creates an HTTP client with timeout enforcement, a pooled transport,
// and the configured redirect policy. TLS verification is controlled only
// by the VerifyTLS option.
func New(config ClientConfig) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !config.VerifyTLS,
		},
	}

	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	if !config.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if config.MaxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", config.MaxRedirects)
			}
			return nil
		}
	}

	return client
}

// NewDiscoveryClient creates the client used for endpoint discovery fetches
// (spec documents, docs pages). Discovery follows redirects generously.
func NewDiscoveryClient(timeout time.Duration, verifyTLS bool) *http.Client {
	return New(ClientConfig{
		Timeout:         timeout,
		VerifyTLS:       verifyTLS,
		FollowRedirects: true,
		MaxRedirects:    10,
	})
}

// CloseBody drains and closes a response body. Unread bodies prevent
// HTTP/1.1 connection reuse and leak pool slots.
func CloseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

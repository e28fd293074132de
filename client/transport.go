package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/panyam/docauth"
)

// ProxyTransport is an http.RoundTripper that sends every request through an
// AccessProxy. Each attempt carries the current credential as a bearer token;
// 401 and 403 responses are treated as a rejected credential and retried.
type ProxyTransport struct {
	Base  http.RoundTripper
	Proxy *AccessProxy
}

// NewProxyTransport creates a ProxyTransport over http.DefaultTransport
func NewProxyTransport(proxy *AccessProxy) *ProxyTransport {
	return &ProxyTransport{Base: http.DefaultTransport, Proxy: proxy}
}

// RoundTrip implements http.RoundTripper
func (t *ProxyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// The body is replayed on every attempt
	getBody := req.GetBody
	if req.Body != nil && req.Body != http.NoBody && getBody == nil {
		data, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		getBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}

	return Call(req.Context(), t.Proxy, func(ctx context.Context, token string) (*http.Response, error) {
		// Clone the request to avoid mutating the original
		attempt := req.Clone(ctx)
		if getBody != nil {
			body, err := getBody()
			if err != nil {
				return nil, err
			}
			attempt.Body = body
		}
		attempt.Header.Set("Authorization", "Bearer "+token)

		resp, err := base.RoundTrip(attempt)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &docauth.StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return resp, nil
	})
}

// NewHTTPClient returns an http.Client whose requests all go through proxy
func NewHTTPClient(proxy *AccessProxy) *http.Client {
	return &http.Client{Transport: NewProxyTransport(proxy)}
}

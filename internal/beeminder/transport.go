package beeminder

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"golang.org/x/net/http2"
)

// NewHTTPClient builds the default client: TLS 1.2+, HTTP/2 negotiated via
// ALPN, and the per-request timeout as a hard ceiling.
func NewHTTPClient() (*http.Client, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("default transport is %T, not *http.Transport", http.DefaultTransport)
	}
	transport := base.Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if _, err := http2.ConfigureTransports(transport); err != nil {
		return nil, fmt.Errorf("configure http2 transport: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   RequestTimeout,
	}, nil
}

package app

import (
	"context"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns the client shared by all outbound calls.
// With forceIPv4 every connection is dialled over tcp4.
func NewHTTPClient(timeout time.Duration, forceIPv4 bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32

	if forceIPv4 {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if network == "tcp" || network == "tcp6" {
				network = "tcp4"
			}
			return dialer.DialContext(ctx, network, addr)
		}
	}

	return &http.Client{Timeout: timeout, Transport: transport}
}

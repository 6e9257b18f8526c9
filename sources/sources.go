// Package sources implements IP-echo endpoints. Each endpoint returns the
// address it saw the request come from as an unvalidated candidate string.
package sources

import (
	"context"
	"ddnsguard/config"
	"time"
)

const DefaultTimeout = 10 * time.Second

type Interface interface {
	// Lookup returns the raw candidate reported by the endpoint.
	Lookup(ctx context.Context) (string, error)
	Typename() string
	String() string
}

type factory func(ctx context.Context, endpoint config.Endpoint, timeout time.Duration) (Interface, error)

var Sources = map[string]factory{
	"http":     newHTTP,
	"cf_trace": newCloudflareTrace,
	"dns":      newDNS,
}

// DefaultEndpoints are independent plain-text echo services, tried in order.
var DefaultEndpoints = []config.Endpoint{
	{Type: "http", Source: "https://api.ipify.org"},
	{Type: "http", Source: "https://ifconfig.me/ip"},
	{Type: "http", Source: "https://icanhazip.com"},
	{Type: "http", Source: "https://checkmyip.app/"},
}

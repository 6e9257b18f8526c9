package sources

import (
	"context"
	"ddnsguard/common"
	"ddnsguard/log"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"

	"go.uber.org/zap"
)

type transportDialer func(ctx context.Context, network, addr string) (net.Conn, error)

// ipv4Only pins "tcp" dials to "tcp4" so dual-stack echo services report the
// IPv4 address.
func ipv4Only(upstream transportDialer) transportDialer {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if network == "tcp" {
			network += "4"
		}

		return upstream(ctx, network, addr)
	}
}

func wrapClientDialer(ctx context.Context, client *http.Client, wrapperBuilder func(upstream transportDialer) transportDialer) (*http.Client, error) {
	if client == nil {
		client = http.DefaultClient
	}

	transport := http.DefaultTransport.(*http.Transport)
	if client.Transport != nil {
		t, ok := client.Transport.(*http.Transport)
		if !ok {
			log.S(ctx).Errorw("found unknown custom http.Client.Transport",
				"transport_type", reflect.TypeOf(client.Transport).String())
			return nil, fmt.Errorf("unknown custom http.Client.Transport")
		}

		transport = t
	}

	transport = transport.Clone()
	if transport.DialContext == nil {
		transport.DialContext = (&net.Dialer{}).DialContext
	}
	transport.DialContext = wrapperBuilder(transport.DialContext)

	if transport.DialTLSContext != nil {
		transport.DialTLSContext = wrapperBuilder(transport.DialTLSContext)
	}

	clientCopy := *client
	clientCopy.Transport = transport
	return &clientCopy, nil
}

// get issues a GET to url and returns at most limit bytes of a 2xx body.
func get(ctx context.Context, url string, limit int64) ([]byte, error) {
	client, err := wrapClientDialer(ctx, common.HttpClient(ctx), ipv4Only)
	if err != nil {
		return nil, err
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.S(ctx).Errorw("new request failed", zap.Error(err))
		return nil, fmt.Errorf("new request failed: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		log.S(ctx).Warnw("connection failed", zap.Error(err))
		return nil, fmt.Errorf(`connection failed: %w`, err)
	}

	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.S(ctx).Warnw("close body failed", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.S(ctx).Warnw("unexpected status", "status", resp.StatusCode)
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		log.S(ctx).Warnw("receiving response failed", zap.Error(err))
		return nil, fmt.Errorf(`failed receiving response: %w`, err)
	}

	return data, nil
}

const userAgent = "ddnsguard"

// StatusError reports a non-2xx response from an endpoint.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return "unexpected status " + e.Status
}

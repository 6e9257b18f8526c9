package common

import (
	"context"
	"net/http"
)

type contextKey int

const (
	// HttpClientKey carries an *http.Client used for every outgoing request.
	HttpClientKey contextKey = iota
)

func WithHttpClient(ctx context.Context, client *http.Client) context.Context {
	return context.WithValue(ctx, HttpClientKey, client)
}

// HttpClient returns the client stored in ctx, or http.DefaultClient.
func HttpClient(ctx context.Context) *http.Client {
	if c, ok := ctx.Value(HttpClientKey).(*http.Client); ok && c != nil {
		return c
	}
	return http.DefaultClient
}

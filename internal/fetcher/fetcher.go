// Package fetcher downloads plan source payloads with per-host rate limiting.
package fetcher

import (
	"context"
	"net/http"
)

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Fetcher retrieves remote payloads. Non-2xx responses are returned, not
// treated as errors, so callers can inspect blocked or throttled replies.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

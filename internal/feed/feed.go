// Package feed implements pull-style position sources: a JSON endpoint
// returning the full driver list and a GTFS-realtime VehiclePositions
// feed.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fastfare/fleetlive/internal/logging"
)

// maxBody caps a single pull response.
const maxBody = 32 << 20

// Options configures the HTTP side of a fetcher.
type Options struct {
	// Headers are added to every request, e.g. an API key header.
	Headers map[string]string

	// Client is the HTTP client to use. Default: a client with a 15s timeout.
	Client *http.Client
}

// AuthHeaders returns a header map with key: value, or nil if either is
// empty.
func AuthHeaders(key, value string) map[string]string {
	if key == "" || value == "" {
		return nil
	}
	return map[string]string{key: value}
}

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

type getter struct {
	url     string
	headers map[string]string
	client  *http.Client
	logger  *slog.Logger
}

func newGetter(url string, opts Options, component string) getter {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return getter{
		url:     url,
		headers: opts.Headers,
		client:  client,
		logger:  slog.Default().With("component", component),
	}
}

func (g getter) get(ctx context.Context, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for key, value := range g.headers {
		req.Header.Add(key, value)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", g.url, err)
	}
	defer logging.SafeClose(resp.Body, g.logger, "http_response_body")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: g.url, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", g.url, err)
	}
	return b, nil
}

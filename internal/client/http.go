package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fastfare/fleetlive/internal/model"
	"github.com/fastfare/fleetlive/internal/presence"
	"github.com/fastfare/fleetlive/internal/snapshot"
)

// HTTPClient implements FleetClient using the fleet HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ FleetClient = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Reads ---

func (c *HTTPClient) Drivers(ctx context.Context, liveOnly bool) (*snapshot.Snapshot, error) {
	path := "/v1/drivers"
	if liveOnly {
		path += "?live=true"
	}
	var snap snapshot.Snapshot
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *HTTPClient) Driver(ctx context.Context, id string) (*model.DriverState, error) {
	var d model.DriverState
	err := c.doJSON(ctx, http.MethodGet, "/v1/drivers/"+url.PathEscape(id), nil, &d)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("driver %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) Status(ctx context.Context) (*model.StatusReport, error) {
	var rep model.StatusReport
	if err := c.doJSON(ctx, http.MethodGet, "/v1/status", nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Watchers lists the sessions currently streaming snapshots.
func (c *HTTPClient) Watchers(ctx context.Context) ([]presence.Entry, error) {
	var resp struct {
		Watchers []presence.Entry `json:"watchers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/watchers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Watchers, nil
}

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp map[string]string
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp["status"], nil
}

// --- Ingestion ---

// PostPosition submits one live position update.
func (c *HTTPClient) PostPosition(ctx context.Context, ev model.RawPositionEvent) (*model.DriverState, error) {
	var d model.DriverState
	if err := c.doJSON(ctx, http.MethodPost, "/v1/positions", ev, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PostBatch submits a batch that is applied with a single snapshot.
func (c *HTTPClient) PostBatch(ctx context.Context, evs []model.RawPositionEvent) (*BatchResult, error) {
	return c.postBatch(ctx, "/v1/positions/batch", evs)
}

// Resync replaces the server's registry with evs.
func (c *HTTPClient) Resync(ctx context.Context, evs []model.RawPositionEvent) (*BatchResult, error) {
	return c.postBatch(ctx, "/v1/positions/resync", evs)
}

func (c *HTTPClient) postBatch(ctx context.Context, path string, evs []model.RawPositionEvent) (*BatchResult, error) {
	if evs == nil {
		evs = []model.RawPositionEvent{}
	}
	var res BatchResult
	if err := c.doJSON(ctx, http.MethodPost, path, evs, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Streaming ---

// Watch reads the SSE stream at /v1/drivers/stream.
func (c *HTTPClient) Watch(ctx context.Context, fn func(snapshot.Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/drivers/stream", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		case line == "":
			if event != "" && data != "" {
				ev, err := decodeSSE(event, data)
				if err != nil {
					return err
				}
				if err := fn(ev); err != nil {
					return err
				}
			}
			event, data = "", ""
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return ctx.Err()
}

func decodeSSE(event, data string) (snapshot.Event, error) {
	switch event {
	case snapshot.EventSnapshot:
		var snap snapshot.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			return snapshot.Event{}, fmt.Errorf("decoding snapshot event: %w", err)
		}
		return snapshot.SnapshotEvent(&snap), nil
	case snapshot.EventStatus:
		var body struct {
			Status model.ConnStatus `json:"status"`
		}
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return snapshot.Event{}, fmt.Errorf("decoding status event: %w", err)
		}
		return snapshot.StatusEvent(body.Status), nil
	}
	return snapshot.Event{Type: event}, nil
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
}

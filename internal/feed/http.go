package feed

import (
	"context"
	"fmt"

	"github.com/fastfare/fleetlive/internal/model"
)

// HTTPFetcher pulls the full driver list from a JSON endpoint. The body
// may be an array of position events or an object wrapping one under
// "drivers" or "positions".
type HTTPFetcher struct {
	g getter
}

// NewHTTPFetcher creates a fetcher for url.
func NewHTTPFetcher(url string, opts Options) *HTTPFetcher {
	return &HTTPFetcher{g: newGetter(url, opts, "feed_http")}
}

// Fetch implements pipeline.Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]model.RawPositionEvent, error) {
	b, err := f.g.get(ctx, "application/json")
	if err != nil {
		return nil, err
	}
	evs, bad, err := model.DecodeBatch(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.g.url, err)
	}
	if bad > 0 {
		f.g.logger.Warn("skipped undecodable drivers", "url", f.g.url, "count", bad)
	}
	return evs, nil
}

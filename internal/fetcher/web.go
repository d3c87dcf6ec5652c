package fetcher

import (
	"context"
	"fmt"
	"time"

	"briefd/internal/model"
	"briefd/internal/urlutil"
)

// WebFetcher serves scheduled WEB sources: a single page fetched on the
// refresh interval. The guid is the normalized URL, so the page becomes one
// item on first fetch and dedups on every later cycle.
type WebFetcher struct {
	extractor *WebExtractor
}

func NewWebFetcher(extractor *WebExtractor) *WebFetcher {
	return &WebFetcher{extractor: extractor}
}

func (f *WebFetcher) Type() model.SourceType {
	return model.SourceTypeWeb
}

func (f *WebFetcher) Fetch(ctx context.Context, src *model.Source, since time.Time) (*FetchResult, error) {
	text := f.extractor.Extract(ctx, src.URL)
	if text == "" {
		// Extraction degrades silently but a scheduled page source should
		// surface the miss so the next cycle retries.
		return nil, fmt.Errorf("no content extracted from %s", src.URL)
	}

	title := src.Name
	if title == "" {
		title = src.URL
	}

	return &FetchResult{
		Items: []FetchedItem{{
			GUID:         urlutil.Normalize(src.URL),
			Title:        title,
			Link:         src.URL,
			PublishedAt:  time.Now().UTC(),
			RawContent:   text,
			CleanContent: text,
		}},
	}, nil
}

// Validate runs the SSRF guard; a rejected address is a permanent failure.
func (f *WebFetcher) Validate(ctx context.Context, identifier string) error {
	if err := CheckURL(identifier); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	return nil
}

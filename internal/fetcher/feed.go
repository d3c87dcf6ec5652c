package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"briefd/internal/model"
	"briefd/internal/urlutil"
)

// FeedFetcher retrieves RSS 2.0 and Atom feeds with conditional GET support.
type FeedFetcher struct {
	client *http.Client
	parser *gofeed.Parser
	logger *zap.Logger
}

func NewFeedFetcher(timeout time.Duration, logger *zap.Logger) *FeedFetcher {
	return &FeedFetcher{
		client: &http.Client{Timeout: timeout},
		parser: gofeed.NewParser(),
		logger: logger,
	}
}

func (f *FeedFetcher) Type() model.SourceType {
	return model.SourceTypeFeed
}

// Fetch downloads and parses the feed. The source's etag/last-modified cache
// is sent as conditional headers; a 304 yields an empty, NotModified result
// with the cache intact.
func (f *FeedFetcher) Fetch(ctx context.Context, src *model.Source, since time.Time) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad feed url %q: %v", ErrInvalidSource, src.URL, err)
	}
	req.Header.Set("User-Agent", "briefd-feed/1.0")
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed fetch %s: %w", src.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{
			NotModified:  true,
			ETag:         src.ETag,
			LastModified: src.LastModified,
		}, nil
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("%w: feed returned %d", ErrInvalidSource, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed fetch %s: unexpected status %d", src.URL, resp.StatusCode)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed parse %s: %w", src.URL, err)
	}

	fetchedAt := time.Now()
	result := &FetchResult{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}

	for _, entry := range feed.Items {
		// Tolerant date handling: a malformed or missing publication date
		// falls back to the fetch time instead of failing the item.
		published := fetchedAt
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		if !since.IsZero() && published.Before(since) {
			continue
		}

		guid := entry.GUID
		if guid == "" {
			guid = entry.Link
		}
		if guid == "" {
			f.logger.Warn("Skipping feed entry without guid or link",
				zap.String("feed", src.URL),
				zap.String("title", entry.Title),
			)
			continue
		}

		raw := entry.Content
		if raw == "" {
			raw = entry.Description
		}

		author := ""
		if entry.Author != nil {
			author = entry.Author.Name
		}

		result.Items = append(result.Items, FetchedItem{
			GUID:         guid,
			Title:        HTMLToText(entry.Title),
			Link:         urlutil.ResolveRelative(src.URL, entry.Link),
			Author:       author,
			PublishedAt:  published,
			RawContent:   raw,
			CleanContent: HTMLToText(raw),
		})
	}

	return result, nil
}

// Validate checks the identifier parses as an http(s) URL and that it serves
// a parseable feed.
func (f *FeedFetcher) Validate(ctx context.Context, identifier string) error {
	u, err := url.Parse(identifier)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: not an http(s) url: %q", ErrInvalidSource, identifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, identifier, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	req.Header.Set("User-Agent", "briefd-feed/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("feed validate %s: %w", identifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: feed returned %d", ErrInvalidSource, resp.StatusCode)
	}
	if _, err := f.parser.Parse(resp.Body); err != nil {
		return fmt.Errorf("%w: not a parseable feed: %v", ErrInvalidSource, err)
	}
	return nil
}

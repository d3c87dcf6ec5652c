package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"briefd/internal/model"
)

// ErrInvalidSource marks a permanent validation failure: the source can never
// be fetched as configured and should be surfaced to its owner, not retried.
var ErrInvalidSource = errors.New("source is permanently invalid")

// FetchedItem is the common item shape every fetcher normalizes into.
type FetchedItem struct {
	GUID         string
	Title        string
	Link         string
	Author       string
	PublishedAt  time.Time
	RawContent   string
	CleanContent string
}

// FetchResult carries the normalized items plus the conditional-fetch cache
// for the next cycle.
type FetchResult struct {
	Items        []FetchedItem
	ETag         string
	LastModified string
	NotModified  bool
}

// Fetcher retrieves and normalizes content for one source type.
type Fetcher interface {
	Type() model.SourceType
	Fetch(ctx context.Context, src *model.Source, since time.Time) (*FetchResult, error)
	Validate(ctx context.Context, identifier string) error
}

// Registry dispatches fetchers by source type. EMAIL has no fetcher: email
// sources are passive and never scheduler-queued.
type Registry struct {
	fetchers map[model.SourceType]Fetcher
}

func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[model.SourceType]Fetcher)}
	for _, f := range fetchers {
		r.fetchers[f.Type()] = f
	}
	return r
}

func (r *Registry) Register(f Fetcher) {
	r.fetchers[f.Type()] = f
}

func (r *Registry) Get(t model.SourceType) (Fetcher, error) {
	f, ok := r.fetchers[t]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for source type %s", t)
	}
	return f, nil
}

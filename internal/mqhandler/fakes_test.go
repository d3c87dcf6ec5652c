package mqhandler

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"briefd/internal/fetcher"
	"briefd/internal/model"
	"briefd/internal/service"
)

type fakeSourceStore struct {
	sources map[string]*model.Source

	markFetchingOK  bool
	finishedSuccess bool
	finishedETag    string
	transientMsg    string
	invalidMsg      string
}

func newFakeSourceStore(srcs ...*model.Source) *fakeSourceStore {
	f := &fakeSourceStore{sources: map[string]*model.Source{}, markFetchingOK: true}
	for _, s := range srcs {
		f.sources[s.ID] = s
	}
	return f
}

func (f *fakeSourceStore) FindByID(_ context.Context, id string) (*model.Source, error) {
	s, ok := f.sources[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s, nil
}

func (f *fakeSourceStore) MarkFetching(_ context.Context, id string, _ time.Time) (bool, error) {
	return f.markFetchingOK, nil
}

func (f *fakeSourceStore) FinishFetchSuccess(_ context.Context, id, etag, lastModified string, _ time.Time) error {
	f.finishedSuccess = true
	f.finishedETag = etag
	return nil
}

func (f *fakeSourceStore) FinishFetchTransient(_ context.Context, id, errMsg string) error {
	f.transientMsg = errMsg
	return nil
}

func (f *fakeSourceStore) FinishFetchInvalid(_ context.Context, id, errMsg string) error {
	f.invalidMsg = errMsg
	if s, ok := f.sources[id]; ok {
		s.Status = model.SourceStatusError
	}
	return nil
}

type fakeItemStore struct {
	items     map[string]*model.Item
	seenGuids map[string]bool

	claimOK    bool
	inserted   []*model.Item
	done       []*model.Item
	pending    map[string]string
	errored    map[string]string
	webContent map[string]string

	topItems []model.Item
	topSince time.Time
}

func newFakeItemStore(items ...*model.Item) *fakeItemStore {
	f := &fakeItemStore{
		items:      map[string]*model.Item{},
		seenGuids:  map[string]bool{},
		claimOK:    true,
		pending:    map[string]string{},
		errored:    map[string]string{},
		webContent: map[string]string{},
	}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeItemStore) Insert(_ context.Context, it *model.Item) (bool, error) {
	key := it.SourceID + "|" + it.GUID
	if f.seenGuids[key] {
		return false, nil
	}
	f.seenGuids[key] = true
	f.items[it.ID] = it
	f.inserted = append(f.inserted, it)
	return true, nil
}

func (f *fakeItemStore) FindByID(_ context.Context, id string) (*model.Item, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return it, nil
}

func (f *fakeItemStore) Claim(_ context.Context, id string) (bool, error) {
	return f.claimOK, nil
}

func (f *fakeItemStore) SetWebContent(_ context.Context, id, content string) error {
	f.webContent[id] = content
	return nil
}

func (f *fakeItemStore) MarkDone(_ context.Context, it *model.Item) error {
	f.done = append(f.done, it)
	it.Status = model.ItemStatusDone
	return nil
}

func (f *fakeItemStore) MarkPending(_ context.Context, id, errMsg string) error {
	f.pending[id] = errMsg
	return nil
}

func (f *fakeItemStore) MarkError(_ context.Context, id, errMsg string) error {
	f.errored[id] = errMsg
	return nil
}

func (f *fakeItemStore) ListTopForReport(_ context.Context, briefID string, since time.Time, limit int) ([]model.Item, error) {
	f.topSince = since
	if len(f.topItems) > limit {
		return f.topItems[:limit], nil
	}
	return f.topItems, nil
}

type fakeBriefStore struct {
	briefs   map[string]*model.Brief
	finished []string
}

func newFakeBriefStore(briefs ...*model.Brief) *fakeBriefStore {
	f := &fakeBriefStore{briefs: map[string]*model.Brief{}}
	for _, b := range briefs {
		f.briefs[b.ID] = b
	}
	return f
}

func (f *fakeBriefStore) FindByID(_ context.Context, id string) (*model.Brief, error) {
	b, ok := f.briefs[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return b, nil
}

func (f *fakeBriefStore) FinishExecution(_ context.Context, id string, executedAt time.Time) error {
	f.finished = append(f.finished, id)
	if b, ok := f.briefs[id]; ok {
		b.Status = model.BriefStatusActive
		at := executedAt
		b.LastExecutedAt = &at
	}
	return nil
}

type fakeReportStore struct {
	created  []*model.Report
	err      error
	failures int
	calls    int
}

func (f *fakeReportStore) CreateWithItems(_ context.Context, rep *model.Report) error {
	f.calls++
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return f.err
	}
	f.created = append(f.created, rep)
	return nil
}

// fakeDeduper mirrors the Redis SETNX guard: the first acquire for a key
// wins and every later one loses until the key is released.
type fakeDeduper struct {
	held     map[string]bool
	acquires int
	releases int
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{held: map[string]bool{}}
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, handler, entityID string) bool {
	f.acquires++
	key := handler + ":" + entityID
	if f.held[key] {
		return false
	}
	f.held[key] = true
	return true
}

func (f *fakeDeduper) Release(_ context.Context, handler, entityID string) {
	f.releases++
	delete(f.held, handler+":"+entityID)
}

type fakePublisher struct {
	published []any
	err       error
}

func (f *fakePublisher) Publish(routingKey string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, payload)
	return nil
}

type fakeRetryTracker struct {
	counts map[string]int64
	resets []string
}

func newFakeRetryTracker() *fakeRetryTracker {
	return &fakeRetryTracker{counts: map[string]int64{}}
}

func (f *fakeRetryTracker) IncrementAndGet(_ context.Context, key string) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRetryTracker) Reset(_ context.Context, key string) error {
	f.resets = append(f.resets, key)
	delete(f.counts, key)
	return nil
}

type fakeEnricher struct {
	result   *service.EnrichResult
	err      error
	failures int
	calls    int
}

func (f *fakeEnricher) EnrichWithScore(_ context.Context, req service.EnrichRequest) (*service.EnrichResult, error) {
	f.calls++
	if f.err != nil && (f.failures == 0 || f.calls <= f.failures) {
		return nil, f.err
	}
	return f.result, nil
}

type fakeContentExtractor struct {
	text  string
	calls int
}

func (f *fakeContentExtractor) Extract(_ context.Context, pageURL string) string {
	f.calls++
	return f.text
}

type stubFetcher struct {
	sourceType model.SourceType
	result     *fetcher.FetchResult
	err        error
}

func (s *stubFetcher) Type() model.SourceType { return s.sourceType }

func (s *stubFetcher) Fetch(_ context.Context, _ *model.Source, _ time.Time) (*fetcher.FetchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubFetcher) Validate(_ context.Context, _ string) error { return nil }

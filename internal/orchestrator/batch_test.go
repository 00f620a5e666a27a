package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listingwatch/internal/scraper"
	"github.com/JakeFAU/listingwatch/internal/storage/memory"
)

// scriptedFetcher returns a fixed page per URL and runs onFetch before
// answering.
type scriptedFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fail    map[string]bool
	calls   []string
	onFetch func(url string)
}

func (f *scriptedFetcher) Fetch(_ context.Context, url string, _ bool) (*scraper.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(url)
	}
	if f.fail[url] {
		return nil, &scraper.FetchError{URL: url, Reason: "http", Err: errors.New("status 500")}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.pages[url]))
	if err != nil {
		return nil, err
	}
	return &scraper.Page{URL: url, StatusCode: 200, Doc: doc}, nil
}

func (f *scriptedFetcher) DiscoverListingURL(context.Context, string, []string) (string, error) {
	return "", scraper.ErrNoListingPage
}

func (f *scriptedFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// countingExtractor emits one record per page with a URL unique to the page.
type countingExtractor struct{}

func (countingExtractor) Extract(_ *goquery.Document, source, pageURL string) []scraper.Record {
	return []scraper.Record{{
		SourceName:   source,
		Title:        "Wissenschaftliche Mitarbeiterin",
		CanonicalURL: pageURL + "#posting",
		Category:     scraper.CategoryResearch,
		Active:       true,
	}}
}

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, _ <-chan struct{}, d time.Duration) {
	p.mu.Lock()
	p.delays = append(p.delays, d)
	p.mu.Unlock()
}

func testSources(n int) []scraper.Source {
	out := make([]scraper.Source, n)
	for i := range out {
		name := string(rune('a' + i))
		out[i] = scraper.Source{Name: name, ListingURL: "https://" + name + ".example.org/jobs"}
	}
	return out
}

func newScripted(sources []scraper.Source) *scriptedFetcher {
	f := &scriptedFetcher{pages: map[string]string{}, fail: map[string]bool{}}
	for _, s := range sources {
		f.pages[s.ListingURL] = "<main><p>" + s.Name + "</p></main>"
	}
	return f
}

func TestRunBatchCountsAndOrder(t *testing.T) {
	t.Parallel()

	sources := testSources(3)
	f := newScripted(sources)
	f.fail[sources[1].ListingURL] = true
	store := memory.NewStore(nil)
	orch := New(f, countingExtractor{}, store, nil, Config{Delay: 1500 * time.Millisecond}, nil)
	pause := &recordingPauser{}
	orch.pauser = pause

	summary := orch.RunBatch(context.Background(), sources, false, NewRunState("b1", false))
	assert.Equal(t, "b1", summary.ID)
	assert.False(t, summary.Running)
	assert.Equal(t, 3, summary.Progress)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Changed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.NewRecords)
	assert.NotNil(t, summary.FinishedAt)
	assert.Equal(t, []string{sources[0].ListingURL, sources[1].ListingURL, sources[2].ListingURL}, f.fetched())
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, pause.delays)

	// Same content again: every healthy source is unchanged.
	summary = orch.RunBatch(context.Background(), sources, false, nil)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.NewRecords)

	// Force re-extracts but dedup keeps the store unchanged.
	summary = orch.RunBatch(context.Background(), sources, true, nil)
	assert.Equal(t, 2, summary.Changed)
	assert.Zero(t, summary.NewRecords)
}

func TestRunBatchCancelAfterK(t *testing.T) {
	t.Parallel()

	const k = 2
	sources := testSources(5)
	f := newScripted(sources)
	state := NewRunState("cancel", false)
	f.onFetch = func(url string) {
		if url == sources[k-1].ListingURL {
			state.Cancel()
		}
	}
	orch := New(f, countingExtractor{}, memory.NewStore(nil), nil, Config{}, nil)

	summary := orch.RunBatch(context.Background(), sources, false, state)
	assert.Equal(t, k, summary.Progress)
	assert.Equal(t, 5, summary.Total)
	assert.True(t, summary.Canceled)
	assert.Len(t, f.fetched(), k)
}

func TestRunBatchContextCanceledStopsBeforeNext(t *testing.T) {
	t.Parallel()

	sources := testSources(3)
	f := newScripted(sources)
	ctx, cancel := context.WithCancel(context.Background())
	f.onFetch = func(string) { cancel() }
	store := memory.NewStore(nil)
	orch := New(f, countingExtractor{}, store, nil, Config{}, nil)

	summary := orch.RunBatch(ctx, sources, false, nil)
	assert.Equal(t, 1, summary.Progress)
	assert.True(t, summary.Canceled)

	// The in-flight source still completed and was audited.
	audits, err := store.RecentAudit(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, scraper.AuditSuccess, audits[0].Status)
}

func TestTimerPauserInterrupted(t *testing.T) {
	t.Parallel()

	stop := make(chan struct{})
	close(stop)
	start := time.Now()
	timerPauser{}.Pause(context.Background(), stop, time.Minute)
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	timerPauser{}.Pause(ctx, make(chan struct{}), time.Minute)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunStateSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	s := NewRunState("x", true)
	s.begin(2, time.Unix(0, 0).UTC())
	s.record(Outcome{Status: scraper.AuditSuccess, RecordsFound: 3})
	final := s.finish(time.Unix(10, 0).UTC())

	require.NotNil(t, final.FinishedAt)
	*final.FinishedAt = time.Time{}
	again := s.Snapshot()
	assert.Equal(t, time.Unix(10, 0).UTC(), *again.FinishedAt)
	assert.Equal(t, 1, again.Progress)
	assert.Equal(t, 3, again.NewRecords)
	assert.True(t, again.Force)

	s.Cancel()
	s.Cancel()
	assert.True(t, s.Canceled())
}

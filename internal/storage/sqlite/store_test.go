package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "listingwatch.db"), WithClock(fixedClock{now: testNow}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(source, url string, cat scraper.Category, at time.Time) scraper.Record {
	return scraper.Record{
		SourceName:   source,
		Title:        "Wissenschaftliche Mitarbeiterin " + url,
		CanonicalURL: url,
		Category:     cat,
		Locale:       "de",
		DiscoveredAt: at,
		Active:       true,
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "twice.db")
	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, second.Ping(context.Background()))
	require.NoError(t, second.Close())
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestUpsertRecordIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	rec := record("Uni A", "https://a.example.org/job/1", scraper.CategoryResearch, testNow)
	rec.Description = "Teilzeit, befristet"
	inserted, err := s.UpsertRecord(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := rec
	dup.Title = "Changed title"
	inserted, err = s.UpsertRecord(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.QueryRecords(ctx, scraper.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.Title, got[0].Title)
	assert.Equal(t, "Teilzeit, befristet", got[0].Description)
	assert.Empty(t, got[0].Deadline)
	assert.True(t, got[0].DiscoveredAt.Equal(testNow))
	assert.NotZero(t, got[0].ID)
}

func TestQueryRecordsFilters(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	for i, rec := range []scraper.Record{
		record("Uni A", "https://a.example.org/1", scraper.CategoryResearch, testNow.Add(-3*time.Hour)),
		record("Uni A", "https://a.example.org/2", scraper.CategoryArtistic, testNow.Add(-2*time.Hour)),
		record("Uni B", "https://b.example.org/1", scraper.CategoryResearch, testNow.Add(-1*time.Hour)),
	} {
		ok, err := s.UpsertRecord(ctx, rec)
		require.NoError(t, err, i)
		require.True(t, ok)
	}
	deactivated, err := s.DeactivateRecord(ctx, "https://a.example.org/1")
	require.NoError(t, err)
	assert.True(t, deactivated)
	deactivated, err = s.DeactivateRecord(ctx, "https://missing.example.org")
	require.NoError(t, err)
	assert.False(t, deactivated)

	all, err := s.QueryRecords(ctx, scraper.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "https://b.example.org/1", all[0].CanonicalURL, "newest first")

	bySource, err := s.QueryRecords(ctx, scraper.RecordFilter{Source: "Uni A"})
	require.NoError(t, err)
	assert.Len(t, bySource, 2)

	research, err := s.QueryRecords(ctx, scraper.RecordFilter{Category: scraper.CategoryResearch, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, research, 1)
	assert.Equal(t, "Uni B", research[0].SourceName)

	limited, err := s.QueryRecords(ctx, scraper.RecordFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPageStateUpsert(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.GetPageState(ctx, "Uni A")
	require.NoError(t, err)
	assert.Nil(t, got)

	state := scraper.PageState{
		SourceName:         "Uni A",
		ListingURL:         "https://a.example.org/jobs",
		ContentFingerprint: "abc",
		LastScraped:        testNow,
		LastModified:       testNow,
		RecordCount:        2,
	}
	require.NoError(t, s.UpsertPageState(ctx, state))

	state.ContentFingerprint = "def"
	state.LastScraped = testNow.Add(time.Hour)
	require.NoError(t, s.UpsertPageState(ctx, state))

	got, err = s.GetPageState(ctx, "Uni A")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "def", got.ContentFingerprint)
	assert.True(t, got.LastScraped.Equal(testNow.Add(time.Hour)))
	assert.True(t, got.LastModified.Equal(testNow))
	assert.Equal(t, 2, got.RecordCount)
}

func TestAuditAndStatistics(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	entries := []scraper.AuditEntry{
		{SourceName: "Uni A", Status: scraper.AuditSuccess, Message: "Found 2 records", RecordsFound: 2, Timestamp: testNow.Add(-10 * 24 * time.Hour)},
		{SourceName: "Uni A", Status: scraper.AuditUnchanged, Message: "Content unchanged since last scrape", Timestamp: testNow.Add(-2 * time.Hour)},
		{SourceName: "Uni B", Status: scraper.AuditFailed, Message: "fetch failed", Timestamp: testNow.Add(-time.Hour)},
	}
	for _, e := range entries {
		require.NoError(t, s.AppendAudit(ctx, e))
	}

	recent, err := s.RecentAudit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, scraper.AuditFailed, recent[0].Status)
	assert.Equal(t, scraper.AuditUnchanged, recent[1].Status)
	assert.NotEmpty(t, recent[0].ID)

	for _, rec := range []scraper.Record{
		record("Uni A", "https://a.example.org/1", scraper.CategoryResearch, testNow),
		record("Uni A", "https://a.example.org/2", scraper.CategoryArtistic, testNow),
		record("Uni B", "https://b.example.org/1", scraper.CategoryResearch, testNow),
	} {
		_, err := s.UpsertRecord(ctx, rec)
		require.NoError(t, err)
	}

	stats, err := s.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalActive)
	assert.Equal(t, 2, stats.ByCategory[scraper.CategoryResearch])
	assert.Equal(t, 1, stats.ByCategory[scraper.CategoryArtistic])
	assert.Equal(t, 0, stats.ByCategory[scraper.CategoryOther])
	require.Len(t, stats.TopSources, 2)
	assert.Equal(t, scraper.SourceCount{Source: "Uni A", Count: 2}, stats.TopSources[0])
	assert.Equal(t, 2, stats.RecentAudits)
}

func TestStatisticsEmptyStore(t *testing.T) {
	t.Parallel()

	stats, err := openTestStore(t).Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalActive)
	assert.Empty(t, stats.TopSources)
	assert.Len(t, stats.ByCategory, 3)
}

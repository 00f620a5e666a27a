package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/config"
	"github.com/JakeFAU/listingwatch/internal/scraper"
	"github.com/JakeFAU/listingwatch/internal/storage/memory"
	"github.com/JakeFAU/listingwatch/internal/storage/sqlite"
)

func testConfig(sources ...scraper.Source) *config.Config {
	return &config.Config{
		HTTP:    config.HTTPConfig{TimeoutSeconds: 5, UserAgent: "listingwatch-test"},
		Storage: config.StorageConfig{Driver: config.DriverMemory},
		Sources: sources,
	}
}

func listingSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><main><ul>
			<li><a href="/stellen/1">Wissenschaftliche Mitarbeiterin Kunstgeschichte</a></li>
		</ul></main></body></html>`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenStoreDrivers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := OpenStore(ctx, config.StorageConfig{Driver: config.DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	path := filepath.Join(t.TempDir(), "lw.db")
	store, err = OpenStore(ctx, config.StorageConfig{Driver: config.DriverSQLite, SQLitePath: path}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, store)
	require.NoError(t, store.Close())

	_, err = OpenStore(ctx, config.StorageConfig{Driver: "mongo"}, zap.NewNop())
	require.Error(t, err)
}

func TestBuildDefaultsWireHeadlessFallback(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage = config.StorageConfig{Driver: config.DriverMemory}

	a, err := Build(context.Background(), &cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NotNil(t, a.headless, "default config should wire the browser fallback")
	assert.Equal(t, scraper.DefaultUserAgent, a.headless.UserAgent())

	disabled := testConfig()
	b, err := Build(context.Background(), disabled, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	assert.Nil(t, b.headless)
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	srv := listingSite(t)
	cfg := testConfig(
		scraper.Source{Name: "A", ListingURL: srv.URL + "/a"},
		scraper.Source{Name: "B", ListingURL: srv.URL + "/b"},
	)
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	summary, err := a.RunOnce(context.Background(), false, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.NewRecords)

	summary, err = a.RunOnce(context.Background(), false, "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Progress)
	assert.Equal(t, 1, summary.Changed)
	assert.Equal(t, 1, summary.Unchanged)
	assert.Zero(t, summary.NewRecords)

	_, err = a.RunOnce(context.Background(), false, "C")
	require.ErrorIs(t, err, ErrUnknownSource)

	records, err := a.Store().QueryRecords(context.Background(), scraper.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, srv.URL+"/stellen/1", records[0].CanonicalURL)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Schedule.Cron = "@every 1h"
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeRejectsBadCron(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Schedule.Cron = "not a schedule"
	a, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.Error(t, a.Serve(context.Background()))
}

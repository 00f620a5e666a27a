package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeHost(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Uni.Example.org/jobs", "uni.example.org"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeHost(tc.input); got != tc.expected {
				t.Errorf("SanitizeHost(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveFunctions(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(sourcesTotal.WithLabelValues("success"))
	ObserveSource("success")
	if got := testutil.ToFloat64(sourcesTotal.WithLabelValues("success")); got != before+1 {
		t.Errorf("expected sources_total to grow by 1, got %f -> %f", before, got)
	}

	inserted := testutil.ToFloat64(recordsInsertedTotal)
	ObserveRecordsInserted(3)
	ObserveRecordsInserted(0)
	if got := testutil.ToFloat64(recordsInsertedTotal); got != inserted+3 {
		t.Errorf("expected records_inserted_total to grow by 3, got %f -> %f", inserted, got)
	}

	BatchStarted()
	if got := testutil.ToFloat64(batchRunning); got != 1 {
		t.Errorf("expected running gauge 1, got %f", got)
	}
	BatchFinished(2 * time.Second)
	if got := testutil.ToFloat64(batchRunning); got != 0 {
		t.Errorf("expected running gauge 0, got %f", got)
	}

	ObserveFetch("headless", "ok")
	if got := testutil.ToFloat64(fetchTotal.WithLabelValues("headless", "ok")); got < 1 {
		t.Errorf("expected fetch counter, got %f", got)
	}
}

func FuzzSanitizeHost(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://uni.example.org", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeHost(orig) == "" {
			t.Errorf("SanitizeHost(%q) returned an empty string", orig)
		}
	})
}

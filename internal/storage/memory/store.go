// Package memory provides an in-process scraper.Store for development and
// tests. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

const (
	topSourcesLimit = 10
	recentWindow    = 7 * 24 * time.Hour
)

// Store keeps everything in maps guarded by one RWMutex.
type Store struct {
	mu      sync.RWMutex
	clock   scraper.Clock
	nextID  int64
	records []scraper.Record
	byURL   map[string]int
	states  map[string]scraper.PageState
	audit   []scraper.AuditEntry
}

// NewStore constructs an empty Store. A nil clock uses the system clock.
func NewStore(clock scraper.Clock) *Store {
	if clock == nil {
		clock = scraper.SystemClock{}
	}
	return &Store{
		clock:  clock,
		byURL:  make(map[string]int),
		states: make(map[string]scraper.PageState),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// UpsertRecord implements scraper.Store.
func (s *Store) UpsertRecord(_ context.Context, rec scraper.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byURL[rec.CanonicalURL]; exists {
		return false, nil
	}
	s.nextID++
	rec.ID = s.nextID
	s.byURL[rec.CanonicalURL] = len(s.records)
	s.records = append(s.records, rec)
	return true, nil
}

// DeactivateRecord implements scraper.Store.
func (s *Store) DeactivateRecord(_ context.Context, canonicalURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byURL[canonicalURL]
	if !ok {
		return false, nil
	}
	s.records[idx].Active = false
	return true, nil
}

// GetPageState implements scraper.Store.
func (s *Store) GetPageState(_ context.Context, sourceName string) (*scraper.PageState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[sourceName]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// UpsertPageState implements scraper.Store.
func (s *Store) UpsertPageState(_ context.Context, st scraper.PageState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.SourceName] = st
	return nil
}

// AppendAudit implements scraper.Store.
func (s *Store) AppendAudit(_ context.Context, e scraper.AuditEntry) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.ID = id.String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// QueryRecords returns copies of matching records, newest first.
func (s *Store) QueryRecords(_ context.Context, f scraper.RecordFilter) ([]scraper.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scraper.Record, 0, len(s.records))
	for _, rec := range s.records {
		if f.Source != "" && rec.SourceName != f.Source {
			continue
		}
		if f.Category != "" && rec.Category != f.Category {
			continue
		}
		if f.ActiveOnly && !rec.Active {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DiscoveredAt.Equal(out[j].DiscoveredAt) {
			return out[i].DiscoveredAt.After(out[j].DiscoveredAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Statistics implements scraper.Store.
func (s *Store) Statistics(_ context.Context) (scraper.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := scraper.Statistics{ByCategory: make(map[scraper.Category]int, len(scraper.Categories))}
	for _, c := range scraper.Categories {
		stats.ByCategory[c] = 0
	}
	perSource := make(map[string]int)
	for _, rec := range s.records {
		if !rec.Active {
			continue
		}
		stats.TotalActive++
		stats.ByCategory[rec.Category]++
		perSource[rec.SourceName]++
	}
	stats.TopSources = make([]scraper.SourceCount, 0, len(perSource))
	for src, n := range perSource {
		stats.TopSources = append(stats.TopSources, scraper.SourceCount{Source: src, Count: n})
	}
	sort.Slice(stats.TopSources, func(i, j int) bool {
		a, b := stats.TopSources[i], stats.TopSources[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Source < b.Source
	})
	if len(stats.TopSources) > topSourcesLimit {
		stats.TopSources = stats.TopSources[:topSourcesLimit]
	}
	cutoff := s.clock.Now().Add(-recentWindow)
	for _, e := range s.audit {
		if !e.Timestamp.Before(cutoff) {
			stats.RecentAudits++
		}
	}
	return stats, nil
}

// RecentAudit returns the newest audit entries first.
func (s *Store) RecentAudit(_ context.Context, limit int) ([]scraper.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]scraper.AuditEntry(nil), s.audit...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

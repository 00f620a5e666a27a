// Package postgres provides a Postgres-backed scraper.Store for deployments
// that share one database between several instances.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

const (
	topSourcesLimit = 10
	recentWindow    = 7 * 24 * time.Hour
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements scraper.Store on Postgres.
type Store struct {
	pool  pool
	clock scraper.Clock
}

// Open connects, then creates the schema if it does not exist.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p, clock: scraper.SystemClock{}}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing). The schema is not touched.
func NewWithPool(p pool, clock scraper.Clock) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil {
		clock = scraper.SystemClock{}
	}
	return &Store{pool: p, clock: clock}, nil
}

// EnsureSchema creates the tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// UpsertRecord implements scraper.Store.
func (s *Store) UpsertRecord(ctx context.Context, rec scraper.Record) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO records (
	source_name, title, canonical_url, category, description,
	locale, deadline, group_name, discovered_at, active
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (canonical_url) DO NOTHING`,
		rec.SourceName, rec.Title, rec.CanonicalURL, string(rec.Category), optional(rec.Description),
		rec.Locale, optional(rec.Deadline), optional(rec.Group), rec.DiscoveredAt.UTC(), rec.Active,
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeactivateRecord clears the active flag; it reports whether a row matched.
func (s *Store) DeactivateRecord(ctx context.Context, canonicalURL string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE records SET active = FALSE WHERE canonical_url = $1`, canonicalURL)
	if err != nil {
		return false, fmt.Errorf("deactivate record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetPageState implements scraper.Store.
func (s *Store) GetPageState(ctx context.Context, sourceName string) (*scraper.PageState, error) {
	var st scraper.PageState
	err := s.pool.QueryRow(ctx, `
SELECT source_name, listing_url, content_fingerprint, last_scraped, last_modified, record_count
FROM page_state WHERE source_name = $1`, sourceName).Scan(
		&st.SourceName, &st.ListingURL, &st.ContentFingerprint, &st.LastScraped, &st.LastModified, &st.RecordCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page state: %w", err)
	}
	st.LastScraped = st.LastScraped.UTC()
	st.LastModified = st.LastModified.UTC()
	return &st, nil
}

// UpsertPageState implements scraper.Store.
func (s *Store) UpsertPageState(ctx context.Context, st scraper.PageState) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO page_state (source_name, listing_url, content_fingerprint, last_scraped, last_modified, record_count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (source_name) DO UPDATE SET
	listing_url = EXCLUDED.listing_url,
	content_fingerprint = EXCLUDED.content_fingerprint,
	last_scraped = EXCLUDED.last_scraped,
	last_modified = EXCLUDED.last_modified,
	record_count = EXCLUDED.record_count`,
		st.SourceName, st.ListingURL, st.ContentFingerprint, st.LastScraped.UTC(), st.LastModified.UTC(), st.RecordCount,
	)
	if err != nil {
		return fmt.Errorf("upsert page state: %w", err)
	}
	return nil
}

// AppendAudit implements scraper.Store. Entries without an ID get a UUIDv7.
func (s *Store) AppendAudit(ctx context.Context, e scraper.AuditEntry) error {
	if e.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("audit id: %w", err)
		}
		e.ID = id.String()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO audit_log (id, source_name, status, message, records_found, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.SourceName, string(e.Status), e.Message, e.RecordsFound, e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// QueryRecords returns matching records, newest first.
func (s *Store) QueryRecords(ctx context.Context, f scraper.RecordFilter) ([]scraper.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Source != "" {
		args = append(args, f.Source)
		where = append(where, fmt.Sprintf("source_name = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "active")
	}
	query := `SELECT id, source_name, title, canonical_url, category, description, locale,
	deadline, group_name, discovered_at, active FROM records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY discovered_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []scraper.Record
	for rows.Next() {
		var (
			rec                          scraper.Record
			category                     string
			description, deadline, group *string
		)
		if err := rows.Scan(&rec.ID, &rec.SourceName, &rec.Title, &rec.CanonicalURL, &category,
			&description, &rec.Locale, &deadline, &group, &rec.DiscoveredAt, &rec.Active); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Category = scraper.Category(category)
		rec.Description = deref(description)
		rec.Deadline = deref(deadline)
		rec.Group = deref(group)
		rec.DiscoveredAt = rec.DiscoveredAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Statistics implements scraper.Store.
func (s *Store) Statistics(ctx context.Context) (scraper.Statistics, error) {
	stats := scraper.Statistics{ByCategory: make(map[scraper.Category]int, len(scraper.Categories))}
	for _, c := range scraper.Categories {
		stats.ByCategory[c] = 0
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM records WHERE active`).Scan(&stats.TotalActive); err != nil {
		return scraper.Statistics{}, fmt.Errorf("count active: %w", err)
	}

	byCategory, err := s.counts(ctx, `
SELECT category, COUNT(*) FROM records WHERE active GROUP BY category`)
	if err != nil {
		return scraper.Statistics{}, fmt.Errorf("count by category: %w", err)
	}
	for _, c := range byCategory {
		stats.ByCategory[scraper.Category(c.Source)] = c.Count
	}

	stats.TopSources, err = s.counts(ctx, `
SELECT source_name, COUNT(*) AS n FROM records WHERE active
GROUP BY source_name ORDER BY n DESC, source_name ASC LIMIT $1`, topSourcesLimit)
	if err != nil {
		return scraper.Statistics{}, fmt.Errorf("top sources: %w", err)
	}

	cutoff := s.clock.Now().UTC().Add(-recentWindow)
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log WHERE created_at >= $1`, cutoff).
		Scan(&stats.RecentAudits); err != nil {
		return scraper.Statistics{}, fmt.Errorf("count recent audit: %w", err)
	}
	return stats, nil
}

func (s *Store) counts(ctx context.Context, query string, args ...any) ([]scraper.SourceCount, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []scraper.SourceCount{}
	for rows.Next() {
		var c scraper.SourceCount
		if err := rows.Scan(&c.Source, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentAudit returns the newest audit entries first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]scraper.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, source_name, status, message, records_found, created_at
FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	defer rows.Close()
	var out []scraper.AuditEntry
	for rows.Next() {
		var (
			e      scraper.AuditEntry
			status string
		)
		if err := rows.Scan(&e.ID, &e.SourceName, &status, &e.Message, &e.RecordsFound, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.Status = scraper.AuditStatus(status)
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit: %w", err)
	}
	return out, nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

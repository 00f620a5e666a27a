// Package sqlite persists records, page state, and the audit log in an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // database/sql driver
	"go.uber.org/zap"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	topSourcesLimit = 10
	recentWindow    = 7 * 24 * time.Hour
)

// Store implements scraper.Store on SQLite.
type Store struct {
	db     *sqlx.DB
	clock  scraper.Clock
	logger *zap.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for the statistics window.
func WithClock(c scraper.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage.sqlite_path is required")
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps in-memory
	// databases consistent across calls.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := newStore(db, opts...)
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing handle without running migrations.
func NewWithDB(db *sqlx.DB, opts ...Option) *Store {
	return newStore(db, opts...)
}

func newStore(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: scraper.SystemClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			s.logger.Debug("schema up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	s.logger.Info("schema migrated")
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRecord implements scraper.Store.
func (s *Store) UpsertRecord(ctx context.Context, rec scraper.Record) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO records (
	source_name, title, canonical_url, category, description,
	locale, deadline, group_name, discovered_at, active
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(canonical_url) DO NOTHING`,
		rec.SourceName, rec.Title, rec.CanonicalURL, string(rec.Category), nullString(rec.Description),
		rec.Locale, nullString(rec.Deadline), nullString(rec.Group), rec.DiscoveredAt.UTC(), rec.Active,
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record rows affected: %w", err)
	}
	return n == 1, nil
}

// DeactivateRecord clears the active flag; it reports whether a row matched.
func (s *Store) DeactivateRecord(ctx context.Context, canonicalURL string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE records SET active = 0 WHERE canonical_url = ?`, canonicalURL)
	if err != nil {
		return false, fmt.Errorf("deactivate record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deactivate record rows affected: %w", err)
	}
	return n > 0, nil
}

// GetPageState implements scraper.Store.
func (s *Store) GetPageState(ctx context.Context, sourceName string) (*scraper.PageState, error) {
	var row pageStateRow
	err := s.db.GetContext(ctx, &row, `
SELECT source_name, listing_url, content_fingerprint, last_scraped, last_modified, record_count
FROM page_state WHERE source_name = ?`, sourceName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page state: %w", err)
	}
	state := row.toState()
	return &state, nil
}

// UpsertPageState implements scraper.Store.
func (s *Store) UpsertPageState(ctx context.Context, st scraper.PageState) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO page_state (source_name, listing_url, content_fingerprint, last_scraped, last_modified, record_count)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(source_name) DO UPDATE SET
	listing_url = excluded.listing_url,
	content_fingerprint = excluded.content_fingerprint,
	last_scraped = excluded.last_scraped,
	last_modified = excluded.last_modified,
	record_count = excluded.record_count`,
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_log (id, source_name, status, message, records_found, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
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
		where = append(where, "source_name = ?")
		args = append(args, f.Source)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.ActiveOnly {
		where = append(where, "active = 1")
	}
	query := `SELECT id, source_name, title, canonical_url, category, description, locale,
	deadline, group_name, discovered_at, active FROM records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY discovered_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	out := make([]scraper.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

// Statistics implements scraper.Store.
func (s *Store) Statistics(ctx context.Context) (scraper.Statistics, error) {
	stats := scraper.Statistics{ByCategory: make(map[scraper.Category]int, len(scraper.Categories))}
	for _, c := range scraper.Categories {
		stats.ByCategory[c] = 0
	}

	if err := s.db.GetContext(ctx, &stats.TotalActive, `SELECT COUNT(*) FROM records WHERE active = 1`); err != nil {
		return scraper.Statistics{}, fmt.Errorf("count active: %w", err)
	}

	var byCategory []countRow
	if err := s.db.SelectContext(ctx, &byCategory, `
SELECT category AS label, COUNT(*) AS n FROM records WHERE active = 1 GROUP BY category`); err != nil {
		return scraper.Statistics{}, fmt.Errorf("count by category: %w", err)
	}
	for _, r := range byCategory {
		stats.ByCategory[scraper.Category(r.Label)] = r.N
	}

	var top []countRow
	if err := s.db.SelectContext(ctx, &top, `
SELECT source_name AS label, COUNT(*) AS n FROM records WHERE active = 1
GROUP BY source_name ORDER BY n DESC, source_name ASC LIMIT ?`, topSourcesLimit); err != nil {
		return scraper.Statistics{}, fmt.Errorf("top sources: %w", err)
	}
	stats.TopSources = make([]scraper.SourceCount, 0, len(top))
	for _, r := range top {
		stats.TopSources = append(stats.TopSources, scraper.SourceCount{Source: r.Label, Count: r.N})
	}

	cutoff := s.clock.Now().UTC().Add(-recentWindow)
	if err := s.db.GetContext(ctx, &stats.RecentAudits, `SELECT COUNT(*) FROM audit_log WHERE created_at >= ?`, cutoff); err != nil {
		return scraper.Statistics{}, fmt.Errorf("count recent audit: %w", err)
	}
	return stats, nil
}

// RecentAudit returns the newest audit entries first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]scraper.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []auditRow
	if err := s.db.SelectContext(ctx, &rows, `
SELECT id, source_name, status, message, records_found, created_at
FROM audit_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("recent audit: %w", err)
	}
	out := make([]scraper.AuditEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, scraper.AuditEntry{
			ID:           r.ID,
			SourceName:   r.SourceName,
			Status:       scraper.AuditStatus(r.Status),
			Message:      r.Message,
			RecordsFound: r.RecordsFound,
			Timestamp:    r.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

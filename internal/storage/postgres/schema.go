package postgres

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id            BIGSERIAL PRIMARY KEY,
    source_name   TEXT NOT NULL,
    title         TEXT NOT NULL,
    canonical_url TEXT NOT NULL UNIQUE,
    category      TEXT NOT NULL,
    description   TEXT,
    locale        TEXT NOT NULL DEFAULT 'de',
    deadline      TEXT,
    group_name    TEXT,
    discovered_at TIMESTAMPTZ NOT NULL,
    active        BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_records_source ON records (source_name);
CREATE INDEX IF NOT EXISTS idx_records_category ON records (category);
CREATE INDEX IF NOT EXISTS idx_records_discovered ON records (discovered_at);

CREATE TABLE IF NOT EXISTS page_state (
    source_name         TEXT PRIMARY KEY,
    listing_url         TEXT NOT NULL,
    content_fingerprint TEXT NOT NULL,
    last_scraped        TIMESTAMPTZ NOT NULL,
    last_modified       TIMESTAMPTZ NOT NULL,
    record_count        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_log (
    id            UUID PRIMARY KEY,
    source_name   TEXT NOT NULL,
    status        TEXT NOT NULL,
    message       TEXT NOT NULL DEFAULT '',
    records_found INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log (created_at);
`

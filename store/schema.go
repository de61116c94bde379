package store

// schemaSQL returns the DDL for every harvester table. Repurposed from the
// teacher's documents/chunks/entities schema into the product/run/evidence
// table set this system's storage layer needs: products, runs,
// round_summaries, snippets (+ FTS5 for replay-debugging lookups),
// evidence_refs, budgets, drift_baselines, learning_artifacts, domain_stats,
// llm_cache.
func schemaSQL() string {
	return `
CREATE TABLE IF NOT EXISTS products (
    product_id TEXT PRIMARY KEY,
    category   TEXT NOT NULL,
    brand      TEXT NOT NULL,
    model      TEXT NOT NULL,
    variant    TEXT NOT NULL DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    product_id  TEXT NOT NULL REFERENCES products(product_id) ON DELETE CASCADE,
    round       INTEGER NOT NULL DEFAULT 0,
    started_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME,
    stop_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_product ON runs(product_id);

CREATE TABLE IF NOT EXISTS round_summaries (
    id           INTEGER PRIMARY KEY,
    run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    round        INTEGER NOT NULL,
    summary_json TEXT NOT NULL,
    created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_round_summaries_run ON round_summaries(run_id);

-- Evidence snippets captured from a fetched source. One row per
-- (run_id, id) since snippet IDs are only unique within a run's fetch set.
CREATE TABLE IF NOT EXISTS snippets (
    id              TEXT NOT NULL,
    run_id          TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    snippet_type    TEXT NOT NULL,
    normalized_text TEXT NOT NULL,
    snippet_hash    TEXT NOT NULL,
    source_id       TEXT NOT NULL,
    url             TEXT NOT NULL,
    field_hints     TEXT,
    retrieved_at    TEXT NOT NULL,
    PRIMARY KEY (run_id, id)
);
CREATE INDEX IF NOT EXISTS idx_snippets_source ON snippets(run_id, source_id);

-- Full-text search over snippet text, for replay-debugging lookups only.
CREATE VIRTUAL TABLE IF NOT EXISTS snippets_fts USING fts5(
    normalized_text,
    content='snippets',
    content_rowid='rowid',
    tokenize='porter unicode61'
);
CREATE TRIGGER IF NOT EXISTS snippets_ai AFTER INSERT ON snippets BEGIN
    INSERT INTO snippets_fts(rowid, normalized_text) VALUES (new.rowid, new.normalized_text);
END;
CREATE TRIGGER IF NOT EXISTS snippets_ad AFTER DELETE ON snippets BEGIN
    INSERT INTO snippets_fts(snippets_fts, rowid, normalized_text) VALUES ('delete', old.rowid, old.normalized_text);
END;
CREATE TRIGGER IF NOT EXISTS snippets_au AFTER UPDATE ON snippets BEGIN
    INSERT INTO snippets_fts(snippets_fts, rowid, normalized_text) VALUES ('delete', old.rowid, old.normalized_text);
    INSERT INTO snippets_fts(rowid, normalized_text) VALUES (new.rowid, new.normalized_text);
END;

CREATE TABLE IF NOT EXISTS evidence_refs (
    id           TEXT PRIMARY KEY,
    run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    field        TEXT NOT NULL,
    url          TEXT,
    source_id    TEXT NOT NULL,
    tier         INTEGER NOT NULL,
    snippet_id   TEXT NOT NULL,
    snippet_hash TEXT NOT NULL,
    quote        TEXT NOT NULL,
    quote_start  INTEGER,
    quote_end    INTEGER,
    method       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evidence_refs_run_field ON evidence_refs(run_id, field);

CREATE TABLE IF NOT EXISTS budgets (
    product_id      TEXT PRIMARY KEY REFERENCES products(product_id) ON DELETE CASCADE,
    urls            INTEGER NOT NULL DEFAULT 0,
    queries         INTEGER NOT NULL DEFAULT 0,
    llm_calls       INTEGER NOT NULL DEFAULT 0,
    high_tier_calls INTEGER NOT NULL DEFAULT 0,
    cost_usd        REAL NOT NULL DEFAULT 0,
    updated_at      DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS drift_baselines (
    product_id        TEXT NOT NULL REFERENCES products(product_id) ON DELETE CASCADE,
    source_id         TEXT NOT NULL,
    page_content_hash TEXT NOT NULL,
    text_hash         TEXT NOT NULL,
    updated_at        DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (product_id, source_id)
);

CREATE TABLE IF NOT EXISTS learning_artifacts (
    id               INTEGER PRIMARY KEY,
    kind             TEXT NOT NULL,
    artifact_key     TEXT NOT NULL,
    payload_json     TEXT NOT NULL,
    accepted         INTEGER NOT NULL,
    rejected_reasons TEXT,
    created_at       DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_learning_artifacts_kind ON learning_artifacts(kind, artifact_key);

CREATE TABLE IF NOT EXISTS domain_stats (
    root_domain    TEXT PRIMARY KEY,
    tier           INTEGER NOT NULL,
    attempts       INTEGER NOT NULL DEFAULT 0,
    successes      INTEGER NOT NULL DEFAULT 0,
    consensus_wins INTEGER NOT NULL DEFAULT 0,
    updated_at     DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS llm_cache (
    cache_key   TEXT PRIMARY KEY,
    raw_json    TEXT NOT NULL,
    stored_at   DATETIME NOT NULL,
    ttl_seconds INTEGER NOT NULL DEFAULT 0
);
`
}

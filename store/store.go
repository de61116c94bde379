package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Product represents a row in the products table.
type Product struct {
	ProductID string `json:"product_id"`
	Category  string `json:"category"`
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	Variant   string `json:"variant"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Run represents a row in the runs table: one harvest attempt for a product.
type Run struct {
	RunID      string `json:"run_id"`
	ProductID  string `json:"product_id"`
	Round      int    `json:"round"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// RoundSummary represents a row in the round_summaries table.
type RoundSummary struct {
	ID          int64  `json:"id"`
	RunID       string `json:"run_id"`
	Round       int    `json:"round"`
	SummaryJSON string `json:"summary_json"`
	CreatedAt   string `json:"created_at"`
}

// Snippet represents a row in the snippets table.
type Snippet struct {
	ID             string `json:"id"`
	RunID          string `json:"run_id"`
	SnippetType    string `json:"snippet_type"`
	NormalizedText string `json:"normalized_text"`
	SnippetHash    string `json:"snippet_hash"`
	SourceID       string `json:"source_id"`
	URL            string `json:"url"`
	FieldHints     string `json:"field_hints,omitempty"`
	RetrievedAt    string `json:"retrieved_at"`
}

// EvidenceRef represents a row in the evidence_refs table.
type EvidenceRef struct {
	ID          string `json:"id"`
	RunID       string `json:"run_id"`
	Field       string `json:"field"`
	URL         string `json:"url"`
	SourceID    string `json:"source_id"`
	Tier        int    `json:"tier"`
	SnippetID   string `json:"snippet_id"`
	SnippetHash string `json:"snippet_hash"`
	Quote       string `json:"quote"`
	QuoteStart  int    `json:"quote_start"`
	QuoteEnd    int    `json:"quote_end"`
	Method      string `json:"method"`
}

// Budget represents a row in the budgets table: running per-product spend.
type Budget struct {
	ProductID     string  `json:"product_id"`
	URLs          int     `json:"urls"`
	Queries       int     `json:"queries"`
	LLMCalls      int     `json:"llm_calls"`
	HighTierCalls int     `json:"high_tier_calls"`
	CostUSD       float64 `json:"cost_usd"`
	UpdatedAt     string  `json:"updated_at"`
}

// DriftBaseline represents a row in the drift_baselines table.
type DriftBaseline struct {
	ProductID       string `json:"product_id"`
	SourceID        string `json:"source_id"`
	PageContentHash string `json:"page_content_hash"`
	TextHash        string `json:"text_hash"`
	UpdatedAt       string `json:"updated_at"`
}

// LearningArtifact represents a row in the learning_artifacts table.
type LearningArtifact struct {
	ID              int64  `json:"id"`
	Kind            string `json:"kind"`
	ArtifactKey     string `json:"artifact_key"`
	PayloadJSON     string `json:"payload_json"`
	Accepted        bool   `json:"accepted"`
	RejectedReasons string `json:"rejected_reasons,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// DomainStat represents a row in the domain_stats table.
type DomainStat struct {
	RootDomain    string `json:"root_domain"`
	Tier          int    `json:"tier"`
	Attempts      int    `json:"attempts"`
	Successes     int    `json:"successes"`
	ConsensusWins int    `json:"consensus_wins"`
	UpdatedAt     string `json:"updated_at"`
}

// CacheEntry represents a row in the llm_cache table.
type CacheEntry struct {
	CacheKey   string    `json:"cache_key"`
	RawJSON    string    `json:"raw_json"`
	StoredAt   time.Time `json:"stored_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// SnippetMatch holds one FTS5 full-text hit over the snippets table.
type SnippetMatch struct {
	SnippetID string  `json:"snippet_id"`
	SourceID  string  `json:"source_id"`
	Score     float64 `json:"score"`
}

// SQLStore wraps the SQLite database backing a harvester deployment.
type SQLStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including FTS5 virtual tables.
func New(dbPath string) (*SQLStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLStore{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// --- Product operations ---

// UpsertProduct inserts or updates a product's identity row.
func (s *SQLStore) UpsertProduct(ctx context.Context, p Product) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (product_id, category, brand, model, variant)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			category = excluded.category,
			brand = excluded.brand,
			model = excluded.model,
			variant = excluded.variant,
			updated_at = CURRENT_TIMESTAMP
	`, p.ProductID, p.Category, p.Brand, p.Model, p.Variant)
	return err
}

// GetProduct retrieves a product by its identity key.
func (s *SQLStore) GetProduct(ctx context.Context, productID string) (*Product, error) {
	p := &Product{}
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, category, brand, model, variant, created_at, updated_at
		FROM products WHERE product_id = ?
	`, productID).Scan(&p.ProductID, &p.Category, &p.Brand, &p.Model, &p.Variant, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// --- Run operations ---

// CreateRun inserts a new run row.
func (s *SQLStore) CreateRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, product_id, round) VALUES (?, ?, ?)
	`, r.RunID, r.ProductID, r.Round)
	return err
}

// AdvanceRunRound bumps a run's round counter.
func (s *SQLStore) AdvanceRunRound(ctx context.Context, runID string, round int) error {
	_, err := s.db.ExecContext(ctx, "UPDATE runs SET round = ? WHERE run_id = ?", round, runID)
	return err
}

// FinishRun marks a run as complete with its terminal stop reason.
func (s *SQLStore) FinishRun(ctx context.Context, runID, stopReason string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = CURRENT_TIMESTAMP, stop_reason = ? WHERE run_id = ?",
		stopReason, runID)
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	r := &Run{}
	var finishedAt, stopReason sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, product_id, round, started_at, finished_at, stop_reason
		FROM runs WHERE run_id = ?
	`, runID).Scan(&r.RunID, &r.ProductID, &r.Round, &r.StartedAt, &finishedAt, &stopReason)
	if err != nil {
		return nil, err
	}
	r.FinishedAt = finishedAt.String
	r.StopReason = stopReason.String
	return r, nil
}

// ListRunsByProduct returns all runs for a product, most recent first.
func (s *SQLStore) ListRunsByProduct(ctx context.Context, productID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, product_id, round, started_at, finished_at, stop_reason
		FROM runs WHERE product_id = ? ORDER BY started_at DESC
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finishedAt, stopReason sql.NullString
		if err := rows.Scan(&r.RunID, &r.ProductID, &r.Round, &r.StartedAt, &finishedAt, &stopReason); err != nil {
			return nil, err
		}
		r.FinishedAt = finishedAt.String
		r.StopReason = stopReason.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Round summary operations ---

// InsertRoundSummary records one round's outcome for audit/replay.
func (s *SQLStore) InsertRoundSummary(ctx context.Context, runID string, round int, summaryJSON string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO round_summaries (run_id, round, summary_json) VALUES (?, ?, ?)
	`, runID, round, summaryJSON)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListRoundSummaries returns every recorded round for a run, in round order.
func (s *SQLStore) ListRoundSummaries(ctx context.Context, runID string) ([]RoundSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, round, summary_json, created_at
		FROM round_summaries WHERE run_id = ? ORDER BY round
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundSummary
	for rows.Next() {
		var rs RoundSummary
		if err := rows.Scan(&rs.ID, &rs.RunID, &rs.Round, &rs.SummaryJSON, &rs.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// --- Snippet operations ---

// InsertSnippets stores a batch of evidence snippets captured during fetch.
func (s *SQLStore) InsertSnippets(ctx context.Context, snippets []Snippet) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO snippets
				(id, run_id, snippet_type, normalized_text, snippet_hash, source_id, url, field_hints, retrieved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sn := range snippets {
			if _, err := stmt.ExecContext(ctx, sn.ID, sn.RunID, sn.SnippetType, sn.NormalizedText,
				sn.SnippetHash, sn.SourceID, sn.URL, sn.FieldHints, sn.RetrievedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSnippet retrieves one snippet by (run_id, id).
func (s *SQLStore) GetSnippet(ctx context.Context, runID, id string) (*Snippet, error) {
	sn := &Snippet{}
	var fieldHints sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, snippet_type, normalized_text, snippet_hash, source_id, url, field_hints, retrieved_at
		FROM snippets WHERE run_id = ? AND id = ?
	`, runID, id).Scan(&sn.ID, &sn.RunID, &sn.SnippetType, &sn.NormalizedText, &sn.SnippetHash,
		&sn.SourceID, &sn.URL, &fieldHints, &sn.RetrievedAt)
	if err != nil {
		return nil, err
	}
	sn.FieldHints = fieldHints.String
	return sn, nil
}

// FTSSearchSnippets performs a full-text search over a run's snippets,
// used for replay-debugging lookups rather than any live extraction path.
func (s *SQLStore) FTSSearchSnippets(ctx context.Context, runID, query string, limit int) ([]SnippetMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.source_id, f.rank
		FROM snippets_fts f
		JOIN snippets s ON s.rowid = f.rowid
		WHERE f.normalized_text MATCH ? AND s.run_id = ?
		ORDER BY f.rank
		LIMIT ?
	`, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnippetMatch
	for rows.Next() {
		var m SnippetMatch
		var rank float64
		if err := rows.Scan(&m.SnippetID, &m.SourceID, &rank); err != nil {
			return nil, err
		}
		m.Score = -rank
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Evidence ref operations ---

// InsertEvidenceRefs stores the evidence refs backing a round's candidates.
func (s *SQLStore) InsertEvidenceRefs(ctx context.Context, refs []EvidenceRef) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO evidence_refs
				(id, run_id, field, url, source_id, tier, snippet_id, snippet_hash, quote, quote_start, quote_end, method)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range refs {
			if _, err := stmt.ExecContext(ctx, r.ID, r.RunID, r.Field, r.URL, r.SourceID, r.Tier,
				r.SnippetID, r.SnippetHash, r.Quote, r.QuoteStart, r.QuoteEnd, r.Method); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetEvidenceRefsByField returns every evidence ref recorded for a field
// within a run.
func (s *SQLStore) GetEvidenceRefsByField(ctx context.Context, runID, field string) ([]EvidenceRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, field, url, source_id, tier, snippet_id, snippet_hash, quote, quote_start, quote_end, method
		FROM evidence_refs WHERE run_id = ? AND field = ?
	`, runID, field)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EvidenceRef
	for rows.Next() {
		var r EvidenceRef
		if err := rows.Scan(&r.ID, &r.RunID, &r.Field, &r.URL, &r.SourceID, &r.Tier,
			&r.SnippetID, &r.SnippetHash, &r.Quote, &r.QuoteStart, &r.QuoteEnd, &r.Method); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Budget operations ---

// GetBudget retrieves a product's running spend, defaulting to a zeroed
// row (not an error) when none has been recorded yet.
func (s *SQLStore) GetBudget(ctx context.Context, productID string) (Budget, error) {
	b := Budget{ProductID: productID}
	err := s.db.QueryRowContext(ctx, `
		SELECT urls, queries, llm_calls, high_tier_calls, cost_usd, updated_at
		FROM budgets WHERE product_id = ?
	`, productID).Scan(&b.URLs, &b.Queries, &b.LLMCalls, &b.HighTierCalls, &b.CostUSD, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return b, nil
	}
	return b, err
}

// UpsertBudget writes a product's current running spend.
func (s *SQLStore) UpsertBudget(ctx context.Context, b Budget) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (product_id, urls, queries, llm_calls, high_tier_calls, cost_usd)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id) DO UPDATE SET
			urls = excluded.urls,
			queries = excluded.queries,
			llm_calls = excluded.llm_calls,
			high_tier_calls = excluded.high_tier_calls,
			cost_usd = excluded.cost_usd,
			updated_at = CURRENT_TIMESTAMP
	`, b.ProductID, b.URLs, b.Queries, b.LLMCalls, b.HighTierCalls, b.CostUSD)
	return err
}

// --- Drift baseline operations ---

// UpsertDriftBaseline records the current content-hash baseline for one
// product source.
func (s *SQLStore) UpsertDriftBaseline(ctx context.Context, d DriftBaseline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drift_baselines (product_id, source_id, page_content_hash, text_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(product_id, source_id) DO UPDATE SET
			page_content_hash = excluded.page_content_hash,
			text_hash = excluded.text_hash,
			updated_at = CURRENT_TIMESTAMP
	`, d.ProductID, d.SourceID, d.PageContentHash, d.TextHash)
	return err
}

// GetDriftBaselines returns every source baseline recorded for a product.
func (s *SQLStore) GetDriftBaselines(ctx context.Context, productID string) ([]DriftBaseline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, source_id, page_content_hash, text_hash, updated_at
		FROM drift_baselines WHERE product_id = ?
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DriftBaseline
	for rows.Next() {
		var d DriftBaseline
		if err := rows.Scan(&d.ProductID, &d.SourceID, &d.PageContentHash, &d.TextHash, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Learning artifact operations ---

// InsertLearningArtifact records one learning-gate decision for audit.
func (s *SQLStore) InsertLearningArtifact(ctx context.Context, a LearningArtifact) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_artifacts (kind, artifact_key, payload_json, accepted, rejected_reasons)
		VALUES (?, ?, ?, ?, ?)
	`, a.Kind, a.ArtifactKey, a.PayloadJSON, a.Accepted, a.RejectedReasons)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListLearningArtifacts returns every recorded artifact of a kind.
func (s *SQLStore) ListLearningArtifacts(ctx context.Context, kind string) ([]LearningArtifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, artifact_key, payload_json, accepted, rejected_reasons, created_at
		FROM learning_artifacts WHERE kind = ? ORDER BY created_at
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LearningArtifact
	for rows.Next() {
		var a LearningArtifact
		var rejected sql.NullString
		if err := rows.Scan(&a.ID, &a.Kind, &a.ArtifactKey, &a.PayloadJSON, &a.Accepted, &rejected, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.RejectedReasons = rejected.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Domain stats operations ---

// UpsertDomainStats writes one root domain's rolled-up outcome counters.
func (s *SQLStore) UpsertDomainStats(ctx context.Context, d DomainStat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_stats (root_domain, tier, attempts, successes, consensus_wins)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(root_domain) DO UPDATE SET
			tier = excluded.tier,
			attempts = excluded.attempts,
			successes = excluded.successes,
			consensus_wins = excluded.consensus_wins,
			updated_at = CURRENT_TIMESTAMP
	`, d.RootDomain, d.Tier, d.Attempts, d.Successes, d.ConsensusWins)
	return err
}

// ListDomainStats returns every tracked domain's counters.
func (s *SQLStore) ListDomainStats(ctx context.Context) ([]DomainStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT root_domain, tier, attempts, successes, consensus_wins, updated_at FROM domain_stats
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DomainStat
	for rows.Next() {
		var d DomainStat
		if err := rows.Scan(&d.RootDomain, &d.Tier, &d.Attempts, &d.Successes, &d.ConsensusWins, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- LLM cache operations ---

// CacheGet retrieves a cached LLM response by key, returning (nil, nil)
// on a miss rather than an error.
func (s *SQLStore) CacheGet(ctx context.Context, cacheKey string) (*CacheEntry, error) {
	e := &CacheEntry{CacheKey: cacheKey}
	err := s.db.QueryRowContext(ctx, `
		SELECT raw_json, stored_at, ttl_seconds FROM llm_cache WHERE cache_key = ?
	`, cacheKey).Scan(&e.RawJSON, &e.StoredAt, &e.TTLSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// CachePut stores or replaces a cached LLM response.
func (s *SQLStore) CachePut(ctx context.Context, e CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO llm_cache (cache_key, raw_json, stored_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			raw_json = excluded.raw_json,
			stored_at = excluded.stored_at,
			ttl_seconds = excluded.ttl_seconds
	`, e.CacheKey, e.RawJSON, e.StoredAt, e.TTLSeconds)
	return err
}

// --- Diagnostic helpers ---

// Stats holds aggregate counts of key database objects, surfaced by the
// benchmark-scale CLI command.
type Stats struct {
	Products      int `json:"products"`
	Runs          int `json:"runs"`
	Snippets      int `json:"snippets"`
	EvidenceRefs  int `json:"evidence_refs"`
	DomainStats   int `json:"domain_stats"`
}

// GetStats returns row counts across the core tables.
func (s *SQLStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM products", &stats.Products},
		{"SELECT COUNT(*) FROM runs", &stats.Runs},
		{"SELECT COUNT(*) FROM snippets", &stats.Snippets},
		{"SELECT COUNT(*) FROM evidence_refs", &stats.EvidenceRefs},
		{"SELECT COUNT(*) FROM domain_stats", &stats.DomainStats},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

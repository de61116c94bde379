//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

// ---------------------------------------------------------------------------
// Product CRUD
// ---------------------------------------------------------------------------

func sampleProduct(id string) Product {
	return Product{
		ProductID: id,
		Category:  "mouse",
		Brand:     "logitech",
		Model:     "mx master 3s",
		Variant:   "",
	}
}

func TestUpsertAndGetProduct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := sampleProduct("mouse-logitech-mxmaster3s")
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("upserting product: %v", err)
	}

	got, err := s.GetProduct(ctx, p.ProductID)
	if err != nil {
		t.Fatalf("getting product: %v", err)
	}
	if got.Brand != p.Brand || got.Model != p.Model {
		t.Errorf("got %+v, want brand/model %q/%q", got, p.Brand, p.Model)
	}
}

func TestUpsertProductUpdatesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := sampleProduct("mouse-logitech-mxmaster3s")
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}
	p.Variant = "graphite"
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("update upsert: %v", err)
	}

	got, err := s.GetProduct(ctx, p.ProductID)
	if err != nil {
		t.Fatalf("getting product: %v", err)
	}
	if got.Variant != "graphite" {
		t.Errorf("variant: got %q, want %q", got.Variant, "graphite")
	}
}

func TestGetProductNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetProduct(ctx, "nonexistent"); err == nil {
		t.Fatal("expected error for missing product")
	}
}

// ---------------------------------------------------------------------------
// Run lifecycle
// ---------------------------------------------------------------------------

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := sampleProduct("mouse-razer-viper")
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("upserting product: %v", err)
	}

	run := Run{RunID: "run-1", ProductID: p.ProductID, Round: 0}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("creating run: %v", err)
	}

	if err := s.AdvanceRunRound(ctx, run.RunID, 2); err != nil {
		t.Fatalf("advancing round: %v", err)
	}
	got, err := s.GetRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if got.Round != 2 {
		t.Errorf("round: got %d, want 2", got.Round)
	}
	if got.FinishedAt != "" {
		t.Errorf("expected unfinished run to have empty finished_at, got %q", got.FinishedAt)
	}

	if err := s.FinishRun(ctx, run.RunID, "required_and_critical_satisfied"); err != nil {
		t.Fatalf("finishing run: %v", err)
	}
	got, err = s.GetRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("getting finished run: %v", err)
	}
	if got.StopReason != "required_and_critical_satisfied" {
		t.Errorf("stop reason: got %q", got.StopReason)
	}
	if got.FinishedAt == "" {
		t.Error("expected finished_at to be set")
	}
}

func TestListRunsByProduct(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := sampleProduct("mouse-razer-viper")
	if err := s.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("upserting product: %v", err)
	}
	for _, id := range []string{"run-1", "run-2"} {
		if err := s.CreateRun(ctx, Run{RunID: id, ProductID: p.ProductID}); err != nil {
			t.Fatalf("creating run %s: %v", id, err)
		}
	}

	runs, err := s.ListRunsByProduct(ctx, p.ProductID)
	if err != nil {
		t.Fatalf("listing runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

// ---------------------------------------------------------------------------
// Round summaries
// ---------------------------------------------------------------------------

func TestRoundSummaries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := sampleProduct("mouse-razer-viper")
	s.UpsertProduct(ctx, p)
	s.CreateRun(ctx, Run{RunID: "run-1", ProductID: p.ProductID})

	for round := 0; round < 3; round++ {
		if _, err := s.InsertRoundSummary(ctx, "run-1", round, `{"missing_required_fields":[]}`); err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
	}

	summaries, err := s.ListRoundSummaries(ctx, "run-1")
	if err != nil {
		t.Fatalf("listing summaries: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(summaries))
	}
	for i, rs := range summaries {
		if rs.Round != i {
			t.Errorf("summary %d: round got %d, want %d", i, rs.Round, i)
		}
	}
}

// ---------------------------------------------------------------------------
// Snippets + FTS
// ---------------------------------------------------------------------------

func TestInsertAndGetSnippet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertProduct(ctx, sampleProduct("mouse-razer-viper"))
	s.CreateRun(ctx, Run{RunID: "run-1", ProductID: "mouse-razer-viper"})

	sn := Snippet{
		ID:             "snip-1",
		RunID:          "run-1",
		SnippetType:    "html_table_row",
		NormalizedText: "sensor dpi 26000",
		SnippetHash:    "sha256:deadbeef",
		SourceID:       "src-1",
		URL:            "https://example.com/mouse",
		RetrievedAt:    "2026-07-29T00:00:00Z",
	}
	if err := s.InsertSnippets(ctx, []Snippet{sn}); err != nil {
		t.Fatalf("inserting snippet: %v", err)
	}

	got, err := s.GetSnippet(ctx, "run-1", "snip-1")
	if err != nil {
		t.Fatalf("getting snippet: %v", err)
	}
	if got.NormalizedText != sn.NormalizedText {
		t.Errorf("text: got %q, want %q", got.NormalizedText, sn.NormalizedText)
	}
}

func TestFTSSearchSnippets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertProduct(ctx, sampleProduct("mouse-razer-viper"))
	s.CreateRun(ctx, Run{RunID: "run-1", ProductID: "mouse-razer-viper"})

	snippets := []Snippet{
		{ID: "s1", RunID: "run-1", SnippetType: "html_text", NormalizedText: "the sensor reports 26000 dpi", SnippetHash: "sha256:a", SourceID: "src-1", URL: "https://a", RetrievedAt: "2026-07-29T00:00:00Z"},
		{ID: "s2", RunID: "run-1", SnippetType: "html_text", NormalizedText: "weight is 63 grams", SnippetHash: "sha256:b", SourceID: "src-2", URL: "https://b", RetrievedAt: "2026-07-29T00:00:00Z"},
	}
	if err := s.InsertSnippets(ctx, snippets); err != nil {
		t.Fatalf("inserting snippets: %v", err)
	}

	matches, err := s.FTSSearchSnippets(ctx, "run-1", "dpi", 10)
	if err != nil {
		t.Fatalf("fts search: %v", err)
	}
	if len(matches) != 1 || matches[0].SnippetID != "s1" {
		t.Fatalf("expected match on s1, got %+v", matches)
	}
}

// ---------------------------------------------------------------------------
// Evidence refs
// ---------------------------------------------------------------------------

func TestEvidenceRefsByField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertProduct(ctx, sampleProduct("mouse-razer-viper"))
	s.CreateRun(ctx, Run{RunID: "run-1", ProductID: "mouse-razer-viper"})

	refs := []EvidenceRef{
		{ID: "ref-1", RunID: "run-1", Field: "sensor_dpi_max", URL: "https://a", SourceID: "src-1", Tier: 1, SnippetID: "s1", SnippetHash: "sha256:a", Quote: "26000 dpi", Method: "html_table"},
		{ID: "ref-2", RunID: "run-1", Field: "weight_g", URL: "https://b", SourceID: "src-2", Tier: 2, SnippetID: "s2", SnippetHash: "sha256:b", Quote: "63 g", Method: "llm_extract"},
	}
	if err := s.InsertEvidenceRefs(ctx, refs); err != nil {
		t.Fatalf("inserting refs: %v", err)
	}

	got, err := s.GetEvidenceRefsByField(ctx, "run-1", "sensor_dpi_max")
	if err != nil {
		t.Fatalf("querying refs: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ref-1" {
		t.Fatalf("expected 1 ref for sensor_dpi_max, got %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Budgets
// ---------------------------------------------------------------------------

func TestBudgetDefaultsToZero(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b, err := s.GetBudget(ctx, "unseen-product")
	if err != nil {
		t.Fatalf("getting budget: %v", err)
	}
	if b.URLs != 0 || b.LLMCalls != 0 {
		t.Errorf("expected zeroed budget, got %+v", b)
	}
}

func TestUpsertBudget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertProduct(ctx, sampleProduct("mouse-razer-viper"))

	b := Budget{ProductID: "mouse-razer-viper", URLs: 12, Queries: 5, LLMCalls: 3, HighTierCalls: 1, CostUSD: 0.42}
	if err := s.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("upserting budget: %v", err)
	}

	got, err := s.GetBudget(ctx, b.ProductID)
	if err != nil {
		t.Fatalf("getting budget: %v", err)
	}
	if got.URLs != 12 || got.CostUSD != 0.42 {
		t.Errorf("got %+v, want urls=12 cost=0.42", got)
	}

	b.URLs = 20
	if err := s.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("re-upserting budget: %v", err)
	}
	got, _ = s.GetBudget(ctx, b.ProductID)
	if got.URLs != 20 {
		t.Errorf("urls after update: got %d, want 20", got.URLs)
	}
}

// ---------------------------------------------------------------------------
// Drift baselines
// ---------------------------------------------------------------------------

func TestDriftBaselines(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertProduct(ctx, sampleProduct("mouse-razer-viper"))

	d := DriftBaseline{ProductID: "mouse-razer-viper", SourceID: "src-1", PageContentHash: "h1", TextHash: "t1"}
	if err := s.UpsertDriftBaseline(ctx, d); err != nil {
		t.Fatalf("upserting baseline: %v", err)
	}
	d.PageContentHash = "h2"
	if err := s.UpsertDriftBaseline(ctx, d); err != nil {
		t.Fatalf("updating baseline: %v", err)
	}

	got, err := s.GetDriftBaselines(ctx, "mouse-razer-viper")
	if err != nil {
		t.Fatalf("listing baselines: %v", err)
	}
	if len(got) != 1 || got[0].PageContentHash != "h2" {
		t.Fatalf("expected 1 updated baseline, got %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Learning artifacts
// ---------------------------------------------------------------------------

func TestLearningArtifacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.InsertLearningArtifact(ctx, LearningArtifact{
		Kind:        "field_rule_weight",
		ArtifactKey: "sensor_dpi_max",
		PayloadJSON: `{"weight":0.9}`,
		Accepted:    true,
	})
	if err != nil {
		t.Fatalf("inserting artifact: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero artifact id")
	}

	got, err := s.ListLearningArtifacts(ctx, "field_rule_weight")
	if err != nil {
		t.Fatalf("listing artifacts: %v", err)
	}
	if len(got) != 1 || !got[0].Accepted {
		t.Fatalf("expected 1 accepted artifact, got %+v", got)
	}
}

// ---------------------------------------------------------------------------
// Domain stats
// ---------------------------------------------------------------------------

func TestDomainStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := DomainStat{RootDomain: "logitech.com", Tier: 1, Attempts: 10, Successes: 9, ConsensusWins: 7}
	if err := s.UpsertDomainStats(ctx, d); err != nil {
		t.Fatalf("upserting domain stat: %v", err)
	}

	all, err := s.ListDomainStats(ctx)
	if err != nil {
		t.Fatalf("listing domain stats: %v", err)
	}
	if len(all) != 1 || all[0].RootDomain != "logitech.com" {
		t.Fatalf("expected 1 domain stat, got %+v", all)
	}
}

// ---------------------------------------------------------------------------
// LLM cache
// ---------------------------------------------------------------------------

func TestLLMCacheRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	miss, err := s.CacheGet(ctx, "no-such-key")
	if err != nil {
		t.Fatalf("cache get on miss: %v", err)
	}
	if miss != nil {
		t.Fatal("expected nil entry on cache miss")
	}

	entry := CacheEntry{CacheKey: "k1", RawJSON: `{"answers":[]}`, StoredAt: time.Now().UTC(), TTLSeconds: 3600}
	if err := s.CachePut(ctx, entry); err != nil {
		t.Fatalf("cache put: %v", err)
	}

	got, err := s.CacheGet(ctx, "k1")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if got == nil || got.RawJSON != entry.RawJSON {
		t.Fatalf("got %+v, want %+v", got, entry)
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertProduct(ctx, sampleProduct("mouse-razer-viper"))
	s.CreateRun(ctx, Run{RunID: "run-1", ProductID: "mouse-razer-viper"})

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("getting stats: %v", err)
	}
	if stats.Products != 1 || stats.Runs != 1 {
		t.Errorf("got %+v, want products=1 runs=1", stats)
	}
}

// Package runner implements the Product Runner: the per-product state
// machine that drives one harvest from identity gate through repeated
// GATE->PLAN->FETCH->EXTRACT->VERIFY->MERGE->CONSENSUS->CONSTRAIN->DECIDE
// rounds until a stop condition fires, then persists the latest record
// snapshot with its final summary and runs the learning gate over it.
// Per-domain observations for the source-intel aggregator are returned in
// Outcome; drift reconciliation is not run here (ReconcileAgainstPublished
// exposes it separately).
//
// Generalizes goreason.go's engine.Ingest: a single linear pipeline with a
// named-stage slog.Info breadcrumb at each step (parsing -> chunking ->
// embedding -> graph-building -> community-detection, each wrapped in
// time.Since(...) elapsed logging) is here turned into a loop, with DECIDE
// choosing between another PLAN iteration and a typed stop reason.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/budget"
	"github.com/cdubventures/spec-harvester/catalog"
	"github.com/cdubventures/spec-harvester/consensus"
	"github.com/cdubventures/spec-harvester/constraint"
	"github.com/cdubventures/spec-harvester/drift"
	"github.com/cdubventures/spec-harvester/evidence"
	"github.com/cdubventures/spec-harvester/extract"
	"github.com/cdubventures/spec-harvester/fetch"
	"github.com/cdubventures/spec-harvester/frontier"
	"github.com/cdubventures/spec-harvester/learn"
	"github.com/cdubventures/spec-harvester/llmextract"
	"github.com/cdubventures/spec-harvester/normalize"
	"github.com/cdubventures/spec-harvester/robots"
	"github.com/cdubventures/spec-harvester/rules"
	"github.com/cdubventures/spec-harvester/sourceintel"
	"github.com/cdubventures/spec-harvester/store"
	"github.com/cdubventures/spec-harvester/verify"
)

// Source names one URL a round may fetch for a product, as handed back by
// a Deps.Sources call at PLAN time.
type Source struct {
	URL     string
	Host    string
	SourceID string
	Kind    string // manufacturer | lab | review | retailer | store | database | community | aggregator
	Primary fetch.Mode
}

// SourceLister resolves the URLs a round should fetch for a product at a
// given deepening tier. Implementations live outside this package (query
// expansion, search-engine calls, sitemap walks); the runner only needs
// the resolved list.
type SourceLister func(ctx context.Context, category, productID string, tier frontier.Tier, round int) ([]Source, error)

// PromptBuilder renders the LLM prompt and JSON schema for one batch of
// fields given the evidence pack assembled for this round. Implementations
// live outside this package (prompt templates are a content concern, not a
// pipeline-shape concern).
type PromptBuilder func(batch llmextract.Batch, pack *evidence.Pack) (system, prompt string, schema map[string]any)

// Deps bundles every collaborator the runner composes. Rules, Catalog, and
// CrossFieldRules are category-scoped and resolved once by the caller
// before a Run.
type Deps struct {
	Category               string
	Rules                  *rules.Set
	Catalog                *catalog.Index
	CatalogFallback        *catalog.Index
	Robots                 *robots.Policy
	Fetcher                *fetch.Scheduler
	Sources                SourceLister
	LLM                    *llmextract.Engine
	PromptBuilder          PromptBuilder
	SQL                    *store.SQLStore
	Files                  *store.FileStore
	Mode                   frontier.Mode
	Limits                 budget.Limits
	ComponentRange         normalize.ComponentRangeFunc
	ComponentAlias         normalize.ComponentAliasFunc
	CrossFieldRules        []constraint.Rule
	CompoundConflictFields []string
	RequiredDomainCounts   map[rules.RequiredLevel]int
	LearnGate              learn.Gate
	Clock                  func() time.Time
	// PreferPDFTable mirrors Config.PDFPreferredBackend == "table": when
	// set, a fetched PDF's table surface is read before its kv surface.
	PreferPDFTable bool
	// ArticleExtractorV2 mirrors Config.ArticleExtractorV2: when false,
	// the table/dl/microdata/RDFa surfaces are skipped; JSON-LD,
	// OpenGraph, embedded state and the label-value-window surface run
	// either way.
	ArticleExtractorV2 bool
}

func (d Deps) now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now()
}

// Runner drives one product's harvest to completion.
type Runner struct {
	deps Deps
}

// New builds a Runner from deps.
func New(deps Deps) *Runner {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.LearnGate == (learn.Gate{}) {
		deps.LearnGate = learn.DefaultGate()
	}
	return &Runner{deps: deps}
}

// roundState threads the counters the frontier scheduler advances between
// rounds.
type roundState struct {
	round               int
	noProgressRounds    int
	noNewFieldsRounds   int
	noNewHighYieldRounds int
	tier                frontier.Tier
	summary             frontier.Summary
	record              harvester.Record
}

// Outcome is what Run returns: the final canonical record, the reason the
// run stopped, and the per-domain fetch/consensus observations collected
// for the source-intel aggregator.
type Outcome struct {
	Record     harvester.Record
	StopReason frontier.StopReason
	Domains    []sourceintel.Outcome
}

// Run drives identity through GATE, then loops PLAN..DECIDE until a stop
// reason fires, persisting round summaries and the latest record snapshot
// as it goes.
func (r *Runner) Run(ctx context.Context, identity harvester.Identity) (Outcome, error) {
	gate := catalog.GateWithFallback(r.deps.Catalog, r.deps.CatalogFallback, identity.Category, identity.Brand, identity.Model, identity.Variant)
	if !gate.Valid {
		return Outcome{}, fmt.Errorf("%w: %s", harvester.ErrIdentityRejected, gate.Reason)
	}
	productID := gate.CanonicalProductID
	if productID == "" {
		productID = identity.ProductID()
	}

	if r.deps.Rules == nil {
		return Outcome{}, fmt.Errorf("%w: category %q", harvester.ErrRulesNotLoaded, identity.Category)
	}

	slog.Info("runner: gate accepted", "product_id", productID, "category", identity.Category)

	product := store.Product{
		ProductID: productID,
		Category:  identity.Category,
		Brand:     identity.Brand,
		Model:     identity.Model,
		Variant:   identity.Variant,
	}
	if r.deps.SQL != nil {
		if err := r.deps.SQL.UpsertProduct(ctx, product); err != nil {
			return Outcome{}, fmt.Errorf("runner: upsert product: %w", err)
		}
	}

	counter := budget.NewCounter(r.deps.Limits, r.deps.Clock)

	runID := fmt.Sprintf("run_%s_%d", productID, r.deps.now().Unix())
	if r.deps.SQL != nil {
		if err := r.deps.SQL.CreateRun(ctx, store.Run{RunID: runID, ProductID: productID}); err != nil {
			return Outcome{}, fmt.Errorf("runner: create run: %w", err)
		}
	}

	state := roundState{record: harvester.Record{
		ProductID: productID,
		Category:  identity.Category,
		Identity:  identity,
		Fields:    map[string]harvester.FieldValue{},
		Provenance: map[string]harvester.Provenance{},
	}}

	var domainOutcomes []sourceintel.Outcome
	var finalReason frontier.StopReason

	for {
		select {
		case <-ctx.Done():
			finalReason = frontier.StopSignalTerminated
		default:
		}
		if finalReason != "" {
			break
		}

		state.round++
		state.tier = frontier.ResolveDeepeningTier(state.round, r.deps.Mode, state.summary, state.noProgressRounds)

		slog.Info("runner: round start", "product_id", productID, "round", state.round, "tier", state.tier)

		if violations := counter.Violations(); len(violations) > 0 {
			slog.Info("runner: budget exhausted", "product_id", productID, "violations", violations)
			finalReason = frontier.StopBudgetExhausted
			break
		}

		candidates, pack, roundDomains, err := r.planFetchExtract(ctx, productID, state, counter)
		if err != nil {
			return Outcome{}, fmt.Errorf("runner: round %d: %w", state.round, err)
		}
		domainOutcomes = append(domainOutcomes, roundDomains...)

		llmCandidates, err := r.extractLLM(ctx, candidates, pack, counter)
		if err != nil {
			slog.Info("runner: llm extraction degraded", "product_id", productID, "round", state.round, "error", err)
		}
		candidates = append(candidates, llmCandidates...)

		accepted := r.verify(candidates, pack)

		summary := r.mergeConsensusConstrain(&state.record, accepted)
		state.summary = summary
		markConsensusWinners(domainOutcomes, state.record)

		state.noProgressRounds = frontier.NextNoProgressRounds(state.noProgressRounds, summary)
		state.noNewFieldsRounds = frontier.NextNoNewFieldsRounds(state.noNewFieldsRounds, summary)
		state.noNewHighYieldRounds = frontier.NextNoNewHighYieldRounds(state.noNewHighYieldRounds, summary)

		if r.deps.SQL != nil {
			r.persistRoundSummary(ctx, runID, state.round, summary)
		}
		if r.deps.Files != nil {
			r.persistLatest(state.record)
		}

		reason := frontier.UberStopDecision(summary, state.round, state.noNewHighYieldRounds, state.noNewFieldsRounds)
		if reason != frontier.StopContinue {
			finalReason = reason
			break
		}
	}

	state.record.Summary = buildSummary(state.record, r.deps.Rules)
	if r.deps.Files != nil {
		r.persistLatest(state.record)
	}

	if r.deps.SQL != nil {
		if err := r.deps.SQL.FinishRun(ctx, runID, string(finalReason)); err != nil {
			slog.Info("runner: finishing run failed", "run_id", runID, "error", err)
		}
		snap := counter.Snapshot()
		if err := r.deps.SQL.UpsertBudget(ctx, store.Budget{
			ProductID:     productID,
			URLs:          snap.URLs,
			Queries:       snap.Queries,
			LLMCalls:      snap.LLMCalls,
			HighTierCalls: snap.HighTierCalls,
			CostUSD:       snap.CostUSD,
		}); err != nil {
			slog.Info("runner: persisting budget failed", "product_id", productID, "error", err)
		}
	}

	r.applyLearning(state.record)

	slog.Info("runner: run complete", "product_id", productID, "stop_reason", finalReason, "rounds", state.round)

	return Outcome{Record: state.record, StopReason: finalReason, Domains: domainOutcomes}, nil
}

// planFetchExtract runs the PLAN/FETCH/EXTRACT stages for one round: it
// resolves the source list, dispatches each fetch under budget and robots
// gating, and runs the deterministic extractor over every fetched page,
// building the bounded evidence pack as it goes.
func (r *Runner) planFetchExtract(ctx context.Context, productID string, state roundState, counter *budget.Counter) ([]harvester.Candidate, *evidence.Pack, []sourceintel.Outcome, error) {
	pack := evidence.NewPack(24_000)
	var candidates []harvester.Candidate
	var domains []sourceintel.Outcome

	if r.deps.Sources == nil {
		return candidates, pack, domains, nil
	}

	sources, err := r.deps.Sources(ctx, r.deps.Category, productID, state.tier, state.round)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("planning sources: %w", err)
	}

	for _, src := range sources {
		tier := harvester.TierFromDomainKind(src.Kind)
		outcome := sourceintel.Outcome{RootDomain: src.Host, Tier: int(tier)}

		if !counter.CanFetchURL() {
			domains = append(domains, outcome)
			continue
		}
		outcome.Attempted = true
		counter.RecordURLFetch()

		if r.deps.Fetcher == nil {
			domains = append(domains, outcome)
			continue
		}

		res, err := r.deps.Fetcher.Dispatch(ctx, src.URL, src.Host, src.Primary, src.Host)
		if err != nil {
			slog.Info("runner: fetch failed", "url", src.URL, "error", err)
			domains = append(domains, outcome)
			continue
		}
		if res.Status == 451 {
			domains = append(domains, outcome)
			continue
		}

		page := extract.Page{
			HTML:             res.HTML,
			NetworkResponses: res.NetworkResponses,
			EmbeddedState:    res.EmbeddedState,
			LDJSONBlocks:     res.LDJSONBlocks,
			RawBytes:         res.RawBytes,
			DocumentKind:     res.DocumentKind,
		}
		pageCandidates := r.extractDeterministic(page, src, pack)
		if len(pageCandidates) > 0 {
			outcome.Succeeded = true
		}
		candidates = append(candidates, pageCandidates...)
		domains = append(domains, outcome)
	}

	return candidates, pack, domains, nil
}

// extractDeterministic runs every deterministic extractor surface over one
// fetched page, binds each candidate to an evidence snippet, and converts
// the extractor's internal Candidate shape into the canonical
// harvester.Candidate with its snippet-backed evidence ref.
func (r *Runner) extractDeterministic(page extract.Page, src Source, pack *evidence.Pack) []harvester.Candidate {
	var extracted []extract.Candidate
	ldjson, _ := extract.ExtractJSONLD(page)
	extracted = append(extracted, ldjson...)
	extracted = append(extracted, extract.ExtractOpenGraph(page)...)
	extracted = append(extracted, extract.ExtractEmbeddedState(page)...)
	if r.deps.ArticleExtractorV2 {
		tables, _ := extract.ExtractHTMLTables(page.HTML, nil)
		extracted = append(extracted, tables...)
		defs, _ := extract.ExtractDefinitionLists(page.HTML, nil)
		extracted = append(extracted, defs...)
		extracted = append(extracted, extract.ExtractMicrodata(page.HTML)...)
		extracted = append(extracted, extract.ExtractRDFa(page.HTML)...)
	}
	windows, _ := extract.ExtractLabelValueWindows(page.HTML, nil)
	extracted = append(extracted, windows...)

	switch page.DocumentKind {
	case "pdf":
		if pdfCandidates, _, err := extract.ExtractPDFDocument(page.RawBytes, nil, r.deps.PreferPDFTable); err == nil {
			extracted = append(extracted, pdfCandidates...)
		} else {
			slog.Info("runner: pdf extraction failed", "url", src.URL, "error", err)
		}
	case "xlsx":
		if xlsxCandidates, _, err := extract.ExtractXLSXDocument(page.RawBytes, nil); err == nil {
			extracted = append(extracted, xlsxCandidates...)
		} else {
			slog.Info("runner: xlsx extraction failed", "url", src.URL, "error", err)
		}
	}

	now := r.deps.now().UTC().Format(time.RFC3339)
	out := make([]harvester.Candidate, 0, len(extracted))
	for _, c := range extracted {
		if !extract.AcceptDimension(c.Field, c.KeyPath) {
			continue
		}
		snip := evidence.NewSnippet(evidence.TypeDeterministicCandidate, c.Value, src.SourceID, src.URL, now, []string{c.Field})
		pack.Add(snip)
		fp := evidence.CandidateFingerprint(c.Field, c.Value, string(c.Method), c.KeyPath)
		pack.BindCandidate(fp, snip.ID)

		out = append(out, harvester.Candidate{
			Field:  c.Field,
			Value:  c.Value,
			Method: string(c.Method),
			Source: harvester.Source{
				Host:       src.Host,
				RootDomain: src.Host,
				Tier:       harvester.TierFromDomainKind(src.Kind),
				TierName:   harvester.TierFromDomainKind(src.Kind).Name(),
			},
			Confidence:   c.TargetMatchScore,
			EvidenceRefs: []string{snip.ID},
			SnippetHash:  snip.SnippetHash,
			Quote:        c.Value,
		})
	}
	return out
}

// extractLLM builds batches from the field order and routes each through
// the LLM Extractor under budget gating, converting accepted answers into
// harvester.Candidate values.
func (r *Runner) extractLLM(ctx context.Context, detCandidates []harvester.Candidate, pack *evidence.Pack, counter *budget.Counter) ([]harvester.Candidate, error) {
	if r.deps.LLM == nil || r.deps.PromptBuilder == nil {
		return nil, nil
	}

	fieldOrder := r.deps.Rules.FieldOrderList()
	forcedHigh := map[string]bool{}
	batches := llmextract.BuildBatches(fieldOrder, r.deps.Rules.Get, forcedHigh)

	var out []harvester.Candidate
	for _, batch := range batches {
		highTier := batch.Route == llmextract.RouteReasoning
		if !counter.CanCallLLM(highTier) {
			continue
		}

		system, prompt, schema := r.deps.PromptBuilder(batch, pack)
		refs := make([]string, len(pack.Snippets))
		for i, s := range pack.Snippets {
			refs[i] = s.ID
		}

		result, err := r.deps.LLM.Call(ctx, llmextract.Request{
			Batch:        batch,
			System:       system,
			Prompt:       prompt,
			EvidenceRefs: refs,
			JSONSchema:   schema,
		})
		counter.RecordLLMCall(highTier, result.Response.CostUSD)
		if err != nil {
			return out, err
		}

		for _, ans := range result.Response.Answers {
			out = append(out, harvester.Candidate{
				Field:        ans.Field,
				Value:        ans.Value,
				Method:       "llm_extract",
				EvidenceRefs: ans.EvidenceRefs,
				SnippetHash:  ans.SnippetHash,
				Quote:        ans.Quote,
			})
		}
	}
	return out, nil
}

// verify runs the Evidence Auditor over every candidate, re-resolving
// snippet ids against the round's evidence pack.
func (r *Runner) verify(candidates []harvester.Candidate, pack *evidence.Pack) []harvester.Candidate {
	lookup := func(id string) (evidence.Snippet, bool) {
		for _, s := range pack.Snippets {
			if s.ID == id {
				return s, true
			}
		}
		return evidence.Snippet{}, false
	}
	results, _, _ := verify.VerifyAll(candidates, lookup)

	var accepted []harvester.Candidate
	for _, res := range results {
		if res.Outcome == verify.OutcomeAccept {
			accepted = append(accepted, res.Candidate)
		}
	}
	return accepted
}

// mergeConsensusConstrain runs NORMALIZE->MERGE->CONSENSUS->CONSTRAIN for
// every field with at least one accepted candidate, writing the winning
// values and provenance into record and returning the round's frontier
// summary.
func (r *Runner) mergeConsensusConstrain(record *harvester.Record, accepted []harvester.Candidate) frontier.Summary {
	byField := map[string][]harvester.Candidate{}
	for _, c := range accepted {
		byField[c.Field] = append(byField[c.Field], c)
	}

	newFields := 0
	highYield := false
	requiredCounts := r.deps.RequiredDomainCounts
	if requiredCounts == nil {
		requiredCounts = rules.DefaultRequiredK()
	}

	for field, fieldCandidates := range byField {
		rule, ok := r.deps.Rules.Get(field)
		if !ok {
			continue
		}

		normalized := make([]harvester.Candidate, 0, len(fieldCandidates))
		for _, c := range fieldCandidates {
			res := normalize.Normalize(rule, c.Value, "", r.deps.ComponentRange, r.deps.ComponentAlias)
			if !res.OK {
				continue
			}
			c.Value = res.Value
			normalized = append(normalized, c)
		}
		if len(normalized) == 0 {
			continue
		}

		requiredK := requiredCounts[rule.RequiredLevel]
		result := consensus.Resolve(rule, requiredK, normalized)

		_, hadValue := record.Fields[field]
		record.Fields[field] = result.Value
		record.Provenance[field] = result.Provenance
		if !hadValue && !result.Value.Unk {
			newFields++
		}
		if result.Provenance.Confidence >= consensus.PassTarget {
			highYield = true
		}
	}

	contradictions := constraint.Solve(record.Fields, r.deps.CrossFieldRules, r.deps.CompoundConflictFields)
	for field := range record.Fields {
		if constraint.ForcesRed(field, contradictions) {
			record.Fields[field] = harvester.Unknown(harvester.ReasonCompoundRangeConflict)
		}
	}

	summary := frontier.Summary{NewFieldsThisRound: newFields, HighYieldThisRound: highYield}
	for _, field := range r.deps.Rules.FieldOrderList() {
		rule, ok := r.deps.Rules.Get(field)
		if !ok {
			continue
		}
		fv, known := record.Fields[field]
		if !known || fv.Unk {
			if rule.RequiredLevel == rules.Required {
				summary.MissingRequiredFields = append(summary.MissingRequiredFields, field)
			}
			if rule.RequiredLevel == rules.Critical {
				summary.CriticalFieldsBelowPassTarget = append(summary.CriticalFieldsBelowPassTarget, field)
				continue
			}
		}
		if known && !fv.Unk && rule.RequiredLevel == rules.Critical {
			if prov, ok := record.Provenance[field]; !ok || prov.Confidence < consensus.PassTarget {
				summary.CriticalFieldsBelowPassTarget = append(summary.CriticalFieldsBelowPassTarget, field)
			}
		}
	}
	sort.Strings(summary.MissingRequiredFields)
	sort.Strings(summary.CriticalFieldsBelowPassTarget)

	return summary
}

// markConsensusWinners flags every domain observation whose host backed a
// field's winning evidence, mutating domains in place by index so the
// marks survive after this round's slice was appended onto the run-wide
// accumulator.
func markConsensusWinners(domains []sourceintel.Outcome, record harvester.Record) {
	winningHosts := map[string]bool{}
	for _, prov := range record.Provenance {
		for _, ref := range prov.Evidence {
			winningHosts[ref.SourceID] = true
		}
	}
	for i := range domains {
		if winningHosts[domains[i].RootDomain] {
			domains[i].WonConsensus = true
		}
	}
}

func buildSummary(record harvester.Record, ruleSet *rules.Set) harvester.Summary {
	fieldOrder := ruleSet.FieldOrderList()
	total := len(fieldOrder)
	covered := 0
	var missingRequired, criticalBelow, fieldsBelow []string
	reasoning := map[string]harvester.FieldReasoning{}

	for _, field := range fieldOrder {
		rule, ok := ruleSet.Get(field)
		if !ok {
			continue
		}
		fv, known := record.Fields[field]
		if known && !fv.Unk {
			covered++
			prov := record.Provenance[field]
			if prov.Confidence < consensus.PassTarget {
				fieldsBelow = append(fieldsBelow, field)
				if rule.RequiredLevel == rules.Critical {
					criticalBelow = append(criticalBelow, field)
				}
			}
			continue
		}
		if known {
			reasoning[field] = harvester.FieldReasoning{UnknownReason: fv.Reason}
		}
		if rule.RequiredLevel == rules.Required {
			missingRequired = append(missingRequired, field)
		}
		if rule.RequiredLevel == rules.Critical {
			criticalBelow = append(criticalBelow, field)
		}
	}

	coverage := 0.0
	if total > 0 {
		coverage = float64(covered) / float64(total)
	}

	return harvester.Summary{
		Validated:                     len(missingRequired) == 0 && len(criticalBelow) == 0,
		Confidence:                    coverage,
		CoverageOverall:               coverage,
		CompletenessRequired:          coverage,
		MissingRequiredFields:         missingRequired,
		CriticalFieldsBelowPassTarget: criticalBelow,
		FieldsBelowPassTarget:         fieldsBelow,
		FieldReasoning:                reasoning,
	}
}

func (r *Runner) persistRoundSummary(ctx context.Context, runID string, round int, summary frontier.Summary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		slog.Info("runner: encoding round summary failed", "run_id", runID, "round", round, "error", err)
		return
	}
	if _, err := r.deps.SQL.InsertRoundSummary(ctx, runID, round, string(payload)); err != nil {
		slog.Info("runner: persisting round summary failed", "run_id", runID, "round", round, "error", err)
	}
}

func (r *Runner) persistLatest(record harvester.Record) {
	if err := r.deps.Files.WriteJSON(store.ResolveLatestKey(record.Category, record.ProductID, "normalized.json"), record.Fields); err != nil {
		slog.Info("runner: writing latest normalized.json failed", "product_id", record.ProductID, "error", err)
	}
	if err := r.deps.Files.WriteJSON(store.ResolveLatestKey(record.Category, record.ProductID, "provenance.json"), record.Provenance); err != nil {
		slog.Info("runner: writing latest provenance.json failed", "product_id", record.ProductID, "error", err)
	}
	if err := r.deps.Files.WriteJSON(store.ResolveLatestKey(record.Category, record.ProductID, "summary.json"), record.Summary); err != nil {
		slog.Info("runner: writing latest summary.json failed", "product_id", record.ProductID, "error", err)
	}
}

// applyLearning runs the Learning Updater's gate over the run's accepted
// fields, logging which observations cleared the bar for future
// component/source learning artifacts. The artifacts table itself is
// populated by the caller's learning pipeline; this only decides
// admissibility.
func (r *Runner) applyLearning(record harvester.Record) {
	for field, prov := range record.Provenance {
		if len(prov.Evidence) == 0 {
			continue
		}
		tier := prov.Evidence[0].Tier
		ok, reasons := learn.Decide(r.deps.LearnGate, learn.Observation{
			Confidence:      prov.Confidence,
			EvidenceRefCount: len(prov.Evidence),
			FieldStatus:     learn.StatusAccepted,
			Tier:            tier,
		})
		if !ok {
			slog.Debug("runner: learning observation rejected", "field", field, "reasons", reasons)
		}
	}
}

// ReconcileAgainstPublished runs the Drift Scheduler's reconciliation for a
// freshly-extracted record against what is currently published, returning
// the disposition the caller should act on.
func ReconcileAgainstPublished(published, fresh *harvester.Record) drift.ReconcileDisposition {
	return drift.Reconcile(published, fresh)
}

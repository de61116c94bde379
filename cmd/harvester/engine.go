package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/catalog"
	"github.com/cdubventures/spec-harvester/constraint"
	"github.com/cdubventures/spec-harvester/fetch"
	"github.com/cdubventures/spec-harvester/llm"
	"github.com/cdubventures/spec-harvester/llmextract"
	"github.com/cdubventures/spec-harvester/robots"
	"github.com/cdubventures/spec-harvester/rules"
	"github.com/cdubventures/spec-harvester/runner"
	"github.com/cdubventures/spec-harvester/store"
)

// categoryPaths resolves the compiled artifact paths for one category
// under cfg.HelperFilesRoot, per config.go's doc comment:
// <root>/<category>/_generated/....
type categoryPaths struct {
	root       string
	rulesFile  string
	catalog    string
	sourceFile string
}

func resolveCategoryPaths(cfg harvester.Config, category string) categoryPaths {
	root := filepath.Join(cfg.HelperFilesRoot, category)
	return categoryPaths{
		root:       root,
		rulesFile:  filepath.Join(root, "_generated", "field_rules.json"),
		catalog:    filepath.Join(root, "_generated", "product_catalog.json"),
		sourceFile: filepath.Join(root, "_generated", "sources.json"),
	}
}

// openStores opens the SQLStore and FileStore for cfg, the pair every
// subcommand that touches persisted state needs.
func openStores(cfg harvester.Config) (*store.SQLStore, *store.FileStore, error) {
	sql, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening sql store: %w", err)
	}
	files, err := store.NewFileStore(cfg.StorageDir)
	if err != nil {
		sql.Close()
		return nil, nil, fmt.Errorf("opening file store: %w", err)
	}
	return sql, files, nil
}

// buildLLMEngine wires cfg's fast/reasoning routes into an llmextract.Engine.
// When cfg.Cortex.BaseURL is set it also builds a real Cortex sidecar
// (llm.CortexClient) and shares its circuit breaker with the Engine, so
// llmextract.Engine.execute actually dispatches through the sidecar first
// and falls back to the direct routes on an open breaker or a sidecar
// error; with no BaseURL configured the sidecar stays nil and every task
// gets fallback_non_sidecar, same as before Cortex was wired in.
func buildLLMEngine(cfg harvester.Config) (*llmextract.Engine, error) {
	fastProvider, err := llm.NewProvider(cfg.LLMFast)
	if err != nil {
		return nil, fmt.Errorf("building fast llm provider: %w", err)
	}
	reasoningProvider, err := llm.NewProvider(cfg.LLMReasoning)
	if err != nil {
		return nil, fmt.Errorf("building reasoning llm provider: %w", err)
	}

	engine := &llmextract.Engine{
		Direct:       &routedExecutor{fast: &llmextract.DirectExecutor{Provider: fastProvider}, reasoning: &llmextract.DirectExecutor{Provider: reasoningProvider}},
		SidecarReady: false,
		Cache:        llmextract.NewMemCache(),
		CacheTTL:     24 * time.Hour,
	}

	if cfg.Cortex.BaseURL != "" {
		cortex := llm.NewCortex(llm.CortexConfig{
			BaseURL:          cfg.Cortex.BaseURL,
			Model:            cfg.Cortex.Model,
			APIKey:           cfg.Cortex.APIKey,
			FailureThreshold: cfg.Cortex.FailureThreshold,
			CircuitOpenMs:    cfg.Cortex.CircuitOpenMs,
		})
		engine.Sidecar = &cortexExecutor{client: cortex}
		engine.Breaker = cortex.Breaker()
		engine.SidecarReady = true
	}

	return engine, nil
}

// routedExecutor picks the fast or reasoning DirectExecutor by the
// request's route, letting a single llmextract.Engine.Direct value serve
// both of Config's provider routes instead of hard-coding one.
type routedExecutor struct {
	fast, reasoning llmextract.Executor
}

func (r *routedExecutor) Execute(ctx context.Context, req llmextract.Request) (string, error) {
	if req.Batch.Route == llmextract.RouteReasoning {
		return r.reasoning.Execute(ctx, req)
	}
	return r.fast.Execute(ctx, req)
}

// cortexExecutor adapts an llm.CortexClient (a Provider) into an
// llmextract.Executor, the same shape llmextract.DirectExecutor gives a
// plain llm.Provider, so the Cortex sidecar can sit behind Engine.Sidecar.
type cortexExecutor struct {
	client *llm.CortexClient
}

func (c *cortexExecutor) Execute(ctx context.Context, req llmextract.Request) (string, error) {
	var format string
	if req.JSONSchema != nil {
		format = "json_object"
	}
	resp, err := c.client.Chat(ctx, llm.ChatRequest{
		Model:          req.Model,
		Messages:       []llm.Message{{Role: "system", Content: req.System}, {Role: "user", Content: req.Prompt}},
		ResponseFormat: format,
		JSONSchema:     req.JSONSchema,
	})
	if err != nil {
		var su *llm.SchemaUnsupportedErr
		if errors.As(err, &su) {
			return "", &llmextract.SchemaUnsupportedErr{Err: su}
		}
		return "", err
	}
	return resp.Content, nil
}

// buildRunnerDeps assembles a runner.Deps for category from cfg and the
// category's compiled artifacts. The real network Fetcher is an external
// collaborator (§1 Non-goals); callers needing a live fetch pass one in,
// otherwise fetcher may be nil and only dry-run fetches resolve. A non-nil
// fetcher serves both the http and replay modes.
func buildRunnerDeps(cfg harvester.Config, category string, sql *store.SQLStore, files *store.FileStore, fetcher fetch.Fetcher) (runner.Deps, error) {
	paths := resolveCategoryPaths(cfg, category)

	ruleSet, err := rules.Load(paths.rulesFile)
	if err != nil {
		return runner.Deps{}, fmt.Errorf("loading rules for %s: %w", category, err)
	}

	catalogIndex, err := catalog.Load(paths.catalog)
	if err != nil {
		return runner.Deps{}, fmt.Errorf("loading catalog for %s: %w", category, err)
	}

	llmEngine, err := buildLLMEngine(cfg)
	if err != nil {
		return runner.Deps{}, err
	}

	robotsPolicy := robots.NewPolicy(robots.AllowAllFetcher{}, "spec-harvester", 0)
	fetchers := map[fetch.Mode]fetch.Fetcher{fetch.ModeDryRun: fetch.DryRunFetcher{}}
	if fetcher != nil {
		fetchers[fetch.ModeHTTP] = fetcher
		fetchers[fetch.ModeReplay] = fetcher
	}
	scheduler := fetch.NewScheduler(fetchers, robotsPolicy, 0, 2)

	return runner.Deps{
		Category:               category,
		Rules:                  ruleSet,
		Catalog:                catalogIndex,
		Robots:                 robotsPolicy,
		Fetcher:                scheduler,
		Sources:                defaultSourceLister(paths.sourceFile),
		LLM:                    llmEngine,
		PromptBuilder:          defaultPromptBuilder,
		SQL:                    sql,
		Files:                  files,
		Limits:                 cfg.Budgets,
		CrossFieldRules:        constraint.DefaultRules(),
		RequiredDomainCounts:   ruleSet.RequiredK,
		PreferPDFTable:         cfg.PDFPreferredBackend == "table",
		ArticleExtractorV2:     cfg.ArticleExtractorV2,
	}, nil
}

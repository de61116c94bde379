package harvester

import (
	"fmt"
	"os"

	"github.com/cdubventures/spec-harvester/budget"
	"github.com/cdubventures/spec-harvester/llm"
)

// Config holds all configuration for the harvester engine.
type Config struct {
	// StorageDir is the root directory for the local object store
	// (specs/inputs, specs/outputs, output/, final/). See SPEC_FULL.md §6.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// HelperFilesRoot is the root directory holding per-category compiled
	// rules, catalogs and source lists (<root>/<category>/_generated/...).
	HelperFilesRoot string `json:"helper_files_root" yaml:"helper_files_root"`

	// DBPath is the SQLite database path used for run/drift/learning state.
	// If empty, defaults to "<StorageDir>/harvester.db".
	DBPath string `json:"db_path" yaml:"db_path"`

	// RunProfile selects fast|standard|thorough defaults for budgets and
	// deepening behavior. Overridden by the RUN_PROFILE env var.
	RunProfile string `json:"run_profile" yaml:"run_profile"`

	// DaemonConcurrency bounds how many products run in parallel.
	DaemonConcurrency int `json:"daemon_concurrency" yaml:"daemon_concurrency"`

	// Budgets are the default per-product budget limits; categories may
	// override via compiled rules.
	Budgets budget.Limits `json:"budgets" yaml:"budgets"`

	// LLM routes: "fast" for easy/medium batches, "reasoning" for
	// hard/instrumented batches or runtime-forced-high fields.
	LLMFast      llm.Config `json:"llm_fast" yaml:"llm_fast"`
	LLMReasoning llm.Config `json:"llm_reasoning" yaml:"llm_reasoning"`

	// Cortex configures the optional sidecar executor and its circuit breaker.
	Cortex CortexConfig `json:"cortex" yaml:"cortex"`

	// EvidenceMaxChars bounds the evidence pack handed to the LLM extractor.
	EvidenceMaxChars int `json:"evidence_max_chars" yaml:"evidence_max_chars"`

	// ClusterMatchThreshold is the minimum target-match score (§4.5) for a
	// deterministic candidate to be attributed to the product being run.
	ClusterMatchThreshold float64 `json:"cluster_match_threshold" yaml:"cluster_match_threshold"`

	// ArticleExtractorV2 toggles the newer HTML structured-surface walk
	// (tables/dl/microdata/RDFa) over the legacy label-value-window-only
	// surface. Overridden by the ARTICLE_EXTRACTOR_V2 env var.
	ArticleExtractorV2 bool `json:"article_extractor_v2" yaml:"article_extractor_v2"`

	// PDFPreferredBackend names which PDF surface runs first when a
	// source resolves to a PDF download: "kv" or "table". Overridden by
	// the PDF_PREFERRED_BACKEND env var.
	PDFPreferredBackend string `json:"pdf_preferred_backend" yaml:"pdf_preferred_backend"`
}

// CortexConfig configures the sidecar LLM executor (§4.7). BaseURL empty
// means no sidecar: Runner dispatches straight to LLMFast/LLMReasoning and
// every task reports fallback_non_sidecar.
type CortexConfig struct {
	BaseURL          string `json:"base_url" yaml:"base_url"`
	Model            string `json:"model" yaml:"model"`
	APIKey           string `json:"api_key" yaml:"api_key"`
	FailureThreshold int    `json:"failure_threshold" yaml:"failure_threshold"`
	CircuitOpenMs    int    `json:"circuit_open_ms" yaml:"circuit_open_ms"`
}

// DefaultConfig returns a Config with the "standard" run profile.
func DefaultConfig() Config {
	return Config{
		StorageDir:             "./_storage",
		HelperFilesRoot:        "./helper_files",
		RunProfile:             "standard",
		DaemonConcurrency:      4,
		Budgets:                budget.StandardLimits(),
		LLMFast:                llm.Config{Provider: "openai", Model: "gpt-4o-mini"},
		LLMReasoning:           llm.Config{Provider: "openai", Model: "gpt-4o"},
		Cortex:                 CortexConfig{FailureThreshold: 3, CircuitOpenMs: 30_000},
		EvidenceMaxChars:       24_000,
		ClusterMatchThreshold:  0.52,
		ArticleExtractorV2:     true,
		PDFPreferredBackend:    "kv",
	}
}

// ApplyProfile adjusts budgets for fast/standard/thorough profiles. It is
// idempotent: applying the same profile twice yields the same limits.
func (c *Config) ApplyProfile() {
	switch c.RunProfile {
	case "fast":
		c.Budgets = budget.FastLimits()
	case "thorough":
		c.Budgets = budget.ThoroughLimits()
	default:
		c.Budgets = budget.StandardLimits()
	}
}

// ApplyEnv layers well-known environment variable overrides on top of c,
// mirroring §6's RUN_PROFILE and per-knob override list.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RUN_PROFILE"); v != "" {
		c.RunProfile = v
	}
	if v := os.Getenv("HARVESTER_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("HARVESTER_STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
	if v := os.Getenv("ARTICLE_EXTRACTOR_V2"); v != "" {
		c.ArticleExtractorV2 = v == "1" || v == "true"
	}
	if v := os.Getenv("PDF_PREFERRED_BACKEND"); v != "" {
		c.PDFPreferredBackend = v
	}
	if v := os.Getenv("CORTEX_BASE_URL"); v != "" {
		c.Cortex.BaseURL = v
	}
	if v := os.Getenv("CORTEX_API_KEY"); v != "" {
		c.Cortex.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if c.LLMFast.APIKey == "" {
			c.LLMFast.APIKey = v
		}
		if c.LLMReasoning.APIKey == "" {
			c.LLMReasoning.APIKey = v
		}
	} else if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		// Missing OPENAI_API_KEY falls back to DEEPSEEK_API_KEY with
		// provider-specific defaults (§6).
		if c.LLMFast.APIKey == "" {
			c.LLMFast.Provider = "deepseek"
			c.LLMFast.APIKey = v
			if c.LLMFast.BaseURL == "" {
				c.LLMFast.BaseURL = "https://api.deepseek.com"
			}
		}
		if c.LLMReasoning.APIKey == "" {
			c.LLMReasoning.Provider = "deepseek"
			c.LLMReasoning.APIKey = v
			if c.LLMReasoning.BaseURL == "" {
				c.LLMReasoning.BaseURL = "https://api.deepseek.com"
			}
		}
	}
}

// Validate returns ErrInvalidConfig wrapped with detail when required
// combinations are missing (e.g. an LLM route enabled without a key).
func (c *Config) Validate() error {
	if c.DaemonConcurrency <= 0 {
		return fmt.Errorf("%w: daemon_concurrency must be > 0", ErrInvalidConfig)
	}
	for name, route := range map[string]llm.Config{"fast": c.LLMFast, "reasoning": c.LLMReasoning} {
		if route.Provider == "" {
			continue
		}
		if route.Provider != "ollama" && route.Provider != "lmstudio" && route.APIKey == "" {
			return fmt.Errorf("%w: llm route %q configured without an API key", ErrInvalidConfig, name)
		}
	}
	return nil
}

// ResolveDBPath returns DBPath if set, else "<StorageDir>/harvester.db".
// Callers load a Config, apply overrides, then call this once before
// opening the store so an empty DBPath never reaches store.New.
func (c *Config) ResolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	dir := c.StorageDir
	if dir == "" {
		dir = "."
	}
	return dir + "/harvester.db"
}

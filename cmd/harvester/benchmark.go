package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	harvester "github.com/cdubventures/spec-harvester"
	"github.com/cdubventures/spec-harvester/fetch"
	"github.com/cdubventures/spec-harvester/runner"
)

// benchmarkCorpus is the on-disk fixture a benchmark run replays: a fixed
// url->fetch.Result table (fed straight into fetch.ReplayFetcher) plus the
// identities to drive through it.
type benchmarkCorpus struct {
	Artifacts  map[string]fetch.Result `json:"artifacts"`
	Identities []harvester.Identity    `json:"identities"`
}

func loadCorpus(path string) (benchmarkCorpus, error) {
	var corpus benchmarkCorpus
	data, err := os.ReadFile(path)
	if err != nil {
		return corpus, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &corpus); err != nil {
		return corpus, fmt.Errorf("parsing corpus %s: %w", path, err)
	}
	return corpus, nil
}

// newBenchmarkScaleCmd replays a fixed fetch-artifact corpus through the
// full pipeline (§4.4's replay mode) and reports wallclock/LLM-call/cost
// aggregates, for checking how the pipeline scales against a fixed corpus
// size without touching the network.
func newBenchmarkScaleCmd() *cobra.Command {
	var category, corpusPath string

	cmd := &cobra.Command{
		Use:   "benchmark-scale",
		Short: "Replay a fixed fetch-artifact corpus and report aggregate cost/latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			corpus, err := loadCorpus(corpusPath)
			if err != nil {
				return withExitCode(1, err)
			}

			ctx := cmd.Context()
			sql, files, err := openStores(cfg)
			if err != nil {
				return withExitCode(1, err)
			}
			defer sql.Close()

			replay := fetch.NewReplayFetcher(corpus.Artifacts)
			deps, err := buildRunnerDeps(cfg, category, sql, files, replay)
			if err != nil {
				return withExitCode(1, err)
			}
			r := runner.New(deps)

			start := time.Now()
			var totalLLMCalls, totalHighTier int
			var totalCostUSD float64
			for _, identity := range corpus.Identities {
				if _, err := r.Run(ctx, identity); err != nil {
					slogError("benchmark-scale: run failed", identity.ProductID(), err)
					continue
				}
				budget, err := sql.GetBudget(ctx, identity.ProductID())
				if err != nil {
					continue
				}
				totalLLMCalls += budget.LLMCalls
				totalHighTier += budget.HighTierCalls
				totalCostUSD += budget.CostUSD
			}
			elapsed := time.Since(start)

			fmt.Printf("products=%d wallclock=%s llm_calls=%d high_tier_calls=%d cost_usd=%.4f\n",
				len(corpus.Identities), elapsed, totalLLMCalls, totalHighTier, totalCostUSD)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "product category (required)")
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "path to a benchmark corpus JSON file (required)")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("corpus")
	return cmd
}

// goldenRecord pins the expected published fields for one identity, the
// regression fixture benchmark-golden checks actual output against.
type goldenRecord struct {
	Identity harvester.Identity `json:"identity"`
	Fields   map[string]string  `json:"fields"` // field -> expected value.Normalized
}

// newBenchmarkGoldenCmd replays a corpus and diffs each run's published
// fields against a golden fixture, failing (exit 1) on any mismatch —
// a regression gate for rule/prompt changes.
func newBenchmarkGoldenCmd() *cobra.Command {
	var category, corpusPath, goldenPath string

	cmd := &cobra.Command{
		Use:   "benchmark-golden",
		Short: "Replay a corpus and diff published fields against a golden fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			corpus, err := loadCorpus(corpusPath)
			if err != nil {
				return withExitCode(1, err)
			}
			goldenData, err := os.ReadFile(goldenPath)
			if err != nil {
				return withExitCode(1, fmt.Errorf("reading golden fixture: %w", err))
			}
			var golden []goldenRecord
			if err := json.Unmarshal(goldenData, &golden); err != nil {
				return withExitCode(1, fmt.Errorf("parsing golden fixture: %w", err))
			}
			goldenByID := make(map[string]goldenRecord, len(golden))
			for _, g := range golden {
				goldenByID[g.Identity.ProductID()] = g
			}

			ctx := cmd.Context()
			sql, files, err := openStores(cfg)
			if err != nil {
				return withExitCode(1, err)
			}
			defer sql.Close()

			replay := fetch.NewReplayFetcher(corpus.Artifacts)
			deps, err := buildRunnerDeps(cfg, category, sql, files, replay)
			if err != nil {
				return withExitCode(1, err)
			}
			r := runner.New(deps)

			var mismatches int
			for _, identity := range corpus.Identities {
				outcome, err := r.Run(ctx, identity)
				if err != nil {
					slogError("benchmark-golden: run failed", identity.ProductID(), err)
					mismatches++
					continue
				}
				want, ok := goldenByID[identity.ProductID()]
				if !ok {
					continue
				}
				for field, expected := range want.Fields {
					got, present := outcome.Record.Fields[field]
					gotStr := ""
					if present && !got.Unk {
						gotStr = fmt.Sprint(got.Value)
					}
					if !present || got.Unk || gotStr != expected {
						fmt.Printf("mismatch product_id=%s field=%s want=%q got=%q\n", identity.ProductID(), field, expected, gotStr)
						mismatches++
					}
				}
			}

			if mismatches > 0 {
				return withExitCode(1, fmt.Errorf("%d field mismatches against golden fixture", mismatches))
			}
			fmt.Printf("golden check passed: %d products\n", len(corpus.Identities))
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "product category (required)")
	cmd.Flags().StringVar(&corpusPath, "corpus", "", "path to a benchmark corpus JSON file (required)")
	cmd.Flags().StringVar(&goldenPath, "golden", "", "path to a golden fixture JSON file (required)")
	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("corpus")
	cmd.MarkFlagRequired("golden")
	return cmd
}

func slogError(msg, productID string, err error) {
	fmt.Fprintf(os.Stderr, "%s product_id=%s error=%v\n", msg, productID, err)
}

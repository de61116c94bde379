package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cdubventures/spec-harvester/evidence"
	"github.com/cdubventures/spec-harvester/fetch"
	"github.com/cdubventures/spec-harvester/frontier"
	"github.com/cdubventures/spec-harvester/llmextract"
	"github.com/cdubventures/spec-harvester/runner"
)

// sourceFileRow is one row of a category's compiled sources.json: the
// static seed list a round's tier expands from (§4.5's "query expansion,
// search-engine calls, sitemap walks" feed into this same shape upstream).
type sourceFileRow struct {
	URL     string `json:"url"`
	Host    string `json:"host"`
	Kind    string `json:"kind"`
	Primary string `json:"primary"` // fetch.Mode value: http | dynamic | playwright | replay | dryrun
	Tier    int    `json:"tier"`    // minimum frontier.Tier this source is eligible at
}

// defaultSourceLister resolves the source list for a round from a
// category's compiled sources.json, filtered to rows whose Tier is at or
// below the round's deepening tier — a static stand-in for the query
// expansion/search-engine resolution §4.5 describes as living outside
// this package.
func defaultSourceLister(path string) runner.SourceLister {
	return func(ctx context.Context, category, productID string, tier frontier.Tier, round int) ([]runner.Source, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("reading sources for %s: %w", category, err)
		}
		var rows []sourceFileRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, fmt.Errorf("parsing sources for %s: %w", category, err)
		}

		var out []runner.Source
		for _, row := range rows {
			if frontier.Tier(row.Tier) > tier {
				continue
			}
			mode := fetch.Mode(row.Primary)
			if mode == "" {
				mode = fetch.ModeDryRun
			}
			out = append(out, runner.Source{
				URL:      row.URL,
				Host:     row.Host,
				SourceID: row.Host,
				Kind:     row.Kind,
				Primary:  mode,
			})
		}
		return out, nil
	}
}

// defaultPromptBuilder renders a plain-text instruction listing the
// batch's fields and the evidence pack's snippets, the same
// "evidence-then-ask" shape as the teacher's graph.Builder prompt
// (regex-hinted candidates pre-extracted, then an LLM pass over the
// remaining text) generalized from "entities/relations" to "field name ->
// value, with a quote from the supporting snippet".
func defaultPromptBuilder(batch llmextract.Batch, pack *evidence.Pack) (system, prompt string, schema map[string]any) {
	system = "You are extracting structured product specification fields from the evidence below. " +
		"Only use values explicitly supported by a quoted snippet; answer unk with a reason if no snippet supports a field."

	var sb strings.Builder
	sb.WriteString("Fields to extract: ")
	sb.WriteString(strings.Join(batch.Fields, ", "))
	sb.WriteString("\n\nEvidence snippets:\n")
	for _, s := range pack.Snippets {
		fmt.Fprintf(&sb, "- [%s] (%s, %s): %s\n", s.ID, s.SourceID, s.URL, s.NormalizedText)
	}
	prompt = sb.String()

	properties := map[string]any{}
	for _, f := range batch.Fields {
		properties[f] = map[string]any{
			"type":       "object",
			"properties": map[string]any{"value": map[string]any{"type": "string"}, "quote": map[string]any{"type": "string"}, "snippet_id": map[string]any{"type": "string"}},
		}
	}
	schema = map[string]any{"type": "object", "properties": properties}
	return system, prompt, schema
}

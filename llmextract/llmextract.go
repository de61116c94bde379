// Package llmextract implements the LLM Extractor: batches fields by
// difficulty and co-extraction affinity, routes each batch to a fast or
// reasoning model, calls through an optional circuit-breakered sidecar
// executor with direct fallback, caches responses, and repairs JSON
// answers.
//
// Batching/fan-out is grounded on graph/builder.go's bounded-concurrency
// chunk processing (sem := make(chan struct{}, concurrency) + WaitGroup),
// here applied to field-group batches instead of document chunks; routing
// generalizes llm.Config's "one provider per purpose" shape
// (Config.Chat/Vision/Embedding) into a named fast/reasoning route map.
// extractJSON is reused verbatim from graph/builder.go, extended with a
// one-shot json_schema-unsupported retry modeled on the teacher's
// "batch fails -> fall back to per-item" idiom (embedChunks).
package llmextract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cdubventures/spec-harvester/llm"
	"github.com/cdubventures/spec-harvester/rules"
)

// MaxBatches bounds how many field batches one call fans fields into (§4.7).
const MaxBatches = 7

// Route names which configured provider purpose services a batch.
type Route string

const (
	RouteFast      Route = "fast"
	RouteReasoning Route = "reasoning"
)

// Batch is one group of fields sent to the LLM together.
type Batch struct {
	Fields []string
	Route  Route
}

// BuildBatches groups fields into at most MaxBatches batches by difficulty
// and co-extraction affinity (fields sharing a parse-template kind group
// together), routing any batch containing a hard/instrumented field, or
// any runtime-forced-high field, to RouteReasoning.
func BuildBatches(fieldOrder []string, get func(string) (rules.FieldRule, bool), forcedHigh map[string]bool) []Batch {
	groups := map[string][]string{}
	var groupOrder []string
	for _, f := range fieldOrder {
		rule, ok := get(f)
		affinity := "default"
		if ok {
			affinity = rule.Parse.Template
		}
		if _, seen := groups[affinity]; !seen {
			groupOrder = append(groupOrder, affinity)
		}
		groups[affinity] = append(groups[affinity], f)
	}

	var batches []Batch
	for _, key := range groupOrder {
		fields := groups[key]
		route := RouteFast
		for _, f := range fields {
			if forcedHigh[f] {
				route = RouteReasoning
				continue
			}
			rule, ok := get(f)
			if ok && (rule.Difficulty == rules.Hard || rule.Difficulty == rules.Instrumented) {
				route = RouteReasoning
			}
		}
		batches = append(batches, Batch{Fields: fields, Route: route})
	}

	if len(batches) > MaxBatches {
		batches = mergeDownTo(batches, MaxBatches)
	}
	return batches
}

// mergeDownTo folds extra batches into the tail batch, preserving route
// escalation (merging never downgrades a reasoning batch to fast).
func mergeDownTo(batches []Batch, max int) []Batch {
	out := append([]Batch(nil), batches[:max-1]...)
	tail := Batch{Route: RouteFast}
	for _, b := range batches[max-1:] {
		tail.Fields = append(tail.Fields, b.Fields...)
		if b.Route == RouteReasoning {
			tail.Route = RouteReasoning
		}
	}
	out = append(out, tail)
	return out
}

// Answer is one LLM-produced field answer before evidence verification.
type Answer struct {
	Field       string
	Value       any
	EvidenceRefs []string
	SnippetHash string
	Quote       string
}

// Request is one batch's call to the LLM Extractor.
type Request struct {
	Batch        Batch
	Model        string
	System       string
	Prompt       string
	EvidenceRefs []string // snippet ids in the evidence pack given to this call
	JSONSchema   map[string]any
}

// Response is the parsed result of one Request.
type Response struct {
	Answers []Answer
	CostUSD float64
	Cached  bool
}

// Executor runs one LLM call and returns raw JSON text.
type Executor interface {
	Execute(ctx context.Context, req Request) (rawJSON string, err error)
}

// SchemaUnsupportedErr is returned by an Executor when the provider
// rejects json_schema mode, triggering a one-shot retry without it.
type SchemaUnsupportedErr struct{ Err error }

func (e *SchemaUnsupportedErr) Error() string { return fmt.Sprintf("json_schema unsupported: %v", e.Err) }
func (e *SchemaUnsupportedErr) Unwrap() error  { return e.Err }

// DirectExecutor runs requests against a configured llm.Provider directly
// (no sidecar), the always-available fallback path.
type DirectExecutor struct {
	Provider llm.Provider
}

func (d *DirectExecutor) Execute(ctx context.Context, req Request) (string, error) {
	resp, err := d.Provider.Chat(ctx, llm.ChatRequest{
		Model:          req.Model,
		Messages:       []llm.Message{{Role: "system", Content: req.System}, {Role: "user", Content: req.Prompt}},
		ResponseFormat: responseFormat(req.JSONSchema),
		JSONSchema:     req.JSONSchema,
	})
	if err != nil {
		var su *llm.SchemaUnsupportedErr
		if errors.As(err, &su) {
			return "", &SchemaUnsupportedErr{Err: su}
		}
		return "", err
	}
	return resp.Content, nil
}

func responseFormat(schema map[string]any) string {
	if schema == nil {
		return ""
	}
	return "json_object"
}

// cacheKey computes sha256(model||prompt||evidence_refs_sorted), the
// deterministic LLM-response cache key (§4.7).
func cacheKey(model, prompt string, evidenceRefs []string) string {
	sorted := append([]string(nil), evidenceRefs...)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(model + "||" + prompt + "||" + strings.Join(sorted, ",")))
	return hex.EncodeToString(h[:])
}

// CacheEntry is a stored response keyed by cacheKey.
type CacheEntry struct {
	RawJSON   string
	StoredAt  time.Time
	TTL       time.Duration
}

func (e CacheEntry) expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.StoredAt) > e.TTL
}

// Cache is a TTL'd response cache. MemCache is its only implementation in
// this module; no file-backed or write-temp-then-rename implementation is
// provided.
type Cache interface {
	Get(key string) (CacheEntry, bool)
	Put(key string, entry CacheEntry)
}

// MemCache is an in-memory Cache, used by tests and as the default when no
// durable cache is configured.
type MemCache struct {
	mu      sync.Mutex
	entries map[string]CacheEntry
	clock   func() time.Time
}

// NewMemCache builds an empty MemCache.
func NewMemCache() *MemCache {
	return &MemCache{entries: map[string]CacheEntry{}, clock: time.Now}
}

func (c *MemCache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.expired(c.clock()) {
		return CacheEntry{}, false
	}
	return e, true
}

func (c *MemCache) Put(key string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// CircuitState, CircuitBreaker and Snapshot are the llm package's Cortex
// sidecar breaker primitives, re-exported here so existing callers of
// llmextract.NewCircuitBreaker/CircuitBreaker keep working. The breaker
// itself lives in llm (llm/cortex.go) because llm.CortexClient records
// directly against it on every Chat/Embed call; Engine only reads Allow()
// and feeds RecordSuccess/RecordFailure through the same instance a
// cortexExecutor shares with its CortexClient.
type CircuitState = llm.CircuitState

const (
	CircuitClosed = llm.CircuitClosed
	CircuitOpen   = llm.CircuitOpen
)

type CircuitBreaker = llm.CircuitBreaker

// NewCircuitBreaker builds a closed CircuitBreaker.
func NewCircuitBreaker(failureThreshold int, openDuration time.Duration) *CircuitBreaker {
	return llm.NewCircuitBreaker(failureThreshold, openDuration)
}

type Snapshot = llm.Snapshot

// FallbackReason names why a task ran through the direct executor instead
// of the sidecar (§4.7).
type FallbackReason string

const (
	FallbackNone          FallbackReason = ""
	FallbackCircuitOpen   FallbackReason = "circuit_open"
	FallbackNonSidecar    FallbackReason = "fallback_non_sidecar"
)

// TaskResult wraps a Response with its fallback disposition.
type TaskResult struct {
	Response       Response
	FallbackReason FallbackReason
}

// Engine dispatches LLM Extractor calls: it prefers the sidecar executor
// when live and the circuit breaker allows it, otherwise falls back to the
// direct executor.
type Engine struct {
	Sidecar        Executor // nil if no sidecar configured
	SidecarReady   bool     // false => every task gets fallback_non_sidecar
	Direct         Executor
	Breaker        *CircuitBreaker
	Cache          Cache
	CacheTTL       time.Duration
}

// Call dispatches req through the sidecar (if ready and the circuit is
// closed) or the direct executor, caching the parsed answers.
func (e *Engine) Call(ctx context.Context, req Request) (TaskResult, error) {
	key := cacheKey(req.Model, req.Prompt, req.EvidenceRefs)
	if e.Cache != nil {
		if entry, ok := e.Cache.Get(key); ok {
			answers, err := parseAnswers(entry.RawJSON)
			if err == nil {
				return TaskResult{Response: Response{Answers: answers, Cached: true}}, nil
			}
		}
	}

	raw, reason, err := e.execute(ctx, req)
	if err != nil {
		return TaskResult{}, err
	}

	answers, err := parseAnswers(raw)
	if err != nil {
		return TaskResult{}, err
	}

	if e.Cache != nil {
		e.Cache.Put(key, CacheEntry{RawJSON: raw, StoredAt: time.Now(), TTL: e.CacheTTL})
	}
	return TaskResult{Response: Response{Answers: answers}, FallbackReason: reason}, nil
}

func (e *Engine) execute(ctx context.Context, req Request) (string, FallbackReason, error) {
	if !e.SidecarReady || e.Sidecar == nil {
		raw, err := e.executeWithSchemaFallback(ctx, e.Direct, req)
		return raw, FallbackNonSidecar, err
	}
	if e.Breaker != nil && !e.Breaker.Allow() {
		raw, err := e.executeWithSchemaFallback(ctx, e.Direct, req)
		return raw, FallbackCircuitOpen, err
	}

	raw, err := e.executeWithSchemaFallback(ctx, e.Sidecar, req)
	if err != nil {
		if e.Breaker != nil {
			e.Breaker.RecordFailure()
		}
		raw, derr := e.executeWithSchemaFallback(ctx, e.Direct, req)
		if derr != nil {
			return "", FallbackCircuitOpen, derr
		}
		return raw, FallbackCircuitOpen, nil
	}
	if e.Breaker != nil {
		e.Breaker.RecordSuccess()
	}
	return raw, FallbackNone, nil
}

// executeWithSchemaFallback retries once without json_schema when the
// executor rejects it, mirroring the teacher's batch-fails-falls-back-to
// per-item idiom.
func (e *Engine) executeWithSchemaFallback(ctx context.Context, ex Executor, req Request) (string, error) {
	raw, err := ex.Execute(ctx, req)
	if err == nil {
		return raw, nil
	}
	var su *SchemaUnsupportedErr
	if asSchemaUnsupported(err, &su) {
		retryReq := req
		retryReq.JSONSchema = nil
		return ex.Execute(ctx, retryReq)
	}
	return "", err
}

func asSchemaUnsupported(err error, target **SchemaUnsupportedErr) bool {
	su, ok := err.(*SchemaUnsupportedErr)
	if ok {
		*target = su
	}
	return ok
}

// codeBlockRe strips markdown code fences from an LLM response, reused
// verbatim from graph/builder.go's extractJSON.
var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON finds a valid JSON object within raw LLM output, handling
// markdown fences and leading/trailing prose (graph/builder.go, verbatim).
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", fmt.Errorf("llmextract: no JSON object found in response")
}

// rawAnswer is the wire shape of one LLM-produced field candidate tuple
// (§2 component 8: "(field, value, evidence_refs, snippet_hash, quote)").
type rawAnswer struct {
	Field        string   `json:"field"`
	Value        any      `json:"value"`
	EvidenceRefs []string `json:"evidence_refs"`
	SnippetHash  string   `json:"snippet_hash"`
	Quote        string   `json:"quote"`
}

type rawResponse struct {
	Answers []rawAnswer `json:"answers"`
}

func parseAnswers(raw string) ([]Answer, error) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var resp rawResponse
	if err := json.Unmarshal([]byte(jsonStr), &resp); err != nil {
		return nil, fmt.Errorf("llmextract: parsing response: %w", err)
	}
	out := make([]Answer, 0, len(resp.Answers))
	for _, a := range resp.Answers {
		out = append(out, Answer{
			Field:        a.Field,
			Value:        a.Value,
			EvidenceRefs: a.EvidenceRefs,
			SnippetHash:  a.SnippetHash,
			Quote:        a.Quote,
		})
	}
	return out, nil
}

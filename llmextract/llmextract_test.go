package llmextract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cdubventures/spec-harvester/rules"
)

func fieldRule(field string, difficulty rules.Difficulty, template string) rules.FieldRule {
	return rules.FieldRule{
		Field:      field,
		Difficulty: difficulty,
		Parse:      rules.ParseTemplate{Template: template},
	}
}

func TestBuildBatches_GroupsByTemplateAffinity(t *testing.T) {
	rulesByField := map[string]rules.FieldRule{
		"sensor":  fieldRule("sensor", rules.Easy, "spec_table"),
		"dpi":     fieldRule("dpi", rules.Easy, "spec_table"),
		"weight":  fieldRule("weight", rules.Easy, "default"),
	}
	get := func(f string) (rules.FieldRule, bool) { r, ok := rulesByField[f]; return r, ok }

	batches := BuildBatches([]string{"sensor", "dpi", "weight"}, get, nil)
	if len(batches) != 2 {
		t.Fatalf("BuildBatches() = %d batches, want 2 (spec_table, default)", len(batches))
	}
	if len(batches[0].Fields) != 2 || batches[0].Fields[0] != "sensor" {
		t.Fatalf("batches[0] = %+v, want sensor+dpi grouped together", batches[0])
	}
}

func TestBuildBatches_RoutesHardFieldsToReasoning(t *testing.T) {
	rulesByField := map[string]rules.FieldRule{
		"weight": fieldRule("weight", rules.Hard, "default"),
	}
	get := func(f string) (rules.FieldRule, bool) { r, ok := rulesByField[f]; return r, ok }

	batches := BuildBatches([]string{"weight"}, get, nil)
	if len(batches) != 1 || batches[0].Route != RouteReasoning {
		t.Fatalf("BuildBatches() = %+v, want single reasoning-routed batch", batches)
	}
}

func TestBuildBatches_ForcedHighOverridesEasyDifficulty(t *testing.T) {
	rulesByField := map[string]rules.FieldRule{
		"color": fieldRule("color", rules.Easy, "default"),
	}
	get := func(f string) (rules.FieldRule, bool) { r, ok := rulesByField[f]; return r, ok }

	batches := BuildBatches([]string{"color"}, get, map[string]bool{"color": true})
	if len(batches) != 1 || batches[0].Route != RouteReasoning {
		t.Fatalf("BuildBatches() = %+v, want forced-high field routed to reasoning", batches)
	}
}

func TestBuildBatches_CapsAtMaxBatches(t *testing.T) {
	rulesByField := map[string]rules.FieldRule{}
	fieldOrder := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		field := string(rune('a' + i))
		fieldOrder = append(fieldOrder, field)
		rulesByField[field] = fieldRule(field, rules.Easy, field) // distinct template per field
	}
	get := func(f string) (rules.FieldRule, bool) { r, ok := rulesByField[f]; return r, ok }

	batches := BuildBatches(fieldOrder, get, nil)
	if len(batches) != MaxBatches {
		t.Fatalf("BuildBatches() = %d batches, want capped at %d", len(batches), MaxBatches)
	}
}

// §8 boundary behavior: sidecar failure_threshold=2 -> third call returns
// fallback_reason=circuit_open.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker(2, time.Minute)
	b.RecordFailure()
	if !b.Allow() {
		t.Fatalf("Allow() after 1 failure = false, want true (threshold=2)")
	}
	b.RecordFailure()
	if b.Allow() {
		t.Fatalf("Allow() after 2 failures = true, want false (circuit open)")
	}
}

func TestCircuitBreaker_ClosesAgainOnSuccess(t *testing.T) {
	b := NewCircuitBreaker(1, time.Minute)
	b.RecordFailure()
	if b.Allow() {
		t.Fatalf("Allow() after failure = true, want false")
	}
	b.RecordSuccess()
	snap := b.Snapshot()
	if snap.State != CircuitClosed {
		t.Fatalf("State after RecordSuccess = %s, want closed", snap.State)
	}
}

type stubExecutor struct {
	raw string
	err error
}

func (s *stubExecutor) Execute(ctx context.Context, req Request) (string, error) {
	return s.raw, s.err
}

func TestEngine_Call_FallsBackNonSidecarWhenNotReady(t *testing.T) {
	engine := &Engine{
		Direct:       &stubExecutor{raw: `{"answers":[{"field":"sensor","value":"Focus Pro 35K"}]}`},
		SidecarReady: false,
		Cache:        NewMemCache(),
	}
	result, err := engine.Call(context.Background(), Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.FallbackReason != FallbackNonSidecar {
		t.Fatalf("FallbackReason = %s, want fallback_non_sidecar", result.FallbackReason)
	}
	if len(result.Response.Answers) != 1 || result.Response.Answers[0].Field != "sensor" {
		t.Fatalf("Answers = %+v, want one sensor answer", result.Response.Answers)
	}
}

func TestEngine_Call_UsesSidecarWhenCircuitClosed(t *testing.T) {
	engine := &Engine{
		Sidecar:      &stubExecutor{raw: `{"answers":[{"field":"sensor","value":"Focus Pro 35K"}]}`},
		SidecarReady: true,
		Breaker:      NewCircuitBreaker(3, time.Minute),
		Direct:       &stubExecutor{err: errors.New("direct should not be called")},
		Cache:        NewMemCache(),
	}
	result, err := engine.Call(context.Background(), Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.FallbackReason != FallbackNone {
		t.Fatalf("FallbackReason = %s, want none (sidecar served it)", result.FallbackReason)
	}
}

func TestEngine_Call_FallsBackOnOpenCircuit(t *testing.T) {
	breaker := NewCircuitBreaker(1, time.Minute)
	breaker.RecordFailure() // opens the circuit
	engine := &Engine{
		Sidecar:      &stubExecutor{err: errors.New("sidecar should not be reached")},
		SidecarReady: true,
		Breaker:      breaker,
		Direct:       &stubExecutor{raw: `{"answers":[{"field":"sensor","value":"Focus Pro 35K"}]}`},
		Cache:        NewMemCache(),
	}
	result, err := engine.Call(context.Background(), Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if result.FallbackReason != FallbackCircuitOpen {
		t.Fatalf("FallbackReason = %s, want circuit_open", result.FallbackReason)
	}
}

func TestEngine_Call_CachesAcrossCalls(t *testing.T) {
	calls := 0
	countingExecutor := &countingStubExecutor{raw: `{"answers":[{"field":"sensor","value":"Focus Pro 35K"}]}`, calls: &calls}
	engine := &Engine{
		Direct:       countingExecutor,
		SidecarReady: false,
		Cache:        NewMemCache(),
	}
	req := Request{Model: "m", Prompt: "p", EvidenceRefs: []string{"sn1"}}
	if _, err := engine.Call(context.Background(), req); err != nil {
		t.Fatalf("first Call() error = %v", err)
	}
	if _, err := engine.Call(context.Background(), req); err != nil {
		t.Fatalf("second Call() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("executor invoked %d times, want 1 (second call served from cache)", calls)
	}
}

type countingStubExecutor struct {
	raw   string
	calls *int
}

func (s *countingStubExecutor) Execute(ctx context.Context, req Request) (string, error) {
	*s.calls++
	return s.raw, nil
}

func TestExtractJSON_StripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"answers\":[]}\n```"
	got, err := extractJSON(raw)
	if err != nil {
		t.Fatalf("extractJSON() error = %v", err)
	}
	if got != `{"answers":[]}` {
		t.Fatalf("extractJSON() = %q, want stripped JSON object", got)
	}
}

func TestExtractJSON_FindsEmbeddedObject(t *testing.T) {
	raw := "Here is the result: {\"answers\":[]} — done."
	got, err := extractJSON(raw)
	if err != nil {
		t.Fatalf("extractJSON() error = %v", err)
	}
	if got != `{"answers":[]}` {
		t.Fatalf("extractJSON() = %q, want embedded JSON object", got)
	}
}

func TestExtractJSON_NoObjectFound(t *testing.T) {
	if _, err := extractJSON("no json here"); err == nil {
		t.Fatalf("extractJSON() error = nil, want error")
	}
}

func TestParseAnswers(t *testing.T) {
	raw := `{"answers":[{"field":"dpi","value":26000,"evidence_refs":["sn1"],"snippet_hash":"sha256:abc","quote":"26000 dpi"}]}`
	answers, err := parseAnswers(raw)
	if err != nil {
		t.Fatalf("parseAnswers() error = %v", err)
	}
	if len(answers) != 1 || answers[0].Field != "dpi" || answers[0].Quote != "26000 dpi" {
		t.Fatalf("parseAnswers() = %+v, want one dpi answer", answers)
	}
}

func TestDirectExecutor_SchemaUnsupportedTranslatesThroughEngine(t *testing.T) {
	exec := &schemaRejectingExecutor{}
	engine := &Engine{Direct: exec, SidecarReady: false, Cache: NewMemCache()}
	_, err := engine.Call(context.Background(), Request{Model: "m", Prompt: "p", JSONSchema: map[string]any{"type": "object"}})
	if err != nil {
		t.Fatalf("Call() error = %v, want schema-unsupported retry to succeed without schema", err)
	}
	if exec.calls != 2 {
		t.Fatalf("executor invoked %d times, want 2 (schema attempt then no-schema retry)", exec.calls)
	}
}

type schemaRejectingExecutor struct{ calls int }

func (s *schemaRejectingExecutor) Execute(ctx context.Context, req Request) (string, error) {
	s.calls++
	if req.JSONSchema != nil {
		return "", &SchemaUnsupportedErr{Err: errors.New("json_schema unsupported")}
	}
	return `{"answers":[{"field":"sensor","value":"Focus Pro 35K"}]}`, nil
}

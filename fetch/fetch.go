// Package fetch dispatches URL fetches through pluggable fetchers (dynamic
// JS-capable, playwright, http, replay, dryrun), enforcing per-host rate
// limits, bounded retries on transient errors, and mode-fallback on
// classified errors.
//
// Grounded on the teacher's parser.Registry / llm.Provider shape (an
// interface plus a small factory table of named implementations) and on
// graph/builder.go's bounded-concurrency fan-out, here applied to
// per-host admission instead of per-chunk LLM calls.
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cdubventures/spec-harvester/robots"
)

// Mode names a fetcher implementation.
type Mode string

const (
	ModeDynamic    Mode = "dynamic"
	ModePlaywright Mode = "playwright"
	ModeHTTP       Mode = "http"
	ModeReplay     Mode = "replay"
	ModeDryRun     Mode = "dryrun"
)

// fallbackChain is walked in order when the primary mode fails with a
// classified error other than 429 (§4.4).
var fallbackChain = []Mode{ModeDynamic, ModePlaywright, ModeHTTP}

// Result is what a Fetcher produces for one URL.
type Result struct {
	Status           int
	Title            string
	HTML             string
	NetworkResponses [][]byte
	EmbeddedState    map[string]any
	LDJSONBlocks     []string
	// RawBytes and DocumentKind carry a non-HTML document download
	// (manufacturer spec-sheet PDF or XLSX) straight through for the
	// deterministic extractor's PDF/XLSX surfaces; empty for ordinary
	// HTML fetches.
	RawBytes     []byte
	DocumentKind string
	Telemetry    Telemetry
}

// Telemetry records what actually happened while fetching a URL.
type Telemetry struct {
	Mode             Mode
	DegradedFromMode Mode
	DegradedReason   string
	RetryCount       int
	BlockedByRobots  bool
}

// Fetcher retrieves one URL. Implementations of the real network fetch are
// external collaborators (§1 Non-goals); this package only depends on the
// interface.
type Fetcher interface {
	Fetch(ctx context.Context, url, host string) (Result, error)
}

// ClassifiedError carries a fetch failure's error class so the scheduler
// can decide whether to retry, fall back, or re-raise.
type ClassifiedError struct {
	Class string // "403" | "5xx" | "timeout" | "429" | "no_result" | "generic"
	Err   error
}

func (e *ClassifiedError) Error() string { return fmt.Sprintf("%s: %v", e.Class, e.Err) }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// isFallbackTrigger reports whether a classified error should advance the
// fetcher mode. 429 is explicitly excluded: it keeps the current mode and
// re-raises instead (§4.4, §8 boundary test).
func isFallbackTrigger(class string) bool {
	switch class {
	case "403", "5xx", "timeout", "no_result", "generic":
		return true
	default:
		return false
	}
}

type hostState struct {
	nextEarliest time.Time
	sem          *semaphore.Weighted
}

// Scheduler dispatches fetches across registered fetcher modes with
// per-host admission control.
type Scheduler struct {
	fetchers map[Mode]Fetcher
	robots   *robots.Policy
	minDelay time.Duration
	retries  int
	clock    func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostState
}

// NewScheduler builds a Scheduler. minDelay is the minimum spacing between
// fetches to the same host; retries is the retry budget for transient
// failures (network error or 5xx).
func NewScheduler(fetchers map[Mode]Fetcher, policy *robots.Policy, minDelay time.Duration, retries int) *Scheduler {
	return &Scheduler{
		fetchers: fetchers,
		robots:   policy,
		minDelay: minDelay,
		retries:  retries,
		clock:    time.Now,
		hosts:    map[string]*hostState{},
	}
}

func (s *Scheduler) hostFor(host string) *hostState {
	s.mu.Lock()
	defer s.mu.Unlock()
	hs, ok := s.hosts[host]
	if !ok {
		hs = &hostState{sem: semaphore.NewWeighted(1)}
		s.hosts[host] = hs
	}
	return hs
}

// admit blocks until host's per-host in-flight slot and delay window are
// both available, then reserves the next delay window.
func (s *Scheduler) admit(ctx context.Context, host string) error {
	hs := s.hostFor(host)
	if err := hs.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.mu.Lock()
	wait := hs.nextEarliest.Sub(s.clock())
	s.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			hs.sem.Release(1)
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) release(host string) {
	hs := s.hostFor(host)
	s.mu.Lock()
	hs.nextEarliest = s.clock().Add(s.minDelay)
	s.mu.Unlock()
	hs.sem.Release(1)
}

// Dispatch fetches url on host, starting from primary mode and walking the
// mode-fallback chain on classified errors (except 429, which re-raises
// without advancing the mode). Robots-blocked URLs return status 451
// without ever reaching a Fetcher.
func (s *Scheduler) Dispatch(ctx context.Context, url, host string, primary Mode, userAgentPath string) (Result, error) {
	if s.robots != nil && !s.robots.Allowed(ctx, host, userAgentPath) {
		return Result{Status: 451, Telemetry: Telemetry{BlockedByRobots: true}}, nil
	}

	if err := s.admit(ctx, host); err != nil {
		return Result{}, err
	}
	defer s.release(host)

	modes := modeChainFrom(primary)
	var lastErr error
	for i, mode := range modes {
		fetcher, ok := s.fetchers[mode]
		if !ok {
			continue
		}
		res, err := s.fetchWithRetry(ctx, fetcher, url, host)
		if err == nil {
			if i > 0 {
				res.Telemetry.DegradedFromMode = primary
				res.Telemetry.DegradedReason = classify(lastErr)
			}
			res.Telemetry.Mode = mode
			return res, nil
		}

		var ce *ClassifiedError
		if !asClassified(err, &ce) {
			return Result{}, err
		}
		if ce.Class == "429" {
			return Result{}, err // re-raise, no fallback
		}
		if !isFallbackTrigger(ce.Class) {
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, fmt.Errorf("fetch: mode_exhausted for %s: %w", url, lastErr)
}

func (s *Scheduler) fetchWithRetry(ctx context.Context, fetcher Fetcher, url, host string) (Result, error) {
	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			backoff := jitteredBackoff(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, ctx.Err()
			}
		}
		res, err := fetcher.Fetch(ctx, url, host)
		if err == nil {
			res.Telemetry.RetryCount = attempt
			return res, nil
		}
		// An unclassified error is a network failure; it and a 5xx are
		// transient and use the retry budget.
		var ce *ClassifiedError
		transient := !asClassified(err, &ce) || ce.Class == "5xx"
		if transient && attempt < s.retries {
			lastErr = err
			continue
		}
		return Result{}, err
	}
	return Result{}, lastErr
}

func jitteredBackoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 500 * time.Millisecond
	jitter := time.Duration(rand.Intn(250)) * time.Millisecond
	return base + jitter
}

func modeChainFrom(primary Mode) []Mode {
	if primary == ModeReplay || primary == ModeDryRun {
		return []Mode{primary}
	}
	for i, m := range fallbackChain {
		if m == primary {
			return fallbackChain[i:]
		}
	}
	return append([]Mode{primary}, fallbackChain...)
}

func classify(err error) string {
	var ce *ClassifiedError
	if asClassified(err, &ce) {
		return ce.Class
	}
	return "generic"
}

func asClassified(err error, target **ClassifiedError) bool {
	ce, ok := err.(*ClassifiedError)
	if ok {
		*target = ce
	}
	return ok
}

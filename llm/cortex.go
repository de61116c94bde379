package llm

import (
	"context"
	"sync"
	"time"
)

// CircuitState names the Cortex sidecar circuit breaker's current state.
type CircuitState string

const (
	CircuitClosed CircuitState = "closed"
	CircuitOpen   CircuitState = "open"
)

// CircuitBreaker is a process-wide, mutex-guarded state machine gating the
// Cortex sidecar. After failureThreshold consecutive failures it opens for
// openDuration; while open, callers should route to a fallback Provider
// instead of the sidecar.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	openDuration     time.Duration
	clock            func() time.Time

	state               CircuitState
	consecutiveFailures int
	openUntil           time.Time
}

// NewCircuitBreaker builds a closed CircuitBreaker.
func NewCircuitBreaker(failureThreshold int, openDuration time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		clock:            time.Now,
		state:            CircuitClosed,
	}
}

// Snapshot is a race-free, point-in-time view of the breaker.
type Snapshot struct {
	State     CircuitState
	OpenUntil time.Time
}

// Allow reports whether the sidecar may be tried right now, transitioning
// an expired open state back to closed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == CircuitOpen {
		if b.clock().Before(b.openUntil) {
			return false
		}
		b.state = CircuitClosed
		b.consecutiveFailures = 0
	}
	return true
}

// RecordSuccess resets the consecutive-failure count and closes the
// breaker if it was open.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.state = CircuitClosed
}

// RecordFailure increments the consecutive-failure count, tripping the
// breaker open once it reaches failureThreshold.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		b.state = CircuitOpen
		b.openUntil = b.clock().Add(b.openDuration)
	}
}

// Snapshot returns the breaker's current state.
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{State: b.state, OpenUntil: b.openUntil}
}

// CortexConfig configures the optional Cortex sidecar: an OpenAI-compatible
// endpoint fronted by a circuit breaker, so a cold or flaky sidecar falls
// back to a directly-configured Provider instead of stalling a batch.
type CortexConfig struct {
	BaseURL          string
	Model            string
	APIKey           string
	FailureThreshold int
	CircuitOpenMs    int
}

// CortexClient is a Provider backed by the Cortex sidecar. Every Chat/Embed
// call records its outcome on an embedded CircuitBreaker, so a caller can
// check Allow before dispatching and route straight to a fallback Provider
// while the breaker is open rather than waiting out the sidecar's timeout.
type CortexClient struct {
	base    openAICompatClient
	breaker *CircuitBreaker
}

// NewCortex builds a CortexClient. A CircuitOpenMs of zero defaults to 30s.
func NewCortex(cfg CortexConfig) *CortexClient {
	openDuration := time.Duration(cfg.CircuitOpenMs) * time.Millisecond
	if openDuration <= 0 {
		openDuration = 30 * time.Second
	}
	return &CortexClient{
		base: newOpenAICompatClient(Config{
			Provider: "cortex",
			Model:    cfg.Model,
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
		}),
		breaker: NewCircuitBreaker(cfg.FailureThreshold, openDuration),
	}
}

// Allow reports whether the circuit breaker currently permits a sidecar
// call.
func (c *CortexClient) Allow() bool { return c.breaker.Allow() }

// Breaker exposes the underlying CircuitBreaker, e.g. for a caller that
// wants to share one breaker's state across several executors.
func (c *CortexClient) Breaker() *CircuitBreaker { return c.breaker }

// Chat calls the sidecar and records the outcome on the circuit breaker.
func (c *CortexClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := c.base.chat(ctx, req)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return resp, nil
}

// Embed calls the sidecar's embedding endpoint, same breaker disposition
// as Chat.
func (c *CortexClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := c.base.embed(ctx, texts)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return out, nil
}

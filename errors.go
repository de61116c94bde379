package harvester

import "errors"

var (
	// ErrIdentityRejected is returned when the identity gate refuses a product.
	ErrIdentityRejected = errors.New("harvester: identity rejected")

	// ErrProductNotFound is returned when a product_id has no catalog row.
	ErrProductNotFound = errors.New("harvester: product not found")

	// ErrBudgetExhausted is returned when a round cannot proceed under the
	// product's remaining budget.
	ErrBudgetExhausted = errors.New("harvester: budget exhausted")

	// ErrRulesNotLoaded is returned when a category has no compiled rule set.
	ErrRulesNotLoaded = errors.New("harvester: rule set not loaded for category")

	// ErrLLMUnavailable is returned when no LLM route can service a batch.
	ErrLLMUnavailable = errors.New("harvester: LLM route unavailable")

	// ErrCircuitOpen is returned when the cortex sidecar circuit breaker is open.
	ErrCircuitOpen = errors.New("harvester: cortex circuit open")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("harvester: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("harvester: invalid configuration")

	// ErrSignalTerminated is returned when a daemon drain interrupts a run.
	ErrSignalTerminated = errors.New("harvester: terminated by signal")
)

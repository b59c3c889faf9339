// Package breaker wraps provider calls with retry and a circuit
// breaker.
//
// The circuit protects the upstream from being hammered while it is
// failing: consecutive transient failures open the circuit, calls then
// fail fast without touching the provider, and after a recovery
// timeout a single probe is let through to test the water.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// OpenError reports a fail-fast rejection while the circuit is open.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker open (retry after %v)", e.RetryAfter)
}

// Breaker is a circuit breaker owned by one client instance. State
// transitions are serialized under a single mutex so no two callers
// ever observe contradictory transitions.
type Breaker struct {
	mu                  sync.Mutex
	failureThreshold    int
	recoveryTimeout     time.Duration
	state               State
	consecutiveFailures int
	lastFailure         time.Time
	probing             bool
	logger              zerolog.Logger

	now func() time.Time // injectable for tests
}

// NewBreaker creates a closed Breaker.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration, logger zerolog.Logger) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
		logger:           logger.With().Str("component", "circuit_breaker").Logger(),
		now:              time.Now,
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow decides whether a call may proceed. While open it fails fast
// with *OpenError until the recovery timeout elapses; then the circuit
// goes half-open and exactly one probe call passes. Concurrent callers
// during the probe are rejected as if the circuit were still open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.now().Sub(b.lastFailure)
		if elapsed < b.recoveryTimeout {
			return &OpenError{RetryAfter: b.recoveryTimeout - elapsed}
		}
		b.state = StateHalfOpen
		b.probing = true
		b.logger.Info().Msg("circuit breaker half-open, allowing probe")
		return nil
	case StateHalfOpen:
		if b.probing {
			return &OpenError{RetryAfter: b.recoveryTimeout}
		}
		b.probing = true
		return nil
	}
	return nil
}

// RecordSuccess resets the failure count and closes the circuit if a
// half-open probe succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.probing = false
	if b.state != StateClosed {
		b.logger.Info().Str("previous_state", string(b.state)).Msg("circuit breaker closed")
		b.state = StateClosed
	}
}

// ReleaseProbe reopens the circuit when a half-open probe ended
// without a verdict on upstream health (permanent error, caller
// cancellation). The recovery clock restarts so a later call probes
// again; the failure count is untouched. No-op outside a probe.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateHalfOpen || !b.probing {
		return
	}
	b.probing = false
	b.state = StateOpen
	b.lastFailure = b.now()
	b.logger.Warn().Msg("circuit breaker reopened, probe ended inconclusively")
}

// RecordFailure counts one failure toward the threshold. Crossing the
// threshold, or failing the half-open probe, opens the circuit.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailure = b.now()
	b.probing = false

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.logger.Warn().Msg("circuit breaker reopened after failed probe")
		return
	}
	if b.state == StateClosed && b.consecutiveFailures >= b.failureThreshold {
		b.state = StateOpen
		b.logger.Warn().
			Int("consecutive_failures", b.consecutiveFailures).
			Int("threshold", b.failureThreshold).
			Msg("circuit breaker opened")
	}
}

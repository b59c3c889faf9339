package breaker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/2ai-cx/llmcore/llm"
)

// RetryConfig controls the retry executor.
type RetryConfig struct {
	Enabled     bool
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

// Operation is a single provider call attempt.
type Operation func(ctx context.Context) (*llm.Response, error)

// Executor runs provider calls through the retry policy and an optional
// circuit breaker. A nil breaker disables the circuit entirely.
type Executor struct {
	breaker *Breaker
	retry   RetryConfig
	logger  zerolog.Logger
}

// NewExecutor creates an Executor. Pass breaker as nil to run retries
// without a circuit.
func NewExecutor(b *Breaker, retry RetryConfig, logger zerolog.Logger) *Executor {
	return &Executor{
		breaker: b,
		retry:   retry,
		logger:  logger.With().Str("component", "retry").Logger(),
	}
}

// Execute runs op, retrying transient failures with exponential
// backoff. When the circuit is open it fails fast with *OpenError
// before making any attempt. Permanent errors propagate immediately
// without consuming retries. Exhausting all attempts records one
// failure toward the circuit threshold; any success records a success.
// A half-open probe that ends in a permanent error or cancellation
// reopens the circuit so a later call can probe again.
func (e *Executor) Execute(ctx context.Context, op Operation) (*llm.Response, error) {
	if e.breaker != nil {
		if err := e.breaker.Allow(); err != nil {
			return nil, err
		}
	}

	var resp *llm.Response
	attempt := 0
	run := func() error {
		attempt++
		r, err := op(ctx)
		if err != nil {
			if !llm.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			e.logger.Debug().
				Int("attempt", attempt).
				Err(err).
				Msg("transient provider error, will retry")
			return err
		}
		resp = r
		return nil
	}

	err := backoff.Retry(run, backoff.WithContext(e.newBackOff(), ctx))
	if err != nil {
		if e.breaker != nil {
			if llm.IsRetryable(err) {
				e.breaker.RecordFailure()
			} else {
				// Permanent errors and cancellations say nothing about
				// upstream health, but a granted half-open probe must
				// still be released or the circuit never recovers.
				e.breaker.ReleaseProbe()
			}
		}
		return nil, err
	}
	if e.breaker != nil {
		e.breaker.RecordSuccess()
	}
	return resp, nil
}

// newBackOff builds the per-call backoff schedule: minWait doubled each
// attempt, capped at maxWait, with no jitter so delays are predictable.
func (e *Executor) newBackOff() backoff.BackOff {
	maxAttempts := e.retry.MaxAttempts
	if !e.retry.Enabled || maxAttempts < 1 {
		maxAttempts = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = e.retry.MinWait
	eb.MaxInterval = e.retry.MaxWait
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithMaxRetries(eb, uint64(maxAttempts-1))
}

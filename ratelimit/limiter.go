// Package ratelimit enforces request quotas over sliding trailing
// windows in three independent scopes: global (per second), per tenant
// (per minute) and per user (per minute).
//
// Two admission variants exist. Reject mode fails immediately with a
// *LimitError carrying a retry-after hint. Queue mode never rejects: it
// reserves the caller a FIFO slot in every applicable scope and sleeps
// until the slot opens, honoring context cancellation.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Scope identifies which window made an admission decision.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeTenant Scope = "tenant"
	ScopeUser   Scope = "user"
)

const (
	globalInterval = time.Second
	scopedInterval = time.Minute
)

// Mode selects the admission variant.
type Mode string

const (
	ModeReject Mode = "reject"
	ModeQueue  Mode = "queue"
)

// LimitError reports a rejected admission in reject mode.
type LimitError struct {
	Scope      Scope
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s scope (retry after %v)", e.Scope, e.RetryAfter)
}

// Config holds the per-scope limits.
type Config struct {
	Mode      Mode
	GlobalRPS int
	TenantRPM int
	UserRPM   int
}

// Counters are the per-scope observability counters.
type Counters struct {
	Admitted uint64
	Rejected uint64
	Delayed  uint64
}

type scopeCounters struct {
	admitted atomic.Uint64
	rejected atomic.Uint64
	delayed  atomic.Uint64
}

// Limiter coordinates the three scopes. Tenant and user windows are
// created on first use; the maps are guarded by a read-mostly RWMutex
// while each window carries its own mutex, so unrelated scopes never
// serialize on each other.
type Limiter struct {
	cfg    Config
	global *window

	mu      sync.RWMutex
	tenants map[string]*window
	users   map[string]*window

	counters map[Scope]*scopeCounters
	logger   zerolog.Logger

	now func() time.Time // injectable for tests
}

// New creates a Limiter. Zero or negative limits disable the
// corresponding scope entirely.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	if cfg.Mode == "" {
		cfg.Mode = ModeReject
	}
	l := &Limiter{
		cfg:     cfg,
		tenants: make(map[string]*window),
		users:   make(map[string]*window),
		counters: map[Scope]*scopeCounters{
			ScopeGlobal: {},
			ScopeTenant: {},
			ScopeUser:   {},
		},
		logger: logger.With().Str("component", "rate_limiter").Logger(),
		now:    time.Now,
	}
	if cfg.GlobalRPS > 0 {
		l.global = newWindow(cfg.GlobalRPS, globalInterval)
	}
	return l
}

// Acquire admits the current call against every applicable scope.
// Tenant and user windows only participate when their identifier is
// non-empty. In reject mode a full scope returns *LimitError; in queue
// mode the call blocks until its FIFO slot opens or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, tenantID, userID string) error {
	type scoped struct {
		scope Scope
		win   *window
	}
	windows := make([]scoped, 0, 3)
	if l.global != nil {
		windows = append(windows, scoped{ScopeGlobal, l.global})
	}
	if tenantID != "" && l.cfg.TenantRPM > 0 {
		windows = append(windows, scoped{ScopeTenant, l.tenantWindow(tenantID)})
	}
	if userID != "" && l.cfg.UserRPM > 0 {
		windows = append(windows, scoped{ScopeUser, l.userWindow(userID)})
	}

	if l.cfg.Mode == ModeQueue {
		slots := make([]time.Time, 0, len(windows))
		for _, sw := range windows {
			now := l.now()
			slot := sw.win.reserve(now)
			slots = append(slots, slot)
			if delay := slot.Sub(now); delay > 0 {
				l.counters[sw.scope].delayed.Add(1)
				l.logger.Debug().
					Str("scope", string(sw.scope)).
					Dur("delay", delay).
					Msg("queued for rate limit slot")
				if err := l.waitUntil(ctx, slot); err != nil {
					// An abandoned call must leave no stamp in any
					// window, including scopes it already cleared.
					for i, stamp := range slots {
						windows[i].win.release(stamp)
					}
					return err
				}
			}
		}
		for _, sw := range windows {
			l.counters[sw.scope].admitted.Add(1)
		}
		return nil
	}

	taken := make([]scoped, 0, len(windows))
	stamps := make([]time.Time, 0, len(windows))
	for _, sw := range windows {
		now := l.now()
		retryAfter, ok := sw.win.tryAcquire(now)
		if !ok {
			// Roll back earlier scopes so a rejected call leaves no
			// trace in any window.
			for i, prev := range taken {
				prev.win.release(stamps[i])
			}
			l.counters[sw.scope].rejected.Add(1)
			l.logger.Debug().
				Str("scope", string(sw.scope)).
				Dur("retry_after", retryAfter).
				Msg("rate limit exceeded")
			return &LimitError{Scope: sw.scope, RetryAfter: retryAfter}
		}
		taken = append(taken, sw)
		stamps = append(stamps, now)
	}
	for _, sw := range taken {
		l.counters[sw.scope].admitted.Add(1)
	}
	return nil
}

// Stats returns a snapshot of the counters for one scope.
func (l *Limiter) Stats(scope Scope) Counters {
	c, ok := l.counters[scope]
	if !ok {
		return Counters{}
	}
	return Counters{
		Admitted: c.admitted.Load(),
		Rejected: c.rejected.Load(),
		Delayed:  c.delayed.Load(),
	}
}

func (l *Limiter) tenantWindow(tenantID string) *window {
	l.mu.RLock()
	w, ok := l.tenants[tenantID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.tenants[tenantID]; ok {
		return w
	}
	w = newWindow(l.cfg.TenantRPM, scopedInterval)
	l.tenants[tenantID] = w
	return w
}

func (l *Limiter) userWindow(userID string) *window {
	l.mu.RLock()
	w, ok := l.users[userID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.users[userID]; ok {
		return w
	}
	w = newWindow(l.cfg.UserRPM, scopedInterval)
	l.users[userID] = w
	return w
}

// waitUntil sleeps until the given instant, respecting context
// cancellation.
func (l *Limiter) waitUntil(ctx context.Context, until time.Time) error {
	delay := until.Sub(l.now())
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestLimiter(cfg Config) (*Limiter, *time.Time) {
	l := New(cfg, zerolog.Nop())
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestGlobalAdmission(t *testing.T) {
	l, current := newTestLimiter(Config{Mode: ModeReject, GlobalRPS: 3})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "", ""); err != nil {
			t.Fatalf("Expected call %d to be admitted: %v", i+1, err)
		}
	}

	err := l.Acquire(ctx, "", "")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Expected LimitError, got %v", err)
	}
	if limitErr.Scope != ScopeGlobal {
		t.Errorf("Expected global scope, got %s", limitErr.Scope)
	}
	if limitErr.RetryAfter <= 0 || limitErr.RetryAfter > time.Second {
		t.Errorf("Expected retry-after within the window, got %v", limitErr.RetryAfter)
	}

	// Advance past the trailing window; capacity frees.
	*current = current.Add(time.Second + time.Millisecond)
	if err := l.Acquire(ctx, "", ""); err != nil {
		t.Errorf("Expected admission after window advanced: %v", err)
	}

	stats := l.Stats(ScopeGlobal)
	if stats.Admitted != 4 {
		t.Errorf("Expected 4 admitted, got %d", stats.Admitted)
	}
	if stats.Rejected != 1 {
		t.Errorf("Expected 1 rejected, got %d", stats.Rejected)
	}
}

func TestTenantScopesIndependent(t *testing.T) {
	l, _ := newTestLimiter(Config{Mode: ModeReject, TenantRPM: 2})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx, "tenant-a", ""); err != nil {
			t.Fatalf("Expected tenant-a call %d admitted: %v", i+1, err)
		}
	}
	if err := l.Acquire(ctx, "tenant-a", ""); err == nil {
		t.Error("Expected tenant-a to be at capacity")
	}

	// Exhausting tenant A must not affect tenant B.
	if err := l.Acquire(ctx, "tenant-b", ""); err != nil {
		t.Errorf("Expected tenant-b to be unaffected: %v", err)
	}
}

func TestUserScope(t *testing.T) {
	l, _ := newTestLimiter(Config{Mode: ModeReject, UserRPM: 1})

	ctx := context.Background()
	if err := l.Acquire(ctx, "", "user-1"); err != nil {
		t.Fatalf("Expected first user call admitted: %v", err)
	}

	err := l.Acquire(ctx, "", "user-1")
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Expected LimitError, got %v", err)
	}
	if limitErr.Scope != ScopeUser {
		t.Errorf("Expected user scope, got %s", limitErr.Scope)
	}
}

func TestRejectionRollsBackEarlierScopes(t *testing.T) {
	l, _ := newTestLimiter(Config{Mode: ModeReject, GlobalRPS: 10, TenantRPM: 1})

	ctx := context.Background()
	if err := l.Acquire(ctx, "tenant-a", ""); err != nil {
		t.Fatalf("Expected first call admitted: %v", err)
	}

	// Tenant scope rejects; the global stamp taken first must be rolled
	// back so rejected calls don't consume global capacity.
	for i := 0; i < 5; i++ {
		if err := l.Acquire(ctx, "tenant-a", ""); err == nil {
			t.Fatal("Expected tenant rejection")
		}
	}
	if got := l.global.size(l.now()); got != 1 {
		t.Errorf("Expected 1 global stamp after rollbacks, got %d", got)
	}
}

func TestQueueModeDelaysUntilWindowAdvances(t *testing.T) {
	l := New(Config{Mode: ModeQueue, GlobalRPS: 2}, zerolog.Nop())
	// Shrink the window so the test doesn't sleep a full second.
	l.global = newWindow(2, 50*time.Millisecond)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 4; i++ {
		if err := l.Acquire(ctx, "", ""); err != nil {
			t.Fatalf("Expected queue mode to never reject: %v", err)
		}
	}
	elapsed := time.Since(start)
	// Calls 3 and 4 must wait for the first window to age out.
	if elapsed < 40*time.Millisecond {
		t.Errorf("Expected queued calls to be delayed, finished in %v", elapsed)
	}

	stats := l.Stats(ScopeGlobal)
	if stats.Admitted != 4 {
		t.Errorf("Expected 4 admitted, got %d", stats.Admitted)
	}
	if stats.Delayed == 0 {
		t.Error("Expected delayed counter to increase")
	}
}

func TestQueueModeFIFO(t *testing.T) {
	l := New(Config{Mode: ModeQueue, GlobalRPS: 1}, zerolog.Nop())
	l.global = newWindow(1, 20*time.Millisecond)

	ctx := context.Background()
	if err := l.Acquire(ctx, "", ""); err != nil {
		t.Fatalf("Expected first call admitted: %v", err)
	}

	// Reservation order under the window mutex is admission order.
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		n := i
		go func() {
			defer wg.Done()
			// Stagger arrival so reservation order is deterministic.
			time.Sleep(time.Duration(n) * 5 * time.Millisecond)
			if err := l.Acquire(ctx, "", ""); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		}()
	}
	wg.Wait()

	for i, n := range order {
		if n != i {
			t.Errorf("Expected FIFO order, got %v", order)
			break
		}
	}
}

func TestQueueModeCancellation(t *testing.T) {
	l := New(Config{Mode: ModeQueue, GlobalRPS: 1}, zerolog.Nop())
	l.global = newWindow(1, time.Minute)

	ctx := context.Background()
	if err := l.Acquire(ctx, "", ""); err != nil {
		t.Fatalf("Expected first call admitted: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(cancelCtx, "", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	// The abandoned reservation must not leak into the window.
	if got := l.global.size(time.Now()); got > 1 {
		t.Errorf("Expected abandoned reservation to be released, window holds %d", got)
	}
}

func TestQueueModeCancellationReleasesEarlierScopes(t *testing.T) {
	l := New(Config{Mode: ModeQueue, GlobalRPS: 2, TenantRPM: 1}, zerolog.Nop())
	// Shrink the tenant window so the test doesn't sleep a full minute.
	l.tenants["tenant-a"] = newWindow(1, time.Minute)

	ctx := context.Background()
	if err := l.Acquire(ctx, "tenant-a", ""); err != nil {
		t.Fatalf("Expected first call admitted: %v", err)
	}

	// The second call clears the global scope immediately, then waits on
	// its tenant slot until the context expires.
	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(cancelCtx, "tenant-a", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	// Every stamp the cancelled call took must be withdrawn, the global
	// one included, so other tenants keep full global capacity.
	if got := l.global.size(time.Now()); got != 1 {
		t.Errorf("Expected global window to hold only the admitted call, got %d", got)
	}
	if got := l.tenants["tenant-a"].size(time.Now()); got != 1 {
		t.Errorf("Expected tenant window to hold only the admitted call, got %d", got)
	}
	start := time.Now()
	if err := l.Acquire(ctx, "tenant-b", ""); err != nil {
		t.Errorf("Expected another tenant to be admitted: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Expected another tenant to be admitted without delay, waited %v", elapsed)
	}
}

func TestDisabledScopes(t *testing.T) {
	l, _ := newTestLimiter(Config{Mode: ModeReject})
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := l.Acquire(ctx, "tenant-a", "user-1"); err != nil {
			t.Fatalf("Expected unlimited admission with no limits configured: %v", err)
		}
	}
}

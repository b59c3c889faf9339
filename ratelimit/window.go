package ratelimit

import (
	"sync"
	"time"
)

// window is one sliding trailing-interval window. Timestamps are kept
// in ascending order; in queue mode the tail may hold reservations in
// the future. Entries older than the interval are purged lazily before
// every admission decision.
type window struct {
	mu       sync.Mutex
	limit    int
	interval time.Duration
	stamps   []time.Time
}

func newWindow(limit int, interval time.Duration) *window {
	return &window{limit: limit, interval: interval}
}

// purgeLocked drops timestamps that have aged out of the trailing
// interval as of now. Future reservations are never purged.
func (w *window) purgeLocked(now time.Time) {
	cutoff := now.Add(-w.interval)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// tryAcquire admits the call at now or reports how long until the
// oldest in-window entry ages out.
func (w *window) tryAcquire(now time.Time) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purgeLocked(now)
	if len(w.stamps) < w.limit {
		w.stamps = append(w.stamps, now)
		return 0, true
	}
	retryAfter := w.stamps[0].Add(w.interval).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return retryAfter, false
}

// reserve assigns the caller the earliest admissible slot at or after
// now and records it. Reservations are handed out in call order under
// one mutex, which gives FIFO admission and rules out starvation.
func (w *window) reserve(now time.Time) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.purgeLocked(now)
	var slot time.Time
	if len(w.stamps) < w.limit {
		slot = now
	} else {
		// The slot opens when the entry `limit` places back ages out,
		// counting reservations already queued ahead of us.
		slot = w.stamps[len(w.stamps)-w.limit].Add(w.interval)
		if slot.Before(now) {
			slot = now
		}
	}
	w.stamps = append(w.stamps, slot)
	return slot
}

// release withdraws a previously recorded stamp. Used to roll back an
// admission when a later scope rejects, and to abandon a reservation on
// context cancellation, so neither leaves a partial write behind.
func (w *window) release(stamp time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.stamps) - 1; i >= 0; i-- {
		if w.stamps[i].Equal(stamp) {
			w.stamps = append(w.stamps[:i], w.stamps[i+1:]...)
			return
		}
	}
}

// size reports the current entry count after purging.
func (w *window) size(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purgeLocked(now)
	return len(w.stamps)
}

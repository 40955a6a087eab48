package synthetic

import (
	"sync"
	"time"
)

// ThinkTimer runs at most one scheduled callback at a time. Scheduling again
// supersedes the pending callback. It is safe for concurrent use.
type ThinkTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// Schedule arranges for onFire to run after d, replacing any pending callback.
// onFire is called in a separate goroutine.
//
// Precondition: d >= 0; onFire must not be nil.
// Postcondition: onFire runs once after d unless Schedule or Stop is called first.
// After Stop, Schedule is a no-op.
func (tt *ThinkTimer) Schedule(d time.Duration, onFire func()) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.stopped {
		return
	}
	if tt.timer != nil {
		tt.timer.Stop()
	}
	tt.gen++
	gen := tt.gen
	tt.timer = time.AfterFunc(d, func() {
		tt.mu.Lock()
		current := !tt.stopped && tt.gen == gen
		tt.mu.Unlock()
		if current {
			onFire()
		}
	})
}

// Stop prevents any pending callback from firing and disables the timer.
// Safe to call multiple times.
//
// Postcondition: no callback starts after Stop returns.
func (tt *ThinkTimer) Stop() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.stopped = true
	tt.gen++
	if tt.timer != nil {
		tt.timer.Stop()
	}
}

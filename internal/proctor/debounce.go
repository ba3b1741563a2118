package proctor

import (
	"sync"
	"time"

	"github.com/proctorai/proctor/internal/clock"
)

// Debouncer holds at most one pending single-shot callback. It turns an
// instantaneous classification into a "held for d" condition without polling.
type Debouncer struct {
	clock clock.Clock

	mu    sync.Mutex
	timer clock.Timer
	gen   uint64 // bumped on every Arm and Cancel; stale fires compare against it
}

// NewDebouncer returns an idle debouncer driven by clk.
func NewDebouncer(clk clock.Clock) *Debouncer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Debouncer{clock: clk}
}

// Arm schedules fn to run after d. If a callback is already pending the call
// is a no-op and Arm returns false; callers that want to restart must Cancel
// first.
func (d *Debouncer) Arm(after time.Duration, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		return false
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(after, func() {
		if !d.claim(gen) {
			return
		}
		fn()
	})
	return true
}

// Cancel drops the pending callback, if any. Safe to call when idle.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a callback is armed and has not yet fired.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// claim marks the armed callback as fired. It fails when the callback was
// cancelled or superseded after the underlying timer had already started.
func (d *Debouncer) claim(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen || d.timer == nil {
		return false
	}
	d.timer = nil
	return true
}

package canvas

import (
	"sync"
	"time"
)

// Trigger is what caused a viewport update.
type Trigger int

const (
	TriggerResize Trigger = iota
	TriggerOrientation
)

// Default settle times per trigger.
const (
	ResizeDelay      = 100 * time.Millisecond
	OrientationDelay = 200 * time.Millisecond
)

// Debouncer coalesces bursts of viewport updates; only the last viewport of a
// burst is delivered, once the burst has settled.
type Debouncer struct {
	fn     func(Viewport)
	delays map[Trigger]time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending *Viewport
	gen     uint64
}

// NewDebouncer calls fn with the settled viewport.
func NewDebouncer(fn func(Viewport)) *Debouncer {
	return &Debouncer{
		fn: fn,
		delays: map[Trigger]time.Duration{
			TriggerResize:      ResizeDelay,
			TriggerOrientation: OrientationDelay,
		},
	}
}

// SetDelay overrides the settle time of t.
func (d *Debouncer) SetDelay(t Trigger, delay time.Duration) {
	d.mu.Lock()
	d.delays[t] = delay
	d.mu.Unlock()
}

// Update records v and restarts the settle timer.
func (d *Debouncer) Update(v Viewport, t Trigger) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = &v
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delays[t], func() { d.fire(gen) })
}

// Flush delivers a pending viewport immediately. It reports whether one was
// pending.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	v := d.pending
	d.pending = nil
	d.mu.Unlock()
	if v == nil {
		return false
	}
	d.fn(*v)
	return true
}

// Stop drops any pending viewport.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	if v != nil {
		d.fn(*v)
	}
}

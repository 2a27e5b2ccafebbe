// Package sched provides a small named-slot debouncer. It coalesces bursts of
// identical work, such as saving the reading position while the user scrolls,
// into a single trailing-edge execution per slot.
package sched

import (
	"sync"
	"time"
)

// Debouncer schedules at most one pending function per named slot. Scheduling
// into an occupied slot replaces the pending function and restarts its delay;
// the last write wins.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	slots   map[string]*slot
	stopped bool
}

type slot struct {
	timer *time.Timer
	fn    func()
}

// NewDebouncer creates a debouncer with the given trailing delay.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay: delay,
		slots: make(map[string]*slot),
	}
}

// Schedule arranges for fn to run after the debounce delay, replacing any
// function already pending in the same slot. After Stop, calls are ignored.
func (d *Debouncer) Schedule(name string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if s, ok := d.slots[name]; ok {
		s.fn = fn
		s.timer.Reset(d.delay)
		return
	}

	s := &slot{fn: fn}
	s.timer = time.AfterFunc(d.delay, func() { d.fire(name) })
	d.slots[name] = s
}

func (d *Debouncer) fire(name string) {
	d.mu.Lock()
	s, ok := d.slots[name]
	if ok {
		delete(d.slots, name)
	}
	d.mu.Unlock()
	if ok {
		s.fn()
	}
}

// Flush runs every pending function immediately and clears the slots.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := make([]func(), 0, len(d.slots))
	for name, s := range d.slots {
		s.timer.Stop()
		pending = append(pending, s.fn)
		delete(d.slots, name)
	}
	d.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// Stop cancels all pending work without running it and rejects further
// scheduling. Flush before Stop to run pending work instead.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for name, s := range d.slots {
		s.timer.Stop()
		delete(d.slots, name)
	}
}

// Pending reports whether the named slot has work waiting.
func (d *Debouncer) Pending(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.slots[name]
	return ok
}

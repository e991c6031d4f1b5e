package realtime

import (
	"sync"
	"time"
)

// DefaultDebounce is how long the invalidator coalesces a burst of events
// before emitting one invalidation. A batch upload inserting dozens of
// file rows becomes a single refresh instead of one per row.
const DefaultDebounce = 200 * time.Millisecond

// Invalidator coalesces bursts of events into single invalidation
// callbacks. Event kinds in the bypass set flush immediately, ahead of any
// pending debounced batch, for changes where visual staleness is worse
// than an extra refresh (a shared folder gaining or losing its link).
type Invalidator struct {
	mu      sync.Mutex
	delay   time.Duration
	bypass  map[string]bool
	pending map[string]bool
	timer   *time.Timer
	stopped bool
	emit    func(kinds []string)
}

// NewInvalidator creates an invalidator that calls emit with the deduped
// kinds of each coalesced burst.
func NewInvalidator(delay time.Duration, bypassKinds []string, emit func(kinds []string)) *Invalidator {
	bypass := make(map[string]bool, len(bypassKinds))
	for _, k := range bypassKinds {
		bypass[k] = true
	}
	return &Invalidator{
		delay:   delay,
		bypass:  bypass,
		pending: make(map[string]bool),
		emit:    emit,
	}
}

// Observe feeds one event into the debounce window.
func (inv *Invalidator) Observe(ev Event) {
	inv.mu.Lock()
	if inv.stopped {
		inv.mu.Unlock()
		return
	}

	if inv.bypass[ev.Kind] {
		// Flush anything pending along with the bypassing kind so
		// ordering is preserved for the consumer.
		kinds := inv.takePendingLocked()
		kinds = append(kinds, ev.Kind)
		inv.mu.Unlock()
		inv.emit(kinds)
		return
	}

	inv.pending[ev.Kind] = true
	if inv.timer == nil {
		inv.timer = time.AfterFunc(inv.delay, inv.flush)
	}
	inv.mu.Unlock()
}

// Stop cancels any pending flush. Pending events are discarded; a stopped
// invalidator observes nothing further.
func (inv *Invalidator) Stop() {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.stopped = true
	if inv.timer != nil {
		inv.timer.Stop()
		inv.timer = nil
	}
	inv.pending = make(map[string]bool)
}

func (inv *Invalidator) flush() {
	inv.mu.Lock()
	if inv.stopped {
		inv.mu.Unlock()
		return
	}
	kinds := inv.takePendingLocked()
	inv.mu.Unlock()

	if len(kinds) > 0 {
		inv.emit(kinds)
	}
}

func (inv *Invalidator) takePendingLocked() []string {
	if inv.timer != nil {
		inv.timer.Stop()
		inv.timer = nil
	}
	kinds := make([]string, 0, len(inv.pending))
	for k := range inv.pending {
		kinds = append(kinds, k)
	}
	inv.pending = make(map[string]bool)
	return kinds
}

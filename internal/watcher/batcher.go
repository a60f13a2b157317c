package watcher

import (
	"sync"
	"time"
)

// ChangeSet is one aggregated change notification.
type ChangeSet struct {
	Changes  []string      `json:"changes"`
	Duration time.Duration `json:"duration"`
}

// ChangeSink receives one ChangeSet per debounce window.
type ChangeSink func(ChangeSet)

// BatchState is the state of a Batcher.
type BatchState int

const (
	StateIdle BatchState = iota
	StatePending
)

// String returns the string representation of the BatchState
func (s BatchState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Batcher groups changed paths into one notification per window. The window
// starts at the first change after a flush and is not extended by later
// changes.
type Batcher struct {
	window time.Duration
	sink   ChangeSink

	mutex   sync.Mutex
	pending []string
	seen    map[string]struct{}
	timer   *time.Timer
	started time.Time
	gen     uint64
}

// NewBatcher creates a batcher delivering to sink after window.
func NewBatcher(window time.Duration, sink ChangeSink) *Batcher {
	return &Batcher{
		window: window,
		sink:   sink,
		seen:   make(map[string]struct{}),
	}
}

// Add records a changed web path. The first Add after a flush arms the timer.
func (b *Batcher) Add(path string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if _, dup := b.seen[path]; !dup {
		b.seen[path] = struct{}{}
		b.pending = append(b.pending, path)
	}

	if b.timer == nil {
		b.gen++
		gen := b.gen
		b.started = time.Now()
		b.timer = time.AfterFunc(b.window, func() { b.fire(gen) })
	}
}

// State reports whether a batch is waiting to be flushed.
func (b *Batcher) State() BatchState {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.timer == nil {
		return StateIdle
	}
	return StatePending
}

// Pending returns a copy of the paths in the current batch.
func (b *Batcher) Pending() []string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	out := make([]string, len(b.pending))
	copy(out, b.pending)
	return out
}

func (b *Batcher) fire(gen uint64) {
	b.mutex.Lock()
	if gen != b.gen || b.timer == nil {
		b.mutex.Unlock()
		return
	}
	set, ok := b.drainLocked()
	b.mutex.Unlock()

	if ok {
		b.deliver(set)
	}
}

// Flush delivers the pending batch immediately, if any. Used on shutdown.
func (b *Batcher) Flush() {
	b.mutex.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	set, ok := b.drainLocked()
	b.mutex.Unlock()

	if ok {
		b.deliver(set)
	}
}

// drainLocked empties the batch and returns to idle. b.mutex must be held.
func (b *Batcher) drainLocked() (ChangeSet, bool) {
	b.timer = nil

	if len(b.pending) == 0 {
		return ChangeSet{}, false
	}

	set := ChangeSet{
		Changes:  b.pending,
		Duration: time.Since(b.started),
	}
	b.pending = nil
	b.seen = make(map[string]struct{})
	return set, true
}

func (b *Batcher) deliver(set ChangeSet) {
	if b.sink != nil {
		b.sink(set)
	}
}

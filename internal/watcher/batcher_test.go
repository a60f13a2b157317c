package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	sets []ChangeSet
}

func (r *recordingSink) sink(set ChangeSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = append(r.sets, set)
}

func (r *recordingSink) snapshot() []ChangeSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChangeSet, len(r.sets))
	copy(out, r.sets)
	return out
}

func TestBatchStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "unknown", BatchState(42).String())
}

func TestBatcherAggregatesWithinWindow(t *testing.T) {
	rec := &recordingSink{}
	batcher := NewBatcher(30*time.Millisecond, rec.sink)

	assert.Equal(t, StateIdle, batcher.State())

	batcher.Add("/src/a.ts")
	batcher.Add("/src/b.ts")
	batcher.Add("/src/a.ts")

	assert.Equal(t, StatePending, batcher.State())
	assert.Equal(t, []string{"/src/a.ts", "/src/b.ts"}, batcher.Pending())

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	sets := rec.snapshot()
	assert.Equal(t, []string{"/src/a.ts", "/src/b.ts"}, sets[0].Changes)
	assert.Equal(t, StateIdle, batcher.State())
	assert.Empty(t, batcher.Pending())
}

func TestBatcherWindowIsNotExtended(t *testing.T) {
	rec := &recordingSink{}
	window := 40 * time.Millisecond
	batcher := NewBatcher(window, rec.sink)

	start := time.Now()
	batcher.Add("/a.js")

	// Keep adding for longer than the window; the first batch must still fire.
	deadline := start.Add(3 * window)
	for time.Now().Before(deadline) && len(rec.snapshot()) == 0 {
		batcher.Add("/b.js")
		time.Sleep(5 * time.Millisecond)
	}

	sets := rec.snapshot()
	require.NotEmpty(t, sets)
	assert.Equal(t, "/a.js", sets[0].Changes[0])
}

func TestBatcherSeparateWindows(t *testing.T) {
	rec := &recordingSink{}
	batcher := NewBatcher(10*time.Millisecond, rec.sink)

	batcher.Add("/one.css")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 2*time.Millisecond)

	batcher.Add("/one.css")
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 2*time.Millisecond)

	sets := rec.snapshot()
	assert.Equal(t, []string{"/one.css"}, sets[0].Changes)
	assert.Equal(t, []string{"/one.css"}, sets[1].Changes)
}

func TestBatcherFlush(t *testing.T) {
	rec := &recordingSink{}
	batcher := NewBatcher(time.Hour, rec.sink)

	batcher.Flush()
	assert.Empty(t, rec.snapshot(), "flushing an idle batcher delivers nothing")

	batcher.Add("/x.ts")
	batcher.Flush()

	sets := rec.snapshot()
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"/x.ts"}, sets[0].Changes)
	assert.Equal(t, StateIdle, batcher.State())
}

func TestBatcherStaleTimerDoesNotDrainNextBatch(t *testing.T) {
	rec := &recordingSink{}
	batcher := NewBatcher(20*time.Millisecond, rec.sink)

	batcher.Add("/first.ts")
	batcher.Flush()
	batcher.Add("/second.ts")

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, time.Second, 2*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	sets := rec.snapshot()
	require.Len(t, sets, 2)
	assert.Equal(t, []string{"/second.ts"}, sets[1].Changes)
}

func TestBatcherNilSink(t *testing.T) {
	batcher := NewBatcher(time.Millisecond, nil)
	batcher.Add("/a.ts")
	assert.NotPanics(t, batcher.Flush)
}

func TestBatcherConcurrentAdd(t *testing.T) {
	rec := &recordingSink{}
	batcher := NewBatcher(time.Hour, rec.sink)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batcher.Add([]string{"/a", "/b", "/c"}[i%3])
		}(i)
	}
	wg.Wait()
	batcher.Flush()

	sets := rec.snapshot()
	require.Len(t, sets, 1)
	assert.ElementsMatch(t, []string{"/a", "/b", "/c"}, sets[0].Changes)
}

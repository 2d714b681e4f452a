package room

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSink records notifications for assertion
type fakeSink struct {
	mu     sync.Mutex
	toasts []string
	sounds []string
	native []string
}

func (f *fakeSink) Toast(title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, title)
}

func (f *fakeSink) Sound(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sounds = append(f.sounds, name)
}

func (f *fakeSink) Notify(title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.native = append(f.native, title)
}

func (f *fakeSink) toastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.toasts)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedulerDebouncesRefreshBursts(t *testing.T) {
	var refreshes atomic.Int32
	sink := &fakeSink{}
	s := NewScheduler("viewer", sink, func() { refreshes.Add(1) }, 30*time.Millisecond, 2*time.Second, testLogger())

	for i := 0; i < 5; i++ {
		s.OnMessageInserted(&Message{ID: "m-1", AuthorID: "other", Body: "hi"})
	}

	waitFor(t, time.Second, func() bool { return refreshes.Load() == 1 })
	// Quiet period over; no further refresh may fire
	time.Sleep(60 * time.Millisecond)
	if got := refreshes.Load(); got != 1 {
		t.Errorf("refreshes after burst: got %d want 1", got)
	}
}

func TestSchedulerSeparatedInsertsRefreshEach(t *testing.T) {
	var refreshes atomic.Int32
	s := NewScheduler("viewer", &fakeSink{}, func() { refreshes.Add(1) }, 20*time.Millisecond, 2*time.Second, testLogger())

	s.OnMessageInserted(&Message{ID: "m-1", AuthorID: "other"})
	waitFor(t, time.Second, func() bool { return refreshes.Load() == 1 })
	s.OnMessageInserted(&Message{ID: "m-2", AuthorID: "other"})
	waitFor(t, time.Second, func() bool { return refreshes.Load() == 2 })
}

func TestSchedulerSuppressesOwnMessages(t *testing.T) {
	var refreshes atomic.Int32
	sink := &fakeSink{}
	s := NewScheduler("viewer", sink, func() { refreshes.Add(1) }, 20*time.Millisecond, 2*time.Second, testLogger())

	s.OnMessageInserted(&Message{ID: "m-1", AuthorID: "viewer", Body: "mine"})

	if sink.toastCount() != 0 {
		t.Error("viewer's own message produced a notification")
	}
	// The leaderboard still refreshes for own messages
	waitFor(t, time.Second, func() bool { return refreshes.Load() == 1 })
}

func TestSchedulerReactionDedupWindow(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler("viewer", sink, func() {}, 20*time.Millisecond, 2*time.Second, testLogger())
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	s.OnReactionChanged("m-1", "u-1", "👍", true)
	s.OnReactionChanged("m-1", "u-1", "👍", true) // duplicate report within window
	if got := sink.toastCount(); got != 1 {
		t.Fatalf("toasts within window: got %d want 1", got)
	}

	// A distinct event is not deduplicated against the first
	s.OnReactionChanged("m-1", "u-2", "👍", true)
	if got := sink.toastCount(); got != 2 {
		t.Fatalf("distinct reaction suppressed: got %d toasts", got)
	}

	// Past the window the same event may notify again
	now = now.Add(3 * time.Second)
	s.OnReactionChanged("m-1", "u-1", "👍", true)
	if got := sink.toastCount(); got != 3 {
		t.Errorf("toasts after window: got %d want 3", got)
	}
}

func TestSchedulerReactionIgnoresViewerAndRemovals(t *testing.T) {
	sink := &fakeSink{}
	s := NewScheduler("viewer", sink, func() {}, 20*time.Millisecond, 2*time.Second, testLogger())

	s.OnReactionChanged("m-1", "viewer", "👍", true)
	s.OnReactionChanged("m-1", "u-1", "👍", false)
	if got := sink.toastCount(); got != 0 {
		t.Errorf("unexpected toasts: %d", got)
	}
}

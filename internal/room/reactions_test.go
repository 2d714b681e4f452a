package room

import (
	"testing"
	"time"
)

func newStoreWithMessage(t *testing.T, viewerID, messageID string) *Store {
	t.Helper()
	s := NewStore(viewerID, 5*time.Second)
	s.ApplyInsert(wireMessage(messageID, "author", "hello", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))
	return s
}

func TestAggregatorDuplicateAddCountsOnce(t *testing.T) {
	s := newStoreWithMessage(t, "viewer", "m-1")
	a := NewAggregator("viewer", s)

	if !a.ApplyAdded("m-1", "u-1", "👍") {
		t.Fatal("first add should change state")
	}
	if a.ApplyAdded("m-1", "u-1", "👍") {
		t.Fatal("duplicate add should be a no-op")
	}

	msg, _ := s.Get("m-1")
	if msg.Reactions["👍"] != 1 {
		t.Errorf("count after duplicate add: got %d want 1", msg.Reactions["👍"])
	}
}

func TestAggregatorDistinctUsersAccumulate(t *testing.T) {
	s := newStoreWithMessage(t, "viewer", "m-1")
	a := NewAggregator("viewer", s)

	a.ApplyAdded("m-1", "u-1", "👍")
	a.ApplyAdded("m-1", "u-2", "👍")
	a.ApplyAdded("m-1", "u-1", "🎉")

	msg, _ := s.Get("m-1")
	if msg.Reactions["👍"] != 2 || msg.Reactions["🎉"] != 1 {
		t.Errorf("counts: got %v", msg.Reactions)
	}
}

func TestAggregatorRemoveClampsAtZero(t *testing.T) {
	s := newStoreWithMessage(t, "viewer", "m-1")
	a := NewAggregator("viewer", s)

	// Remove delivered before its add must not go negative
	a.ApplyRemoved("m-1", "u-1", "👍")
	msg, _ := s.Get("m-1")
	if count, ok := msg.Reactions["👍"]; ok {
		t.Fatalf("phantom count after unmatched remove: %d", count)
	}

	a.ApplyAdded("m-1", "u-2", "👍")
	a.ApplyRemoved("m-1", "u-2", "👍")
	a.ApplyRemoved("m-1", "u-2", "👍") // redelivered remove
	if count, ok := msg.Reactions["👍"]; ok {
		t.Errorf("count should drop to zero and be pruned, got %d", count)
	}
}

func TestAggregatorUnknownMessageIsDropped(t *testing.T) {
	s := NewStore("viewer", 5*time.Second)
	a := NewAggregator("viewer", s)

	if a.ApplyAdded("ghost", "u-1", "👍") {
		t.Error("add for unknown message should be dropped")
	}
	if a.ApplyRemoved("ghost", "u-1", "👍") {
		t.Error("remove for unknown message should be dropped")
	}
}

func TestAggregatorTracksViewerReactions(t *testing.T) {
	s := newStoreWithMessage(t, "viewer", "m-1")
	a := NewAggregator("viewer", s)

	a.ApplyAdded("m-1", "viewer", "👍")
	a.ApplyAdded("m-1", "u-2", "🎉")

	msg, _ := s.Get("m-1")
	if _, mine := msg.MyReactions["👍"]; !mine {
		t.Error("viewer's own reaction missing from MyReactions")
	}
	if _, mine := msg.MyReactions["🎉"]; mine {
		t.Error("another user's reaction leaked into MyReactions")
	}

	a.ApplyRemoved("m-1", "viewer", "👍")
	if _, mine := msg.MyReactions["👍"]; mine {
		t.Error("removed viewer reaction still in MyReactions")
	}
}

func TestAggregatorToggleLocal(t *testing.T) {
	s := newStoreWithMessage(t, "viewer", "m-1")
	a := NewAggregator("viewer", s)
	msg, _ := s.Get("m-1")

	added, changed := a.ToggleLocal("m-1", "👍")
	if !added || !changed {
		t.Fatalf("first toggle: added=%t changed=%t, want add", added, changed)
	}
	if msg.Reactions["👍"] != 1 {
		t.Fatalf("count after toggle on: got %d want 1", msg.Reactions["👍"])
	}

	added, changed = a.ToggleLocal("m-1", "👍")
	if added || !changed {
		t.Fatalf("second toggle: added=%t changed=%t, want remove", added, changed)
	}
	if _, ok := msg.Reactions["👍"]; ok {
		t.Errorf("count after toggle off: got %v", msg.Reactions)
	}

	if _, changed := a.ToggleLocal("ghost", "👍"); changed {
		t.Error("toggle on unknown message should be a no-op")
	}
}

func TestAggregatorRecomputeReplacesDriftedState(t *testing.T) {
	s := newStoreWithMessage(t, "viewer", "m-1")
	s.ApplyInsert(wireMessage("m-2", "author", "other", time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)))
	a := NewAggregator("viewer", s)

	// Drifted local state: a phantom reaction the source never confirmed
	a.ApplyAdded("m-1", "u-1", "👍")
	a.ApplyAdded("m-1", "u-2", "👍")
	a.ApplyAdded("m-2", "u-1", "🎉")

	a.Recompute([]string{"m-1"}, []Reaction{
		{MessageID: "m-1", UserID: "u-2", Emoji: "👍"},
		{MessageID: "m-1", UserID: "viewer", Emoji: "🔥"},
		{MessageID: "m-1", UserID: "viewer", Emoji: "🔥"}, // authoritative dup row
	})

	msg, _ := s.Get("m-1")
	if msg.Reactions["👍"] != 1 || msg.Reactions["🔥"] != 1 {
		t.Errorf("recomputed counts: got %v", msg.Reactions)
	}
	if _, mine := msg.MyReactions["🔥"]; !mine {
		t.Error("viewer reaction from authoritative listing missing")
	}

	// Out-of-scope message untouched
	other, _ := s.Get("m-2")
	if other.Reactions["🎉"] != 1 {
		t.Errorf("out-of-scope message was touched: %v", other.Reactions)
	}

	// Dedup state follows the recompute: redelivering the authoritative
	// reaction must still be a no-op
	if a.ApplyAdded("m-1", "u-2", "👍") {
		t.Error("redelivered reaction after recompute should deduplicate")
	}
}

func TestAggregatorForget(t *testing.T) {
	s := newStoreWithMessage(t, "viewer", "m-1")
	a := NewAggregator("viewer", s)

	a.ApplyAdded("m-1", "u-1", "👍")
	s.ApplyDelete("m-1")
	a.Forget("m-1")

	// A resurrected id starts from a clean dedup slate
	s.ApplyInsert(wireMessage("m-1", "author", "hello again", time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)))
	if !a.ApplyAdded("m-1", "u-1", "👍") {
		t.Error("add after Forget should apply")
	}
}

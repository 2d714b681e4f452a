package room

import (
	"testing"
	"time"
)

func TestVisible(t *testing.T) {
	root := &Message{ID: "m-root", AuthorID: "alice"}

	tests := []struct {
		name    string
		msg     *Message
		viewer  string
		visible bool
	}{
		{
			name:    "public message visible to anyone",
			msg:     &Message{ID: "m-1", AuthorID: "alice"},
			viewer:  "carol",
			visible: true,
		},
		{
			name:    "private reply visible to its author",
			msg:     &Message{ID: "m-2", AuthorID: "bob", ReplyToID: "m-root", ReplyTo: root, Private: true},
			viewer:  "bob",
			visible: true,
		},
		{
			name:    "private reply visible to the replied-to author",
			msg:     &Message{ID: "m-2", AuthorID: "bob", ReplyToID: "m-root", ReplyTo: root, Private: true},
			viewer:  "alice",
			visible: true,
		},
		{
			name:    "private reply hidden from third parties",
			msg:     &Message{ID: "m-2", AuthorID: "bob", ReplyToID: "m-root", ReplyTo: root, Private: true},
			viewer:  "carol",
			visible: false,
		},
		{
			name:    "unhydrated private reply hidden from the recipient until resolved",
			msg:     &Message{ID: "m-2", AuthorID: "bob", ReplyToID: "m-root", Private: true},
			viewer:  "alice",
			visible: false,
		},
		{
			name:    "unhydrated private reply still visible to its author",
			msg:     &Message{ID: "m-2", AuthorID: "bob", ReplyToID: "m-root", Private: true},
			viewer:  "bob",
			visible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Visible(tt.msg, tt.viewer); got != tt.visible {
				t.Errorf("Visible(%s, %s): got %t want %t", tt.msg.ID, tt.viewer, got, tt.visible)
			}
		})
	}
}

// The replied-to scenario end to end: R posts m1, A posts a private reply m2.
// A and R see both messages; any other occupant sees only m1.
func TestPrivateReplyScenario(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	buildStore := func(viewer string) []*Message {
		s := NewStore(viewer, 5*time.Second)
		s.ApplyInsert(wireMessage("m1", "user-R", "original", base))

		reply := wireMessage("m2", "user-A", "just for you", base.Add(time.Second))
		reply.ReplyToID = "m1"
		reply.Private = true
		s.ApplyInsert(reply)

		// Hydrate the reply from local state, as the engine does
		m2, _ := s.Get("m2")
		m1, _ := s.Get("m1")
		m2.ReplyTo = m1

		return filterVisible(s.All(), viewer)
	}

	for _, viewer := range []string{"user-A", "user-R"} {
		if got := buildStore(viewer); len(got) != 2 {
			t.Errorf("viewer %s: got %d messages, want 2", viewer, len(got))
		}
	}

	got := buildStore("user-C")
	if len(got) != 1 || got[0].ID != "m1" {
		ids := make([]string, len(got))
		for i, m := range got {
			ids[i] = m.ID
		}
		t.Errorf("third party: got %v, want [m1]", ids)
	}
}

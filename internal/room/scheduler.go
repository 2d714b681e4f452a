package room

import (
	"fmt"
	"time"

	"github.com/bep/debounce"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sandwichfarm/roomsync/internal/ops"
)

// Scheduler drives the derived work hanging off engine mutations: the
// debounced leaderboard recomputation and the immediate viewer
// notifications. Notifications never wait on the debounce.
type Scheduler struct {
	viewerID string
	sink     NotificationSink
	log      *ops.Logger

	refresh   func()
	debounced func(func())

	dedupWindow time.Duration
	recent      *xsync.MapOf[string, time.Time]
	now         func() time.Time
}

// NewScheduler creates a scheduler. refresh is the leaderboard
// recomputation, invoked on the trailing edge of the quiet period; sink
// receives notifications synchronously.
func NewScheduler(viewerID string, sink NotificationSink, refresh func(), quiet, dedupWindow time.Duration, log *ops.Logger) *Scheduler {
	return &Scheduler{
		viewerID:    viewerID,
		sink:        sink,
		log:         log,
		refresh:     refresh,
		debounced:   debounce.New(quiet),
		dedupWindow: dedupWindow,
		recent:      xsync.NewMapOf[string, time.Time](),
		now:         time.Now,
	}
}

// SetClock replaces the wall-clock source used by the dedup window, for
// deterministic tests. The debounce timer itself always runs on real time.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// OnMessageInserted reacts to a newly admitted message: notifies the viewer
// immediately unless they authored it, then schedules the debounced
// leaderboard refresh. Bursts of inserts within the quiet period collapse
// into a single refresh.
func (s *Scheduler) OnMessageInserted(msg *Message) {
	if msg.AuthorID != s.viewerID {
		title := fmt.Sprintf("New message from %s", msg.AuthorID)
		s.sink.Toast(title, msg.Body)
		s.sink.Sound("message")
		s.sink.Notify(title, msg.Body)
		s.log.LogNotification("message", msg.ID)
	}

	s.debounced(s.refresh)
}

// OnReactionChanged notifies the viewer about a reaction event, at most once
// per distinct event within the dedup window. Redundant subscriptions can
// report the same underlying change twice; the window absorbs that.
func (s *Scheduler) OnReactionChanged(messageID, userID, emoji string, added bool) {
	if userID == s.viewerID {
		return
	}

	key := fmt.Sprintf("%s|%s|%s|%t", messageID, userID, emoji, added)
	now := s.now()
	if last, ok := s.recent.Load(key); ok && now.Sub(last) < s.dedupWindow {
		return
	}
	s.recent.Store(key, now)
	s.sweep(now)

	if added {
		s.sink.Toast("New reaction", fmt.Sprintf("%s reacted %s", userID, emoji))
		s.log.LogNotification("reaction", messageID)
	}
}

// sweep drops dedup entries older than the window
func (s *Scheduler) sweep(now time.Time) {
	s.recent.Range(func(key string, seen time.Time) bool {
		if now.Sub(seen) >= s.dedupWindow {
			s.recent.Delete(key)
		}
		return true
	})
}

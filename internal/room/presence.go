package room

import (
	"sort"
	"time"

	"github.com/sandwichfarm/roomsync/internal/event"
	"github.com/sandwichfarm/roomsync/internal/ops"
)

// Tracker maintains the soft-state occupant map for one room. Status is
// never stored: it is derived from heartbeat age at evaluation time, so the
// tracker needs no clock polling of its own. The engine's periodic recheck
// tick calls Recheck only to keep displayed status and transition logs fresh
// when no events arrive.
type Tracker struct {
	threshold time.Duration
	maxMisses int
	now       func() time.Time
	log       *ops.Logger

	entries map[string]*presenceEntry
}

type presenceEntry struct {
	userID      string
	displayName string
	avatarURL   string
	lastSeen    time.Time
	misses      int    // consecutive full-resync omissions
	lastStatus  Status // last derived status, for transition logging
}

// NewTracker creates a presence tracker. threshold is the heartbeat age at
// which an occupant is demoted to away; maxMisses is the number of
// consecutive full-resync omissions after which an occupant is removed.
func NewTracker(threshold time.Duration, maxMisses int, log *ops.Logger) *Tracker {
	if maxMisses < 1 {
		maxMisses = 1
	}
	return &Tracker{
		threshold: threshold,
		maxMisses: maxMisses,
		now:       time.Now,
		log:       log,
		entries:   make(map[string]*presenceEntry),
	}
}

// SetClock replaces the wall-clock source, for deterministic tests
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Heartbeat records a heartbeat or join for one occupant. A missing
// last-seen timestamp means "now" (the sender's clock is not trusted to be
// ahead of ours).
func (t *Tracker) Heartbeat(occ event.Occupant) {
	seen := occ.LastSeen
	if seen.IsZero() || seen.After(t.now()) {
		seen = t.now()
	}

	entry, ok := t.entries[occ.UserID]
	if !ok {
		entry = &presenceEntry{userID: occ.UserID, lastStatus: StatusOnline}
		t.entries[occ.UserID] = entry
		t.log.LogPresenceTransition(occ.UserID, "absent", string(StatusOnline))
	}
	entry.lastSeen = seen
	entry.misses = 0
	if occ.DisplayName != "" {
		entry.displayName = occ.DisplayName
	}
	if occ.AvatarURL != "" {
		entry.avatarURL = occ.AvatarURL
	}
	t.refresh(entry)
}

// Sync applies a full-state occupant snapshot. Occupants present in the
// snapshot are refreshed; occupants absent from it accrue a miss and are
// removed once the miss budget is spent. One miss alone does not remove:
// partial snapshots from a racing resync would otherwise flap the roster.
func (t *Tracker) Sync(occupants []event.Occupant) {
	included := make(map[string]struct{}, len(occupants))
	for _, occ := range occupants {
		included[occ.UserID] = struct{}{}
		t.Heartbeat(occ)
	}

	for userID, entry := range t.entries {
		if _, ok := included[userID]; ok {
			continue
		}
		entry.misses++
		if entry.misses >= t.maxMisses {
			t.log.LogPresenceTransition(userID, string(entry.lastStatus), "absent")
			delete(t.entries, userID)
		}
	}
}

// Leave removes an occupant on an explicit leave notification. Unknown
// occupants are a no-op.
func (t *Tracker) Leave(userID string) {
	entry, ok := t.entries[userID]
	if !ok {
		return
	}
	t.log.LogPresenceTransition(userID, string(entry.lastStatus), "absent")
	delete(t.entries, userID)
}

// Status returns the derived status for one occupant
func (t *Tracker) Status(userID string) (Status, bool) {
	entry, ok := t.entries[userID]
	if !ok {
		return "", false
	}
	return t.derive(entry), true
}

// Occupants returns the roster with freshly derived statuses, sorted by
// user id for deterministic output
func (t *Tracker) Occupants() []Occupant {
	out := make([]Occupant, 0, len(t.entries))
	for _, entry := range t.entries {
		t.refresh(entry)
		out = append(out, Occupant{
			UserID:      entry.userID,
			DisplayName: entry.displayName,
			AvatarURL:   entry.avatarURL,
			LastSeen:    entry.lastSeen,
			Status:      entry.lastStatus,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Recheck re-derives every occupant's status, logging transitions. Called on
// the periodic tick so an idle room still demotes stale occupants on time.
func (t *Tracker) Recheck() {
	for _, entry := range t.entries {
		t.refresh(entry)
	}
}

// derive computes the status from heartbeat age: online strictly under the
// threshold, away at or past it
func (t *Tracker) derive(entry *presenceEntry) Status {
	if t.now().Sub(entry.lastSeen) >= t.threshold {
		return StatusAway
	}
	return StatusOnline
}

func (t *Tracker) refresh(entry *presenceEntry) {
	status := t.derive(entry)
	if status != entry.lastStatus {
		t.log.LogPresenceTransition(entry.userID, string(entry.lastStatus), string(status))
		entry.lastStatus = status
	}
}

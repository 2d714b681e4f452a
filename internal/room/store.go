package room

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sandwichfarm/roomsync/internal/event"
)

// Store is the ordered, identity-keyed message collection for one room.
// It is not safe for concurrent use on its own; the engine serializes all
// access, mirroring the single-threaded mutation model of the original
// client.
type Store struct {
	viewerID    string
	matchWindow time.Duration
	now         func() time.Time

	messages map[string]*Message
	nextSeq  uint64

	// provisional id -> insertion time, for optimistic timeout sweeps
	pending map[string]time.Time
}

// NewStore creates an empty message store for the given viewer
func NewStore(viewerID string, matchWindow time.Duration) *Store {
	return &Store{
		viewerID:    viewerID,
		matchWindow: matchWindow,
		now:         time.Now,
		messages:    make(map[string]*Message),
		pending:     make(map[string]time.Time),
	}
}

// SetClock replaces the wall-clock source, for deterministic tests
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// ApplyInsert applies an authoritative insert event. A duplicate id is a
// silent no-op. If the insert matches a pending optimistic entry it
// reconciles that entry instead of creating a second message. Returns the
// stored message and whether state changed.
func (s *Store) ApplyInsert(w event.Message) (*Message, bool) {
	if existing, ok := s.messages[w.ID]; ok {
		return existing, false
	}

	if provisionalID, ok := s.findOptimisticMatch(w); ok {
		msg, _ := s.ReconcileOptimistic(provisionalID, w)
		return msg, true
	}

	msg := fromWire(w)
	msg.seq = s.take()
	s.messages[msg.ID] = msg
	return msg, true
}

// ApplyUpdate applies a partial update. An unknown id is a silent no-op: the
// delete or the update may race the insert during catch-up. A timestamped
// patch that is not newer than the stored message is a no-op too, so a
// redelivered older update cannot regress state already advanced past it.
func (s *Store) ApplyUpdate(id string, patch event.MessagePatch) bool {
	msg, ok := s.messages[id]
	if !ok {
		return false
	}
	if !patch.UpdatedAt.IsZero() && !patch.UpdatedAt.After(msg.UpdatedAt) {
		return false
	}

	if patch.Body != nil {
		msg.Body = *patch.Body
		// An edit invalidates cached translations of the old body
		msg.Translations = make(map[string]string)
	}
	if patch.File != nil {
		msg.File = patch.File
	}
	if !patch.UpdatedAt.IsZero() {
		msg.UpdatedAt = patch.UpdatedAt
	}
	return true
}

// ApplyDelete removes a message. An unknown id is a silent no-op.
func (s *Store) ApplyDelete(id string) bool {
	if _, ok := s.messages[id]; !ok {
		return false
	}
	delete(s.messages, id)
	delete(s.pending, id)
	return true
}

// InsertOptimistic stores a locally-composed draft under a provisional id
// and returns that id. The entry is replaced on reconciliation or marked
// failed after the optimistic timeout.
func (s *Store) InsertOptimistic(draft Draft) string {
	now := s.now().UTC()
	msg := &Message{
		ID:           "local-" + uuid.NewString(),
		AuthorID:     s.viewerID,
		Body:         draft.Body,
		File:         draft.File,
		ReplyToID:    draft.ReplyToID,
		Private:      draft.Private,
		Reactions:    make(map[string]int),
		MyReactions:  make(map[string]struct{}),
		Translations: make(map[string]string),
		CreatedAt:    now,
		UpdatedAt:    now,
		Delivery:     DeliveryOptimistic,
		seq:          s.take(),
	}
	s.messages[msg.ID] = msg
	s.pending[msg.ID] = now
	return msg.ID
}

// ReconcileOptimistic atomically replaces a provisional entry with its
// authoritative counterpart. The provisional arrival order is kept so the
// message does not jump within equal-timestamp runs. Unknown provisional ids
// are no-ops (the entry may already have been reconciled away).
func (s *Store) ReconcileOptimistic(provisionalID string, w event.Message) (*Message, bool) {
	prov, ok := s.messages[provisionalID]
	if !ok || prov.Delivery == DeliveryConfirmed {
		return nil, false
	}

	msg := fromWire(w)
	msg.seq = prov.seq
	delete(s.messages, provisionalID)
	delete(s.pending, provisionalID)
	s.messages[msg.ID] = msg
	return msg, true
}

// ExpireOptimistic marks provisional entries older than timeout as failed
// and returns them. Failed entries stay in the store for the viewer to retry
// or dismiss; they are never silently dropped.
func (s *Store) ExpireOptimistic(timeout time.Duration) []*Message {
	var failed []*Message
	cutoff := s.now().Add(-timeout)

	for id, sentAt := range s.pending {
		if sentAt.After(cutoff) {
			continue
		}
		delete(s.pending, id)
		if msg, ok := s.messages[id]; ok && msg.Delivery == DeliveryOptimistic {
			msg.Delivery = DeliveryFailed
			failed = append(failed, msg)
		}
	}
	return failed
}

// Get returns a message by id
func (s *Store) Get(id string) (*Message, bool) {
	msg, ok := s.messages[id]
	return msg, ok
}

// PendingCount returns the number of optimistic entries awaiting
// confirmation
func (s *Store) PendingCount() int {
	return len(s.pending)
}

// Len returns the number of stored messages
func (s *Store) Len() int {
	return len(s.messages)
}

// All returns every stored message ordered by creation time, arrival order
// breaking ties. Callers must not retain the slice across mutations.
func (s *Store) All() []*Message {
	out := make([]*Message, 0, len(s.messages))
	for _, msg := range s.messages {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].seq < out[j].seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// findOptimisticMatch locates a pending optimistic entry matching an
// authoritative insert: same author, same content, created within the match
// window. Best-effort; duplicate rapid sends of identical content can
// misfire, and the optimistic timeout plus resync absorb the drift.
func (s *Store) findOptimisticMatch(w event.Message) (string, bool) {
	if w.AuthorID != s.viewerID {
		return "", false
	}

	var bestID string
	var bestAge time.Duration
	for id := range s.pending {
		prov, ok := s.messages[id]
		if !ok || prov.Delivery != DeliveryOptimistic {
			continue
		}
		if prov.Body != w.Body || prov.ReplyToID != w.ReplyToID {
			continue
		}
		age := absDuration(w.CreatedAt.Sub(prov.CreatedAt))
		if age > s.matchWindow {
			continue
		}
		if bestID == "" || age < bestAge {
			bestID = id
			bestAge = age
		}
	}
	return bestID, bestID != ""
}

func (s *Store) take() uint64 {
	s.nextSeq++
	return s.nextSeq
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

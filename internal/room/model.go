package room

import (
	"time"

	"github.com/sandwichfarm/roomsync/internal/event"
)

// Delivery marks how a message entered the store
type Delivery string

// Delivery states for a stored message
const (
	DeliveryConfirmed  Delivery = "confirmed"
	DeliveryOptimistic Delivery = "optimistic"
	DeliveryFailed     Delivery = "failed"
)

// Message is the engine's view of a single chat message. It carries the
// aggregates (reaction counts, viewer reactions, translations) that the wire
// form does not.
type Message struct {
	ID          string
	RoomID      string
	AuthorID    string
	Body        string
	File        *event.FileRef
	ReplyToID   string
	ReplyTo     *Message // attached by hydration; nil until resolved
	Private     bool
	Reactions   map[string]int
	MyReactions map[string]struct{}
	// Translations maps language code to translated body. Populated lazily,
	// never evicted for the life of the room session.
	Translations map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Delivery     Delivery

	seq uint64 // arrival order, tie-breaks equal timestamps
}

// IsReply returns true if the message references another message
func (m *Message) IsReply() bool {
	return m.ReplyToID != ""
}

// Hydrated returns true if the reply reference has been resolved
func (m *Message) Hydrated() bool {
	return m.ReplyToID == "" || m.ReplyTo != nil
}

// Clone returns a copy safe to hand outside the engine. The hydrated reply
// reference is shared; it is never mutated after attachment.
func (m *Message) Clone() *Message {
	c := *m
	c.Reactions = make(map[string]int, len(m.Reactions))
	for emoji, count := range m.Reactions {
		c.Reactions[emoji] = count
	}
	c.MyReactions = make(map[string]struct{}, len(m.MyReactions))
	for emoji := range m.MyReactions {
		c.MyReactions[emoji] = struct{}{}
	}
	c.Translations = make(map[string]string, len(m.Translations))
	for lang, text := range m.Translations {
		c.Translations[lang] = text
	}
	return &c
}

// fromWire converts a wire message into engine state
func fromWire(w event.Message) *Message {
	return &Message{
		ID:           w.ID,
		RoomID:       w.RoomID,
		AuthorID:     w.AuthorID,
		Body:         w.Body,
		File:         w.File,
		ReplyToID:    w.ReplyToID,
		Private:      w.Private,
		Reactions:    make(map[string]int),
		MyReactions:  make(map[string]struct{}),
		Translations: make(map[string]string),
		CreatedAt:    w.CreatedAt,
		UpdatedAt:    w.UpdatedAt,
		Delivery:     DeliveryConfirmed,
	}
}

// Draft is a locally-composed message before authoritative confirmation
type Draft struct {
	Body      string
	File      *event.FileRef
	ReplyToID string
	Private   bool
}

// Reaction is the authoritative (message, user, emoji) triple returned by
// the storage collaborator during a resync
type Reaction struct {
	MessageID string
	UserID    string
	Emoji     string
}

// Status is the derived presence state of an occupant
type Status string

// Presence states
const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
)

// Occupant is a room member as exposed by the presence tracker
type Occupant struct {
	UserID      string
	DisplayName string
	AvatarURL   string
	LastSeen    time.Time
	Status      Status
}

// LeaderboardEntry is one row of the per-room activity leaderboard
type LeaderboardEntry struct {
	AuthorID string
	Messages int
}

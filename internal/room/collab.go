package room

import (
	"context"
	"errors"

	"github.com/sandwichfarm/roomsync/internal/event"
)

// Sentinel errors distinguishable by callers
var (
	// ErrNotEligible means the eligibility collaborator refused the viewer
	ErrNotEligible = errors.New("viewer is not eligible for this room")
	// ErrSourceClosed means the realtime feed disconnected; the session must
	// be rebuilt from a fresh snapshot
	ErrSourceClosed = errors.New("event source closed")
	// ErrClosed means the engine was torn down
	ErrClosed = errors.New("room session closed")
)

// EventSource delivers typed realtime events for a room. Delivery is
// at-least-once with no ordering guarantee across event types; duplicates are
// expected and absorbed by the engine.
type EventSource interface {
	Subscribe(ctx context.Context, roomID string) (<-chan event.Event, error)
	Close() error
}

// Fetcher is the storage collaborator used for the snapshot load, batched
// reply hydration, and full reaction resyncs.
type Fetcher interface {
	FetchRoomMessages(ctx context.Context, roomID string) ([]event.Message, error)
	FetchMessagesByID(ctx context.Context, ids []string) ([]event.Message, error)
	FetchReactionsByMessageIDs(ctx context.Context, ids []string) ([]Reaction, error)
}

// Eligibility decides whether a viewer may join a room. Consulted once at
// join time, not part of the live loop.
type Eligibility interface {
	CheckEligibility(ctx context.Context, userID, roomID string) (bool, string, error)
}

// PresencePublisher announces the local viewer to the room's peers on the
// heartbeat interval.
type PresencePublisher interface {
	PublishHeartbeat(ctx context.Context, roomID string, occupant event.Occupant) error
}

// Publisher sends locally-composed mutations toward the authoritative store.
// A published message comes back through the event source and reconciles the
// optimistic entry; a published reaction is what the later resync converges
// on.
type Publisher interface {
	PublishMessage(ctx context.Context, roomID string, draft event.Message) error
	PublishReaction(ctx context.Context, roomID, messageID, userID, emoji string, added bool) error
}

// NotificationSink surfaces user-facing notifications. The engine calls it
// but never implements presentation.
type NotificationSink interface {
	Toast(title, body string)
	Sound(name string)
	Notify(title, body string)
}

// LeaderboardStore receives the debounced leaderboard recomputation result
type LeaderboardStore interface {
	StoreLeaderboard(ctx context.Context, roomID string, entries []LeaderboardEntry) error
}

// Translator produces a translation of message text into a target language
type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

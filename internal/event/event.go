package event

import "time"

// Type identifies an event variant on the wire
type Type string

// Event types delivered by the realtime feed
const (
	TypeMessageInserted  Type = "message.inserted"
	TypeMessageUpdated   Type = "message.updated"
	TypeMessageDeleted   Type = "message.deleted"
	TypeReactionInserted Type = "reaction.inserted"
	TypeReactionDeleted  Type = "reaction.deleted"
	TypePresenceSync     Type = "presence.sync"
	TypePresenceJoin     Type = "presence.join"
	TypePresenceLeave    Type = "presence.leave"
)

// Event is a validated, typed realtime event. Core logic only ever sees
// these variants; raw feed payloads stop at the decoder.
type Event interface {
	EventType() Type
}

// FileRef describes a file attached to a message
type FileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Mime string `json:"mime"`
	Size int64  `json:"size"`
}

// Message is the wire form of a chat message
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	File      *FileRef  `json:"file,omitempty"`
	ReplyToID string    `json:"reply_to_id,omitempty"`
	Private   bool      `json:"private"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessagePatch carries the mutable fields of a message update
type MessagePatch struct {
	Body      *string   `json:"body,omitempty"`
	File      *FileRef  `json:"file,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Occupant is the wire form of a presence entry
type Occupant struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	LastSeen    time.Time `json:"last_seen"`
}

// MessageInserted signals a new message in the room
type MessageInserted struct {
	Message Message
}

// EventType implements Event
func (MessageInserted) EventType() Type { return TypeMessageInserted }

// MessageUpdated signals a partial update to an existing message
type MessageUpdated struct {
	ID    string
	Patch MessagePatch
}

// EventType implements Event
func (MessageUpdated) EventType() Type { return TypeMessageUpdated }

// MessageDeleted signals removal of a message
type MessageDeleted struct {
	ID string
}

// EventType implements Event
func (MessageDeleted) EventType() Type { return TypeMessageDeleted }

// ReactionInserted signals a user adding an emoji reaction
type ReactionInserted struct {
	MessageID string
	UserID    string
	Emoji     string
}

// EventType implements Event
func (ReactionInserted) EventType() Type { return TypeReactionInserted }

// ReactionDeleted signals a user removing an emoji reaction
type ReactionDeleted struct {
	MessageID string
	UserID    string
	Emoji     string
}

// EventType implements Event
func (ReactionDeleted) EventType() Type { return TypeReactionDeleted }

// PresenceSync carries a full occupant snapshot for the room
type PresenceSync struct {
	Occupants []Occupant
}

// EventType implements Event
func (PresenceSync) EventType() Type { return TypePresenceSync }

// PresenceJoin signals a single occupant heartbeat or join
type PresenceJoin struct {
	Occupant Occupant
}

// EventType implements Event
func (PresenceJoin) EventType() Type { return TypePresenceJoin }

// PresenceLeave signals an occupant explicitly leaving the room
type PresenceLeave struct {
	UserID string
}

// EventType implements Event
func (PresenceLeave) EventType() Type { return TypePresenceLeave }

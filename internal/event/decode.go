package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Decode errors distinguishable by callers
var (
	ErrMalformed   = errors.New("malformed event payload")
	ErrUnknownType = errors.New("unknown event type")
)

// Decode validates a raw feed payload and converts it into a typed event.
// Payloads are loosely-typed JSON from the feed; nothing past this function
// touches them directly.
func Decode(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}

	root := gjson.ParseBytes(data)
	typ := Type(root.Get("type").String())
	payload := root.Get("payload")
	if !payload.Exists() {
		return nil, fmt.Errorf("%w: missing payload", ErrMalformed)
	}

	switch typ {
	case TypeMessageInserted:
		msg, err := decodeMessage(payload)
		if err != nil {
			return nil, err
		}
		return MessageInserted{Message: msg}, nil

	case TypeMessageUpdated:
		id := payload.Get("id").String()
		if id == "" {
			return nil, fmt.Errorf("%w: message update without id", ErrMalformed)
		}
		patch := MessagePatch{UpdatedAt: decodeTime(payload.Get("updated_at"))}
		if body := payload.Get("body"); body.Exists() {
			s := body.String()
			patch.Body = &s
		}
		if file := payload.Get("file"); file.Exists() {
			patch.File = decodeFile(file)
		}
		return MessageUpdated{ID: id, Patch: patch}, nil

	case TypeMessageDeleted:
		id := payload.Get("id").String()
		if id == "" {
			return nil, fmt.Errorf("%w: message delete without id", ErrMalformed)
		}
		return MessageDeleted{ID: id}, nil

	case TypeReactionInserted, TypeReactionDeleted:
		messageID := payload.Get("message_id").String()
		userID := payload.Get("user_id").String()
		emoji := payload.Get("emoji").String()
		if messageID == "" || userID == "" || emoji == "" {
			return nil, fmt.Errorf("%w: reaction event missing fields", ErrMalformed)
		}
		if typ == TypeReactionInserted {
			return ReactionInserted{MessageID: messageID, UserID: userID, Emoji: emoji}, nil
		}
		return ReactionDeleted{MessageID: messageID, UserID: userID, Emoji: emoji}, nil

	case TypePresenceSync:
		occupantsField := payload.Get("occupants")
		if !occupantsField.IsArray() {
			return nil, fmt.Errorf("%w: presence sync without occupants array", ErrMalformed)
		}
		occupants := make([]Occupant, 0)
		var bad error
		occupantsField.ForEach(func(_, value gjson.Result) bool {
			occ, err := decodeOccupant(value)
			if err != nil {
				bad = err
				return false
			}
			occupants = append(occupants, occ)
			return true
		})
		if bad != nil {
			return nil, bad
		}
		return PresenceSync{Occupants: occupants}, nil

	case TypePresenceJoin:
		occ, err := decodeOccupant(payload)
		if err != nil {
			return nil, err
		}
		return PresenceJoin{Occupant: occ}, nil

	case TypePresenceLeave:
		userID := payload.Get("user_id").String()
		if userID == "" {
			return nil, fmt.Errorf("%w: presence leave without user_id", ErrMalformed)
		}
		return PresenceLeave{UserID: userID}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(typ))
	}
}

func decodeMessage(payload gjson.Result) (Message, error) {
	id := payload.Get("id").String()
	roomID := payload.Get("room_id").String()
	authorID := payload.Get("author_id").String()
	if id == "" || roomID == "" || authorID == "" {
		return Message{}, fmt.Errorf("%w: message missing id, room_id, or author_id", ErrMalformed)
	}

	msg := Message{
		ID:        id,
		RoomID:    roomID,
		AuthorID:  authorID,
		Body:      payload.Get("body").String(),
		ReplyToID: payload.Get("reply_to_id").String(),
		Private:   payload.Get("private").Bool(),
		CreatedAt: decodeTime(payload.Get("created_at")),
		UpdatedAt: decodeTime(payload.Get("updated_at")),
	}
	if file := payload.Get("file"); file.Exists() {
		msg.File = decodeFile(file)
	}
	if msg.Private && msg.ReplyToID == "" {
		return Message{}, fmt.Errorf("%w: private flag on a non-reply message", ErrMalformed)
	}
	return msg, nil
}

func decodeOccupant(payload gjson.Result) (Occupant, error) {
	userID := payload.Get("user_id").String()
	if userID == "" {
		return Occupant{}, fmt.Errorf("%w: occupant without user_id", ErrMalformed)
	}
	return Occupant{
		UserID:      userID,
		DisplayName: payload.Get("display_name").String(),
		AvatarURL:   payload.Get("avatar_url").String(),
		LastSeen:    decodeTime(payload.Get("last_seen")),
	}, nil
}

func decodeFile(field gjson.Result) *FileRef {
	return &FileRef{
		Name: field.Get("name").String(),
		URL:  field.Get("url").String(),
		Mime: field.Get("mime").String(),
		Size: field.Get("size").Int(),
	}
}

// decodeTime accepts RFC3339 strings or unix seconds
func decodeTime(field gjson.Result) time.Time {
	if !field.Exists() {
		return time.Time{}
	}
	if field.Type == gjson.Number {
		return time.Unix(field.Int(), 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, field.String()); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

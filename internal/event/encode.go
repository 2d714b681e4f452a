package event

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes a typed event into the wire envelope understood by
// Decode. The inverse direction of the feed: local publishes travel through
// the same format the subscription consumes.
func Encode(ev Event) ([]byte, error) {
	var payload any

	switch v := ev.(type) {
	case MessageInserted:
		payload = v.Message
	case MessageUpdated:
		payload = struct {
			ID string `json:"id"`
			MessagePatch
		}{ID: v.ID, MessagePatch: v.Patch}
	case MessageDeleted:
		payload = struct {
			ID string `json:"id"`
		}{ID: v.ID}
	case ReactionInserted:
		payload = reactionPayload{MessageID: v.MessageID, UserID: v.UserID, Emoji: v.Emoji}
	case ReactionDeleted:
		payload = reactionPayload{MessageID: v.MessageID, UserID: v.UserID, Emoji: v.Emoji}
	case PresenceSync:
		payload = struct {
			Occupants []Occupant `json:"occupants"`
		}{Occupants: v.Occupants}
	case PresenceJoin:
		payload = v.Occupant
	case PresenceLeave:
		payload = struct {
			UserID string `json:"user_id"`
		}{UserID: v.UserID}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.Marshal(envelope{Type: ev.EventType(), Payload: raw})
}

type reactionPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

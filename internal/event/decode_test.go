package event

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeMessageInserted(t *testing.T) {
	raw := []byte(`{
		"type": "message.inserted",
		"payload": {
			"id": "m-1",
			"room_id": "general",
			"author_id": "u-1",
			"body": "hello",
			"private": false,
			"created_at": "2026-03-01T10:00:00Z",
			"file": {"name": "pic.png", "url": "https://files/pic.png", "mime": "image/png", "size": 2048}
		}
	}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}

	ins, ok := ev.(MessageInserted)
	if !ok {
		t.Fatalf("expected MessageInserted, got %T", ev)
	}
	if ins.Message.ID != "m-1" || ins.Message.AuthorID != "u-1" {
		t.Errorf("unexpected message identity: %+v", ins.Message)
	}
	if ins.Message.File == nil || ins.Message.File.Size != 2048 {
		t.Errorf("file reference not decoded: %+v", ins.Message.File)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !ins.Message.CreatedAt.Equal(want) {
		t.Errorf("created_at: got %v want %v", ins.Message.CreatedAt, want)
	}
}

func TestDecodeMessageUpdatedPartialPatch(t *testing.T) {
	raw := []byte(`{
		"type": "message.updated",
		"payload": {"id": "m-1", "body": "edited", "updated_at": 1767225600}
	}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}

	upd, ok := ev.(MessageUpdated)
	if !ok {
		t.Fatalf("expected MessageUpdated, got %T", ev)
	}
	if upd.Patch.Body == nil || *upd.Patch.Body != "edited" {
		t.Errorf("body patch not decoded: %+v", upd.Patch)
	}
	if upd.Patch.File != nil {
		t.Errorf("unexpected file patch: %+v", upd.Patch.File)
	}
	if upd.Patch.UpdatedAt.IsZero() {
		t.Error("unix timestamp not decoded")
	}
}

func TestDecodeReactionEvents(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Type
	}{
		{
			name: "reaction inserted",
			raw:  `{"type":"reaction.inserted","payload":{"message_id":"m-1","user_id":"u-2","emoji":"👍"}}`,
			want: TypeReactionInserted,
		},
		{
			name: "reaction deleted",
			raw:  `{"type":"reaction.deleted","payload":{"message_id":"m-1","user_id":"u-2","emoji":"👍"}}`,
			want: TypeReactionDeleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode err: %v", err)
			}
			if ev.EventType() != tt.want {
				t.Errorf("type: got %s want %s", ev.EventType(), tt.want)
			}
		})
	}
}

func TestDecodePresenceSync(t *testing.T) {
	raw := []byte(`{
		"type": "presence.sync",
		"payload": {"occupants": [
			{"user_id": "u-1", "display_name": "Ada", "last_seen": "2026-03-01T10:00:00Z"},
			{"user_id": "u-2", "display_name": "Lin", "last_seen": "2026-03-01T10:00:05Z"}
		]}
	}`)

	ev, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode err: %v", err)
	}
	sync, ok := ev.(PresenceSync)
	if !ok {
		t.Fatalf("expected PresenceSync, got %T", ev)
	}
	if len(sync.Occupants) != 2 {
		t.Fatalf("occupants: got %d want 2", len(sync.Occupants))
	}
	if sync.Occupants[1].UserID != "u-2" {
		t.Errorf("occupant order not preserved: %+v", sync.Occupants)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name:    "invalid json",
			raw:     `{"type": "message.inserted",`,
			wantErr: ErrMalformed,
		},
		{
			name:    "missing payload",
			raw:     `{"type": "message.deleted"}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "unknown type",
			raw:     `{"type": "room.renamed", "payload": {}}`,
			wantErr: ErrUnknownType,
		},
		{
			name:    "message without ids",
			raw:     `{"type": "message.inserted", "payload": {"body": "hi"}}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "private message that is not a reply",
			raw:     `{"type": "message.inserted", "payload": {"id": "m-1", "room_id": "g", "author_id": "u-1", "private": true}}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "reaction without emoji",
			raw:     `{"type": "reaction.inserted", "payload": {"message_id": "m-1", "user_id": "u-1"}}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "presence leave without user",
			raw:     `{"type": "presence.leave", "payload": {}}`,
			wantErr: ErrMalformed,
		},
		{
			name:    "presence sync without array",
			raw:     `{"type": "presence.sync", "payload": {"occupants": "nope"}}`,
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected decode error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error: got %v want %v", err, tt.wantErr)
			}
		})
	}
}

// Package natsfeed delivers room events over NATS JetStream and carries the
// local viewer's publishes back. Events for a room travel on
// <prefix>.<roomID>.events, presence heartbeats on <prefix>.<roomID>.presence;
// one ephemeral consumer per room session covers both.
package natsfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sandwichfarm/roomsync/internal/config"
	"github.com/sandwichfarm/roomsync/internal/event"
	"github.com/sandwichfarm/roomsync/internal/ops"
)

// eventBuffer absorbs consume-callback bursts; overflow is dropped and left
// to the resync backstop
const eventBuffer = 256

// Feed is the JetStream-backed event source, presence publisher, and message
// publisher for one room session.
type Feed struct {
	cfg *config.NATS
	log *ops.Logger

	nc *nats.Conn
	js jetstream.JetStream

	mu      sync.Mutex
	consume jetstream.ConsumeContext
	ch      chan event.Event
	closed  bool
}

// New connects to NATS and ensures the room event stream exists
func New(cfg *config.NATS, log *ops.Logger) (*Feed, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := js.Stream(ctx, cfg.Stream); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{fmt.Sprintf("%s.>", cfg.SubjectPfx)},
			Storage:  jetstream.FileStorage,
			MaxAge:   24 * time.Hour,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream %q: %w", cfg.Stream, err)
		}
	}

	return &Feed{
		cfg: cfg,
		log: log.WithComponent("natsfeed"),
		nc:  nc,
		js:  js,
		ch:  make(chan event.Event, eventBuffer),
	}, nil
}

// Subscribe starts an ephemeral consumer for the room's subjects and returns
// the typed event channel. New deliveries only; history comes from the
// snapshot load, not the stream.
func (f *Feed) Subscribe(ctx context.Context, roomID string) (<-chan event.Event, error) {
	cons, err := f.js.CreateOrUpdateConsumer(ctx, f.cfg.Stream, jetstream.ConsumerConfig{
		FilterSubject: fmt.Sprintf("%s.%s.*", f.cfg.SubjectPfx, roomID),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer for room %q: %w", roomID, err)
	}

	consume, err := cons.Consume(func(jsMsg jetstream.Msg) {
		ev, err := event.Decode(jsMsg.Data())
		if err != nil {
			// Malformed payloads are dropped at the boundary, never applied
			f.log.Warn("dropping undecodable event",
				"subject", jsMsg.Subject(),
				"error", err)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed {
			return
		}
		select {
		case f.ch <- ev:
		default:
			f.log.Warn("event buffer full, dropping event", "type", string(ev.EventType()))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("consume room %q: %w", roomID, err)
	}

	f.mu.Lock()
	f.consume = consume
	f.mu.Unlock()

	f.log.LogFeedConnection("nats", true, nil)
	return f.ch, nil
}

// Close stops the consumer, closes the event channel, and drops the NATS
// connection. Idempotent.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	consume := f.consume
	f.mu.Unlock()

	if consume != nil {
		consume.Stop()
	}
	close(f.ch)
	f.nc.Close()
	f.log.LogFeedConnection("nats", false, nil)
	return nil
}

// PublishHeartbeat announces the local viewer on the room's presence subject
func (f *Feed) PublishHeartbeat(ctx context.Context, roomID string, occupant event.Occupant) error {
	data, err := event.Encode(event.PresenceJoin{Occupant: occupant})
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.presence", f.cfg.SubjectPfx, roomID)
	if _, err := f.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish heartbeat to %q: %w", subject, err)
	}
	return nil
}

// PublishMessage forwards a locally-composed message toward the server. The
// confirmed copy with its authoritative id comes back on the events subject.
func (f *Feed) PublishMessage(ctx context.Context, roomID string, draft event.Message) error {
	data, err := event.Encode(event.MessageInserted{Message: draft})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.events", f.cfg.SubjectPfx, roomID)
	if _, err := f.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish message to %q: %w", subject, err)
	}
	return nil
}

// PublishReaction forwards the viewer's reaction toggle toward the server
func (f *Feed) PublishReaction(ctx context.Context, roomID, messageID, userID, emoji string, added bool) error {
	var ev event.Event
	if added {
		ev = event.ReactionInserted{MessageID: messageID, UserID: userID, Emoji: emoji}
	} else {
		ev = event.ReactionDeleted{MessageID: messageID, UserID: userID, Emoji: emoji}
	}
	data, err := event.Encode(ev)
	if err != nil {
		return fmt.Errorf("encode reaction: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.events", f.cfg.SubjectPfx, roomID)
	if _, err := f.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish reaction to %q: %w", subject, err)
	}
	return nil
}

// Package wsfeed delivers room events over a WebSocket gateway. The gateway
// speaks the same JSON envelope as the NATS subjects; one connection serves
// one room session, with publishes multiplexed onto the same socket.
package wsfeed

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/sandwichfarm/roomsync/internal/config"
	"github.com/sandwichfarm/roomsync/internal/event"
	"github.com/sandwichfarm/roomsync/internal/ops"
)

const eventBuffer = 256

// Feed is the WebSocket-backed event source and publisher for one room
// session.
type Feed struct {
	cfg *config.WebSocket
	log *ops.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	ch     chan event.Event
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a WebSocket feed; the connection is dialed on Subscribe
func New(cfg *config.WebSocket, log *ops.Logger) *Feed {
	return &Feed{
		cfg: cfg,
		log: log.WithComponent("wsfeed"),
		ch:  make(chan event.Event, eventBuffer),
	}
}

// Subscribe dials the gateway for the given room and starts the read loop.
// The returned channel closes when the connection drops or Close is called.
func (f *Feed) Subscribe(ctx context.Context, roomID string) (<-chan event.Event, error) {
	url := fmt.Sprintf("%s/rooms/%s/events", f.cfg.URL, roomID)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", url, err)
	}

	readCtx, cancel := context.WithCancel(context.Background())

	f.mu.Lock()
	f.conn = conn
	f.cancel = cancel
	f.mu.Unlock()

	f.wg.Add(1)
	go f.readLoop(readCtx, conn)

	f.log.LogFeedConnection("websocket", true, nil)
	return f.ch, nil
}

// readLoop drains frames until the connection dies, decoding each into a
// typed event. Channel close signals the end of the feed to the consumer.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer f.wg.Done()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			f.mu.Lock()
			deliberate := f.closed
			if !f.closed {
				f.closed = true
				close(f.ch)
			}
			f.mu.Unlock()
			if !deliberate {
				f.log.LogFeedConnection("websocket", false, err)
			}
			return
		}

		ev, err := event.Decode(data)
		if err != nil {
			// Malformed frames are dropped at the boundary, never applied
			f.log.Warn("dropping undecodable frame", "error", err)
			continue
		}

		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return
		}
		select {
		case f.ch <- ev:
		default:
			f.log.Warn("event buffer full, dropping event", "type", string(ev.EventType()))
		}
		f.mu.Unlock()
	}
}

// Close tears down the connection and the read loop. Idempotent; safe to
// call before Subscribe.
func (f *Feed) Close() error {
	f.mu.Lock()
	alreadyClosed := f.closed
	conn := f.conn
	cancel := f.cancel
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil && !alreadyClosed {
		err = conn.Close(websocket.StatusNormalClosure, "room closed")
	}
	f.wg.Wait()
	if !alreadyClosed {
		f.log.LogFeedConnection("websocket", false, nil)
	}
	return err
}

// PublishHeartbeat announces the local viewer on the shared socket
func (f *Feed) PublishHeartbeat(ctx context.Context, roomID string, occupant event.Occupant) error {
	data, err := event.Encode(event.PresenceJoin{Occupant: occupant})
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	return f.write(ctx, data)
}

// PublishMessage forwards a locally-composed message toward the server
func (f *Feed) PublishMessage(ctx context.Context, roomID string, draft event.Message) error {
	data, err := event.Encode(event.MessageInserted{Message: draft})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return f.write(ctx, data)
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
	return f.write(ctx, data)
}

func (f *Feed) write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	conn := f.conn
	closed := f.closed
	f.mu.Unlock()

	if conn == nil || closed {
		return fmt.Errorf("feed not connected")
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

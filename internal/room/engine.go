package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sandwichfarm/roomsync/internal/config"
	"github.com/sandwichfarm/roomsync/internal/event"
	"github.com/sandwichfarm/roomsync/internal/ops"
)

// Deps bundles the external collaborators the engine consumes. Source,
// Fetcher, and Sink are required; the rest degrade to no-ops when nil so
// tests and minimal deployments can omit them.
type Deps struct {
	Source      EventSource
	Fetcher     Fetcher
	Eligibility Eligibility
	Presence    PresencePublisher
	Publisher   Publisher
	Sink        NotificationSink
	Leaderboard LeaderboardStore
	Translator  Translator
}

// Engine reconciles the room's independent event streams into one
// per-viewer-filtered state. It exclusively owns all state for exactly one
// open room; switching rooms means closing this engine and building a new
// one from a fresh snapshot.
type Engine struct {
	cfg  *config.Config
	log  *ops.Logger
	deps Deps

	roomID   string
	viewerID string

	mu        sync.Mutex
	store     *Store
	reactions *Aggregator
	presence  *Tracker
	hydrator  *Hydrator
	scheduler *Scheduler

	resyncInflight *xsync.MapOf[string, struct{}]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closed  bool
	done    chan struct{}
	runErr  error
	errOnce sync.Once
}

// NewEngine creates an engine for the configured room and viewer
func NewEngine(cfg *config.Config, deps Deps, log *ops.Logger) *Engine {
	e := &Engine{
		cfg:            cfg,
		log:            log.WithComponent("engine"),
		deps:           deps,
		roomID:         cfg.Room.ID,
		viewerID:       cfg.Identity.UserID,
		resyncInflight: xsync.NewMapOf[string, struct{}](),
		done:           make(chan struct{}),
	}

	e.store = NewStore(e.viewerID, cfg.Optimistic.MatchWindow())
	e.reactions = NewAggregator(e.viewerID, e.store)
	e.presence = NewTracker(cfg.Presence.AwayThreshold(), cfg.Presence.ResyncMisses, e.log)
	e.hydrator = NewHydrator(deps.Fetcher)
	e.scheduler = NewScheduler(e.viewerID, deps.Sink, e.refreshLeaderboard,
		cfg.Scheduler.LeaderboardDebounce(), cfg.Scheduler.ReactionDedup(), e.log)

	return e
}

// Join checks eligibility, loads and reconciles the initial snapshot, and
// starts the live loops. It must be called exactly once.
func (e *Engine) Join(ctx context.Context) error {
	if e.deps.Eligibility != nil {
		ok, reason, err := e.deps.Eligibility.CheckEligibility(ctx, e.viewerID, e.roomID)
		if err != nil {
			return fmt.Errorf("eligibility check failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotEligible, reason)
		}
	}

	if err := e.loadSnapshot(ctx); err != nil {
		return fmt.Errorf("snapshot load failed: %w", err)
	}

	events, err := e.deps.Source.Subscribe(ctx, e.roomID)
	if err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.wg.Add(1)
	go e.run(events)
	e.wg.Add(1)
	go e.heartbeatLoop()
	e.wg.Add(1)
	go e.recheckLoop()

	e.log.Info("room joined",
		"room", e.roomID,
		"messages", e.store.Len())
	return nil
}

// Close tears down the subscription and all timers synchronously. After
// Close returns no background work touches engine state. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	if err := e.deps.Source.Close(); err != nil {
		e.log.Warn("event source close failed", "error", err)
	}
	e.wg.Wait()
	e.log.LogShutdown("room closed")
}

// Done is closed when the run loop exits; Err then reports why
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err returns the terminal run-loop error, ErrSourceClosed when the feed
// disconnected underneath an open session
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runErr
}

// Messages returns the viewer-facing room state: visible messages in
// display order, cloned so callers cannot mutate engine state
func (e *Engine) Messages() []*Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	visible := filterVisible(e.store.All(), e.viewerID)
	out := make([]*Message, len(visible))
	for i, msg := range visible {
		out[i] = msg.Clone()
	}
	return out
}

// SessionStats reports live session counters for diagnostics
func (e *Engine) SessionStats() ops.SessionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ops.SessionStats{
		RoomID:          e.roomID,
		Transport:       e.cfg.Transport.Driver,
		Messages:        e.store.Len(),
		VisibleMessages: len(filterVisible(e.store.All(), e.viewerID)),
		Occupants:       len(e.presence.Occupants()),
		PendingSends:    e.store.PendingCount(),
	}
}

// Occupants returns the current roster with derived statuses
func (e *Engine) Occupants() []Occupant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.presence.Occupants()
}

// SendMessage inserts a draft optimistically and forwards it to the
// publisher. The authoritative copy returns through the event source and
// replaces the provisional entry; if it never arrives, the recheck tick
// marks the entry failed.
func (e *Engine) SendMessage(ctx context.Context, draft Draft) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	provisionalID := e.store.InsertOptimistic(draft)
	e.mu.Unlock()

	if e.deps.Publisher != nil {
		wire := event.Message{
			RoomID:    e.roomID,
			AuthorID:  e.viewerID,
			Body:      draft.Body,
			File:      draft.File,
			ReplyToID: draft.ReplyToID,
			Private:   draft.Private,
			CreatedAt: time.Now().UTC(),
		}
		if err := e.deps.Publisher.PublishMessage(ctx, e.roomID, wire); err != nil {
			// Leave the provisional entry; the timeout sweep will mark it
			// failed so the viewer can retry
			e.log.Warn("message publish failed", "provisional_id", provisionalID, "error", err)
		}
	}
	return provisionalID, nil
}

// ToggleReaction applies the viewer's reaction toggle optimistically,
// forwards it to the publisher, and then resyncs the affected message
// against the authoritative source
func (e *Engine) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	added, changed := e.reactions.ToggleLocal(messageID, emoji)
	e.mu.Unlock()

	if !changed {
		return nil
	}

	if e.deps.Publisher != nil {
		if err := e.deps.Publisher.PublishReaction(ctx, e.roomID, messageID, e.viewerID, emoji, added); err != nil {
			// The resync below reverts the unpublished toggle to the
			// authoritative state; the viewer can retry
			e.log.Warn("reaction publish failed",
				"message_id", messageID,
				"emoji", emoji,
				"error", err)
		}
	}

	e.resyncReactions(ctx, messageID)
	return nil
}

// TranslateMessage returns the message body in the target language, filling
// the translation cache on first use. Cached entries are never evicted.
func (e *Engine) TranslateMessage(ctx context.Context, messageID, lang string) (string, error) {
	e.mu.Lock()
	msg, ok := e.store.Get(messageID)
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("unknown message: %s", messageID)
	}
	if text, cached := msg.Translations[lang]; cached {
		e.mu.Unlock()
		return text, nil
	}
	body := msg.Body
	e.mu.Unlock()

	if e.deps.Translator == nil {
		return "", fmt.Errorf("no translator configured")
	}
	text, err := e.deps.Translator.Translate(ctx, body, lang)
	if err != nil {
		return "", fmt.Errorf("translation failed: %w", err)
	}

	e.mu.Lock()
	// The message may have been edited or deleted while translating; only
	// cache if the body it was translated from is still current
	if msg, ok := e.store.Get(messageID); ok && msg.Body == body {
		msg.Translations[lang] = text
	}
	e.mu.Unlock()
	return text, nil
}

// loadSnapshot rebuilds state from a fresh snapshot: messages, their
// authoritative reactions, and reply hydration
func (e *Engine) loadSnapshot(ctx context.Context) error {
	messages, err := e.deps.Fetcher.FetchRoomMessages(ctx, e.roomID)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(messages))
	e.mu.Lock()
	for _, w := range messages {
		if _, changed := e.store.ApplyInsert(w); changed {
			ids = append(ids, w.ID)
		}
	}
	e.mu.Unlock()

	if len(ids) > 0 {
		start := time.Now()
		reactions, err := e.deps.Fetcher.FetchReactionsByMessageIDs(ctx, ids)
		e.log.LogResync(len(ids), time.Since(start), err)
		if err == nil {
			e.mu.Lock()
			e.reactions.Recompute(ids, reactions)
			e.mu.Unlock()
		}
		// A failed reaction load is transient: counts fill in from live
		// events and the next resync
	}

	e.hydrateMissing(ctx)
	return nil
}

// run is the event loop: one goroutine draining the source channel, every
// mutation serialized through the engine mutex
func (e *Engine) run(events <-chan event.Event) {
	defer e.wg.Done()
	defer close(e.done)

	for ev := range events {
		e.apply(ev)
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if !closed {
		// The feed went away underneath an open session; the caller must
		// rebuild from a fresh snapshot (reconnect required)
		e.errOnce.Do(func() {
			e.mu.Lock()
			e.runErr = ErrSourceClosed
			e.mu.Unlock()
		})
		e.log.LogFeedConnection(e.cfg.Transport.Driver, false, ErrSourceClosed)
	}
}

// apply routes one typed event to the owning component
func (e *Engine) apply(ev event.Event) {
	switch v := ev.(type) {
	case event.MessageInserted:
		e.applyInsert(v.Message)

	case event.MessageUpdated:
		e.mu.Lock()
		changed := e.store.ApplyUpdate(v.ID, v.Patch)
		e.mu.Unlock()
		e.log.LogEventApplied(string(v.EventType()), e.roomID, !changed)

	case event.MessageDeleted:
		e.mu.Lock()
		changed := e.store.ApplyDelete(v.ID)
		if changed {
			e.reactions.Forget(v.ID)
		}
		e.mu.Unlock()
		e.log.LogEventApplied(string(v.EventType()), e.roomID, !changed)

	case event.ReactionInserted:
		e.mu.Lock()
		changed := e.reactions.ApplyAdded(v.MessageID, v.UserID, v.Emoji)
		visible := e.messageVisible(v.MessageID)
		e.mu.Unlock()
		if changed && visible {
			e.scheduler.OnReactionChanged(v.MessageID, v.UserID, v.Emoji, true)
		}
		e.log.LogEventApplied(string(v.EventType()), e.roomID, !changed)

	case event.ReactionDeleted:
		e.mu.Lock()
		changed := e.reactions.ApplyRemoved(v.MessageID, v.UserID, v.Emoji)
		visible := e.messageVisible(v.MessageID)
		e.mu.Unlock()
		if changed && visible {
			e.scheduler.OnReactionChanged(v.MessageID, v.UserID, v.Emoji, false)
		}
		e.log.LogEventApplied(string(v.EventType()), e.roomID, !changed)

	case event.PresenceSync:
		e.mu.Lock()
		e.presence.Sync(v.Occupants)
		e.mu.Unlock()

	case event.PresenceJoin:
		e.mu.Lock()
		e.presence.Heartbeat(v.Occupant)
		e.mu.Unlock()

	case event.PresenceLeave:
		e.mu.Lock()
		e.presence.Leave(v.UserID)
		e.mu.Unlock()
	}
}

// applyInsert admits a live message insert, hydrates its reply reference,
// and triggers derived work for messages the viewer can see
func (e *Engine) applyInsert(w event.Message) {
	e.mu.Lock()
	msg, changed := e.store.ApplyInsert(w)
	e.mu.Unlock()
	e.log.LogEventApplied(string(event.TypeMessageInserted), e.roomID, !changed)
	if !changed {
		return
	}

	if msg.IsReply() && !msg.Hydrated() {
		e.hydrateMissing(e.runCtx())
	}

	e.mu.Lock()
	visible := Visible(msg, e.viewerID)
	notify := msg.Clone()
	e.mu.Unlock()
	if visible {
		e.scheduler.OnMessageInserted(notify)
	}
}

// hydrateMissing resolves unhydrated reply references: the local store
// first, then the session cache of previously fetched targets, then one
// batched fetch for the newly-seen gaps
func (e *Engine) hydrateMissing(ctx context.Context) {
	e.mu.Lock()
	var candidates []string
	for _, msg := range e.store.All() {
		if !msg.IsReply() || msg.Hydrated() {
			continue
		}
		if target, ok := e.store.Get(msg.ReplyToID); ok {
			msg.ReplyTo = target
			continue
		}
		if w, ok := e.hydrator.Lookup(msg.ReplyToID); ok {
			msg.ReplyTo = fromWire(w)
			continue
		}
		candidates = append(candidates, msg.ReplyToID)
	}
	claimed := e.hydrator.Claim(dedupe(candidates))
	e.mu.Unlock()

	if len(claimed) == 0 {
		return
	}

	start := time.Now()
	resolved, err := e.hydrator.Fetch(ctx, claimed)
	e.log.LogHydration(len(claimed), len(resolved), time.Since(start), err)
	if err != nil {
		// Transient; the next insert with a gap retries
		return
	}

	e.mu.Lock()
	for _, msg := range e.store.All() {
		if !msg.IsReply() || msg.Hydrated() {
			continue
		}
		if w, ok := resolved[msg.ReplyToID]; ok {
			target := fromWire(w)
			msg.ReplyTo = target
		}
	}
	e.mu.Unlock()
}

// resyncReactions fetches the authoritative reaction set for one message
// and rebuilds its aggregate. In-flight resyncs are deduplicated per
// message id.
func (e *Engine) resyncReactions(ctx context.Context, messageID string) {
	if _, loaded := e.resyncInflight.LoadOrStore(messageID, struct{}{}); loaded {
		return
	}
	defer e.resyncInflight.Delete(messageID)

	start := time.Now()
	reactions, err := e.deps.Fetcher.FetchReactionsByMessageIDs(ctx, []string{messageID})
	e.log.LogResync(1, time.Since(start), err)
	if err != nil {
		// Transient; the optimistic state stands until the next toggle or
		// resync corrects it
		return
	}

	e.mu.Lock()
	e.reactions.Recompute([]string{messageID}, reactions)
	e.mu.Unlock()
}

// refreshLeaderboard recomputes per-author message counts and hands them to
// the leaderboard collaborator. Runs on the trailing edge of the debounce.
func (e *Engine) refreshLeaderboard() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	tally := make(map[string]int)
	for _, msg := range e.store.All() {
		if msg.Delivery != DeliveryConfirmed {
			continue
		}
		tally[msg.AuthorID]++
	}
	e.mu.Unlock()

	if e.deps.Leaderboard == nil {
		return
	}

	entries := make([]LeaderboardEntry, 0, len(tally))
	for author, count := range tally {
		entries = append(entries, LeaderboardEntry{AuthorID: author, Messages: count})
	}

	start := time.Now()
	err := e.deps.Leaderboard.StoreLeaderboard(e.runCtx(), e.roomID, entries)
	e.log.LogLeaderboardRefresh(e.roomID, len(entries), time.Since(start), err)
}

// heartbeatLoop publishes the local viewer's presence on the fixed interval
// while the room is open. A missed publish self-corrects on the next tick.
func (e *Engine) heartbeatLoop() {
	defer e.wg.Done()

	if e.deps.Presence == nil {
		return
	}

	publish := func() {
		ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
		defer cancel()
		err := e.deps.Presence.PublishHeartbeat(ctx, e.roomID, event.Occupant{
			UserID:      e.viewerID,
			DisplayName: e.cfg.Identity.DisplayName,
			AvatarURL:   e.cfg.Identity.AvatarURL,
			LastSeen:    time.Now().UTC(),
		})
		e.log.LogHeartbeat(e.roomID, err)
	}

	publish()
	ticker := time.NewTicker(e.cfg.Presence.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}

// recheckLoop keeps derived state fresh with no events arriving: presence
// demotions and the optimistic-send timeout sweep
func (e *Engine) recheckLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Presence.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			e.presence.Recheck()
			failed := e.store.ExpireOptimistic(e.cfg.Optimistic.Timeout())
			e.mu.Unlock()
			for _, msg := range failed {
				e.log.LogOptimisticFailure(msg.ID, e.cfg.Optimistic.Timeout())
			}
		}
	}
}

// messageVisible reports visibility for a stored message id; callers hold
// the mutex
func (e *Engine) messageVisible(messageID string) bool {
	msg, ok := e.store.Get(messageID)
	if !ok {
		return false
	}
	return Visible(msg, e.viewerID)
}

// runCtx returns the engine lifetime context, or a background context
// before Join
func (e *Engine) runCtx() context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package room

// Aggregator folds the raw stream of per-user reaction add/remove events
// into per-message emoji counts plus the viewer's own reaction set. Only the
// aggregate is exposed; individual reaction rows exist here solely as a
// dedup set for the at-most-one-per-(user, emoji) invariant.
type Aggregator struct {
	viewerID string
	store    *Store
	seen     map[reactionKey]struct{}
}

type reactionKey struct {
	messageID string
	userID    string
	emoji     string
}

// NewAggregator creates a reaction aggregator over the given store
func NewAggregator(viewerID string, store *Store) *Aggregator {
	return &Aggregator{
		viewerID: viewerID,
		store:    store,
		seen:     make(map[reactionKey]struct{}),
	}
}

// ApplyAdded applies a reaction add. Duplicate adds (at-least-once delivery,
// or a duplicate-insert conflict reported by the collaborator) deduplicate to
// a no-op. Adds for unknown messages are dropped; the resync backstop covers
// the reaction-before-insert ordering.
func (a *Aggregator) ApplyAdded(messageID, userID, emoji string) bool {
	msg, ok := a.store.Get(messageID)
	if !ok {
		return false
	}

	key := reactionKey{messageID, userID, emoji}
	if _, dup := a.seen[key]; dup {
		return false
	}
	a.seen[key] = struct{}{}

	msg.Reactions[emoji]++
	if userID == a.viewerID {
		msg.MyReactions[emoji] = struct{}{}
	}
	return true
}

// ApplyRemoved applies a reaction removal. Counts clamp at zero so a remove
// arriving before its add cannot go negative; the add that follows is then
// absorbed by the resync rather than producing a phantom count.
func (a *Aggregator) ApplyRemoved(messageID, userID, emoji string) bool {
	msg, ok := a.store.Get(messageID)
	if !ok {
		return false
	}

	key := reactionKey{messageID, userID, emoji}
	_, existed := a.seen[key]
	delete(a.seen, key)

	if msg.Reactions[emoji] > 0 {
		msg.Reactions[emoji]--
	}
	if msg.Reactions[emoji] == 0 {
		delete(msg.Reactions, emoji)
	}
	if userID == a.viewerID {
		delete(msg.MyReactions, emoji)
	}
	return existed
}

// ToggleLocal applies the viewer's optimistic toggle and reports whether the
// result is an add or a remove. The caller is expected to follow up with a
// resync for the message to reconcile against the authoritative source.
func (a *Aggregator) ToggleLocal(messageID, emoji string) (added, changed bool) {
	msg, ok := a.store.Get(messageID)
	if !ok {
		return false, false
	}

	if _, mine := msg.MyReactions[emoji]; mine {
		return false, a.ApplyRemoved(messageID, a.viewerID, emoji)
	}
	return true, a.ApplyAdded(messageID, a.viewerID, emoji)
}

// Recompute rebuilds the aggregates for the given messages from an
// authoritative reaction listing, discarding whatever the event stream left
// behind. This is the correctness backstop after optimistic toggles and
// out-of-order deliveries.
func (a *Aggregator) Recompute(messageIDs []string, authoritative []Reaction) {
	inScope := make(map[string]*Message, len(messageIDs))
	for _, id := range messageIDs {
		msg, ok := a.store.Get(id)
		if !ok {
			continue
		}
		inScope[id] = msg
		msg.Reactions = make(map[string]int)
		msg.MyReactions = make(map[string]struct{})
	}

	for key := range a.seen {
		if _, ok := inScope[key.messageID]; ok {
			delete(a.seen, key)
		}
	}

	for _, r := range authoritative {
		msg, ok := inScope[r.MessageID]
		if !ok {
			continue
		}
		key := reactionKey{r.MessageID, r.UserID, r.Emoji}
		if _, dup := a.seen[key]; dup {
			continue
		}
		a.seen[key] = struct{}{}
		msg.Reactions[r.Emoji]++
		if r.UserID == a.viewerID {
			msg.MyReactions[r.Emoji] = struct{}{}
		}
	}
}

// Forget drops dedup state for a deleted message
func (a *Aggregator) Forget(messageID string) {
	for key := range a.seen {
		if key.messageID == messageID {
			delete(a.seen, key)
		}
	}
}

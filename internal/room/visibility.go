package room

// Visible reports whether a message may be shown to the given viewer.
//
// Public messages are always visible. A private reply is visible only to its
// author and to the author of the message it replies to. Until the reply
// target is hydrated the recipient is unknown, so the message is
// conservatively visible to its author alone; hydration re-evaluates it.
//
// The filter runs on every exposure of store state, for the initial snapshot
// and live inserts alike, so a message failing the check never reaches
// viewer-facing state.
func Visible(msg *Message, viewerID string) bool {
	if !msg.Private {
		return true
	}
	if msg.AuthorID == viewerID {
		return true
	}
	if msg.ReplyTo == nil {
		// Unhydrated private reply: author-only until the target resolves
		return false
	}
	return msg.ReplyTo.AuthorID == viewerID
}

// filterVisible returns the subset of messages visible to the viewer,
// preserving order
func filterVisible(msgs []*Message, viewerID string) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, msg := range msgs {
		if Visible(msg, viewerID) {
			out = append(out, msg)
		}
	}
	return out
}

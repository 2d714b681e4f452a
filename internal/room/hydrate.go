package room

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sandwichfarm/roomsync/internal/event"
)

// Hydrator resolves reply-to references through the batched storage fetch.
// Resolved targets are cached for the session so later messages replying to
// the same target never refetch; ids a successful fetch could not resolve
// are remembered and never refetched. A failed fetch leaves its ids eligible
// for the next batch. In-flight ids are tracked so concurrent batches never
// duplicate a request for the same id.
type Hydrator struct {
	fetcher Fetcher

	inflight *xsync.MapOf[string, struct{}]
	// ids a successful fetch returned nothing for: permanent misses
	attempted *xsync.MapOf[string, struct{}]
	// successfully fetched targets, kept for the life of the session
	resolved *xsync.MapOf[string, event.Message]
}

// NewHydrator creates a hydrator backed by the given storage collaborator
func NewHydrator(fetcher Fetcher) *Hydrator {
	return &Hydrator{
		fetcher:   fetcher,
		inflight:  xsync.NewMapOf[string, struct{}](),
		attempted: xsync.NewMapOf[string, struct{}](),
		resolved:  xsync.NewMapOf[string, event.Message](),
	}
}

// Lookup returns a previously fetched target from the session cache
func (h *Hydrator) Lookup(id string) (event.Message, bool) {
	return h.resolved.Load(id)
}

// Claim filters candidate ids down to the newly-seen gaps and marks them
// in flight. Cached and permanently-missing ids are excluded; the caller
// must follow up with Fetch (or Release on abort).
func (h *Hydrator) Claim(ids []string) []string {
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, cached := h.resolved.Load(id); cached {
			continue
		}
		if _, miss := h.attempted.Load(id); miss {
			continue
		}
		if _, loaded := h.inflight.LoadOrStore(id, struct{}{}); loaded {
			continue
		}
		claimed = append(claimed, id)
	}
	return claimed
}

// Release clears the in-flight marks without recording an attempt
func (h *Hydrator) Release(ids []string) {
	for _, id := range ids {
		h.inflight.Delete(id)
	}
}

// Fetch issues one batched lookup for the claimed ids. Resolved targets go
// into the session cache; ids the collaborator returned nothing for become
// permanent misses. A transport failure releases the ids so a later batch
// can retry.
func (h *Hydrator) Fetch(ctx context.Context, ids []string) (map[string]event.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	fetched, err := h.fetcher.FetchMessagesByID(ctx, ids)
	if err != nil {
		h.Release(ids)
		return nil, fmt.Errorf("hydration fetch failed after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}

	resolved := make(map[string]event.Message, len(fetched))
	for _, w := range fetched {
		resolved[w.ID] = w
		h.resolved.Store(w.ID, w)
	}
	for _, id := range ids {
		if _, ok := resolved[id]; !ok {
			h.attempted.Store(id, struct{}{})
		}
		h.inflight.Delete(id)
	}
	return resolved, nil
}

// Package storebridge implements the storage-facing collaborators over
// Redis: snapshot and by-id message fetches, authoritative reaction listings,
// room membership checks, and the leaderboard sink.
//
// Key scheme:
//
//	room:<id>:messages     zset of message ids scored by created-at (unix)
//	msg:<id>               message JSON
//	msg:<id>:reactions     set of "<user>|<emoji>"
//	room:<id>:members      set of user ids
//	room:<id>:leaderboard  zset of author ids scored by message count
package storebridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sandwichfarm/roomsync/internal/config"
	"github.com/sandwichfarm/roomsync/internal/event"
	"github.com/sandwichfarm/roomsync/internal/ops"
	"github.com/sandwichfarm/roomsync/internal/room"
)

// Bridge is the Redis-backed storage collaborator set
type Bridge struct {
	rdb *redis.Client
	log *ops.Logger
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg *config.Redis, log *ops.Logger) (*Bridge, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}
	return &Bridge{rdb: rdb, log: log.WithComponent("storebridge")}, nil
}

// Close releases the connection pool
func (b *Bridge) Close() error {
	return b.rdb.Close()
}

// FetchRoomMessages loads the room's message snapshot in created-at order
func (b *Bridge) FetchRoomMessages(ctx context.Context, roomID string) ([]event.Message, error) {
	ids, err := b.rdb.ZRange(ctx, messagesKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load message index for room %q: %w", roomID, err)
	}
	return b.FetchMessagesByID(ctx, ids)
}

// FetchMessagesByID resolves message ids in one round trip. Ids with no
// stored message are silently absent from the result; the caller decides
// whether a gap matters.
func (b *Bridge) FetchMessagesByID(ctx context.Context, ids []string) ([]event.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = messageKey(id)
	}
	values, err := b.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch %d messages: %w", len(ids), err)
	}

	out := make([]event.Message, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue // id not stored
		}
		var msg event.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			b.log.Warn("skipping corrupt message record", "id", ids[i], "error", err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// FetchReactionsByMessageIDs returns the authoritative reaction triples for
// the given messages, one pipelined round trip
func (b *Bridge) FetchReactionsByMessageIDs(ctx context.Context, ids []string) ([]room.Reaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := b.rdb.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.SMembers(ctx, reactionsKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("fetch reactions for %d messages: %w", len(ids), err)
	}

	var out []room.Reaction
	for i, cmd := range cmds {
		for _, member := range cmd.Val() {
			userID, emoji, ok := parseReactionMember(member)
			if !ok {
				b.log.Warn("skipping malformed reaction member",
					"message_id", ids[i],
					"member", member)
				continue
			}
			out = append(out, room.Reaction{MessageID: ids[i], UserID: userID, Emoji: emoji})
		}
	}
	return out, nil
}

// CheckEligibility reports whether the viewer is a member of the room
func (b *Bridge) CheckEligibility(ctx context.Context, userID, roomID string) (bool, string, error) {
	member, err := b.rdb.SIsMember(ctx, membersKey(roomID), userID).Result()
	if err != nil {
		return false, "", fmt.Errorf("membership check for %q in room %q: %w", userID, roomID, err)
	}
	if !member {
		return false, "not a room member", nil
	}
	return true, "", nil
}

// StoreLeaderboard atomically replaces the room's leaderboard zset
func (b *Bridge) StoreLeaderboard(ctx context.Context, roomID string, entries []room.LeaderboardEntry) error {
	key := leaderboardKey(roomID)

	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(entries) > 0 {
		members := make([]redis.Z, len(entries))
		for i, entry := range entries {
			members[i] = redis.Z{Score: float64(entry.Messages), Member: entry.AuthorID}
		}
		pipe.ZAdd(ctx, key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store leaderboard for room %q: %w", roomID, err)
	}
	return nil
}

func messagesKey(roomID string) string    { return "room:" + roomID + ":messages" }
func messageKey(id string) string         { return "msg:" + id }
func reactionsKey(id string) string       { return "msg:" + id + ":reactions" }
func membersKey(roomID string) string     { return "room:" + roomID + ":members" }
func leaderboardKey(roomID string) string { return "room:" + roomID + ":leaderboard" }

// parseReactionMember splits a "<user>|<emoji>" set member. User ids never
// contain the separator; emoji may.
func parseReactionMember(member string) (userID, emoji string, ok bool) {
	userID, emoji, found := strings.Cut(member, "|")
	if !found || userID == "" || emoji == "" {
		return "", "", false
	}
	return userID, emoji, true
}

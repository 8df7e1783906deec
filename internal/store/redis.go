package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sctrl/eventstack/internal/es"
)

// updateCacheScript performs the conditional cache write atomically: the
// hash is only overwritten when the incoming event id is strictly greater
// than the stored one (or the entry is absent).
var updateCacheScript = redis.NewScript(`
local stored = redis.call('HGET', KEYS[1], 'eventId')
if stored and tonumber(stored) >= tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'eventId', ARGV[1], 'view', ARGV[2])
return 1
`)

// RedisViewCache stores compiled views as Redis hashes, one per identity,
// with fields "eventId" and "view" (JSON). Suited to sharing a cache
// across processes that fold the same stacks.
type RedisViewCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisViewCache creates a cache over the given client. Keys are
// prefixed so the cache can share a database with other data.
func NewRedisViewCache(client redis.UniversalClient, prefix string) *RedisViewCache {
	if prefix == "" {
		prefix = "viewcache"
	}
	return &RedisViewCache{client: client, prefix: prefix}
}

func (c *RedisViewCache) key(identity string) string {
	return c.prefix + ":" + identity
}

// GetFromCache returns the cached compiled view for the identity.
func (c *RedisViewCache) GetFromCache(ctx context.Context, identity string) (es.CompiledView, bool, error) {
	fields, err := c.client.HGetAll(ctx, c.key(identity)).Result()
	if err != nil {
		return es.CompiledView{}, false, fmt.Errorf("cache read %s: %w", identity, err)
	}
	raw, ok := fields["view"]
	if !ok {
		return es.CompiledView{}, false, nil
	}
	eventID, err := strconv.ParseInt(fields["eventId"], 10, 64)
	if err != nil {
		return es.CompiledView{}, false, fmt.Errorf("cache read %s: bad eventId: %w", identity, err)
	}
	var state es.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return es.CompiledView{}, false, fmt.Errorf("cache read %s: %w", identity, err)
	}
	return es.CompiledView{EventID: eventID, View: state}, true, nil
}

// UpdateCache stores the compiled view if it advances the entry's event
// id. The comparison runs in a Lua script so racing writers from
// different processes cannot interleave a stale overwrite.
func (c *RedisViewCache) UpdateCache(ctx context.Context, identity string, cv es.CompiledView) error {
	view, err := json.Marshal(cv.View)
	if err != nil {
		return fmt.Errorf("cache write %s: %w", identity, err)
	}
	err = updateCacheScript.Run(ctx, c.client, []string{c.key(identity)}, cv.EventID, string(view)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache write %s: %w", identity, err)
	}
	return nil
}

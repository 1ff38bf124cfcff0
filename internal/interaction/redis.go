package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/domain"
)

const defaultKeyPrefix = "provn"

// toggleScript flips ARGV[1] in the set KEYS[1] and moves the counter KEYS[2] with it
var toggleScript = redis.NewScript(`
if redis.call('SREM', KEYS[1], ARGV[1]) == 1 then
  return {0, redis.call('DECR', KEYS[2])}
end
redis.call('SADD', KEYS[1], ARGV[1])
return {1, redis.call('INCR', KEYS[2])}
`)

// addOnceScript counts ARGV[1] only the first time it joins the set KEYS[1]
var addOnceScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 1 then
  return {1, redis.call('INCR', KEYS[2])}
end
return {0, tonumber(redis.call('GET', KEYS[2]) or '0')}
`)

// RedisStore keeps counters as plain keys and actor sets as Redis sets. The set and its
// counter are always changed by one Lua script, so they cannot drift apart.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore creates a new RedisStore instance
func NewRedisStore(rdb *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix, logger: logger}
}

func (s *RedisStore) actorsKey(contentID string, kind domain.InteractionKind) string {
	return fmt.Sprintf("%s:content:{%s}:%s:actors", s.prefix, contentID, kind)
}

func (s *RedisStore) countKey(contentID string, kind domain.InteractionKind) string {
	return fmt.Sprintf("%s:content:{%s}:%s:count", s.prefix, contentID, kind)
}

func (s *RedisStore) eventsKey(contentID string) string {
	return fmt.Sprintf("%s:content:{%s}:events", s.prefix, contentID)
}

func (s *RedisStore) Toggle(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, int64, error) {
	keys := []string{s.actorsKey(contentID, kind), s.countKey(contentID, kind)}
	active, count, err := runPairScript(ctx, s.rdb, toggleScript, keys, actorID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to toggle %s: %w", kind, err)
	}
	return active, count, nil
}

func (s *RedisStore) AddOnce(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, int64, error) {
	keys := []string{s.actorsKey(contentID, kind), s.countKey(contentID, kind)}
	added, count, err := runPairScript(ctx, s.rdb, addOnceScript, keys, actorID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to record %s: %w", kind, err)
	}
	return added, count, nil
}

func (s *RedisStore) Increment(ctx context.Context, event domain.InteractionEvent) (int64, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal interaction event: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, s.countKey(event.ContentID, event.Kind))
	pipe.RPush(ctx, s.eventsKey(event.ContentID), payload)
	pipe.LTrim(ctx, s.eventsKey(event.ContentID), -MaxRetainedEvents, -1)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", event.Kind, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Counts(ctx context.Context, contentID string) (map[domain.InteractionKind]int64, error) {
	keys := make([]string, len(allKinds))
	for i, kind := range allKinds {
		keys[i] = s.countKey(contentID, kind)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}

	counts := make(map[domain.InteractionKind]int64, len(allKinds))
	for i, kind := range allKinds {
		counts[kind] = 0
		if raw, ok := values[i].(string); ok {
			var n int64
			if _, err := fmt.Sscan(raw, &n); err != nil {
				return nil, fmt.Errorf("failed to parse %s counter: %w", kind, err)
			}
			counts[kind] = n
		}
	}
	return counts, nil
}

func (s *RedisStore) Has(ctx context.Context, contentID string, kind domain.InteractionKind, actorID string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.actorsKey(contentID, kind), actorID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read actor: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Events(ctx context.Context, contentID string, limit int) ([]domain.InteractionEvent, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := s.rdb.LRange(ctx, s.eventsKey(contentID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list interaction events: %w", err)
	}

	events := make([]domain.InteractionEvent, 0, len(raw))
	for _, r := range raw {
		var e domain.InteractionEvent
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			s.logger.Warn("Skipping malformed interaction event",
				slog.String("content_id", contentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func runPairScript(ctx context.Context, rdb *redis.Client, script *redis.Script, keys []string, actorID string) (bool, int64, error) {
	res, err := script.Run(ctx, rdb, keys, actorID).Result()
	if err != nil {
		return false, 0, err
	}
	return parsePair(res)
}

// parsePair decodes the {flag, count} reply of the interaction scripts
func parsePair(res any) (bool, int64, error) {
	pair, ok := res.([]any)
	if !ok || len(pair) != 2 {
		return false, 0, fmt.Errorf("unexpected script reply %v", res)
	}

	flag, ok1 := pair[0].(int64)
	count, ok2 := pair[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, errors.New("script reply is not a pair of integers")
	}
	return flag == 1, count, nil
}

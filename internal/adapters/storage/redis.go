package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
)

const (
	banKeyPrefix = "gw:ban:"
	ctrKeyPrefix = "gw:ctr:"
	sigKeyPrefix = "gw:sig:"
)

// Script for the atomic signature upsert: store the new timestamp and
// return the previous one (or false) in a single round trip, so two
// concurrent identical requests cannot both observe "first sight".
const recordSignatureScript = `
local prev = redis.call('GET', KEYS[1])
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return prev
`

// RedisStore implements ReputationStore on Redis, giving bans native TTL
// expiry, durability across restarts and visibility across instances.
type RedisStore struct {
	client       *redis.Client
	sigScriptSHA string
}

// NewRedisStore connects to Redis, verifies the connection and loads the
// signature Lua script.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	sigSHA, err := client.ScriptLoad(ctx, recordSignatureScript).Result()
	if err != nil {
		return nil, fmt.Errorf("loading signature script: %w", err)
	}

	log.Info().Msg("Connected to Redis, reputation state is shared and durable")
	return &RedisStore{client: client, sigScriptSHA: sigSHA}, nil
}

func (s *RedisStore) Ban(ctx context.Context, origin string, d time.Duration, reason string) error {
	// plain SET overwrites both value and TTL: extension, never stacking
	return s.client.Set(ctx, banKeyPrefix+origin, reason, d).Err()
}

func (s *RedisStore) IsBanned(ctx context.Context, origin string) (bool, error) {
	n, err := s.client.Exists(ctx, banKeyPrefix+origin).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) RemainingBan(ctx context.Context, origin string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, banKeyPrefix+origin).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) Unban(ctx context.Context, origin string) (bool, error) {
	n, err := s.client.Del(ctx, banKeyPrefix+origin).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListBans scans the ban keyspace and resolves reason and expiry for each
// live record with one pipeline.
func (s *RedisStore) ListBans(ctx context.Context) ([]domain.BanRecord, error) {
	var cursor uint64
	var keys []string
	for {
		batch, next, err := s.client.Scan(ctx, cursor, banKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning ban keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(keys) == 0 {
		return []domain.BanRecord{}, nil
	}

	pipe := s.client.Pipeline()
	reasons := make(map[string]*redis.StringCmd, len(keys))
	ttls := make(map[string]*redis.DurationCmd, len(keys))
	for _, key := range keys {
		reasons[key] = pipe.Get(ctx, key)
		ttls[key] = pipe.TTL(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	now := time.Now()
	records := make([]domain.BanRecord, 0, len(keys))
	for _, key := range keys {
		ttl, err := ttls[key].Result()
		if err != nil || ttl <= 0 {
			continue // expired between SCAN and TTL
		}
		reason, _ := reasons[key].Result()
		records = append(records, domain.BanRecord{
			Origin:    key[len(banKeyPrefix):],
			ExpiresAt: now.Add(ttl),
			Reason:    reason,
		})
	}
	return records, nil
}

// TouchCounter is a read-modify-write over a Redis hash. Two concurrent
// requests from one origin can race and undercount by one; that is the
// documented trade-off. Ban writes never depend on this state beyond the
// threshold decision already made by the caller.
func (s *RedisStore) TouchCounter(ctx context.Context, origin string, mutate func(*domain.WindowCounter)) (domain.WindowCounter, error) {
	key := ctrKeyPrefix + origin

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.WindowCounter{}, err
	}

	now := time.Now()
	ctr := &domain.WindowCounter{Origin: origin, WindowStart: now}
	if len(fields) > 0 {
		ctr.Count, _ = strconv.Atoi(fields["count"])
		ctr.Violations, _ = strconv.Atoi(fields["violations"])
		ctr.LastFingerprint, _ = strconv.ParseUint(fields["fingerprint"], 10, 64)
		if ns, err := strconv.ParseInt(fields["window_start"], 10, 64); err == nil {
			ctr.WindowStart = time.Unix(0, ns)
		}
		ctr.Roll(now)
	}
	if mutate != nil {
		mutate(ctr)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"count", ctr.Count,
		"window_start", ctr.WindowStart.UnixNano(),
		"violations", ctr.Violations,
		"fingerprint", strconv.FormatUint(ctr.LastFingerprint, 10),
	)
	// the key's TTL doubles as the 1h inactivity GC
	pipe.Expire(ctx, key, domain.CounterIdleTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.WindowCounter{}, err
	}
	return *ctr, nil
}

func (s *RedisStore) RecordSignature(ctx context.Context, sig string) (time.Duration, bool, error) {
	now := time.Now()
	prev, err := s.client.EvalSha(ctx, s.sigScriptSHA,
		[]string{sigKeyPrefix + sig},
		now.UnixMilli(),
		domain.SignatureWindow.Milliseconds(),
	).Result()
	if err == redis.Nil || prev == nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var lastMilli int64
	switch v := prev.(type) {
	case string:
		lastMilli, _ = strconv.ParseInt(v, 10, 64)
	case int64:
		lastMilli = v
	}
	if lastMilli == 0 {
		return 0, false, nil
	}
	since := now.Sub(time.UnixMilli(lastMilli))
	if since > domain.SignatureWindow {
		return 0, false, nil
	}
	return since, true, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/zstd"

	"edugen/internal/clock"
	"edugen/internal/domain"
)

const redisKeyPrefix = "edugen:token:"

// Tokens outlive their expiry in Redis by this long so late lookups report
// ErrExpired instead of ErrNotFound.
const redisTombstoneGrace = 10 * time.Minute

// consumeScript claims a token in one round trip. Result codes: 0 missing,
// 1 expired, 2 already consumed, 3 claimed (followed by data, created,
// expires).
var consumeScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'data', 'created', 'expires', 'consumed')
if not v[3] then return {0} end
if tonumber(ARGV[1]) >= tonumber(v[3]) then
  redis.call('HDEL', KEYS[1], 'data')
  return {1}
end
if v[4] == '1' then return {2} end
redis.call('HSET', KEYS[1], 'consumed', '1')
redis.call('HDEL', KEYS[1], 'data')
return {3, v[1], v[2], v[3]}
`)

// putScript creates a token hash with its fields and key expiry in one
// step. It returns 0 when the token is already taken.
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'created', ARGV[2], 'expires', ARGV[3])
redis.call('PEXPIREAT', KEYS[1], ARGV[4])
return 1
`)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("tokenstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("tokenstore: zstd decoder initialization failed: " + err.Error())
	}
}

// Redis is a Store shared across API replicas. Artifacts are stored as
// zstd-compressed snapshots in a hash per token.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	clock  clock.Clock
}

// NewRedis wraps an established client.
func NewRedis(client *redis.Client, ttl time.Duration, clk clock.Clock) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Redis{client: client, ttl: ttl, clock: clk}
}

func redisKey(token string) string { return redisKeyPrefix + token }

func (r *Redis) Put(ctx context.Context, a domain.Artifact) (Entry, error) {
	data, err := encodeSnapshot(a)
	if err != nil {
		return Entry{}, err
	}
	for attempt := 0; attempt < 3; attempt++ {
		token, err := NewToken()
		if err != nil {
			return Entry{}, err
		}
		now := r.clock.Now()
		e := Entry{Token: token, Artifact: a, CreatedAt: now, ExpiresAt: now.Add(r.ttl)}
		created, err := putScript.Run(ctx, r.client, []string{redisKey(token)},
			data,
			strconv.FormatInt(now.UnixMilli(), 10),
			strconv.FormatInt(e.ExpiresAt.UnixMilli(), 10),
			e.ExpiresAt.Add(redisTombstoneGrace).UnixMilli(),
		).Int()
		if err != nil {
			return Entry{}, fmt.Errorf("tokenstore: store artifact: %w", err)
		}
		if created == 0 {
			continue
		}
		return e, nil
	}
	return Entry{}, errors.New("tokenstore: could not allocate a unique token")
}

func (r *Redis) Get(ctx context.Context, token string) (Entry, error) {
	vals, err := r.client.HMGet(ctx, redisKey(token), "data", "created", "expires", "consumed").Result()
	if err != nil {
		return Entry{}, fmt.Errorf("tokenstore: get: %w", err)
	}
	if len(vals) != 4 || vals[2] == nil {
		return Entry{}, ErrNotFound
	}
	expires, err := parseMillis(vals[2])
	if err != nil {
		return Entry{}, err
	}
	if !r.clock.Now().Before(expires) {
		return Entry{}, ErrExpired
	}
	if s, _ := vals[3].(string); s == "1" {
		return Entry{}, ErrAlreadyConsumed
	}
	return buildEntry(token, vals[0], vals[1], vals[2])
}

func (r *Redis) Consume(ctx context.Context, token string) (Entry, error) {
	res, err := consumeScript.Run(ctx, r.client, []string{redisKey(token)}, r.clock.Now().UnixMilli()).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("tokenstore: consume: %w", err)
	}
	return decodeConsumeResult(token, res)
}

// Sweep is a no-op: Redis expires keys on its own.
func (r *Redis) Sweep(ctx context.Context) (int, error) {
	return 0, ctx.Err()
}

func decodeConsumeResult(token string, res any) (Entry, error) {
	vals, ok := res.([]any)
	if !ok || len(vals) == 0 {
		return Entry{}, fmt.Errorf("tokenstore: unexpected consume result %T", res)
	}
	code, _ := vals[0].(int64)
	switch code {
	case 0:
		return Entry{}, ErrNotFound
	case 1:
		return Entry{}, ErrExpired
	case 2:
		return Entry{}, ErrAlreadyConsumed
	case 3:
		if len(vals) != 4 {
			return Entry{}, fmt.Errorf("tokenstore: malformed consume result")
		}
		return buildEntry(token, vals[1], vals[2], vals[3])
	}
	return Entry{}, fmt.Errorf("tokenstore: unknown consume result code %d", code)
}

func buildEntry(token string, data, created, expires any) (Entry, error) {
	raw, ok := data.(string)
	if !ok {
		return Entry{}, ErrNotFound
	}
	a, err := decodeSnapshot([]byte(raw))
	if err != nil {
		return Entry{}, err
	}
	createdAt, err := parseMillis(created)
	if err != nil {
		return Entry{}, err
	}
	expiresAt, err := parseMillis(expires)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Token: token, Artifact: a, CreatedAt: createdAt, ExpiresAt: expiresAt}, nil
}

func parseMillis(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("tokenstore: unexpected timestamp %T", v)
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("tokenstore: parse timestamp: %w", err)
	}
	return time.UnixMilli(ms), nil
}

func encodeSnapshot(a domain.Artifact) ([]byte, error) {
	raw, err := domain.MarshalArtifact(a)
	if err != nil {
		return nil, err
	}
	return zstdEncoder.EncodeAll(raw, nil), nil
}

func decodeSnapshot(data []byte) (domain.Artifact, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: zstd decompress: %w", err)
	}
	return domain.UnmarshalArtifact(raw)
}

var _ Store = (*Redis)(nil)

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/retry"
)

const backendRedis = "redis"

// scanBatch is the COUNT hint passed to SCAN during pattern deletes.
const scanBatch = 500

// incrementWithExpiryScript adds ARGV[1] to KEYS[1] and sets a TTL of
// ARGV[2] milliseconds when the key was just created.
var incrementWithExpiryScript = redis.NewScript(`
local current = redis.call('INCRBY', KEYS[1], ARGV[1])
if current == tonumber(ARGV[1]) then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return current
`)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// ConnectPolicy bounds the startup ping retries.
	ConnectPolicy retry.Policy

	// PingTimeout bounds each connection attempt.
	PingTimeout time.Duration
}

// DefaultRedisConfig returns a RedisConfig for url with default retry settings.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL: url,
		ConnectPolicy: retry.Policy{
			Attempts:       5,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Jitter:         retry.DefaultJitter,
		},
		PingTimeout: 3 * time.Second,
	}
}

// RedisStore implements Store on Redis.
type RedisStore struct {
	client  redis.UniversalClient
	logger  observability.Logger
	metrics *Metrics

	mu     sync.Mutex
	closed bool
}

// NewRedisStore connects to Redis, retrying the initial ping per cfg.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger observability.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}

	metrics := GetMetrics()
	err = retry.Do(ctx, cfg.ConnectPolicy, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	}, retry.WithNotify(func(attempt int, err error, wait time.Duration) {
		metrics.connectRetries.Inc()
		logger.Warn("redis connection failed, retrying",
			observability.String("addr", opts.Addr),
			observability.Int("attempt", attempt),
			observability.Duration("backoff", wait),
			observability.Error(err))
	}))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	logger.Info("redis store connected", observability.String("addr", opts.Addr))

	return NewRedisStoreFromClient(client, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes
// ownership and closes the client on Close.
func NewRedisStoreFromClient(client redis.UniversalClient, logger observability.Logger) *RedisStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisStore{
		client:  client,
		logger:  logger,
		metrics: GetMetrics(),
	}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (val []byte, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendRedis, "get", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before redis get: %w", err)
	}

	val, err = s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return val, nil
}

// GetWithTTL implements TTLReader. GET and PTTL run in one MULTI so the
// lifetime belongs to the value returned.
func (s *RedisStore) GetWithTTL(ctx context.Context, key string) (val []byte, ttl time.Duration, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendRedis, "get_ttl", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, 0, fmt.Errorf("context error before redis get: %w", err)
	}

	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("redis get error: %w", err)
	}

	val, err = get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("redis get error: %w", err)
	}

	// PTTL answers -1 for a persistent key and -2 for a missing one.
	if ttl = pttl.Val(); ttl < 0 {
		ttl = 0
	}
	return val, ttl, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendRedis, "set", start, err) }()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis set: %w", err)
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendRedis, "delete", start, err) }()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis del: %w", err)
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del error: %w", err)
	}
	return nil
}

// DeletePattern implements Store. Keys are discovered with SCAN so the
// server is never blocked by a KEYS call.
func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) (deleted int, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendRedis, "delete_pattern", start, err) }()

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis scan: %w", err)
	}

	match := redisMatch(pattern)
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan error: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis del error: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	s.logger.Debug("redis keys deleted by pattern",
		observability.String("pattern", pattern),
		observability.Int("deleted", deleted))

	return deleted, nil
}

// redisMatch escapes the glob syntax Redis understands beyond '*', so a
// pattern matches the same keys here as in MemoryStore.
func redisMatch(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// IncrementWithExpiry implements Store using a Lua script so the increment
// and the expiry are applied atomically.
func (s *RedisStore) IncrementWithExpiry(
	ctx context.Context,
	key string,
	delta int64,
	expiry time.Duration,
) (count int64, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendRedis, "increment", start, err) }()

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis incr: %w", err)
	}

	expiryMs := expiry.Milliseconds()
	if expiryMs < 1 {
		expiryMs = 1
	}

	result, err := incrementWithExpiryScript.Run(ctx, s.client, []string{key}, delta, expiryMs).Result()
	if err != nil {
		return 0, fmt.Errorf("redis script error: %w", err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("redis script returned unexpected type: %T", result)
	}
	return count, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements Store. It is idempotent.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

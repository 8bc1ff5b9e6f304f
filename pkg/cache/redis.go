package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaneisley/relay/pkg/logging"
)

// Redis is the remote cache backend. Every operation that fails against
// the remote store is served by the in-process fallback instead, so remote
// unavailability never fails a request.
type Redis struct {
	client     *redis.Client
	fallback   *Memory
	keyPrefix  string
	defaultTTL time.Duration
	opTimeout  time.Duration
	logger     *logging.Logger

	mu    sync.Mutex
	stats Stats
}

// RedisConfig configures the remote cache backend.
type RedisConfig struct {
	Addr       string
	KeyPrefix  string
	Capacity   int
	DefaultTTL time.Duration
}

// NewRedis creates a remote-backed cache with an in-process fallback.
// A failed initial ping is logged, not fatal: the fallback serves until
// the remote store becomes reachable.
func NewRedis(cfg RedisConfig, logger *logging.Logger) *Redis {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "relay:cache:"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	r := &Redis{
		client:     client,
		fallback:   NewMemory(cfg.Capacity, cfg.DefaultTTL),
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
		opTimeout:  500 * time.Millisecond,
		logger:     logger.WithComponent("cache.redis"),
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		r.logger.Warn("redis unreachable, serving from in-process fallback", "addr", cfg.Addr, "error", err.Error())
	}

	return r
}

// Get returns the cached value for key, or false on miss.
func (r *Redis) Get(ctx context.Context, key string) (any, bool) {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	raw, err := r.client.Get(opCtx, r.keyPrefix+key).Result()
	if err == redis.Nil {
		r.count(func(s *Stats) { s.Misses++ })
		return nil, false
	}
	if err != nil {
		r.logger.Debug("redis get failed, using fallback", "key", key, "error", err.Error())
		return r.fallback.Get(ctx, key)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		r.logger.Warn("corrupt cache payload, invalidating", "key", key, "error", err.Error())
		_ = r.Invalidate(ctx, key)
		r.count(func(s *Stats) { s.Misses++ })
		return nil, false
	}

	r.count(func(s *Stats) { s.Hits++ })
	return value, true
}

// Set stores value under key with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		// Unencodable values stay local: the fallback stores them as-is.
		return r.fallback.Set(ctx, key, value, ttl)
	}

	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	if err := r.client.Set(opCtx, r.keyPrefix+key, payload, ttl).Err(); err != nil {
		r.logger.Debug("redis set failed, using fallback", "key", key, "error", err.Error())
		return r.fallback.Set(ctx, key, value, ttl)
	}

	r.count(func(s *Stats) { s.Sets++ })
	return nil
}

// Invalidate removes key from both the remote store and the fallback.
func (r *Redis) Invalidate(ctx context.Context, key string) error {
	opCtx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	_ = r.fallback.Invalidate(ctx, key)
	if err := r.client.Del(opCtx, r.keyPrefix+key).Err(); err != nil {
		return err
	}
	return nil
}

// Stats merges the remote-path accounting with the fallback's.
func (r *Redis) Stats() Stats {
	r.mu.Lock()
	own := r.stats
	r.mu.Unlock()

	fb := r.fallback.Stats()
	return Stats{
		Hits:      own.Hits + fb.Hits,
		Misses:    own.Misses + fb.Misses,
		Sets:      own.Sets + fb.Sets,
		Evictions: own.Evictions + fb.Evictions,
	}
}

// Close releases the redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) count(update func(*Stats)) {
	r.mu.Lock()
	update(&r.stats)
	r.mu.Unlock()
}

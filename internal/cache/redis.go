// Package cache keeps computed funding snapshots in Redis so repeated funding
// reports over the same history skip recomputation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/basisrun/internal/funding"
)

// Config holds Redis and breaker settings
type Config struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"basisrun:funding:"`
	TTL      time.Duration `yaml:"ttl" default:"24h" validate:"gte=0"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

// BreakerConfig trips the cache after consecutive backend failures
type BreakerConfig struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"5" validate:"gte=1"`
	Timeout             time.Duration `yaml:"timeout" default:"30s"`
	MaxRequests         uint32        `yaml:"max_requests" default:"1"`
}

// Observer receives cache outcomes
type Observer interface {
	CacheHit()
	CacheMiss()
	CacheError()
}

type nopObserver struct{}

func (nopObserver) CacheHit()   {}
func (nopObserver) CacheMiss()  {}
func (nopObserver) CacheError() {}

// RedisCache implements funding.SnapshotCache. Every backend error, including
// an open breaker, is reported to the caller as a miss.
type RedisCache struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	breaker  *gobreaker.CircuitBreaker
	observer Observer
}

var _ funding.SnapshotCache = (*RedisCache)(nil)

// New connects to Redis and verifies the connection
func New(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, cfg Config) *RedisCache {
	trips := cfg.Breaker.ConsecutiveFailures
	if trips == 0 {
		trips = 5
	}
	settings := gobreaker.Settings{
		Name:        "redis-funding-cache",
		MaxRequests: cfg.Breaker.MaxRequests,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache circuit breaker changed state")
		},
	}

	return &RedisCache{
		client:   client,
		prefix:   cfg.Prefix,
		ttl:      cfg.TTL,
		breaker:  gobreaker.NewCircuitBreaker(settings),
		observer: nopObserver{},
	}
}

// SetObserver installs a metrics sink
func (c *RedisCache) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	c.observer = o
}

// Key is the Redis key of one snapshot
func (c *RedisCache) Key(asset string, windowDays int, asOf time.Time) string {
	return c.prefix + asset + ":" + strconv.Itoa(windowDays) + "d:" + strconv.FormatInt(asOf.UTC().UnixMilli(), 10)
}

// Get returns a cached snapshot
func (c *RedisCache) Get(ctx context.Context, asset string, windowDays int, asOf time.Time) (*funding.WindowSnapshot, bool) {
	key := c.Key(asset, windowDays, asOf)

	out, err := c.breaker.Execute(func() (interface{}, error) {
		raw, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis get: %w", err)
		}
		return raw, nil
	})
	if err != nil {
		c.observer.CacheError()
		log.Debug().Err(err).Str("key", key).Msg("Cache read failed")
		return nil, false
	}
	if out == nil {
		c.observer.CacheMiss()
		return nil, false
	}

	var snap funding.WindowSnapshot
	if err := json.Unmarshal(out.([]byte), &snap); err != nil {
		c.observer.CacheError()
		log.Debug().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return nil, false
	}
	c.observer.CacheHit()
	return &snap, true
}

// Put stores a snapshot with the configured TTL
func (c *RedisCache) Put(ctx context.Context, snap funding.WindowSnapshot) {
	key := c.Key(snap.AssetID, snap.WindowDays, snap.AsOf)

	raw, err := json.Marshal(snap)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Failed to encode snapshot")
		return
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("redis set: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		c.observer.CacheError()
		log.Debug().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// State reports the breaker state
func (c *RedisCache) State() gobreaker.State {
	return c.breaker.State()
}

// Close releases the client
func (c *RedisCache) Close() error {
	return c.client.Close()
}

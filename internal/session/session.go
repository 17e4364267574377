// Package session provides per-user conversation session storage.
//
// The store is the single owner of the user -> session map. The memory driver
// is the default and keeps sessions process-local; the Redis driver is an
// optional backend for deployments that want sessions to survive restarts.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viatel/triagebot/internal/models"
)

// Driver selects the session storage backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Error variables for store construction and lookups.
var (
	ErrInvalidDriver      = errors.New("invalid session store driver")
	ErrMissingRedisClient = errors.New("redis session store requires a redis client")
)

// Store defines the session storage contract. Keys are channel-qualified user
// identifiers; callers must not mutate one user's session from two goroutines
// at once (the event handler serializes per-channel processing).
type Store interface {
	// GetOrCreate returns the session stored under key, creating an empty
	// one when none exists.
	GetOrCreate(ctx context.Context, key string) (*models.Session, error)

	// Save persists the session under key.
	Save(ctx context.Context, key string, sess *models.Session) error

	// Clear removes the session stored under key, if any.
	Clear(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

// WithRedisClient sets the Redis client for the Redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) { c.redisClient = client }
}

// WithRedisTTL sets the TTL applied to Redis session keys.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) { c.redisTTL = ttl }
}

// NewStore creates a session store for the given driver. The Redis driver
// requires WithRedisClient.
func NewStore(driver Driver, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrMissingRedisClient
		}
		ttl := cfg.redisTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return &RedisStore{client: cfg.redisClient, ttl: ttl}, nil
	default:
		return nil, ErrInvalidDriver
	}
}

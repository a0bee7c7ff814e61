package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig holds Redis connection configuration for the session store.
type RedisConfig struct {
	// Addr is the Redis server address, host:port.
	Addr string

	// Username and Password authenticate against Redis ACLs. Optional.
	Username string
	Password string

	// DB selects the Redis logical database.
	DB int

	// KeyPrefix namespaces session keys, e.g. "gatehouse:session:".
	KeyPrefix string

	// TTL is the session lifetime. Defaults to DefaultTTL.
	TTL time.Duration

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store on Redis hashes, one hash per session id.
// It provides shared session state for horizontally scaled deployments.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects to Redis and returns a session store.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.TTL,
	}, nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisStore {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

// Get returns the values of the session with the given id, or nil when no
// such session exists.
func (s *RedisStore) Get(ctx context.Context, id string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	// HGetAll returns an empty map for missing keys.
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

// Insert writes the session values, replacing any previous state and
// refreshing the TTL.
func (s *RedisStore) Insert(ctx context.Context, id string, values map[string]string) error {
	key := s.key(id)

	// An empty hash cannot be represented in Redis; replacing a session
	// with no values is equivalent to removing it.
	if len(values) == 0 {
		return s.Remove(ctx, id)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Remove deletes the session.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)

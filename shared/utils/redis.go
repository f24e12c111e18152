package utils

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Wollie333/vilo-sub009/shared/apperr"
)

var (
	RedisClient *redis.Client
	ctx         = context.Background()
)

// RedisOptions holds connection settings for InitRedis
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// InitRedis initializes the Redis client
func InitRedis(opts RedisOptions) error {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}

	RedisClient = redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	// Test connection
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return nil
}

// CacheSet stores a value in Redis with expiration
func CacheSet(key string, value string, expiration time.Duration) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return RedisClient.Set(ctx, key, value, expiration).Err()
}

// CacheGet retrieves a value from Redis
func CacheGet(key string) (string, error) {
	if RedisClient == nil {
		return "", fmt.Errorf("Redis client not initialized")
	}
	val, err := RedisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("key not found")
	}
	return val, err
}

// CloseRedis closes the Redis connection
func CloseRedis() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// HashKey derives a fixed-length cache key from a secret value (tokens are never stored as keys)
func HashKey(prefix, secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return prefix + hex.EncodeToString(hash[:])
}

// releaseScript deletes the lease only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SyncLease is a Redis-backed mutual-exclusion lease, one per key
type SyncLease struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewSyncLease creates a lease manager; ttl bounds how long a crashed holder blocks others
func NewSyncLease(client *redis.Client, ttl time.Duration) *SyncLease {
	return &SyncLease{client: client, ttl: ttl, prefix: "sync:lease:"}
}

// Acquire takes the lease for key. A lease held by someone else yields apperr.ErrSyncInProgress.
func (l *SyncLease) Acquire(c context.Context, key string) (func(), error) {
	token, err := newLeaseToken()
	if err != nil {
		return nil, err
	}

	redisKey := l.prefix + key
	ok, err := l.client.SetNX(c, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire sync lease: %w", err)
	}
	if !ok {
		return nil, apperr.ErrSyncInProgress
	}

	release := func() {
		rc, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(rc, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			logrus.WithField("key", redisKey).WithError(err).Warn("failed to release sync lease")
		}
	}
	return release, nil
}

func newLeaseToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate lease token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Package redis holds the optional Redis helpers of a reconciliation run:
// the Cache client, the RunLock single-run guard, the CheckpointStore used
// by --resume and the StreakCache of computed snapshots.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mentoria/practice-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrCacheMiss          = errors.New("redis: key not found")
	ErrCacheConnection    = errors.New("redis: connection failed")
	ErrCacheSerialization = errors.New("redis: value encoding failed")
	ErrCacheInvalidTTL    = errors.New("redis: negative ttl")
	ErrCacheKeyEmpty      = errors.New("redis: empty key")
	ErrCacheNilValue      = errors.New("redis: nil value")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYSPACE
// ══════════════════════════════════════════════════════════════════════════════

const (
	prefixStreak     = "streak"
	prefixLock       = "lock"
	prefixCheckpoint = "checkpoint"
)

// Default lifetimes.
const (
	TTLStreakSnapshot = 10 * time.Minute
	TTLRunLock        = 2 * time.Hour
	TTLCheckpoint     = 7 * 24 * time.Hour
)

func key(parts ...string) string { return strings.Join(parts, ":") }

// StreakKey is the snapshot key of a student for one day. A day of "*"
// yields the pattern of all the student's snapshots.
func StreakKey(studentID, day string) string { return key(prefixStreak, studentID, day) }

// LockKey is the key of the run lock on resource.
func LockKey(resource string) string { return key(prefixLock, resource) }

// CheckpointKey is the checkpoint key of one run phase.
func CheckpointKey(run, phase string) string { return key(prefixCheckpoint, run, phase) }

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache is a go-redis client with JSON values and argument checks.
type Cache struct {
	client *redis.Client
}

// NewCache connects and PINGs within cfg.DialTimeout. Rejected credentials
// come back as retry.Permanent.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.options())

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, classifyConnectError(fmt.Errorf("%w: %s: %w", ErrCacheConnection, cfg.Addr(), err))
	}
	return &Cache{client: client}, nil
}

// Server replies that no retry can fix.
var authErrorPrefixes = []string{"NOAUTH", "WRONGPASS"}

// classifyConnectError marks authentication failures as permanent.
func classifyConnectError(err error) error {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return err
	}
	for _, prefix := range authErrorPrefixes {
		if strings.HasPrefix(rerr.Error(), prefix) {
			return retry.Permanent(err)
		}
	}
	return err
}

// NewCacheFromClient wraps an existing client without pinging it.
func NewCacheFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func checkArgs(key string, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}
	return nil
}

func missing(err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	return err
}

// Set stores value as JSON.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := checkArgs(key, ttl); err != nil {
		return err
	}
	if value == nil {
		return ErrCacheNilValue
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the JSON under key into dest or returns ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if err := checkArgs(key, 0); err != nil {
		return err
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return missing(err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// SetString stores a raw string.
func (c *Cache) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := checkArgs(key, ttl); err != nil {
		return err
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// GetString returns a raw string or ErrCacheMiss.
func (c *Cache) GetString(ctx context.Context, key string) (string, error) {
	if err := checkArgs(key, 0); err != nil {
		return "", err
	}
	val, err := c.client.Get(ctx, key).Result()
	return val, missing(err)
}

// SetNX stores value only when key is absent and reports whether it did.
func (c *Cache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := checkArgs(key, ttl); err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// scanBatch is the SCAN page size and the DEL batch size.
const scanBatch = 100

// DeleteByPattern removes every key matching pattern.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	if pattern == "" {
		return ErrCacheKeyEmpty
	}

	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}

	it := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for it.Next(ctx) {
		batch = append(batch, it.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return flush()
}

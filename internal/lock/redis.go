package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"starbase-go/internal/vcs"
)

// Default lease timings shared by the lockers in this package.
const (
	DefaultTTL  = 2 * time.Minute
	DefaultWait = 30 * time.Second
	pollEvery   = 50 * time.Millisecond
	keyPrefix   = "starbase:lock:"
)

// releaseScript deletes the key only while it still names this holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the key still names this holder.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Config defines Redis connection settings.
type Config struct {
	Addr     string
	Password string
	Database int
	TTL      time.Duration
	Wait     time.Duration
}

// RedisLocker implements vcs.Locker with SET NX PX leases, for processes sharing one Redis.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker connects to Redis and verifies the connection.
func NewRedisLocker(cfg Config) (*RedisLocker, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return newRedisLocker(client, cfg.TTL, cfg.Wait), nil
}

func newRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if wait <= 0 {
		wait = DefaultWait
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

// Acquire polls SET NX until the lease is granted, ctx ends, or the wait limit passes.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (vcs.Lease, error) {
	holder := uuid.New().String()
	redisKey := keyPrefix + key
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, holder, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquiring lease %s: %w", key, err)
		}
		if ok {
			return &redisLease{client: l.client, key: redisKey, holder: holder, ttl: l.ttl}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", vcs.ErrLocked, key)
		}
		if err := sleep(ctx, pollEvery); err != nil {
			return nil, err
		}
	}
}

// Close closes the Redis client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

type redisLease struct {
	client *redis.Client
	key    string
	holder string
	ttl    time.Duration
}

func (l *redisLease) Renew(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.holder, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("renewing lease %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", vcs.ErrLeaseLost, l.key)
	}
	return nil
}

func (l *redisLease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.holder).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("releasing lease %s: %w", l.key, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ vcs.Locker = (*RedisLocker)(nil)

package lease

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	releaseSource = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`
	renewSource = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`
)

var (
	// releaseScript deletes the lease only if it still holds our token.
	releaseScript = redis.NewScript(releaseSource)
	// renewScript pushes the expiry out only if the lease still holds our token.
	renewScript = redis.NewScript(renewSource)
)

// redisClient is the part of *redis.Client a lease uses.
type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// Redis is a lease shared by every process using the same Redis instance. While held,
// a lease is renewed every third of its TTL, so it outlives long pipeline runs but
// still expires soon after a holder crashes.
type Redis struct {
	client        redisClient
	prefix        string
	ttl           time.Duration
	pollInterval  time.Duration
	renewInterval time.Duration
	logger        *slog.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	return newRedis(client, ttl, logger)
}

func newRedis(client redisClient, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client:        client,
		prefix:        "contentmill:lease:",
		ttl:           ttl,
		pollInterval:  250 * time.Millisecond,
		renewInterval: ttl / 3,
		logger:        logger.With("component", "lease"),
	}
}

// NewRedisClient creates a client for the given address.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
	})
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lease %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}

	renewCtx, stopRenewing := context.WithCancel(context.Background())
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		r.keepAlive(renewCtx, key, redisKey, token)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopRenewing()
			<-renewed
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
				r.logger.Warn("Failed to release lease", "key", key, "error", err)
			}
		})
	}, nil
}

// keepAlive renews the lease until ctx is cancelled or the lease is no longer ours.
func (r *Redis) keepAlive(ctx context.Context, key, redisKey, token string) {
	if r.renewInterval <= 0 {
		return
	}
	ticker := time.NewTicker(r.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		renewed, err := renewScript.Run(ctx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int64()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Retried on the next tick.
			r.logger.Warn("Failed to renew lease", "key", key, "error", err)
			continue
		}
		if renewed == 0 {
			r.logger.Error("Lease lost before release", "key", key)
			return
		}
	}
}

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockNamespace = "weft"

// releaseScript deletes the lock key only when the caller still owns it.
// KEYS[1] = lock key, ARGV[1] = holder token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only when the caller still owns the key.
// KEYS[1] = lock key, ARGV[1] = holder token, ARGV[2] = TTL millis.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and token-checked release.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis connects to Redis and verifies connectivity before returning.
func NewRedis(addr string, db int, ttl, wait time.Duration) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisLocker{client: client, ttl: ttl, wait: wait}, nil
}

// Ping reports Redis health for the /health endpoint.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func lockKey(workspaceID string) string {
	return lockNamespace + ":lock:import:" + workspaceID
}

// Acquire takes the workspace lock, retrying with exponential backoff until
// the wait budget is exhausted. The returned lease refreshes the TTL in the
// background so long-running imports do not lose the lock.
func (l *RedisLocker) Acquire(ctx context.Context, workspaceID string) (Lease, error) {
	key := lockKey(workspaceID)
	token := uuid.NewString()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = l.wait

	op := func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("acquiring lock: %w", err))
		}
		if !ok {
			return ErrLockHeld
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	lease := &redisLease{
		locker: l,
		key:    key,
		token:  token,
		done:   make(chan struct{}),
	}
	go lease.refreshLoop()
	return lease, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string

	once sync.Once
	done chan struct{}
}

// refreshLoop extends the TTL at a third of its duration. It stops when
// Release is called or when a refresh finds the token gone.
func (le *redisLease) refreshLoop() {
	interval := le.locker.ttl / 3
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-le.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := refreshScript.Run(ctx, le.locker.client,
				[]string{le.key}, le.token, le.locker.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				// Token gone: expired or taken over. Nothing left to refresh.
				return
			}
		}
	}
}

// Release deletes the key only if this lease still owns it.
func (le *redisLease) Release(ctx context.Context) error {
	var err error
	le.once.Do(func() {
		close(le.done)
		err = releaseScript.Run(ctx, le.locker.client, []string{le.key}, le.token).Err()
	})
	if err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

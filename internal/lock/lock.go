// Package lock serializes import runs per workspace. Two implementations
// share the Locker interface: a Redis advisory lock for multi-process
// deployments and a process-local mutex map used when no Redis address is
// configured. Different workspaces never contend with each other.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld is returned when the lock could not be acquired within the
// wait budget because another holder owns it.
var ErrLockHeld = errors.New("workspace lock held")

const (
	// DefaultTTL bounds how long a crashed holder can block a workspace.
	DefaultTTL = 2 * time.Minute
	// DefaultWait is the acquisition budget before giving up with ErrLockHeld.
	DefaultWait = 10 * time.Second
)

// Lease represents a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker acquires per-workspace advisory locks.
type Locker interface {
	Acquire(ctx context.Context, workspaceID string) (Lease, error)
}

// New returns a Redis-backed locker when redisAddr is non-empty, otherwise
// the process-local fallback.
func New(redisAddr string, redisDB int, ttl, wait time.Duration) (Locker, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if wait <= 0 {
		wait = DefaultWait
	}
	if redisAddr == "" {
		return NewLocal(wait), nil
	}
	return NewRedis(redisAddr, redisDB, ttl, wait)
}

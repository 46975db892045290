package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is the in-process fallback used when no Redis address is
// configured. It only serializes runs within one process, which is exactly
// the single-binary deployment it exists for.
type LocalLocker struct {
	wait time.Duration

	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal returns a process-local locker with the given wait budget.
func NewLocal(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &LocalLocker{wait: wait, held: make(map[string]struct{})}
}

func (l *LocalLocker) tryAcquire(workspaceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[workspaceID]; ok {
		return false
	}
	l.held[workspaceID] = struct{}{}
	return true
}

// Acquire polls for the workspace slot until the wait budget runs out.
func (l *LocalLocker) Acquire(ctx context.Context, workspaceID string) (Lease, error) {
	deadline := time.Now().Add(l.wait)
	for {
		if l.tryAcquire(workspaceID) {
			return &localLease{locker: l, workspaceID: workspaceID}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

type localLease struct {
	locker      *LocalLocker
	workspaceID string
	once        sync.Once
}

func (le *localLease) Release(ctx context.Context) error {
	le.once.Do(func() {
		le.locker.mu.Lock()
		delete(le.locker.held, le.workspaceID)
		le.locker.mu.Unlock()
	})
	return nil
}

package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"starbase-go/internal/vcs"
)

// LocalLocker implements vcs.Locker inside one process. Leases never expire.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	wait time.Duration
}

// NewLocalLocker creates a locker; a zero wait selects DefaultWait.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &LocalLocker{held: make(map[string]chan struct{}), wait: wait}
}

// Acquire blocks until key is free, ctx ends, or the wait limit passes.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (vcs.Lease, error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			return &localLease{locker: l, key: key, done: done}, nil
		}
		l.mu.Unlock()

		select {
		case <-released:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s", vcs.ErrLocked, key)
		}
	}
}

type localLease struct {
	locker *LocalLocker
	key    string
	done   chan struct{}
	once   sync.Once
}

// Renew is a no-op; local leases do not expire.
func (l *localLease) Renew(context.Context) error { return nil }

func (l *localLease) Release(context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		if l.locker.held[l.key] == l.done {
			delete(l.locker.held, l.key)
		}
		l.locker.mu.Unlock()
		close(l.done)
	})
	return nil
}

var _ vcs.Locker = (*LocalLocker)(nil)

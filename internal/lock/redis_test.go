package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"starbase-go/internal/lock"
	"starbase-go/internal/vcs"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*lock.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	l, err := lock.NewRedisLocker(lock.Config{Addr: mini.Addr(), TTL: ttl, Wait: 150 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewRedisLocker() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, mini
}

func TestRedisLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	l, _ := newRedisLocker(t, time.Minute)

	lease, err := l.Acquire(ctx, "project-sync:p1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	t.Run("second acquire times out", func(t *testing.T) {
		_, err := l.Acquire(ctx, "project-sync:p1")
		if !errors.Is(err, vcs.ErrLocked) {
			t.Errorf("Acquire() error = %v, want ErrLocked", err)
		}
	})

	t.Run("other keys are independent", func(t *testing.T) {
		other, err := l.Acquire(ctx, "project-sync:p2")
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		other.Release(ctx)
	})

	t.Run("release frees the key", func(t *testing.T) {
		if err := lease.Release(ctx); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		again, err := l.Acquire(ctx, "project-sync:p1")
		if err != nil {
			t.Fatalf("Acquire() after Release() error = %v", err)
		}
		again.Release(ctx)
	})
}

func TestRedisLocker_ExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	l, mini := newRedisLocker(t, time.Second)

	stale, err := l.Acquire(ctx, "project-sync:p1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	mini.FastForward(2 * time.Second)

	fresh, err := l.Acquire(ctx, "project-sync:p1")
	if err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}

	// The stale holder must not delete the new holder's lease.
	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale Release() error = %v", err)
	}
	if !mini.Exists("starbase:lock:project-sync:p1") {
		t.Error("stale Release() removed the new lease")
	}
	fresh.Release(ctx)
	if mini.Exists("starbase:lock:project-sync:p1") {
		t.Error("Release() left the lease key behind")
	}
}

func TestRedisLocker_ContextCancelled(t *testing.T) {
	l, _ := newRedisLocker(t, time.Minute)
	lease, err := l.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lease.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestRedisLocker_Renew(t *testing.T) {
	ctx := context.Background()
	l, mini := newRedisLocker(t, time.Second)

	held, err := l.Acquire(ctx, "project-sync:p1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	t.Run("renewal resets the ttl", func(t *testing.T) {
		mini.FastForward(800 * time.Millisecond)
		if err := held.Renew(ctx); err != nil {
			t.Fatalf("Renew() error = %v", err)
		}
		mini.FastForward(800 * time.Millisecond)
		if !mini.Exists("starbase:lock:project-sync:p1") {
			t.Error("renewed lease expired")
		}
		if _, err := l.Acquire(ctx, "project-sync:p1"); !errors.Is(err, vcs.ErrLocked) {
			t.Errorf("Acquire() of a renewed lease error = %v, want ErrLocked", err)
		}
	})

	t.Run("taken over lease cannot be renewed", func(t *testing.T) {
		mini.FastForward(2 * time.Second)
		fresh, err := l.Acquire(ctx, "project-sync:p1")
		if err != nil {
			t.Fatalf("Acquire() after expiry error = %v", err)
		}
		defer fresh.Release(ctx)

		if err := held.Renew(ctx); !errors.Is(err, vcs.ErrLeaseLost) {
			t.Errorf("stale Renew() error = %v, want ErrLeaseLost", err)
		}
	})
}

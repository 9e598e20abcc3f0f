package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"starbase-go/internal/vcs"
)

// Default lease timings for LeaseLocker.
const (
	DefaultLeaseTTL  = 2 * time.Minute
	DefaultLeaseWait = 30 * time.Second
	leasePoll        = 50 * time.Millisecond
)

// LeaseLocker implements vcs.Locker with rows in the git_locks table.
// An expired lease can be taken over, so a crashed holder never blocks forever.
// Live holders keep their lease by renewing it before the TTL runs out.
type LeaseLocker struct {
	db   *sql.DB
	ttl  time.Duration
	wait time.Duration
	now  func() time.Time
}

// NewLeaseLocker creates a locker on the database's connection pool.
// Zero durations select the defaults.
func NewLeaseLocker(database *SQLiteDatabase, ttl, wait time.Duration) *LeaseLocker {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	if wait <= 0 {
		wait = DefaultLeaseWait
	}
	return &LeaseLocker{db: database.db, ttl: ttl, wait: wait, now: time.Now}
}

// Acquire polls until the lease is granted, ctx ends, or the wait limit passes.
func (l *LeaseLocker) Acquire(ctx context.Context, key string) (vcs.Lease, error) {
	holder := uuid.New().String()
	deadline := l.now().Add(l.wait)

	for {
		ok, err := l.tryAcquire(ctx, key, holder)
		if err != nil {
			return nil, err
		}
		if ok {
			return &lease{locker: l, key: key, holder: holder}, nil
		}
		if !l.now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", vcs.ErrLocked, key)
		}

		timer := time.NewTimer(leasePoll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *LeaseLocker) tryAcquire(ctx context.Context, key, holder string) (bool, error) {
	now := l.now()
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO git_locks (lock_key, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (lock_key) DO UPDATE SET
		   holder = excluded.holder,
		   acquired_at = excluded.acquired_at,
		   expires_at = excluded.expires_at
		 WHERE git_locks.expires_at <= ?`,
		key, holder, now.UnixMilli(), now.Add(l.ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", key, err)
	}
	return n > 0, nil
}

type lease struct {
	locker *LeaseLocker
	key    string
	holder string
}

// Renew extends the expiry while this lease still holds the row.
func (l *lease) Renew(ctx context.Context) error {
	now := l.locker.now()
	res, err := l.locker.db.ExecContext(ctx,
		`UPDATE git_locks SET expires_at = ? WHERE lock_key = ? AND holder = ?`,
		now.Add(l.locker.ttl).UnixMilli(), l.key, l.holder)
	if err != nil {
		return fmt.Errorf("renewing lease %s: %w", l.key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renewing lease %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", vcs.ErrLeaseLost, l.key)
	}
	return nil
}

// Release deletes the row only if this lease still holds it.
func (l *lease) Release(ctx context.Context) error {
	if _, err := l.locker.db.ExecContext(ctx,
		`DELETE FROM git_locks WHERE lock_key = ? AND holder = ?`, l.key, l.holder); err != nil {
		return fmt.Errorf("releasing lease %s: %w", l.key, err)
	}
	return nil
}

var _ vcs.Locker = (*LeaseLocker)(nil)

package vcs

import (
	"context"
	"fmt"
	"time"
)

// DefaultLeaseRenewal is how often a held project lease is renewed while a sync runs.
// It must stay well below the locker's TTL.
const DefaultLeaseRenewal = 30 * time.Second

// Locker grants exclusive leases on string keys.
// Acquire blocks until the lease is granted, ctx ends, or the implementation's
// wait limit passes (returning ErrLocked).
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock. Release is safe to call once on every exit path.
// Renew pushes the expiry out by a full TTL and returns ErrLeaseLost when
// the lease has already been taken over.
type Lease interface {
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

func projectLockKey(projectID string) string {
	return "project-sync:" + projectID
}

// withProjectLock runs fn while holding the project's sync lease.
// The lease is renewed in the background until fn returns, then released
// on success, error and early return alike.
func (s *Service) withProjectLock(ctx context.Context, projectID string, fn func() error) error {
	lease, err := s.locker.Acquire(ctx, projectLockKey(projectID))
	if err != nil {
		return fmt.Errorf("acquiring project lock: %w", err)
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		s.keepLease(context.WithoutCancel(ctx), projectID, lease, stop)
	}()

	defer func() {
		close(stop)
		<-renewed
		// Release must run even when ctx is already cancelled.
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("releasing project lock failed", "project", projectID, "error", err)
		}
	}()
	return fn()
}

func (s *Service) keepLease(ctx context.Context, projectID string, lease Lease, stop <-chan struct{}) {
	ticker := time.NewTicker(s.leaseRenewal)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := lease.Renew(ctx); err != nil {
				s.logger.Warn("renewing project lock failed", "project", projectID, "error", err)
			}
		}
	}
}

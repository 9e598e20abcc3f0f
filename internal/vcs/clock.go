package vcs

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies commit and sync timestamps. Tests swap in a stub.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current UTC time truncated to microseconds,
// which is the precision SQLite round-trips without loss.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// IDGenerator mints primary keys for projects, branches, commits and snapshots.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

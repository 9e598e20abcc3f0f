package testutil

import (
	"fmt"
	"sync"
	"time"

	"starbase-go/internal/vcs"
)

// StubClock is a manually driven vcs.Clock.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// FixedClock starts at 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return &StubClock{now: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *StubClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// StubIDGenerator hands out "id-1", "id-2", ... so tests can predict row ids.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%d", g.next)
}

var (
	_ vcs.Clock       = (*StubClock)(nil)
	_ vcs.IDGenerator = (*StubIDGenerator)(nil)
)

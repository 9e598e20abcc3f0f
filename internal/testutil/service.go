package testutil

import (
	"testing"
	"time"

	"starbase-go/internal/database"
	"starbase-go/internal/provider"
	"starbase-go/internal/vcs"
)

// MemoryProviderID is the registry id of the in-memory Git provider in a TestEnv.
const MemoryProviderID = "memory"

// TestEnv is a fully wired service over an in-memory database and Git provider.
type TestEnv struct {
	DB       *database.SQLiteDatabase
	Service  *vcs.Service
	Remote   *provider.GitProvider
	Registry *provider.Registry
	Locker   *database.LeaseLocker
	Clock    *StubClock
	IDs      *StubIDGenerator
	Logger   *RecordingLogger
}

// NewTestEnv builds a TestEnv. The service is closed when the test completes.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	db := NewTestDatabase(t)
	remote := provider.NewMemoryGitProvider(provider.DefaultAuthor)
	registry := provider.NewRegistry()
	registry.RegisterProvider(MemoryProviderID, remote)

	env := &TestEnv{
		DB:       db,
		Remote:   remote,
		Registry: registry,
		Locker:   database.NewLeaseLocker(db, time.Minute, 200*time.Millisecond),
		Clock:    FixedClock(),
		IDs:      NewStubIDGenerator(),
		Logger:   NewRecordingLogger(),
	}
	env.Service = vcs.NewService(db, registry, env.Locker, env.Logger, env.Clock, env.IDs)

	t.Cleanup(func() {
		env.Service.Close()
	})
	return env
}

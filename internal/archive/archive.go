// Package archive stores database snapshots off the machine that produced them.
package archive

import (
	"context"
	"io"
)

// Store keeps named, versioned items per instance.
// The app uploads a "db" item after every mutating operation, versioned by operation id.
type Store interface {
	// Put stores an item. size is the number of bytes that will be read from r.
	Put(ctx context.Context, instanceID, name string, r io.Reader, size int64, version int64) error

	// Get writes a stored item to w.
	Get(ctx context.Context, instanceID, name string, w io.Writer) error

	// Version returns the version stored with an item, or 0 if it was never stored.
	Version(ctx context.Context, instanceID, name string) (int64, error)

	// ValidateSetup verifies that the store is reachable and writable.
	ValidateSetup(ctx context.Context) error
}

func itemKey(instanceID, name string) string {
	return instanceID + "/" + name
}

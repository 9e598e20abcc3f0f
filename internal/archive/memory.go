package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps items in memory. Tests use it.
type MemoryStore struct {
	name     string
	items    map[string][]byte
	versions map[string]int64
	mu       sync.RWMutex
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:     name,
		items:    make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (m *MemoryStore) Put(_ context.Context, instanceID, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	key := itemKey(instanceID, name)
	m.items[key] = data
	m.versions[key] = version
	return nil
}

func (m *MemoryStore) Get(_ context.Context, instanceID, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.items[itemKey(instanceID, name)]
	if !ok {
		return fmt.Errorf("%s not found for instance: %s", name, instanceID)
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (m *MemoryStore) Version(_ context.Context, instanceID, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[itemKey(instanceID, name)], nil
}

func (m *MemoryStore) ValidateSetup(context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)

package credential

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps tokens in memory. The first passphrase used locks the store.
type MemoryStore struct {
	mu         sync.Mutex
	passphrase *string
	tokens     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (m *MemoryStore) unlock(passphrase string) error {
	if m.passphrase == nil {
		m.passphrase = &passphrase
		return nil
	}
	if *m.passphrase != passphrase {
		return fmt.Errorf("incorrect passphrase")
	}
	return nil
}

func (m *MemoryStore) Set(providerID, token, passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unlock(passphrase); err != nil {
		return err
	}
	m.tokens[providerID] = token
	return nil
}

func (m *MemoryStore) Get(providerID, passphrase string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unlock(passphrase); err != nil {
		return "", err
	}
	token, ok := m.tokens[providerID]
	if !ok {
		return "", fmt.Errorf("%w for provider %s", ErrNoToken, providerID)
	}
	return token, nil
}

func (m *MemoryStore) Delete(providerID, passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unlock(passphrase); err != nil {
		return err
	}
	if _, ok := m.tokens[providerID]; !ok {
		return fmt.Errorf("%w for provider %s", ErrNoToken, providerID)
	}
	delete(m.tokens, providerID)
	return nil
}

func (m *MemoryStore) List(passphrase string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unlock(passphrase); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(m.tokens))
	for id := range m.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ Store = (*MemoryStore)(nil)

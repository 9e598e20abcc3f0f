package provider

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"starbase-go/internal/config"
	"starbase-go/internal/vcs"
)

// Factory builds a provider client authenticated with token.
type Factory func(token string) (vcs.Provider, error)

// Registry resolves provider clients by id, caching one client per (id, token).
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	clients   map[string]vcs.Provider
	closed    bool
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		clients:   make(map[string]vcs.Provider),
	}
}

// Register adds or replaces the factory for id.
func (r *Registry) Register(id string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = factory
}

// RegisterProvider registers a client that is shared by every token.
func (r *Registry) RegisterProvider(id string, p vcs.Provider) {
	r.Register(id, func(string) (vcs.Provider, error) { return p, nil })
}

// IDs returns the registered provider ids.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}

// Client returns the cached client for (providerID, token), creating it on first use.
func (r *Registry) Client(providerID, token string) (vcs.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("provider registry is closed")
	}
	factory, ok := r.factories[providerID]
	if !ok {
		return nil, &vcs.NotFoundError{Resource: "provider", Key: providerID}
	}

	// The token is hashed so the cache never holds it in the clear.
	key := providerID + ":" + vcs.ContentHash(token)
	if client, ok := r.clients[key]; ok {
		return client, nil
	}
	client, err := factory(token)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", providerID, err)
	}
	r.clients[key] = client
	return client, nil
}

// Close closes every cached client that implements io.Closer, once per distinct client.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[vcs.Provider]bool)
	var errs []error
	for _, client := range r.clients {
		if seen[client] {
			continue
		}
		seen[client] = true
		if c, ok := client.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	r.clients = make(map[string]vcs.Provider)
	r.closed = true
	return errors.Join(errs...)
}

// NewRegistryFromConfig registers one provider per config entry.
func NewRegistryFromConfig(cfgs []config.ProviderConfig, author Author) (*Registry, error) {
	r := NewRegistry()
	for _, cfg := range cfgs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("provider id required")
		}
		p, err := newProviderFromConfig(cfg, author)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", cfg.ID, err)
		}
		r.RegisterProvider(cfg.ID, p)
	}
	return r, nil
}

func newProviderFromConfig(cfg config.ProviderConfig, author Author) (vcs.Provider, error) {
	switch cfg.Type {
	case "gitlocal":
		if cfg.Root == "" {
			return nil, fmt.Errorf("gitlocal provider requires root to be set")
		}
		return NewFilesystemGitProvider(cfg.Root, author)
	case "memory":
		return NewMemoryGitProvider(author), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

var _ vcs.ProviderRegistry = (*Registry)(nil)

// Package credential keeps provider access tokens encrypted at rest.
package credential

import (
	"errors"
	"fmt"

	"starbase-go/internal/config"
)

// ErrNoToken is returned when no token is stored for a provider.
var ErrNoToken = errors.New("no token stored")

// Store holds one access token per provider id, unlocked with a passphrase.
type Store interface {
	Set(providerID, token, passphrase string) error
	Get(providerID, passphrase string) (string, error)
	Delete(providerID, passphrase string) error
	List(passphrase string) ([]string, error)
}

// NewStoreFromConfig creates a token store based on the configuration type.
func NewStoreFromConfig(cfg config.CredentialsConfig) (Store, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.StorePath == "" {
			return nil, fmt.Errorf("age credential store requires store_path to be set")
		}
		return NewAgeStore(cfg.StorePath), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown credentials type: %q", cfg.Type)
	}
}

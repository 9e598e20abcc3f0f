package credential

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"filippo.io/age"
	"github.com/BurntSushi/toml"
)

// AgeStore keeps tokens in a TOML table encrypted with age's scrypt-based
// passphrase encryption. The whole file is rewritten on every change.
type AgeStore struct {
	path string

	// WorkFactor is the scrypt work factor for new files; 0 keeps age's default.
	WorkFactor int
}

type tokenFile struct {
	Tokens map[string]string `toml:"tokens"`
}

func NewAgeStore(path string) *AgeStore {
	return &AgeStore{path: path}
}

// IsConfigured returns true once the store file exists.
func (s *AgeStore) IsConfigured() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *AgeStore) Set(providerID, token, passphrase string) error {
	tokens, err := s.load(passphrase)
	if err != nil {
		return err
	}
	tokens[providerID] = token
	return s.save(tokens, passphrase)
}

func (s *AgeStore) Get(providerID, passphrase string) (string, error) {
	tokens, err := s.load(passphrase)
	if err != nil {
		return "", err
	}
	token, ok := tokens[providerID]
	if !ok {
		return "", fmt.Errorf("%w for provider %s", ErrNoToken, providerID)
	}
	return token, nil
}

func (s *AgeStore) Delete(providerID, passphrase string) error {
	tokens, err := s.load(passphrase)
	if err != nil {
		return err
	}
	if _, ok := tokens[providerID]; !ok {
		return fmt.Errorf("%w for provider %s", ErrNoToken, providerID)
	}
	delete(tokens, providerID)
	return s.save(tokens, passphrase)
}

func (s *AgeStore) List(passphrase string) ([]string, error) {
	tokens, err := s.load(passphrase)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// load decrypts the store. A missing file is an empty store.
func (s *AgeStore) load(passphrase string) (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential store: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential store: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted credential store: %w", err)
	}

	var f tokenFile
	if _, err := toml.Decode(string(plain), &f); err != nil {
		return nil, fmt.Errorf("decoding credential store: %w", err)
	}
	if f.Tokens == nil {
		f.Tokens = make(map[string]string)
	}
	return f.Tokens, nil
}

func (s *AgeStore) save(tokens map[string]string, passphrase string) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if s.WorkFactor > 0 {
		recipient.SetWorkFactor(s.WorkFactor)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if err := toml.NewEncoder(w).Encode(tokenFile{Tokens: tokens}); err != nil {
		return fmt.Errorf("encoding credential store: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing credential store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing credential store: %w", err)
	}
	return nil
}

var _ Store = (*AgeStore)(nil)

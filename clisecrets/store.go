package clisecrets

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/drewfead/clikit/cliargs"
	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no secret is stored under a key.
var ErrNotFound = errors.New("secret not found")

// ErrInvalidKey is returned for empty keys or keys that collide with
// bookkeeping entries.
var ErrInvalidKey = errors.New("invalid secret key")

// Store persists named secrets.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	// List returns the stored keys in sorted order.
	List() ([]string, error)
}

// indexAccount holds the newline-separated key list, since keychains offer
// no portable enumeration.
const indexAccount = "__clikit_index__"

// KeychainStore persists secrets using the OS keychain
// (macOS Keychain, Windows Credential Manager, Linux Secret Service).
type KeychainStore struct {
	serviceName string
	mu          sync.Mutex
}

// NewKeychainStore creates a KeychainStore that stores secrets under the
// given application name as the keychain service name.
func NewKeychainStore(appName string) *KeychainStore {
	return &KeychainStore{serviceName: appName}
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" || key == indexAccount || strings.Contains(key, "\n") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Get retrieves a secret. Returns ErrNotFound if nothing is stored.
func (s *KeychainStore) Get(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	secret, err := keyring.Get(s.serviceName, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return secret, nil
}

// Set stores a secret and records its key in the index.
func (s *KeychainStore) Set(key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Set(s.serviceName, key, value); err != nil {
		return fmt.Errorf("failed to store secret %s: %w", key, err)
	}

	keys, err := s.index()
	if err != nil {
		return err
	}
	if !slices.Contains(keys, key) {
		keys = append(keys, key)
		return s.writeIndex(keys)
	}
	return nil
}

// Delete removes a secret. Returns ErrNotFound if nothing is stored.
func (s *KeychainStore) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Delete(s.serviceName, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	keys, err := s.index()
	if err != nil {
		return err
	}
	return s.writeIndex(slices.DeleteFunc(keys, func(k string) bool { return k == key }))
}

// List returns the keys recorded in the index.
func (s *KeychainStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.index()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *KeychainStore) index() ([]string, error) {
	raw, err := keyring.Get(s.serviceName, indexAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret index: %w", err)
	}
	var keys []string
	for _, k := range strings.Split(raw, "\n") {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *KeychainStore) writeIndex(keys []string) error {
	if len(keys) == 0 {
		err := keyring.Delete(s.serviceName, indexAccount)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to clear secret index: %w", err)
		}
		return nil
	}
	if err := keyring.Set(s.serviceName, indexAccount, strings.Join(keys, "\n")); err != nil {
		return fmt.Errorf("failed to write secret index: %w", err)
	}
	return nil
}

// MemoryStore keeps secrets in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryStore returns a MemoryStore seeded with initial.
func NewMemoryStore(initial map[string]string) *MemoryStore {
	m := &MemoryStore{secrets: make(map[string]string, len(initial))}
	for k, v := range initial {
		m.secrets[k] = v
	}
	return m
}

func (m *MemoryStore) Get(key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[key]; !ok {
		return ErrNotFound
	}
	delete(m.secrets, key)
	return nil
}

func (m *MemoryStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.secrets))
	for k := range m.secrets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

type source struct {
	store  Store
	prefix string
}

// Source adapts a Store to the argument resolver. A field's secret key is
// looked up as prefix+key.
func Source(store Store, prefix string) cliargs.SecretSource {
	return &source{store: store, prefix: prefix}
}

func (s *source) Lookup(key string) (string, bool, error) {
	v, err := s.store.Get(s.prefix + key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Package keystore holds the per-user key material that personal data in
// events is encrypted with. Deleting a user's key is how that user is erased.
package keystore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
)

// KeySize is the length of the key material generated per user.
const KeySize = 32

var (
	ErrKeyNotFound = errors.New("encryption key not found")
	ErrKeyExists   = errors.New("encryption key already exists")
)

// KeyStore creates, looks up and deletes user keys.
type KeyStore interface {
	Create(ctx context.Context, userID string) ([]byte, error)
	// Get fails with ErrKeyNotFound when the user has no key.
	Get(ctx context.Context, userID string) ([]byte, error)
	Delete(ctx context.Context, userID string) error
}

func newKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// MemoryKeyStore keeps keys in process memory.
type MemoryKeyStore struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string][]byte)}
}

func (ks *MemoryKeyStore) Create(_ context.Context, userID string) ([]byte, error) {
	key, err := newKey()
	if err != nil {
		return nil, err
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, ok := ks.keys[userID]; ok {
		return nil, fmt.Errorf("%w: user %s", ErrKeyExists, userID)
	}
	ks.keys[userID] = key
	return append([]byte(nil), key...), nil
}

func (ks *MemoryKeyStore) Get(_ context.Context, userID string) ([]byte, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	key, ok := ks.keys[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrKeyNotFound, userID)
	}
	return append([]byte(nil), key...), nil
}

// Delete is idempotent.
func (ks *MemoryKeyStore) Delete(_ context.Context, userID string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.keys, userID)
	return nil
}

// Package encryption seals the personal data fields of events with the owner's
// key on their way into the event store and opens them for projectors.
//
// Sealed values are JSON strings of the form "enc:v1:<base64(nonce|ciphertext)>".
// The prefix lets Open find sealed values without knowing the payload type.
// Seal only leaves a prefixed value alone when it authenticates under the
// owner's key, so user input that merely starts with the prefix is still sealed.
package encryption

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/example/budget-event-sourced/internal/infrastructure/keystore"
	"github.com/example/budget-event-sourced/internal/infrastructure/store"
)

const (
	sealedPrefix  = "enc:v1:"
	derivationCtx = "budget-personal-data"

	// Shortest sealed value: a GCM nonce and tag around an empty plaintext.
	minSealedLen = 12 + 16
)

var (
	// ErrUndecryptable is the soft signal returned when an event's personal data
	// can no longer be read because the owner's key is gone.
	ErrUndecryptable = errors.New("personal data is undecryptable")

	ErrMissingOwner      = errors.New("personal data event has no user id")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// PersonalData is implemented by event payloads carrying fields that identify
// a person. Fields are JSON names; "items[].name" addresses a field of every
// object in the "items" array.
type PersonalData interface {
	PersonalDataFields() []string
}

// Gate wraps an event store. Append seals personal data, everything else is
// passed through, so aggregates rehydrate on sealed values.
type Gate struct {
	store.EventStore
	keys keystore.KeyStore
}

func NewGate(es store.EventStore, keys keystore.KeyStore) *Gate {
	return &Gate{EventStore: es, keys: keys}
}

// Append rejects the whole batch when a record carries personal data and its
// owner has no key.
func (g *Gate) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, records []store.Record) ([]store.Event, error) {
	sealed := make([]store.Record, len(records))
	for i, r := range records {
		s, err := g.Seal(ctx, r)
		if err != nil {
			return nil, err
		}
		sealed[i] = s
	}
	return g.EventStore.Append(ctx, aggregateID, aggregateType, expectedVersion, sealed)
}

// Seal returns the record with its personal data fields encrypted.
func (g *Gate) Seal(ctx context.Context, r store.Record) (store.Record, error) {
	pd, ok := r.Data.(PersonalData)
	if !ok {
		return r, nil
	}
	if r.UserID == "" {
		return store.Record{}, fmt.Errorf("%w: %s", ErrMissingOwner, r.EventType)
	}

	key, err := g.keys.Get(ctx, r.UserID)
	if err != nil {
		return store.Record{}, fmt.Errorf("seal %s: %w", r.EventType, err)
	}
	aead, err := newAEAD(key, r.UserID)
	if err != nil {
		return store.Record{}, err
	}

	payload, err := r.Payload()
	if err != nil {
		return store.Record{}, err
	}
	for _, field := range pd.PersonalDataFields() {
		payload, err = sealPath(payload, strings.Split(field, "[]."), func(plain string) (string, error) {
			if IsSealed(plain) {
				if _, err := decrypt(aead, plain, r.UserID); err == nil {
					return plain, nil
				}
			}
			return encrypt(aead, plain, r.UserID)
		})
		if err != nil {
			return store.Record{}, fmt.Errorf("seal %s.%s: %w", r.EventType, field, err)
		}
	}

	r.Data = payload
	return r, nil
}

// Open returns the event with every sealed value decrypted. Events without
// sealed values are returned unchanged. A missing key or a value that no longer
// authenticates yields ErrUndecryptable.
func (g *Gate) Open(ctx context.Context, e store.Event) (store.Event, error) {
	if !bytes.Contains(e.Payload, []byte(sealedPrefix)) {
		return e, nil
	}

	key, err := g.keys.Get(ctx, e.UserID)
	if errors.Is(err, keystore.ErrKeyNotFound) {
		return e, fmt.Errorf("%w: event %s of user %s", ErrUndecryptable, e.ID, e.UserID)
	}
	if err != nil {
		return e, fmt.Errorf("open event %s: %w", e.ID, err)
	}
	aead, err := newAEAD(key, e.UserID)
	if err != nil {
		return e, err
	}

	payload, err := openValue(e.Payload, func(value string) (string, error) {
		if _, ok := ciphertext(value); !ok {
			return value, nil
		}
		return decrypt(aead, value, e.UserID)
	})
	if err != nil {
		return e, fmt.Errorf("%w: event %s: %v", ErrUndecryptable, e.ID, err)
	}

	e.Payload = payload
	return e, nil
}

// Redact returns the event with every sealed value replaced by an empty
// string. Projectors use it for events whose owner has been erased.
func Redact(e store.Event) (store.Event, error) {
	if !bytes.Contains(e.Payload, []byte(sealedPrefix)) {
		return e, nil
	}
	payload, err := openValue(e.Payload, func(value string) (string, error) {
		if _, ok := ciphertext(value); !ok {
			return value, nil
		}
		return "", nil
	})
	if err != nil {
		return e, fmt.Errorf("redact event %s: %w", e.ID, err)
	}
	e.Payload = payload
	return e, nil
}

// IsSealed reports whether a value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}

// newAEAD derives the user's AES-256-GCM key from the stored key material.
func newAEAD(material []byte, userID string) (cipher.AEAD, error) {
	reader := hkdf.New(sha256.New, material, nil, []byte(derivationCtx+":"+userID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return aead, nil
}

func encrypt(aead cipher.AEAD, plaintext, userID string) (string, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nonce, nonce, []byte(plaintext), []byte(userID))
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// ciphertext decodes a value shaped like the output of encrypt. Prefixed
// strings that are not, such as a category typed by a user, are plain text.
func ciphertext(value string) ([]byte, bool) {
	if !IsSealed(value) {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(data) < minSealedLen {
		return nil, false
	}
	return data, true
}

func decrypt(aead cipher.AEAD, sealed, userID string) (string, error) {
	data, ok := ciphertext(sealed)
	if !ok {
		return "", fmt.Errorf("%w: not a sealed value", ErrInvalidCiphertext)
	}

	nonceSize := aead.NonceSize()
	plaintext, err := aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(userID))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidCiphertext, err.Error())
	}
	return string(plaintext), nil
}

// sealPath passes the string found at path through seal. Missing fields,
// non-string values and empty strings are left as they are.
func sealPath(raw json.RawMessage, path []string, seal func(string) (string, error)) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}

	value, ok := obj[path[0]]
	if !ok {
		return raw, nil
	}

	if len(path) > 1 {
		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			return raw, nil
		}
		for i, item := range items {
			sealed, err := sealPath(item, path[1:], seal)
			if err != nil {
				return nil, err
			}
			items[i] = sealed
		}
		encoded, err := json.Marshal(items)
		if err != nil {
			return nil, err
		}
		obj[path[0]] = encoded
		return json.Marshal(obj)
	}

	var plain string
	if err := json.Unmarshal(value, &plain); err != nil || plain == "" {
		return raw, nil
	}
	sealed, err := seal(plain)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(sealed)
	if err != nil {
		return nil, err
	}
	obj[path[0]] = encoded
	return json.Marshal(obj)
}

// openValue walks any JSON value and passes every prefixed string to open.
// Other values keep their exact encoding.
func openValue(raw json.RawMessage, open func(string) (string, error)) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return raw, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		if !IsSealed(s) {
			return raw, nil
		}
		plain, err := open(s)
		if err != nil {
			return nil, err
		}
		return json.Marshal(plain)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, err
		}
		for k, v := range obj {
			opened, err := openValue(v, open)
			if err != nil {
				return nil, err
			}
			obj[k] = opened
		}
		return json.Marshal(obj)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		for i, v := range items {
			opened, err := openValue(v, open)
			if err != nil {
				return nil, err
			}
			items[i] = opened
		}
		return json.Marshal(items)
	default:
		return raw, nil
	}
}

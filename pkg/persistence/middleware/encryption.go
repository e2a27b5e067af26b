package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/ports"
)

// envelopeKey is the single answer key of an encrypted envelope.
const envelopeKey = "__encrypted__"

var (
	// ErrInvalidKey is returned for keys that aren't 32 bytes long.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")

	// ErrMissingEnvelope is returned when a stored state was written in clear.
	ErrMissingEnvelope = errors.New("state is missing encrypted data envelope")

	// ErrUndecryptable is returned when no configured key opens an envelope.
	ErrUndecryptable = errors.New("decryption failed with all available keys")
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are older keys tried, in order, when the active key fails.
	// States re-encrypt with ActiveKey on their next save.
	FallbackKeys [][]byte
}

// keyring holds one AEAD per configured key. keys[0] seals; every entry is
// tried when opening.
type keyring []cipher.AEAD

type encryptionMiddleware struct {
	next ports.StateStore
	keys keyring
}

// NewEncryptionMiddleware creates a middleware that seals the answers of every
// state with AES-256-GCM. The thread id is bound as additional data, so an
// envelope copied onto another thread does not open.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	keys, err := newKeyring(config)
	if err != nil {
		return nil, err
	}
	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{next: next, keys: keys}
	}, nil
}

func newKeyring(config EncryptionConfig) (keyring, error) {
	active, err := newAEAD(config.ActiveKey)
	if err != nil {
		return nil, err
	}
	keys := keyring{active}
	for i, k := range config.FallbackKeys {
		aead, err := newAEAD(k)
		if err != nil {
			return nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		keys = append(keys, aead)
	}
	return keys, nil
}

// DecodeKey accepts a 32-byte key written as 64 hex characters or as standard base64.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if k, err := hex.DecodeString(s); err == nil && len(k) == 32 {
		return k, nil
	}
	if k, err := base64.StdEncoding.DecodeString(s); err == nil && len(k) == 32 {
		return k, nil
	}
	return nil, ErrInvalidKey
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (m *encryptionMiddleware) Save(ctx context.Context, threadID string, state *domain.WizardState) error {
	plain, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	sealed, err := m.keys.seal(plain, threadID)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	// Progress stays visible for monitoring, answers are hidden.
	envelope := &domain.WizardState{
		ThreadID:    state.ThreadID,
		CurrentStep: state.CurrentStep,
		StepTotal:   state.StepTotal,
		UpdatedAt:   state.UpdatedAt,
		Answers:     map[string]string{envelopeKey: base64.StdEncoding.EncodeToString(sealed)},
	}
	return m.next.Save(ctx, threadID, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, threadID string) (*domain.WizardState, error) {
	envelope, err := m.next.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}

	encoded, ok := envelope.Answers[envelopeKey]
	if !ok {
		// With a key configured every state must be an envelope.
		return nil, ErrMissingEnvelope
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plain, err := m.keys.open(sealed, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt state of %s: %w", threadID, err)
	}

	var state domain.WizardState
	if err := json.Unmarshal(plain, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted state: %w", err)
	}
	if state.Answers == nil {
		state.Answers = make(map[string]string)
	}
	return &state, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// seal returns nonce || ciphertext under the active key.
func (k keyring) seal(plain []byte, threadID string) ([]byte, error) {
	aead := k[0]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, []byte(threadID)), nil
}

func (k keyring) open(sealed []byte, threadID string) ([]byte, error) {
	for _, aead := range k {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], []byte(threadID)); err == nil {
			return plain, nil
		}
	}
	return nil, ErrUndecryptable
}

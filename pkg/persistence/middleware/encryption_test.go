package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/aretw0/canvas/pkg/adapters/memory"
	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/persistence/middleware"
	"github.com/aretw0/canvas/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func mustEncryption(t *testing.T, cfg middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	// Setup
	underlyingStore := newRawStore()
	secureStore := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)

	ctx := context.Background()
	threadID := "test-thread"
	originalState := domain.NewWizardState(threadID, 9)
	originalState.CurrentStep = 1
	originalState.Answers[domain.CompanyKey] = "Acme Inc"

	// 1. Save
	if err := secureStore.Save(ctx, threadID, originalState); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 2. Verify Underlying Store directly (Should be encrypted)
	storedState, err := underlyingStore.Load(ctx, threadID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if val, ok := storedState.Answers[domain.CompanyKey]; ok {
		t.Fatalf("Expected answer to be hidden, found: %v", val)
	}
	if _, ok := storedState.Answers["__encrypted__"]; !ok {
		t.Fatal("Expected __encrypted__ field in answers")
	}
	if storedState.CurrentStep != 1 {
		t.Errorf("Expected progress to stay visible, got step %d", storedState.CurrentStep)
	}

	// 3. Load via Middleware (Should be decrypted)
	loadedState, err := secureStore.Load(ctx, threadID)
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loadedState.Answers[domain.CompanyKey] != "Acme Inc" {
		t.Errorf("Expected 'Acme Inc', got %v", loadedState.Answers[domain.CompanyKey])
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	store := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(memory.NewStore())
	ports.RunStateStoreContract(t, store)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	// Setup
	underlyingStore := newRawStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	// Create middleware with OLD key to save initial state
	secureStoreOld := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: oldKey})(underlyingStore)

	ctx := context.Background()
	threadID := "rotation-thread"
	originalState := domain.NewWizardState(threadID, 9)
	originalState.Answers["Dream"] = "encrypted-with-old-key"

	// 1. Save with OLD key
	if err := secureStoreOld.Save(ctx, threadID, originalState); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 2. Load with NEW key (Active) + OLD key (Fallback)
	secureStoreNew := mustEncryption(t, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlyingStore)

	loadedState, err := secureStoreNew.Load(ctx, threadID)
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loadedState.Answers["Dream"] != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	// 3. Save again (Should now be encrypted with NEW key)
	loadedState.Answers["Dream"] = "encrypted-with-new-key"
	if err := secureStoreNew.Save(ctx, threadID, loadedState); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}

	// 4. Verify we CANNOT load with just OLD key anymore
	if _, err := secureStoreOld.Load(ctx, threadID); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_RejectsPlainState(t *testing.T) {
	underlyingStore := newRawStore()
	_ = underlyingStore.Save(context.Background(), "plain", domain.NewWizardState("plain", 9))

	secureStore := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	if _, err := secureStore.Load(context.Background(), "plain"); !errors.Is(err, middleware.ErrMissingEnvelope) {
		t.Errorf("Expected ErrMissingEnvelope, got %v", err)
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	if !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

func TestDecodeKey(t *testing.T) {
	key := generateKey(t)

	got, err := middleware.DecodeKey(hex.EncodeToString(key))
	if err != nil || string(got) != string(key) {
		t.Fatalf("hex key not decoded: %v", err)
	}

	if _, err := middleware.DecodeKey("not-a-key"); !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
}

func TestEncryptionMiddleware_EnvelopeBoundToThread(t *testing.T) {
	raw := newRawStore()
	secureStore := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(raw)
	ctx := context.Background()

	state := domain.NewWizardState("thr_owner", 9)
	state.Answers[domain.CompanyKey] = "Acme Inc"
	if err := secureStore.Save(ctx, "thr_owner", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw.move("thr_owner", "thr_other")
	if _, err := secureStore.Load(ctx, "thr_other"); !errors.Is(err, middleware.ErrUndecryptable) {
		t.Errorf("Expected ErrUndecryptable for a moved envelope, got %v", err)
	}
}

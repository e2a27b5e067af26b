package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/canvas/pkg/domain"
	"github.com/aretw0/canvas/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	// Setup
	underlyingStore := newRawStore()
	// Mask the company name and any revenue answer
	mw, err := middleware.NewPIIMiddleware([]string{"^company$", "(?i)revenue"})
	if err != nil {
		t.Fatalf("NewPIIMiddleware failed: %v", err)
	}
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	threadID := "pii-thread"
	state := domain.NewWizardState(threadID, 9)

	// Populate with mixed data
	state.Answers[domain.CompanyKey] = "Acme Inc"
	state.Answers["Revenue"] = "$40 per seat"
	state.Answers["Dream"] = "public"

	// 1. Save
	if err := secureStore.Save(ctx, threadID, state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Verify In-Memory State is NOT MODIFIED (Immutability check)
	if state.Answers[domain.CompanyKey] != "Acme Inc" {
		t.Error("Middleware modified original state in memory!")
	}

	// 2. Load from Underlying Store (Should be masked)
	storedState, err := underlyingStore.Load(ctx, threadID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}

	if storedState.Answers["Dream"] != "public" {
		t.Error("Dream shouldn't be masked")
	}
	if storedState.Answers[domain.CompanyKey] != middleware.Mask {
		t.Errorf("Company should be masked, got: %v", storedState.Answers[domain.CompanyKey])
	}
	if storedState.Answers["Revenue"] != middleware.Mask {
		t.Errorf("Revenue should be masked, got: %v", storedState.Answers["Revenue"])
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Error("Expected invalid pattern to be rejected")
	}
}

func TestChain_MasksBeforeEncrypting(t *testing.T) {
	underlyingStore := newRawStore()
	pii, _ := middleware.NewPIIMiddleware([]string{"^company$"})
	enc := mustEncryption(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	store := middleware.Chain(underlyingStore, pii, enc)

	ctx := context.Background()
	state := domain.NewWizardState("thr_1", 9)
	state.Answers[domain.CompanyKey] = "Acme Inc"
	if err := store.Save(ctx, "thr_1", state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "thr_1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Answers[domain.CompanyKey] != middleware.Mask {
		t.Errorf("Expected masked company after roundtrip, got %q", loaded.Answers[domain.CompanyKey])
	}
}

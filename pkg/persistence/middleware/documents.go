package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aretw0/canvas/pkg/chatkit"
)

// documentAAD separates document envelopes from state envelopes of the same thread.
const documentAAD = "chatkit:"

type sealedDocument struct {
	Sealed string `json:"__encrypted__"`
}

type encryptedDocuments struct {
	next chatkit.Documents
	keys keyring
}

// EncryptDocuments seals every ChatKit thread document with AES-256-GCM under
// the same keys as NewEncryptionMiddleware. Stored documents are JSON
// envelopes, so file and database backends keep readable rows.
func EncryptDocuments(next chatkit.Documents, config EncryptionConfig) (chatkit.Documents, error) {
	keys, err := newKeyring(config)
	if err != nil {
		return nil, err
	}
	return &encryptedDocuments{next: next, keys: keys}, nil
}

func (d *encryptedDocuments) Get(ctx context.Context, threadID string) ([]byte, error) {
	data, err := d.next.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}

	var env sealedDocument
	if err := json.Unmarshal(data, &env); err != nil || env.Sealed == "" {
		return nil, ErrMissingEnvelope
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}
	plain, err := d.keys.open(sealed, documentAAD+threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt thread document of %s: %w", threadID, err)
	}
	return plain, nil
}

func (d *encryptedDocuments) Put(ctx context.Context, threadID string, doc []byte) error {
	sealed, err := d.keys.seal(doc, documentAAD+threadID)
	if err != nil {
		return fmt.Errorf("failed to encrypt thread document: %w", err)
	}
	data, err := json.Marshal(sealedDocument{Sealed: base64.StdEncoding.EncodeToString(sealed)})
	if err != nil {
		return err
	}
	return d.next.Put(ctx, threadID, data)
}

func (d *encryptedDocuments) Delete(ctx context.Context, threadID string) error {
	return d.next.Delete(ctx, threadID)
}

func (d *encryptedDocuments) List(ctx context.Context) ([]string, error) {
	return d.next.List(ctx)
}

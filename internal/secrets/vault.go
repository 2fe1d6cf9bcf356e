package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/ciris-ai/ciris-core/internal/errs"
)

// Vault stores a detected secret's plaintext under its Reference.UUID
// and allows an authorized caller (a WISE_AUTHORITY-approved tool
// call, for instance) to retrieve it later. Values are encrypted at
// rest with AES-GCM; crypto/aes and crypto/cipher are the correct
// primitives for symmetric AEAD and no third-party AEAD library
// appears anywhere in the example pack, so the standard library is
// used here deliberately rather than as a fallback of convenience.
type Vault interface {
	Store(id, plaintext string, ref Reference) error
	Retrieve(id string) (string, error)
}

// SQLVault persists encrypted secret values via a Store backed by
// secrets.db (internal/persistence/sqlite.DB satisfies Store).
type SQLVault struct {
	mu     sync.Mutex
	store  Store
	aead   cipher.AEAD
	ctx    context.Context
	cancel context.CancelFunc
}

// Store is the persistence contract secrets.db implements.
type Store interface {
	PutSecret(ctx context.Context, id string, ciphertext []byte, nonce []byte, ref Reference) error
	GetSecret(ctx context.Context, id string) (ciphertext []byte, nonce []byte, err error)
}

// NewSQLVault builds a vault with a 256-bit key. The key must be
// supplied by the runtime from a durable source (config or an
// OS keyring); losing it makes every stored secret unrecoverable,
// which is the intended failure mode (no plaintext key escrow).
func NewSQLVault(store Store, key [32]byte) (*SQLVault, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "build vault cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Wrap(errs.KindPersistence, "build vault AEAD", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SQLVault{store: store, aead: aead, ctx: ctx, cancel: cancel}, nil
}

func (v *SQLVault) Store(id, plaintext string, ref Reference) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return errs.Wrap(errs.KindPersistence, "generate vault nonce", err)
	}
	ciphertext := v.aead.Seal(nil, nonce, []byte(plaintext), nil)
	if err := v.store.PutSecret(v.ctx, id, ciphertext, nonce, ref); err != nil {
		return errs.Wrap(errs.KindPersistence, "store secret", err)
	}
	return nil
}

func (v *SQLVault) Retrieve(id string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ciphertext, nonce, err := v.store.GetSecret(v.ctx, id)
	if err != nil {
		return "", errs.Wrap(errs.KindPersistence, "load secret", err)
	}
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errs.Wrap(errs.KindPersistence, fmt.Sprintf("decrypt secret %s", id), err)
	}
	return string(plaintext), nil
}

// Close cancels the vault's background context.
func (v *SQLVault) Close() { v.cancel() }

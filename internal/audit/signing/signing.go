// Package signing manages the ES256 keys that sign audit chain
// entries and verifies signatures against a key's revocation state at
// signing time. Grounded on the teacher's pkg/auth (lestrrat-go/jwx
// JWKS validation), generalized from "validate a token against a
// provider's public keys" to "sign with our own private key and later
// verify against it," since the teacher only needed the verify half.
package signing

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// KeyRecord is one generated signing key, persisted so the agent can
// verify entries signed by a now-retired key.
type KeyRecord struct {
	KeyID      string
	PrivateJWK []byte // JSON-encoded private JWK, nil once the key has been revoked and purged
	PublicJWK  []byte
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Store persists signing keys, implemented by
// internal/persistence/sqlite.AuditDB against the audit_signing_keys
// table.
type Store interface {
	PutKey(ctx context.Context, k *KeyRecord) error
	GetKey(ctx context.Context, keyID string) (*KeyRecord, error)
	GetActiveKey(ctx context.Context) (*KeyRecord, error)
	RevokeKey(ctx context.Context, keyID string, at time.Time) error
}

// KeyStore is the signer the audit log delegates to: it holds the
// active key in memory (loaded lazily from Store) and signs every
// entry hash under it, rotating on demand via Rotate.
type KeyStore struct {
	Store Store

	mu        sync.Mutex
	activeID  string
	activeKey jwk.Key
}

// Sign produces a compact JWS over entryHash under the active key,
// generating one on first use if none exists yet.
func (k *KeyStore) Sign(ctx context.Context, entryHash []byte) ([]byte, string, error) {
	key, keyID, err := k.ensureActiveKey(ctx)
	if err != nil {
		return nil, "", err
	}
	sig, err := jws.Sign(entryHash, jws.WithKey(jwa.ES256, key))
	if err != nil {
		return nil, "", fmt.Errorf("sign audit entry: %w", err)
	}
	return sig, keyID, nil
}

// Verify checks sig against entryHash under the key named keyID, and
// rejects it if that key had already been revoked at the time the
// entry claims to have been signed (spec.md §6: "must not have been
// revoked at event_timestamp").
func (k *KeyStore) Verify(ctx context.Context, entryHash, sig []byte, keyID string, at time.Time) error {
	rec, err := k.Store.GetKey(ctx, keyID)
	if err != nil {
		return fmt.Errorf("load signing key %s: %w", keyID, err)
	}
	if rec.RevokedAt != nil && !at.Before(*rec.RevokedAt) {
		return fmt.Errorf("signing key %s was revoked at %s, before or at event time %s", keyID, rec.RevokedAt, at)
	}
	pub, err := jwk.ParseKey(rec.PublicJWK)
	if err != nil {
		return fmt.Errorf("parse public key %s: %w", keyID, err)
	}
	payload, err := jws.Verify(sig, jws.WithKey(jwa.ES256, pub))
	if err != nil {
		return fmt.Errorf("verify signature under key %s: %w", keyID, err)
	}
	if string(payload) != string(entryHash) {
		return fmt.Errorf("signature payload mismatch under key %s", keyID)
	}
	return nil
}

// Rotate generates a fresh ES256 key pair, persists it as the new
// active key, and revokes the previous one as of now.
func (k *KeyStore) Rotate(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	oldID := k.activeID
	keyID, key, err := generateKey(ctx, k.Store)
	if err != nil {
		return "", err
	}
	k.activeID = keyID
	k.activeKey = key
	if oldID != "" {
		if err := k.Store.RevokeKey(ctx, oldID, time.Now().UTC()); err != nil {
			return "", fmt.Errorf("revoke previous signing key %s: %w", oldID, err)
		}
	}
	return keyID, nil
}

func (k *KeyStore) ensureActiveKey(ctx context.Context) (jwk.Key, string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.activeKey != nil {
		return k.activeKey, k.activeID, nil
	}

	rec, err := k.Store.GetActiveKey(ctx)
	if err == nil && rec != nil {
		key, err := jwk.ParseKey(rec.PrivateJWK)
		if err != nil {
			return nil, "", fmt.Errorf("parse active signing key %s: %w", rec.KeyID, err)
		}
		k.activeID = rec.KeyID
		k.activeKey = key
		return key, rec.KeyID, nil
	}

	keyID, key, genErr := generateKey(ctx, k.Store)
	if genErr != nil {
		return nil, "", genErr
	}
	k.activeID = keyID
	k.activeKey = key
	return key, keyID, nil
}

func generateKey(ctx context.Context, store Store) (string, jwk.Key, error) {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", nil, fmt.Errorf("generate ES256 key: %w", err)
	}
	priv, err := jwk.FromRaw(raw)
	if err != nil {
		return "", nil, fmt.Errorf("wrap private key: %w", err)
	}
	keyID := uuid.NewString()
	if err := priv.Set(jwk.KeyIDKey, keyID); err != nil {
		return "", nil, err
	}
	if err := priv.Set(jwk.AlgorithmKey, jwa.ES256); err != nil {
		return "", nil, err
	}

	pub, err := jwk.PublicKeyOf(priv)
	if err != nil {
		return "", nil, fmt.Errorf("derive public key: %w", err)
	}

	privJSON, err := marshalKey(priv)
	if err != nil {
		return "", nil, err
	}
	pubJSON, err := marshalKey(pub)
	if err != nil {
		return "", nil, err
	}

	rec := &KeyRecord{
		KeyID:      keyID,
		PrivateJWK: privJSON,
		PublicJWK:  pubJSON,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.PutKey(ctx, rec); err != nil {
		return "", nil, fmt.Errorf("persist signing key %s: %w", keyID, err)
	}
	return keyID, priv, nil
}

func marshalKey(key jwk.Key) ([]byte, error) {
	b, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("marshal jwk: %w", err)
	}
	return b, nil
}

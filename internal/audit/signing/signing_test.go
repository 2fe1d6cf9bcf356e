package signing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ciris-ai/ciris-core/internal/audit/signing"
	"github.com/ciris-ai/ciris-core/internal/persistence/sqlite"
)

func openKeyStore(t *testing.T) (*signing.KeyStore, *sqlite.AuditDB) {
	t.Helper()
	db, err := sqlite.OpenAuditDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &signing.KeyStore{Store: db}, db
}

func TestSignThenVerifyRoundTrips(t *testing.T) {
	ctx := context.Background()
	ks, _ := openKeyStore(t)

	hash := []byte("deadbeefcafefeed")
	sig, keyID, err := ks.Sign(ctx, hash)
	require.NoError(t, err)
	assert.NotEmpty(t, keyID)

	err = ks.Verify(ctx, hash, sig, keyID, time.Now().UTC())
	assert.NoError(t, err)
}

func TestVerifyFailsAfterKeyRevokedBeforeEventTime(t *testing.T) {
	ctx := context.Background()
	ks, _ := openKeyStore(t)

	hash := []byte("abc123")
	sig, keyID, err := ks.Sign(ctx, hash)
	require.NoError(t, err)

	revokedAt := time.Now().UTC()
	_, err = ks.Rotate(ctx)
	require.NoError(t, err)
	// Rotate revokes keyID as of "now"; an event timestamp after that
	// is invalid under the old key.
	err = ks.Verify(ctx, hash, sig, keyID, revokedAt.Add(time.Hour))
	assert.Error(t, err)
}

func TestVerifyFailsOnTamperedSignature(t *testing.T) {
	ctx := context.Background()
	ks, _ := openKeyStore(t)

	hash := []byte("payload-hash")
	sig, keyID, err := ks.Sign(ctx, hash)
	require.NoError(t, err)

	tampered := append([]byte{}, sig...)
	tampered[len(tampered)-1] ^= 0xFF

	err = ks.Verify(ctx, hash, tampered, keyID, time.Now().UTC())
	assert.Error(t, err)
}

func TestRotateRevokesThePreviousKey(t *testing.T) {
	ctx := context.Background()
	ks, db := openKeyStore(t)

	_, firstID, err := ks.Sign(ctx, []byte("x"))
	require.NoError(t, err)

	secondID, err := ks.Rotate(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, firstID, secondID)

	rec, err := db.GetKey(ctx, firstID)
	require.NoError(t, err)
	assert.NotNil(t, rec.RevokedAt)
}

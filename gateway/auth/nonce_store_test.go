package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"frendlend/crypto"
	"frendlend/storage"
)

func TestNonceStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nonces")
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	now := time.Unix(1_717_787_717, 0).UTC()
	clock := func() time.Time { return now }
	body := "payload"

	store, err := OpenNonceStore(path)
	require.NoError(t, err)
	a, err := NewAuthenticator(time.Minute, 5*time.Minute, 32, clock, store)
	require.NoError(t, err)
	_, err = a.Authenticate(signedRequest(t, key, body, now, "nonce-restart"), []byte(body))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenNonceStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.RecentNonces(context.Background(), now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "nonce-restart", records[0].Nonce)

	restarted, err := NewAuthenticator(time.Minute, 5*time.Minute, 32, clock, reopened)
	require.NoError(t, err)
	_, err = restarted.Authenticate(signedRequest(t, key, body, now, "nonce-restart"), []byte(body))
	require.ErrorIs(t, err, ErrNonceReplayed)
}

func TestNonceStorePrunes(t *testing.T) {
	store := NewNonceStore(storage.NewMemDB())
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	old := NonceRecord{Signer: "0xa", Timestamp: "1", Nonce: "old", ObservedAt: base}
	fresh := NonceRecord{Signer: "0xa", Timestamp: "2", Nonce: "fresh", ObservedAt: base.Add(10 * time.Minute)}
	for _, rec := range []NonceRecord{old, fresh} {
		existed, err := store.EnsureNonce(ctx, rec)
		require.NoError(t, err)
		require.False(t, existed)
	}
	existed, err := store.EnsureNonce(ctx, old)
	require.NoError(t, err)
	require.True(t, existed)

	require.NoError(t, store.PruneNonces(ctx, base.Add(5*time.Minute)))
	records, err := store.RecentNonces(ctx, time.Unix(0, 0))
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "fresh", records[0].Nonce)

	existed, err = store.EnsureNonce(ctx, old)
	require.NoError(t, err)
	require.False(t, existed, "pruned nonce is forgotten")
}

func TestNonceStoreRejectsIncompleteRecords(t *testing.T) {
	store := NewNonceStore(storage.NewMemDB())
	_, err := store.EnsureNonce(context.Background(), NonceRecord{Signer: "0xa"})
	require.Error(t, err)
}

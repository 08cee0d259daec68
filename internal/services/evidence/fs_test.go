// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package evidence_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "proofs")
	store, err := evidence.NewFSStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "recovery/1/id_proof-a.png", []byte("data"), "image/png"))

	onDisk, err := os.ReadFile(filepath.Join(dir, "recovery", "1", "id_proof-a.png"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(onDisk))

	rc, err := store.Open(ctx, "recovery/1/id_proof-a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "data", string(data))

	require.NoError(t, store.Delete(ctx, "recovery/1/id_proof-a.png"))
	_, err = store.Open(ctx, "recovery/1/id_proof-a.png")
	assert.ErrorIs(t, err, evidence.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "recovery/1/id_proof-a.png"), evidence.ErrNotFound)
}

func TestFSStore_RefusesOverwrite(t *testing.T) {
	store, err := evidence.NewFSStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "recovery/1/a.png", []byte("one"), ""))
	assert.Error(t, store.Put(ctx, "recovery/1/a.png", []byte("two"), ""))
}

func TestFSStore_KeysCannotEscapeRoot(t *testing.T) {
	parent := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("x"), 0o600))
	store, err := evidence.NewFSStore(filepath.Join(parent, "proofs"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Open(context.Background(), "../secret.txt")
	assert.Error(t, err)

	err = store.Put(context.Background(), "../escape.png", []byte("x"), "")
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(parent, "escape.png"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewStore(t *testing.T) {
	t.Run("fs backend", func(t *testing.T) {
		store, err := evidence.NewStore(context.Background(), &config.EvidenceConfig{
			Backend: config.EvidenceBackendFS,
			Dir:     t.TempDir(),
		})
		require.NoError(t, err)
		assert.IsType(t, &evidence.FSStore{}, store)
	})

	t.Run("s3 backend", func(t *testing.T) {
		store, err := evidence.NewStore(context.Background(), &config.EvidenceConfig{
			Backend:     config.EvidenceBackendS3,
			S3Bucket:    "proofs",
			S3Region:    "us-east-1",
			S3Endpoint:  "http://127.0.0.1:9000",
			S3AccessKey: "minio",
			S3SecretKey: "minio123",
		})
		require.NoError(t, err)
		assert.IsType(t, &evidence.S3Store{}, store)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := evidence.NewStore(context.Background(), &config.EvidenceConfig{Backend: "ftp"})
		assert.Error(t, err)
	})
}

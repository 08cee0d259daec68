// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package evidence_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/config"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMinioStore(t *testing.T) *evidence.S3Store {
	t.Helper()
	store, err := evidence.NewS3Store(context.Background(), &config.EvidenceConfig{
		S3Bucket:     "proofs",
		S3Region:     "us-east-1",
		S3Endpoint:   "http://127.0.0.1:9000",
		S3AccessKey:  "minio",
		S3SecretKey:  "minio123",
		S3PathPrefix: "recovery_proofs",
	})
	require.NoError(t, err)
	return store
}

// Presigning is computed locally, so no server needs to be running.
func TestS3Store_PresignGet(t *testing.T) {
	store := newMinioStore(t)

	raw, err := store.PresignGet(context.Background(), "recovery/1/id_proof-a.png", 10*time.Minute)

	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/proofs/recovery_proofs/recovery/1/id_proof-a.png", u.Path)
	assert.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
	assert.True(t, strings.HasPrefix(u.Query().Get("X-Amz-Credential"), "minio/"))
}

func TestService_DownloadURL_S3(t *testing.T) {
	svc := evidence.NewService(newMinioStore(t), 1024)

	raw, ok, err := svc.DownloadURL(context.Background(), "recovery/1/id_proof-a.png", time.Minute)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, raw, "X-Amz-Signature=")

	_, ok, err = svc.DownloadURL(context.Background(), "", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

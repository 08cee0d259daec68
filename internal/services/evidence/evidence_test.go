// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package evidence_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
	"codeberg.org/psuyearbook/yearbook-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave(t *testing.T) {
	store := testutil.NewMemStore()
	svc := evidence.NewService(store, 1024)
	ctx := context.Background()

	ref, err := svc.Save(ctx, 7, &evidence.File{Kind: evidence.KindIDProof, Body: bytes.NewReader(testutil.PNG)})

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "recovery/7/id_proof-"), ref)
	assert.True(t, strings.HasSuffix(ref, ".png"), ref)
	assert.Equal(t, testutil.PNG, store.Objects[ref])
	assert.Equal(t, "image/png", store.Types[ref])
}

func TestSave_UniqueReferences(t *testing.T) {
	svc := evidence.NewService(testutil.NewMemStore(), 0)
	ctx := context.Background()

	a, err := svc.Save(ctx, 1, &evidence.File{Kind: evidence.KindSelfieProof, Body: bytes.NewReader(testutil.JPEG)})
	require.NoError(t, err)
	b, err := svc.Save(ctx, 1, &evidence.File{Kind: evidence.KindSelfieProof, Body: bytes.NewReader(testutil.JPEG)})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasSuffix(a, ".jpg"), a)
}

func TestSave_NoFile(t *testing.T) {
	store := testutil.NewMemStore()
	svc := evidence.NewService(store, 1024)

	ref, err := svc.Save(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, ref)

	ref, err = svc.Save(context.Background(), 1, &evidence.File{Kind: evidence.KindIDProof, Body: bytes.NewReader(nil)})
	require.NoError(t, err)
	assert.Empty(t, ref)

	assert.Zero(t, store.Len())
}

func TestSave_TooLarge(t *testing.T) {
	store := testutil.NewMemStore()
	svc := evidence.NewService(store, 16)

	_, err := svc.Save(context.Background(), 1, &evidence.File{Kind: evidence.KindIDProof, Body: bytes.NewReader(testutil.PNG)})

	assert.ErrorIs(t, err, evidence.ErrTooLarge)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.Zero(t, store.Len())
}

func TestSave_ReadFailure(t *testing.T) {
	for _, limit := range []int64{0, 1024} {
		store := testutil.NewMemStore()
		svc := evidence.NewService(store, limit)
		body := iotest.ErrReader(errors.New("connection reset"))

		_, err := svc.Save(context.Background(), 1, &evidence.File{Kind: evidence.KindIDProof, Body: body})

		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "limit %d", limit)
		assert.Zero(t, store.Len())
	}
}

func TestSave_UnsupportedType(t *testing.T) {
	svc := evidence.NewService(testutil.NewMemStore(), 1024)

	_, err := svc.Save(context.Background(), 1, &evidence.File{Kind: evidence.KindIDProof, Body: strings.NewReader("#!/bin/sh\nrm -rf /\n")})

	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestSave_StoreFailure(t *testing.T) {
	store := testutil.NewMemStore()
	store.PutErr = errors.New("disk full")
	svc := evidence.NewService(store, 1024)

	_, err := svc.Save(context.Background(), 1, &evidence.File{Kind: evidence.KindIDProof, Body: bytes.NewReader(testutil.PNG)})

	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestOpenAndDelete(t *testing.T) {
	svc := evidence.NewService(testutil.NewMemStore(), 1024)
	ctx := context.Background()
	ref, err := svc.Save(ctx, 1, &evidence.File{Kind: evidence.KindIDProof, Body: bytes.NewReader(testutil.PNG)})
	require.NoError(t, err)

	rc, contentType, err := svc.Open(ctx, ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, testutil.PNG, data)
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, svc.Delete(ctx, ref))
	_, _, err = svc.Open(ctx, ref)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Deleting twice and deleting nothing are both fine.
	assert.NoError(t, svc.Delete(ctx, ref))
	assert.NoError(t, svc.Delete(ctx, ""))
}

func TestDownloadURL_NotSupportedByMemStore(t *testing.T) {
	svc := evidence.NewService(testutil.NewMemStore(), 1024)

	_, ok, err := svc.DownloadURL(context.Background(), "recovery/1/id_proof-x.png", time.Minute)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", evidence.ContentType("recovery/1/id_proof-x.png"))
	assert.Equal(t, "image/jpeg", evidence.ContentType("recovery/1/selfie_proof-x.JPG"))
	assert.Equal(t, "application/pdf", evidence.ContentType("recovery/1/id_proof-x.pdf"))
	assert.Equal(t, "application/octet-stream", evidence.ContentType("recovery/1/id_proof-x"))
}

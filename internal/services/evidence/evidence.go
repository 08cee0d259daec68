// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package evidence stores the proof files attached to recovery requests.
// Callers only ever see opaque references.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
	"github.com/google/uuid"
)

// Kind names an evidence slot on a recovery request.
type Kind string

const (
	KindIDProof     Kind = "id_proof"
	KindSelfieProof Kind = "selfie_proof"
)

// ErrTooLarge is returned when a file exceeds the configured limit.
var ErrTooLarge = errors.New("evidence file too large")

// ErrNotFound is returned by stores for unknown references.
var ErrNotFound = errors.New("evidence not found")

// allowed maps accepted content types to the extension used in keys.
var allowed = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// Store is a blob backend addressed by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// File is an uploaded proof.
type File struct {
	Kind Kind
	Body io.Reader
}

// Service validates uploads and hands them to a Store.
type Service struct {
	store    Store
	maxBytes int64
	newID    func() string
}

// NewService creates an evidence service. maxBytes <= 0 disables the limit.
func NewService(store Store, maxBytes int64) *Service {
	return &Service{
		store:    store,
		maxBytes: maxBytes,
		newID:    func() string { return uuid.NewString() },
	}
}

// Save stores f for the account and returns its reference. A nil file yields
// an empty reference.
func (s *Service) Save(ctx context.Context, accountID int64, f *File) (string, error) {
	if f == nil || f.Body == nil {
		return "", nil
	}

	data, err := s.read(f.Body)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", nil
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowed[contentType]
	if !ok {
		return "", apperr.Invalid("unsupported %s file type %s", f.Kind, contentType)
	}

	key := fmt.Sprintf("recovery/%d/%s-%s%s", accountID, f.Kind, s.newID(), ext)
	if err := s.store.Put(ctx, key, data, contentType); err != nil {
		return "", apperr.Store("store evidence", err)
	}
	return key, nil
}

func (s *Service) read(body io.Reader) ([]byte, error) {
	r := body
	if s.maxBytes > 0 {
		r = io.LimitReader(body, s.maxBytes+1)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Invalid("read upload: %v", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, ErrTooLarge)
	}
	return data, nil
}

// Open returns the stored file and its content type.
func (s *Service) Open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	if ref == "" {
		return nil, "", apperr.ErrNotFound
	}
	rc, err := s.store.Open(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
		}
		return nil, "", apperr.Store("open evidence", err)
	}
	return rc, ContentType(ref), nil
}

// Delete removes a stored file. Empty references are ignored.
func (s *Service) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	if err := s.store.Delete(ctx, ref); err != nil && !errors.Is(err, ErrNotFound) {
		return apperr.Store("delete evidence", err)
	}
	return nil
}

// ContentType derives the content type from a reference's extension.
func ContentType(ref string) string {
	ext := strings.ToLower(path.Ext(ref))
	for contentType, e := range allowed {
		if e == ext {
			return contentType
		}
	}
	return "application/octet-stream"
}

// presigner is implemented by backends that can hand out direct download URLs.
type presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// DownloadURL returns a time-limited direct URL for ref. ok is false when the
// backend cannot sign URLs and the file has to be streamed through Open.
func (s *Service) DownloadURL(ctx context.Context, ref string, ttl time.Duration) (url string, ok bool, err error) {
	p, can := s.store.(presigner)
	if !can || ref == "" {
		return "", false, nil
	}
	url, err = p.PresignGet(ctx, ref, ttl)
	if err != nil {
		return "", false, apperr.Store("presign evidence", err)
	}
	return url, true, nil
}

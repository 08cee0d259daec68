// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package testutil

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/email"
	"codeberg.org/psuyearbook/yearbook-api/internal/services/evidence"
)

// SentOTP is one code handed to the FakeNotifier.
type SentOTP struct {
	To       string
	Code     string
	Purpose  models.OTPPurpose
	ValidFor time.Duration
}

// SentDecision is one recovery notice handed to the FakeNotifier.
type SentDecision struct {
	To       string
	Decision email.RecoveryDecision
}

// FakeNotifier records deliveries and fails them while Err is set.
type FakeNotifier struct {
	mu        sync.Mutex
	Err       error
	OTPs      []SentOTP
	Decisions []SentDecision
}

func (n *FakeNotifier) SendOTP(_ context.Context, to, code string, purpose models.OTPPurpose, validFor time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.OTPs = append(n.OTPs, SentOTP{To: to, Code: code, Purpose: purpose, ValidFor: validFor})
	return nil
}

func (n *FakeNotifier) SendRecoveryDecision(_ context.Context, to string, d email.RecoveryDecision) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.Decisions = append(n.Decisions, SentDecision{To: to, Decision: d})
	return nil
}

// Fail makes subsequent deliveries return err. Pass nil to recover.
func (n *FakeNotifier) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Err = err
}

// LastOTP returns the most recent code, or a zero value.
func (n *FakeNotifier) LastOTP() SentOTP {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.OTPs) == 0 {
		return SentOTP{}
	}
	return n.OTPs[len(n.OTPs)-1]
}

// OTPCount returns how many codes were delivered.
func (n *FakeNotifier) OTPCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.OTPs)
}

// MemStore is an in-memory evidence backend.
type MemStore struct {
	mu      sync.Mutex
	PutErr  error
	Objects map[string][]byte
	Types   map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{Objects: map[string][]byte{}, Types: map[string]string{}}
}

func (s *MemStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.Objects[key] = bytes.Clone(data)
	s.Types[key] = contentType
	return nil
}

func (s *MemStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Objects[key]
	if !ok {
		return nil, evidence.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Objects[key]; !ok {
		return evidence.ErrNotFound
	}
	delete(s.Objects, key)
	delete(s.Types, key)
	return nil
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Objects)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at a fixed UTC instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// PNG is a minimal payload that sniffs as image/png.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

// JPEG is a minimal payload that sniffs as image/jpeg.
var JPEG = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")

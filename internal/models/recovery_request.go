// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// RecoveryStatus is the lifecycle of a recovery request:
// pending_admin -> approved | denied, and approved | denied -> closed when a
// newer request supersedes them.
type RecoveryStatus string

const (
	RecoveryPending  RecoveryStatus = "pending_admin"
	RecoveryApproved RecoveryStatus = "approved"
	RecoveryDenied   RecoveryStatus = "denied"
	RecoveryClosed   RecoveryStatus = "closed"
)

// Valid reports whether s is a known status.
func (s RecoveryStatus) Valid() bool {
	switch s {
	case RecoveryPending, RecoveryApproved, RecoveryDenied, RecoveryClosed:
		return true
	}
	return false
}

// RecoveryRequest is a student's claim that they cannot sign in, queued for
// an administrator decision.
type RecoveryRequest struct { //nolint:govet // fieldalignment: readability over optimization
	ID                int64          `db:"id" json:"id"`
	AccountID         int64          `db:"account_id" json:"account_id"`
	Message           string         `db:"message" json:"message"`
	IDProofRef        string         `db:"id_proof_ref" json:"id_proof_ref"`
	SelfieProofRef    string         `db:"selfie_proof_ref" json:"selfie_proof_ref"`
	Status            RecoveryStatus `db:"status" json:"status"`
	AdminNotes        string         `db:"admin_notes" json:"admin_notes"`
	ResolvedByAdminID *int64         `db:"resolved_by_admin_id" json:"resolved_by_admin_id,omitempty"`
	ResolvedAt        *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// RecoveryRequestListing is a request joined with the owner's student number
// for the administrator queue.
type RecoveryRequestListing struct {
	RecoveryRequest
	StudentNumber string `db:"student_number" json:"student_number"`
}

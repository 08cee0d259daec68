// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// AccountStatus tracks onboarding. Only the completion of first-time
// verification moves an account to AccountVerified.
type AccountStatus string

const (
	AccountPendingVerification AccountStatus = "pending_verification"
	AccountVerified            AccountStatus = "verified"
)

// OTPPurpose tags the single OTP slot with the flow that issued it.
type OTPPurpose string

const (
	PurposeLogin         OTPPurpose = "login"
	PurposeEmailSetup    OTPPurpose = "email_setup"
	PurposeSettings      OTPPurpose = "settings"
	PurposePasswordReset OTPPurpose = "password_reset"
)

// Account is the identity anchor of a student. Rows are provisioned out of
// band and never deleted here.
type Account struct { //nolint:govet // fieldalignment: readability over optimization
	ID                    int64         `db:"id" json:"id"`
	StudentNumber         string        `db:"student_number" json:"student_number"`
	PasswordHash          string        `db:"password_hash" json:"-"`
	Email                 *string       `db:"email" json:"email,omitempty"`
	Status                AccountStatus `db:"account_status" json:"account_status"`
	OTPCode               *string       `db:"otp_code" json:"-"`
	OTPPurpose            *OTPPurpose   `db:"otp_purpose" json:"-"`
	OTPExpiresAt          *time.Time    `db:"otp_expires_at" json:"-"`
	OTPTarget             *string       `db:"otp_target" json:"-"`
	LastNotificationCheck *time.Time    `db:"last_notification_check" json:"last_notification_check,omitempty"`
	CreatedAt             time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time     `db:"updated_at" json:"updated_at"`
}

// HasEmail reports whether a verification email is on file.
func (a *Account) HasEmail() bool {
	return a.Email != nil && *a.Email != ""
}

// EmailAddress returns the email on file or "".
func (a *Account) EmailAddress() string {
	if a.Email == nil {
		return ""
	}
	return *a.Email
}

func (a *Account) IsVerified() bool {
	return a.Status == AccountVerified
}

// PendingOTP returns the contents of the OTP slot. ok is false when the slot
// is empty. The address the code was sent to is available as OTPSentTo.
func (a *Account) PendingOTP() (code string, purpose OTPPurpose, expiresAt time.Time, ok bool) {
	if a.OTPCode == nil || a.OTPPurpose == nil || a.OTPExpiresAt == nil || *a.OTPCode == "" {
		return "", "", time.Time{}, false
	}
	return *a.OTPCode, *a.OTPPurpose, *a.OTPExpiresAt, true
}

// OTPSentTo returns the address the pending code was delivered to.
func (a *Account) OTPSentTo() string {
	if a.OTPTarget == nil {
		return ""
	}
	return *a.OTPTarget
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

// SecurityProfile holds the reference answers for the first-time security
// questions. A nil field means the underlying profile row is missing.
type SecurityProfile struct { //nolint:govet // fieldalignment: readability over optimization
	AccountID      int64   `db:"account_id"`
	MotherLastname *string `db:"mother_lastname"`
	Barangay       *string `db:"barangay"`
	Course         *string `db:"course"`
}

// StudentProfile is the provisioning input for the profile tables.
type StudentProfile struct {
	FirstName      string
	LastName       string
	Department     string
	BatchYear      int
	MotherLastname string
	Barangay       string
}

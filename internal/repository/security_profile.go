// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/psuyearbook/yearbook-api/internal/models"
)

// GetSecurityProfile joins the reference answers for the security questions.
// Missing profile rows come back as nil fields.
func (r *Repository) GetSecurityProfile(ctx context.Context, accountID int64) (*models.SecurityProfile, error) {
	var profile models.SecurityProfile
	err := r.db.GetContext(ctx, &profile,
		`SELECT a.id AS account_id, p.mother_lastname, ad.barangay, d.name AS course
		 FROM accounts a
		 LEFT JOIN students s ON s.id = a.id
		 LEFT JOIN parents p ON p.student_id = s.id
		 LEFT JOIN addresses ad ON ad.student_id = s.id
		 LEFT JOIN departments d ON d.id = s.department_id
		 WHERE a.id = ?`, accountID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &profile, nil
}

// SaveStudentProfile writes the profile rows backing the security questions.
// Empty answers leave the corresponding row out.
func (r *Repository) SaveStudentProfile(ctx context.Context, accountID int64, p models.StudentProfile) error {
	var departmentID *int64
	if p.Department != "" {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO departments (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, p.Department); err != nil {
			return wrapError(err)
		}
		var id int64
		if err := r.db.GetContext(ctx, &id, `SELECT id FROM departments WHERE name = ?`, p.Department); err != nil {
			return wrapError(err)
		}
		departmentID = &id
	}

	var batchYear *int
	if p.BatchYear > 0 {
		batchYear = &p.BatchYear
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO students (id, first_name, last_name, department_id, batch_year) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET first_name = excluded.first_name, last_name = excluded.last_name,
		 department_id = excluded.department_id, batch_year = excluded.batch_year`,
		accountID, p.FirstName, p.LastName, departmentID, batchYear); err != nil {
		return wrapError(err)
	}

	if p.MotherLastname != "" {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO parents (student_id, mother_lastname) VALUES (?, ?)
			 ON CONFLICT(student_id) DO UPDATE SET mother_lastname = excluded.mother_lastname`,
			accountID, p.MotherLastname); err != nil {
			return wrapError(err)
		}
	}

	if p.Barangay != "" {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO addresses (student_id, barangay) VALUES (?, ?)
			 ON CONFLICT(student_id) DO UPDATE SET barangay = excluded.barangay`,
			accountID, p.Barangay); err != nil {
			return wrapError(err)
		}
	}

	return nil
}

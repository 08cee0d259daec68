// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	_ "embed"
	"strings"
	"sync"
	"unicode"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
)

//go:embed common_passwords.txt
var commonPasswordList string

var commonPasswords = sync.OnceValue(func() map[string]struct{} {
	set := make(map[string]struct{})
	scanner := bufio.NewScanner(strings.NewReader(commonPasswordList))
	for scanner.Scan() {
		if p := strings.ToLower(strings.TrimSpace(scanner.Text())); p != "" {
			set[p] = struct{}{}
		}
	}
	return set
})

// Problem is a machine-readable reason for rejecting a password.
type Problem string

const (
	ProblemTooShort Problem = "min_length"
	ProblemNumeric  Problem = "entirely_numeric"
	ProblemCommon   Problem = "common_password"
	ProblemSimilar  Problem = "too_similar"
)

// PasswordValidator checks passwords chosen in settings, during a
// self-service reset and for new administrators.
type PasswordValidator struct {
	MinLength int
	// MaxSimilarity is the longest common subsequence ratio above which a
	// password counts as derived from a personal attribute. Zero disables
	// the check.
	MaxSimilarity float64
	CheckCommon   bool
}

// DefaultPasswordValidator returns the validator used for student passwords.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:     8,
		MaxSimilarity: 0.7,
		CheckCommon:   true,
	}
}

// PasswordValidationError lists every problem found with a password.
type PasswordValidationError struct {
	Problems []Problem
}

func (e *PasswordValidationError) Error() string {
	return "password rejected: " + strings.Join(e.Codes(), ", ")
}

// Unwrap classifies a rejected password as invalid input.
func (e *PasswordValidationError) Unwrap() error {
	return apperr.ErrInvalidInput
}

// Codes returns the problems as strings.
func (e *PasswordValidationError) Codes() []string {
	codes := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		codes[i] = string(p)
	}
	return codes
}

// Check returns a *PasswordValidationError when password is rejected.
// attributes are values the password must not resemble, such as the
// student number.
func (v *PasswordValidator) Check(password string, attributes ...string) error {
	var problems []Problem

	if len([]rune(password)) < v.MinLength {
		problems = append(problems, ProblemTooShort)
	}
	if isNumeric(password) {
		problems = append(problems, ProblemNumeric)
	}
	if v.CheckCommon {
		if _, ok := commonPasswords()[strings.ToLower(password)]; ok {
			problems = append(problems, ProblemCommon)
		}
	}
	if v.MaxSimilarity > 0 && v.resemblesAny(password, attributes) {
		problems = append(problems, ProblemSimilar)
	}

	if len(problems) == 0 {
		return nil
	}
	return &PasswordValidationError{Problems: problems}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func (v *PasswordValidator) resemblesAny(password string, attributes []string) bool {
	password = strings.ToLower(password)
	for _, attr := range attributes {
		attr = strings.ToLower(strings.TrimSpace(attr))
		if attr == "" {
			continue
		}
		if strings.Contains(password, attr) || strings.Contains(attr, password) {
			return true
		}
		if similarity(password, attr) > v.MaxSimilarity {
			return true
		}
	}
	return false
}

// similarity is the longest common subsequence of a and b relative to the
// longer of the two.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else {
				cur[j] = max(prev[j], cur[j-1])
			}
		}
		prev, cur = cur, prev
	}
	return float64(prev[len(b)]) / float64(max(len(a), len(b)))
}

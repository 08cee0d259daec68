// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"net/mail"
	"strings"

	"codeberg.org/psuyearbook/yearbook-api/internal/apperr"
)

// Mask hides the local part of an address except its first and last
// character, e.g. juan.dc@gmail.com becomes j*****c@gmail.com.
func Mask(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return address
	}
	local, domain := address[:at], address[at:]

	runes := []rune(local)
	if len(runes) <= 2 {
		return string(runes[0]) + "***" + domain
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1]) + domain
}

// Normalize validates a bare email address and returns it trimmed and in
// lower case. Display names are rejected.
func Normalize(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", apperr.Invalid("email is required")
	}

	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address || parsed.Name != "" {
		return "", apperr.Invalid("invalid email address")
	}

	at := strings.LastIndex(address, "@")
	if !strings.Contains(address[at+1:], ".") {
		return "", apperr.Invalid("invalid email address")
	}
	return strings.ToLower(address), nil
}

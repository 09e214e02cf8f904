// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Username Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Username is a normalized login name.
type Username string

// Login names are short ASCII identifiers, always stored lowercase.
var usernameRegex = regexp.MustCompile(`^[a-z][a-z0-9_.-]{1,31}$`)

// IsValid reports whether the username matches the login format.
func (u Username) IsValid() bool {
	return usernameRegex.MatchString(string(u))
}

// String returns the string representation.
func (u Username) String() string {
	return string(u)
}

// NewUsername trims, lowercases and validates a login name.
func NewUsername(raw string) (Username, error) {
	u := Username(strings.ToLower(strings.TrimSpace(raw)))
	if !u.IsValid() {
		return "", NewDomainError("shared", "NewUsername", ErrInvalidFormat, "invalid username format")
	}
	return u, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// SessionToken Value Object
// ═══════════════════════════════════════════════════════════════════════════

// SessionToken is an opaque session identifier in UUID format.
type SessionToken string

var sessionTokenRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid reports whether the token is a well-formed UUID. Malformed
// tokens can be rejected without touching the session table.
func (t SessionToken) IsValid() bool {
	return sessionTokenRegex.MatchString(string(t))
}

// String returns the string representation.
func (t SessionToken) String() string {
	return string(t)
}

// Package domain contains core business types and interfaces.
//
// This file defines the User type. Users are owned by the identity provider
// (Supabase); this service only references them by ID.
package domain

import (
	"strings"

	"github.com/google/uuid"
)

// User is an authenticated identity taken from a verified access token.
type User struct {
	ID    uuid.UUID
	Email string
	Role  string
}

// DisplayName returns the local part of the user's email.
func (u *User) DisplayName() string {
	if i := strings.Index(u.Email, "@"); i > 0 {
		return u.Email[:i]
	}
	return u.Email
}

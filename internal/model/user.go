// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User is the identity record: one row per person who has ever signed in.
//
// Email is the natural key used to match a Google account to an existing
// User. Username is derived from the email local part at creation time and
// never changes afterwards.
type User struct {
	ID        string    `json:"id"         db:"id"`
	Username  string    `json:"username"   db:"username"`
	Email     string    `json:"email"      db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name"  db:"last_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FullName joins first and last name the way the UI shows it.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Role is the platform role of a Person.
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleProfessor
}

// Person is the platform profile attached 1:1 to a User.
//
// WHY A SEPARATE ROW?
// The identity record only knows what Google told us. Everything the
// platform decides about the user (role, institution) lives here, so a
// sign-in can refresh the identity fields without touching authorization
// state by accident.
//
// InstitutionID is nil for people whose email domain matches no known
// institution and who never redeemed a professor token.
type Person struct {
	UserID        string    `json:"user_id"`
	InstitutionID *string   `json:"institution_id"`
	Role          Role      `json:"role"`
	GoogleID      string    `json:"google_id"`
	AvatarURL     string    `json:"avatar_url"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsProfessor reports whether the person currently holds the professor role.
func (p *Person) IsProfessor() bool {
	return p != nil && p.Role == RoleProfessor
}

// SameInstitution reports whether the person belongs to institutionID.
// A person without an institution never matches.
func (p *Person) SameInstitution(institutionID string) bool {
	return p != nil && p.InstitutionID != nil && *p.InstitutionID == institutionID
}

// Session is the server side of a sign-in credential. There is at most one
// per user; signing in again reuses it, signing out deletes it.
type Session struct {
	Key       string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

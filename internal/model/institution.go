package model

import (
	"strings"
	"time"
)

// Institution is a school or university. Names are unique.
type Institution struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// InstitutionDomain maps an email domain (e.g. "unicamp.br") to the
// institution whose members sign in with it. Domain names are unique.
type InstitutionDomain struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	InstitutionID string `json:"institution_id"`
}

// EmailDomain returns the part of an address after the last "@", or ""
// when there is none. Matching against InstitutionDomain.Name is exact,
// so no case folding happens here.
func EmailDomain(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 || i == len(email)-1 {
		return ""
	}
	return email[i+1:]
}

// EmailLocalPart returns the part of an address before the last "@".
func EmailLocalPart(email string) string {
	i := strings.LastIndex(email, "@")
	if i < 0 {
		return email
	}
	return email[:i]
}

package model

import "time"

// Default lifetimes applied when a token is issued without an explicit one.
const (
	ProfessorTokenLifetime = 7 * 24 * time.Hour
	ViewerTokenLifetime    = 30 * 24 * time.Hour
)

// ProfessorInviteToken grants the professor role and membership of
// InstitutionID to whoever redeems it before ExpiresAt. A token may be
// redeemed by many people; RedeemedBy records who did.
//
// Tokens are never deleted. Expiry is checked lazily at redemption time.
type ProfessorInviteToken struct {
	ID            string    `json:"id"`
	Token         string    `json:"token"`
	InstitutionID string    `json:"institution_id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	RedeemedBy    []string  `json:"redeemed_by,omitempty"`
}

// IsValid reports whether the token can still be redeemed at now.
// The comparison is strict: a token is already invalid at ExpiresAt.
func (t *ProfessorInviteToken) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// QuestViewerInviteToken adds the redeemer to the viewers of QuestID.
type QuestViewerInviteToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	QuestID   string    `json:"quest_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid has the same semantics as ProfessorInviteToken.IsValid.
func (t *QuestViewerInviteToken) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

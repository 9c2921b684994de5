package model

import (
	"fmt"
	"time"
)

// Quest is an assignable collection of cases owned by a professor.
//
// When VisibleToInstitution is set, every person of InstitutionID can view
// the quest. Other access comes from explicit membership (QuestMember).
type Quest struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	InstitutionID        string    `json:"institution"`
	OwnerID              string    `json:"owner"`
	VisibleToInstitution bool      `json:"visible_to_institution"`
	CreatedAt            time.Time `json:"created_at"`
}

// QuestSummary is a Quest with the institution and owner names resolved,
// as returned by the visible-quests listing.
type QuestSummary struct {
	Quest
	InstitutionName string `json:"institution_name"`
	OwnerName       string `json:"owner_name"`
}

// AccessKind distinguishes the two membership groups of a quest.
type AccessKind string

const (
	AccessViewer AccessKind = "viewer"
	AccessAuthor AccessKind = "author"
)

// Valid reports whether k is a known access kind.
func (k AccessKind) Valid() bool {
	return k == AccessViewer || k == AccessAuthor
}

// QuestMember is one row of the membership relation, keyed by
// (QuestID, Kind, PersonID).
type QuestMember struct {
	QuestID  string     `json:"quest_id"`
	Kind     AccessKind `json:"kind"`
	PersonID string     `json:"person_id"`
	AddedAt  time.Time  `json:"added_at"`
}

// Membership is the set of groups one person belongs to for one quest.
type Membership struct {
	Viewer bool
	Author bool
}

// GroupName returns the display name of a quest's access group,
// "viewers_<id>" or "authors_<id>".
func GroupName(questID string, kind AccessKind) string {
	return fmt.Sprintf("%ss_%s", kind, questID)
}

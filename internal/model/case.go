package model

import "time"

// Complexity is the academic level a case is written for.
type Complexity string

const (
	ComplexityUndergraduate Complexity = "undergraduate"
	ComplexityGraduate      Complexity = "graduate"
	ComplexityPostgraduate  Complexity = "postgraduate"
)

// Valid reports whether c is one of the known levels.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityUndergraduate, ComplexityGraduate, ComplexityPostgraduate:
		return true
	}
	return false
}

// Case is a clinical or exam-style problem. Cases are owned by the
// professor who wrote them and are grouped into quests through QuestCase.
type Case struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Content         string     `json:"content"`
	Answer          string     `json:"answer"`
	PossibleAnswers []string   `json:"possible_answers"`
	OwnerID         string     `json:"owner"`
	Complexity      Complexity `json:"complexity"`
	Specialty       *string    `json:"specialty"`
	ImageRef        *string    `json:"image"`
	CreatedAt       time.Time  `json:"created_at"`
}

// QuestCase associates a case with a quest. The pair is unique.
type QuestCase struct {
	QuestID string    `json:"quest_id"`
	CaseID  string    `json:"case_id"`
	AddedAt time.Time `json:"added_at"`
}

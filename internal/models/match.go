package models

import "github.com/google/uuid"

// Outcome describes who won and who lost a match. A draw carries neither
// field. A decisive outcome carries both; validation elsewhere ensures they
// are a distinct permutation of the match participants.
type Outcome struct {
	Winner string `json:"winner,omitempty"`
	Loser  string `json:"loser,omitempty"`
}

// IsDraw reports whether the outcome is a draw (no winner and no loser).
func (o Outcome) IsDraw() bool {
	return o.Winner == "" && o.Loser == ""
}

// MatchRecord is one entry in the append-only match log. Records are
// immutable once written.
type MatchRecord struct {
	ID           string   `json:"id"`
	Date         string   `json:"date"`
	Participants []string `json:"participants"`
	Outcome      Outcome  `json:"outcome"`
}

// NewMatchID generates a fresh match identifier.
func NewMatchID() string {
	return uuid.NewString()
}

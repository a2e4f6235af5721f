package progress

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/scoring"
)

// RoundKind selects which of a unit's round lists a round belongs to.
type RoundKind string

const (
	Vocabulary RoundKind = "vocabulary"
	Grammar    RoundKind = "grammar"
)

// ParseRoundKind parses "vocabulary" or "grammar".
func ParseRoundKind(s string) (RoundKind, error) {
	switch RoundKind(s) {
	case Vocabulary, Grammar:
		return RoundKind(s), nil
	}
	return "", fmt.Errorf("unknown round kind %q", s)
}

// Answer is a learner's submission for one item of an attempt.
type Answer struct {
	ItemID    string `json:"item_id"`
	Submitted string `json:"submitted"`
	Correct   bool   `json:"correct"`
}

// Attempt is one scored pass through a round. Attempts are never modified
// once recorded.
type Attempt struct {
	ID        string    `json:"id"`
	Answers   []Answer  `json:"answers"`
	Correct   int       `json:"correct"`
	Score     float64   `json:"score"`
	GradedBy  string    `json:"graded_by,omitempty"` // manual grades only
	CreatedAt time.Time `json:"created_at"`
}

// NewAttempt builds an attempt from a scoring outcome.
func NewAttempt(out scoring.Outcome, now time.Time) Attempt {
	answers := make([]Answer, 0, len(out.Results))
	for _, r := range out.Results {
		answers = append(answers, Answer{ItemID: r.ItemID, Submitted: r.Submitted, Correct: r.Correct})
	}
	return Attempt{
		ID:        uuid.NewString(),
		Answers:   answers,
		Correct:   out.Correct,
		Score:     out.Score,
		CreatedAt: now,
	}
}

// RoundProgress is a student's standing on one round.
type RoundProgress struct {
	RoundID        string    `json:"round_id"`
	Completed      bool      `json:"completed"`
	Score          float64   `json:"score"`           // best score over all attempts
	CorrectAnswers int       `json:"correct_answers"` // of the latest attempt
	TotalItems     int       `json:"total_items"`
	Attempts       []Attempt `json:"attempts"`
}

func newRoundProgress(id string, totalItems int) *RoundProgress {
	return &RoundProgress{
		RoundID:    id,
		TotalItems: totalItems,
		Attempts:   []Attempt{},
	}
}

// record appends an attempt. The best score never decreases.
func (rp *RoundProgress) record(a Attempt) {
	rp.Attempts = append(rp.Attempts, a)
	if a.Score > rp.Score {
		rp.Score = a.Score
	}
	rp.Completed = true
	rp.CorrectAnswers = a.Correct
	rp.TotalItems = len(a.Answers)
}

// Clone returns a deep copy.
func (rp *RoundProgress) Clone() *RoundProgress {
	if rp == nil {
		return nil
	}
	c := *rp
	c.Attempts = make([]Attempt, len(rp.Attempts))
	for i, a := range rp.Attempts {
		a.Answers = append([]Answer(nil), a.Answers...)
		c.Attempts[i] = a
	}
	return &c
}

// UnitProgress is a student's standing on one unit. Completion is derived
// from the rounds and the test slot and is recomputed on every change.
type UnitProgress struct {
	UnitID     string                    `json:"unit_id"`
	Vocabulary map[string]*RoundProgress `json:"vocabulary"`
	Grammar    map[string]*RoundProgress `json:"grammar"`
	Test       *RoundProgress            `json:"test,omitempty"`
	Completion float64                   `json:"completion"`

	// Retired keeps rounds that were removed from the catalog after the
	// student attempted them. They no longer count toward completion.
	Retired []*RoundProgress `json:"retired,omitempty"`
}

// newUnitProgress returns the zero-state record for a unit: every round
// present with score 0 and no attempts.
func newUnitProgress(u curriculum.Unit) *UnitProgress {
	up := &UnitProgress{
		UnitID:     u.ID,
		Vocabulary: make(map[string]*RoundProgress, len(u.VocabularyRounds)),
		Grammar:    make(map[string]*RoundProgress, len(u.GrammarRounds)),
	}
	for _, r := range u.VocabularyRounds {
		up.Vocabulary[r.ID] = newRoundProgress(r.ID, len(r.Words))
	}
	for _, r := range u.GrammarRounds {
		up.Grammar[r.ID] = newRoundProgress(r.ID, len(r.Questions))
	}
	return up
}

// unretire removes and returns the retired round with id, or nil.
func (up *UnitProgress) unretire(id string) *RoundProgress {
	for i, rp := range up.Retired {
		if rp != nil && rp.RoundID == id {
			up.Retired = append(up.Retired[:i], up.Retired[i+1:]...)
			if len(up.Retired) == 0 {
				up.Retired = nil
			}
			return rp
		}
	}
	return nil
}

// Round returns the round progress of the given kind.
func (up *UnitProgress) Round(kind RoundKind, id string) (*RoundProgress, bool) {
	var rp *RoundProgress
	switch kind {
	case Vocabulary:
		rp = up.Vocabulary[id]
	case Grammar:
		rp = up.Grammar[id]
	}
	return rp, rp != nil
}

// Clone returns a deep copy.
func (up *UnitProgress) Clone() *UnitProgress {
	c := &UnitProgress{
		UnitID:     up.UnitID,
		Vocabulary: make(map[string]*RoundProgress, len(up.Vocabulary)),
		Grammar:    make(map[string]*RoundProgress, len(up.Grammar)),
		Test:       up.Test.Clone(),
		Completion: up.Completion,
	}
	for id, rp := range up.Vocabulary {
		c.Vocabulary[id] = rp.Clone()
	}
	for id, rp := range up.Grammar {
		c.Grammar[id] = rp.Clone()
	}
	for _, rp := range up.Retired {
		c.Retired = append(c.Retired, rp.Clone())
	}
	return c
}

// Summary is a student's progress across the whole catalog.
type Summary struct {
	StudentID         string  `json:"student_id"`
	TotalUnits        int     `json:"total_units"`
	CompletedUnits    int     `json:"completed_units"`
	AverageCompletion float64 `json:"average_completion"`
}

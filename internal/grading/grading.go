// Package grading is the teacher-facing entry point for offline unit test
// scores. It rejects malformed input before the progress store is touched.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/progress"
)

// ScoreSetter stores a manual test score.
type ScoreSetter interface {
	SetManualTestScore(ctx context.Context, studentID, unitID string, score float64, gradedBy string) (*progress.UnitProgress, error)
}

// Input is a teacher's grade as typed into the grading form.
type Input struct {
	StudentID string `json:"student_id" validate:"required,notblank"`
	UnitID    string `json:"unit_id" validate:"required,notblank"`
	Score     string `json:"score" validate:"required,score"`
	TeacherID string `json:"teacher_id" validate:"required,notblank"`
}

// Grader validates and records manual test scores.
type Grader struct {
	store      ScoreSetter
	validate   *validator.Validate
	translator ut.Translator
}

// NewGrader creates a grader writing to store.
func NewGrader(store ScoreSetter) *Grader {
	validate, translator := newValidator()
	return &Grader{
		store:      store,
		validate:   validate,
		translator: translator,
	}
}

// Validate checks the input without writing anything. The returned error is a
// *ValidationError when the input is rejected.
func (g *Grader) Validate(in Input) error {
	err := g.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating grade: %w", err)
	}
	flds := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, FieldError{Field: fe.Field(), Error: fe.Translate(g.translator)})
	}
	return newValidationError(flds...)
}

// Submit validates in and stores the score as the unit's test result.
func (g *Grader) Submit(ctx context.Context, in Input) (*progress.UnitProgress, error) {
	if err := g.Validate(in); err != nil {
		slog.Info("manual grade rejected",
			"student_id", in.StudentID,
			"unit_id", in.UnitID,
			"teacher_id", in.TeacherID,
			"error", err,
		)
		return nil, err
	}

	score, _ := ParseScore(in.Score)
	up, err := g.store.SetManualTestScore(ctx, in.StudentID, in.UnitID, score, in.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("saving test score: %w", err)
	}

	slog.Info("manual grade saved",
		"student_id", in.StudentID,
		"unit_id", in.UnitID,
		"teacher_id", in.TeacherID,
		"score", score,
		"completion", up.Completion,
	)
	return up, nil
}

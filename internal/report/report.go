// Package report rolls student progress up into per-student and whole-class
// summaries. It never writes progress itself.
package report

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/progress"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/roster"
)

const defaultConcurrency = 8

// ProgressReader is the read side of the progress store.
type ProgressReader interface {
	StudentUnits(ctx context.Context, studentID string) ([]*progress.UnitProgress, error)
}

// Students lists the class.
type Students interface {
	Students() []roster.Person
}

// Units lists the course in order.
type Units interface {
	Units() []curriculum.Unit
}

// Config holds Reporter dependencies.
type Config struct {
	Progress    ProgressReader
	Students    Students
	Units       Units
	Concurrency int              // default 8
	Now         func() time.Time // default time.Now
}

// Reporter builds progress summaries.
type Reporter struct {
	progress    ProgressReader
	students    Students
	units       Units
	concurrency int
	now         func() time.Time
}

// StudentRow is one student's line of a class report. Units holds the unit
// completions in the report's unit order.
type StudentRow struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Summary progress.Summary `json:"summary"`
	Units   []float64        `json:"units"`
}

// UnitColumn is a unit with its class-wide average completion.
type UnitColumn struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Average float64 `json:"average"`
}

// ClassReport is the whole class at a point in time.
type ClassReport struct {
	GeneratedAt       time.Time    `json:"generated_at"`
	Units             []UnitColumn `json:"units"`
	Students          []StudentRow `json:"students"`
	AverageCompletion float64      `json:"average_completion"`
}

// New creates a reporter.
func New(cfg Config) *Reporter {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Reporter{
		progress:    cfg.Progress,
		students:    cfg.Students,
		units:       cfg.Units,
		concurrency: concurrency,
		now:         now,
	}
}

// Student summarizes one student over the full catalog.
func (r *Reporter) Student(ctx context.Context, studentID string) (progress.Summary, error) {
	ups, err := r.progress.StudentUnits(ctx, studentID)
	if err != nil {
		return progress.Summary{}, err
	}
	return progress.Summarize(studentID, ups, len(r.units.Units())), nil
}

// Class summarizes every student on the roster. Students are read
// concurrently; the first failure cancels the rest.
func (r *Reporter) Class(ctx context.Context) (*ClassReport, error) {
	units := r.units.Units()
	students := r.students.Students()
	rows := make([]StudentRow, len(students))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, st := range students {
		g.Go(func() error {
			ups, err := r.progress.StudentUnits(gctx, st.ID)
			if err != nil {
				return fmt.Errorf("student %q: %w", st.ID, err)
			}
			rows[i] = newRow(st, ups, units)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &ClassReport{
		GeneratedAt: r.now().UTC(),
		Units:       make([]UnitColumn, len(units)),
		Students:    rows,
	}
	for j, u := range units {
		col := UnitColumn{ID: u.ID, Title: u.Title}
		if len(rows) > 0 {
			var sum float64
			for _, row := range rows {
				sum += row.Units[j]
			}
			col.Average = sum / float64(len(rows))
		}
		rep.Units[j] = col
	}
	if len(rows) > 0 {
		var sum float64
		for _, row := range rows {
			sum += row.Summary.AverageCompletion
		}
		rep.AverageCompletion = sum / float64(len(rows))
	}
	return rep, nil
}

func newRow(st roster.Person, ups []*progress.UnitProgress, units []curriculum.Unit) StudentRow {
	byID := make(map[string]*progress.UnitProgress, len(ups))
	for _, up := range ups {
		byID[up.UnitID] = up
	}

	row := StudentRow{
		ID:      st.ID,
		Name:    st.Name,
		Summary: progress.Summarize(st.ID, ups, len(units)),
		Units:   make([]float64, len(units)),
	}
	for j, u := range units {
		row.Units[j] = progress.UnitCompletion(byID[u.ID])
	}
	return row
}

// Package progress tracks each student's round attempts, unit completion and
// manually graded unit tests, and persists them as a single blob.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
)

var (
	// ErrNotFound is wrapped by errors for students, units and rounds the
	// roster or catalog does not know.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAttempt is returned for attempts that do not fit their round.
	ErrInvalidAttempt = errors.New("invalid attempt")
)

// Catalog is the course content the store is shaped by.
type Catalog interface {
	Unit(id string) (curriculum.Unit, bool)
	Units() []curriculum.Unit
}

// Roster is the set of students the store tracks.
type Roster interface {
	HasStudent(id string) bool
	StudentIDs() []string
}

// StoreConfig holds dependencies for the progress store.
type StoreConfig struct {
	Catalog   Catalog
	Roster    Roster
	Storage   Storage
	Events    EventLogger      // default NopEventLogger
	Key       string           // default DefaultKey
	Reconcile ReconcileMode    // default ReconcileMerge
	Now       func() time.Time // default time.Now
}

// Store is the process-wide progress state. All methods are safe for
// concurrent use. Every mutation persists the whole store before returning,
// and a change becomes visible to readers only once it has been persisted.
type Store struct {
	catalog Catalog
	roster  Roster
	storage Storage
	events  EventLogger
	key     string
	mode    ReconcileMode
	now     func() time.Time

	// writeMu serializes mutations from prepare through persist to commit.
	// mu guards students against readers during commit.
	writeMu  sync.Mutex
	mu       sync.RWMutex
	students Students

	resets atomic.Int64
}

// NewStore creates a store. Call Load before serving requests.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Catalog == nil || cfg.Roster == nil || cfg.Storage == nil {
		return nil, fmt.Errorf("catalog, roster and storage are required")
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	mode := cfg.Reconcile
	if mode == "" {
		mode = ReconcileMerge
	}
	if mode != ReconcileMerge && mode != ReconcileReset {
		return nil, fmt.Errorf("unknown reconcile mode %q", mode)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Store{
		catalog:  cfg.Catalog,
		roster:   cfg.Roster,
		storage:  cfg.Storage,
		events:   events,
		key:      key,
		mode:     mode,
		now:      now,
		students: Students{},
	}, nil
}

// Load reads the persisted store and reconciles it with the roster and
// catalog. A missing blob starts a fresh store. An unreadable blob, or a
// shape mismatch under ReconcileReset, is discarded and reinitialized; both
// are logged and emitted as store_reset events.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	studentIDs := s.roster.StudentIDs()
	units := s.catalog.Units()

	data, err := s.storage.Get(ctx, s.key)
	if err != nil && !errors.Is(err, ErrBlobNotFound) {
		return fmt.Errorf("loading progress: %w", err)
	}

	var event Event
	students := newStudents(studentIDs, units)

	switch {
	case errors.Is(err, ErrBlobNotFound):
		event = Event{EventType: EventStoreInitialized, Data: map[string]any{
			"students": len(studentIDs),
			"units":    len(units),
		}}
		slog.Info("progress store initialized", "students", len(studentIDs), "units", len(units))

	default:
		loaded, version, decodeErr := Decode(data)
		if decodeErr != nil {
			backup, err := s.backup(ctx, "unreadable", data)
			if err != nil {
				return err
			}
			event = s.resetEvent("unreadable", backup, decodeErr, nil)
			break
		}

		stats := reconcile(loaded, studentIDs, units)
		if s.mode == ReconcileReset && stats.ShapeMismatch() {
			backup, err := s.backup(ctx, "shape_mismatch", data)
			if err != nil {
				return err
			}
			event = s.resetEvent("shape_mismatch", backup, nil, &stats)
			break
		}

		students = loaded
		event = Event{EventType: EventStoreReconciled, Data: map[string]any{
			"schema_version":  version,
			"added_students":  stats.AddedStudents,
			"added_units":     stats.AddedUnits,
			"added_rounds":    stats.AddedRounds,
			"retired_rounds":  stats.RetiredRounds,
			"restored_rounds": stats.RestoredRounds,
			"orphan_students": stats.OrphanStudents,
			"orphan_units":    stats.OrphanUnits,
		}}
		if stats.Changed() {
			slog.Warn("progress store reconciled",
				"schema_version", version,
				"added_students", stats.AddedStudents,
				"added_units", stats.AddedUnits,
				"added_rounds", stats.AddedRounds,
				"retired_rounds", stats.RetiredRounds,
				"restored_rounds", stats.RestoredRounds,
				"orphan_students", stats.OrphanStudents,
				"orphan_units", stats.OrphanUnits,
			)
		} else {
			slog.Info("progress store loaded", "schema_version", version, "students", len(loaded))
		}
	}

	if err := s.persist(ctx, students); err != nil {
		return err
	}

	s.mu.Lock()
	s.students = students
	s.mu.Unlock()

	s.emit(event)
	return nil
}

// backup copies a blob that is about to be discarded to "<key>.<reason>" so
// it can be recovered by hand.
func (s *Store) backup(ctx context.Context, reason string, data []byte) (string, error) {
	key := s.key + "." + reason
	if err := s.storage.Set(ctx, key, data); err != nil {
		return "", fmt.Errorf("backing up discarded progress to %s: %w", key, err)
	}
	return key, nil
}

func (s *Store) resetEvent(reason, backupKey string, cause error, stats *ReconcileStats) Event {
	s.resets.Add(1)

	data := map[string]any{"reason": reason, "backup_key": backupKey}
	attrs := []any{"reason", reason, "backup_key", backupKey}
	if cause != nil {
		data["error"] = cause.Error()
		attrs = append(attrs, "error", cause)
	}
	if stats != nil {
		data["added_students"] = stats.AddedStudents
		data["added_units"] = stats.AddedUnits
		data["orphan_students"] = stats.OrphanStudents
		data["orphan_units"] = stats.OrphanUnits
	}

	slog.Warn("progress store reset, previous progress discarded", attrs...)
	return Event{EventType: EventStoreReset, Data: data}
}

// Resets returns how many times Load discarded persisted progress.
func (s *Store) Resets() int64 {
	return s.resets.Load()
}

// UnitProgress returns a copy of a student's progress on a unit. A missing
// record is materialized at zero and persisted first.
func (s *Store) UnitProgress(ctx context.Context, studentID, unitID string) (*UnitProgress, error) {
	unit, err := s.lookup(studentID, unitID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	up, ok := s.students[studentID][unitID]
	if ok {
		c := up.Clone()
		s.mu.RUnlock()
		return c, nil
	}
	s.mu.RUnlock()

	ups, err := s.materialize(ctx, studentID, []curriculum.Unit{unit})
	if err != nil {
		return nil, err
	}
	return ups[0], nil
}

// StudentUnits returns copies of a student's progress on every catalog unit,
// in catalog order, materializing missing records.
func (s *Store) StudentUnits(ctx context.Context, studentID string) ([]*UnitProgress, error) {
	if !s.roster.HasStudent(studentID) {
		return nil, fmt.Errorf("student %q: %w", studentID, ErrNotFound)
	}
	return s.materialize(ctx, studentID, s.catalog.Units())
}

// SummarizeStudent rolls a student's units up over the full catalog.
func (s *Store) SummarizeStudent(ctx context.Context, studentID string) (Summary, error) {
	ups, err := s.StudentUnits(ctx, studentID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(studentID, ups, len(ups)), nil
}

// RecordAttempt appends a scored attempt to a round. The round's best score
// becomes max(best, attempt score); the attempt history is cumulative.
func (s *Store) RecordAttempt(ctx context.Context, studentID, unitID string, kind RoundKind, roundID string, a Attempt) (*UnitProgress, error) {
	unit, err := s.lookup(studentID, unitID)
	if err != nil {
		return nil, err
	}

	var items int
	switch kind {
	case Vocabulary:
		r, ok := unit.VocabularyRound(roundID)
		if !ok {
			return nil, fmt.Errorf("vocabulary round %q in unit %q: %w", roundID, unitID, ErrNotFound)
		}
		items = len(r.Words)
	case Grammar:
		r, ok := unit.GrammarRound(roundID)
		if !ok {
			return nil, fmt.Errorf("grammar round %q in unit %q: %w", roundID, unitID, ErrNotFound)
		}
		items = len(r.Questions)
	default:
		return nil, fmt.Errorf("round kind %q: %w", kind, ErrInvalidAttempt)
	}

	if len(a.Answers) != items {
		return nil, fmt.Errorf("%w: %d answers for %d items", ErrInvalidAttempt, len(a.Answers), items)
	}
	if math.IsNaN(a.Score) || a.Score < 0 || a.Score > 100 {
		return nil, fmt.Errorf("%w: score %v outside [0, 100]", ErrInvalidAttempt, a.Score)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.Answers = append([]Answer(nil), a.Answers...)

	up, err := s.mutate(ctx, studentID, unit, func(up *UnitProgress) {
		rp, ok := up.Round(kind, roundID)
		if !ok {
			rp = newRoundProgress(roundID, items)
			if kind == Vocabulary {
				up.Vocabulary[roundID] = rp
			} else {
				up.Grammar[roundID] = rp
			}
		}
		rp.record(a)
	})
	if err != nil {
		return nil, err
	}

	rp, _ := up.Round(kind, roundID)
	s.emit(Event{
		StudentID: studentID,
		UnitID:    unitID,
		EventType: EventAttemptRecorded,
		Data: map[string]any{
			"kind":       string(kind),
			"round_id":   roundID,
			"attempt_id": a.ID,
			"score":      a.Score,
			"best_score": rp.Score,
			"completion": up.Completion,
		},
	})
	return up, nil
}

// SetManualTestScore stores a teacher-entered unit test score, clamped to
// [0, 100]. Unlike practice rounds the test slot keeps no history: it is
// replaced by a single-attempt record holding the teacher of record's latest
// grade.
func (s *Store) SetManualTestScore(ctx context.Context, studentID, unitID string, score float64, gradedBy string) (*UnitProgress, error) {
	unit, err := s.lookup(studentID, unitID)
	if err != nil {
		return nil, err
	}

	score = ClampScore(score)
	a := Attempt{
		ID:        uuid.NewString(),
		Answers:   []Answer{},
		Score:     score,
		GradedBy:  gradedBy,
		CreatedAt: s.now(),
	}

	up, err := s.mutate(ctx, studentID, unit, func(up *UnitProgress) {
		up.Test = &RoundProgress{
			RoundID:   curriculum.TestRoundID(unitID),
			Completed: true,
			Score:     score,
			Attempts:  []Attempt{a},
		}
	})
	if err != nil {
		return nil, err
	}

	s.emit(Event{
		StudentID: studentID,
		UnitID:    unitID,
		EventType: EventTestScoreSet,
		Data: map[string]any{
			"score":      score,
			"graded_by":  gradedBy,
			"completion": up.Completion,
		},
	})
	return up, nil
}

// Snapshot returns a deep copy of every record, including records of students
// or units no longer on the roster or in the catalog.
func (s *Store) Snapshot() Students {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(Students, len(s.students))
	for sid, units := range s.students {
		m := make(map[string]*UnitProgress, len(units))
		for uid, up := range units {
			m[uid] = up.Clone()
		}
		out[sid] = m
	}
	return out
}

func (s *Store) lookup(studentID, unitID string) (curriculum.Unit, error) {
	if !s.roster.HasStudent(studentID) {
		return curriculum.Unit{}, fmt.Errorf("student %q: %w", studentID, ErrNotFound)
	}
	unit, ok := s.catalog.Unit(unitID)
	if !ok {
		return curriculum.Unit{}, fmt.Errorf("unit %q: %w", unitID, ErrNotFound)
	}
	return unit, nil
}

// mutate runs fn on a copy of the student's unit record, recomputes
// completion, persists the store with the copy in place and only then swaps
// it in. A failed write leaves the store unchanged.
func (s *Store) mutate(ctx context.Context, studentID string, unit curriculum.Unit, fn func(*UnitProgress)) (*UnitProgress, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	cur, ok := s.students[studentID][unit.ID]
	s.mu.RUnlock()

	var up *UnitProgress
	if ok {
		up = cur.Clone()
	} else {
		up = newUnitProgress(unit)
	}
	fn(up)
	up.Completion = UnitCompletion(up)

	changed := map[string]*UnitProgress{unit.ID: up}
	if err := s.persist(ctx, s.overlay(studentID, changed)); err != nil {
		return nil, err
	}
	s.commit(studentID, changed)
	return up.Clone(), nil
}

// materialize returns copies of the student's records for units, creating
// and persisting any that are missing.
func (s *Store) materialize(ctx context.Context, studentID string, units []curriculum.Unit) ([]*UnitProgress, error) {
	out, missing := s.copyUnits(studentID, units)
	if len(missing) == 0 {
		return out, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Another writer may have created some of them meanwhile.
	out, missing = s.copyUnits(studentID, units)
	if len(missing) == 0 {
		return out, nil
	}

	created := make(map[string]*UnitProgress, len(missing))
	for _, i := range missing {
		up := newUnitProgress(units[i])
		created[up.UnitID] = up
		out[i] = up.Clone()
	}
	if err := s.persist(ctx, s.overlay(studentID, created)); err != nil {
		return nil, err
	}
	s.commit(studentID, created)

	for _, i := range missing {
		s.emit(Event{StudentID: studentID, UnitID: units[i].ID, EventType: EventUnitMaterialized})
	}
	return out, nil
}

// copyUnits clones the student's existing records for units and returns the
// indexes of units without a record.
func (s *Store) copyUnits(studentID string, units []curriculum.Unit) ([]*UnitProgress, []int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*UnitProgress, len(units))
	var missing []int
	for i, u := range units {
		up, ok := s.students[studentID][u.ID]
		if !ok {
			missing = append(missing, i)
			continue
		}
		out[i] = up.Clone()
	}
	return out, missing
}

// overlay returns a shallow view of the store with the student's records in
// changed replacing the current ones. Callers hold writeMu, so the view stays
// valid until commit.
func (s *Store) overlay(studentID string, changed map[string]*UnitProgress) Students {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := make(Students, len(s.students)+1)
	for sid, units := range s.students {
		view[sid] = units
	}
	units := make(map[string]*UnitProgress, len(s.students[studentID])+len(changed))
	for uid, up := range s.students[studentID] {
		units[uid] = up
	}
	for uid, up := range changed {
		units[uid] = up
	}
	view[studentID] = units
	return view
}

// commit swaps persisted records into the live store. Records are replaced,
// never modified in place, so clones taken by readers stay consistent.
func (s *Store) commit(studentID string, changed map[string]*UnitProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	units, ok := s.students[studentID]
	if !ok {
		units = make(map[string]*UnitProgress, len(changed))
		s.students[studentID] = units
	}
	for uid, up := range changed {
		units[uid] = up
	}
}

// persist encodes students and writes them under the store key.
func (s *Store) persist(ctx context.Context, students Students) error {
	data, err := Encode(students, s.now())
	if err != nil {
		return fmt.Errorf("encoding progress: %w", err)
	}
	if err := s.storage.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}

func (s *Store) emit(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	if err := s.events.LogEvent(event); err != nil {
		slog.Warn("failed to log progress event", "type", event.EventType, "error", err)
	}
}

package progress_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/progress"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/roster"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testUnits() []curriculum.Unit {
	return []curriculum.Unit{
		{
			ID:    "unit-1",
			Title: "Family",
			Order: 1,
			VocabularyRounds: []curriculum.VocabularyRound{
				{ID: "family", Words: []curriculum.Word{
					{ID: "w1", Word: "mother", Translation: "мама"},
					{ID: "w2", Word: "father", Translation: "папа"},
				}},
				{ID: "home", Words: []curriculum.Word{
					{ID: "w1", Word: "house", Translation: "дом"},
					{ID: "w2", Word: "kitchen", Translation: "кухня"},
				}},
			},
			GrammarRounds: []curriculum.GrammarRound{
				{ID: "to-be", Questions: []curriculum.Question{
					{ID: "q1", Type: curriculum.MultipleChoice, Prompt: "She ___ my sister.", Answer: "is", Choices: []string{"am", "is", "are"}},
					{ID: "q2", Type: curriculum.FillInBlank, Prompt: "They ___ at home.", Answer: "are"},
				}},
			},
		},
		{
			ID:    "unit-2",
			Title: "Rooms",
			Order: 2,
			VocabularyRounds: []curriculum.VocabularyRound{
				{ID: "rooms", Words: []curriculum.Word{
					{ID: "w1", Word: "bedroom", Translation: "спальня"},
				}},
			},
		},
	}
}

func testCatalog(t *testing.T, units ...curriculum.Unit) *curriculum.Loader {
	t.Helper()
	if len(units) == 0 {
		units = testUnits()
	}
	c, err := curriculum.NewStatic(units...)
	if err != nil {
		t.Fatalf("NewStatic() error = %v", err)
	}
	return c
}

func testRoster(t *testing.T, ids ...string) *roster.Roster {
	t.Helper()
	if len(ids) == 0 {
		ids = []string{"anna", "boris"}
	}
	students := make([]roster.Person, 0, len(ids))
	for _, id := range ids {
		students = append(students, roster.Person{ID: id, Name: id})
	}
	r, err := roster.New(students, []roster.Person{{ID: "teacher-1", Name: "Teacher"}})
	if err != nil {
		t.Fatalf("roster.New() error = %v", err)
	}
	return r
}

type storeOpts struct {
	units    []curriculum.Unit
	students []string
	storage  progress.Storage
	events   progress.EventLogger
	mode     progress.ReconcileMode
}

func newTestStore(t *testing.T, o storeOpts) *progress.Store {
	t.Helper()
	if o.storage == nil {
		o.storage = progress.NewMemoryStorage()
	}
	s, err := progress.NewStore(progress.StoreConfig{
		Catalog:   testCatalog(t, o.units...),
		Roster:    testRoster(t, o.students...),
		Storage:   o.storage,
		Events:    o.events,
		Reconcile: o.mode,
		Now:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := s.Load(t.Context()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

// attempt builds an attempt with n answers and the given score.
func attempt(n int, score float64) progress.Attempt {
	answers := make([]progress.Answer, n)
	for i := range answers {
		answers[i] = progress.Answer{ItemID: fmt.Sprintf("w%d", i+1)}
	}
	return progress.Attempt{Answers: answers, Score: score}
}

var errStorageDown = errors.New("storage down")

// flakyStorage fails the next failSets writes and then behaves like its
// underlying memory medium.
type flakyStorage struct {
	*progress.MemoryStorage
	failSets atomic.Int32
}

func newFlakyStorage() *flakyStorage {
	return &flakyStorage{MemoryStorage: progress.NewMemoryStorage()}
}

func (f *flakyStorage) Set(ctx context.Context, key string, data []byte) error {
	if f.failSets.Add(-1) >= 0 {
		return errStorageDown
	}
	f.failSets.Store(0)
	return f.MemoryStorage.Set(ctx, key, data)
}

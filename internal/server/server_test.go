package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/grading"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/progress"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/report"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/roster"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/server"
)

var fixedNow = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)

type env struct {
	srv     *server.Server
	store   *progress.Store
	storage *progress.MemoryStorage
	hub     *server.Hub
}

type downChecker struct{}

func (downChecker) HealthCheck(context.Context) error { return errors.New("down") }

func newEnv(t *testing.T, checks ...server.HealthChecker) env {
	t.Helper()

	catalog, err := curriculum.NewStatic(curriculum.Unit{
		ID:    "unit-1",
		Title: "Family",
		VocabularyRounds: []curriculum.VocabularyRound{
			{ID: "family", Words: []curriculum.Word{
				{ID: "w1", Word: "mother", Translation: "мама"},
				{ID: "w2", Word: "father", Translation: "папа"},
			}},
		},
		GrammarRounds: []curriculum.GrammarRound{
			{ID: "to-be", Questions: []curriculum.Question{
				{ID: "q1", Type: curriculum.MultipleChoice, Prompt: "Paris ___ in France.", Answer: "is", Choices: []string{"is", "are"}},
				{ID: "q2", Type: curriculum.FillInBlank, Prompt: "The capital of France is ___.", Answer: "Paris"},
			}},
		},
	})
	if err != nil {
		t.Fatalf("NewStatic() error = %v", err)
	}
	students, err := roster.New(
		[]roster.Person{{ID: "anna", Name: "Anna"}},
		[]roster.Person{{ID: "teacher-1", Name: "Teacher"}},
	)
	if err != nil {
		t.Fatalf("roster.New() error = %v", err)
	}

	hub := server.NewHub()
	storage := progress.NewMemoryStorage()
	store, err := progress.NewStore(progress.StoreConfig{
		Catalog: catalog,
		Roster:  students,
		Storage: storage,
		Events:  hub,
		Now:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.Load(t.Context()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	srv := server.New(server.Config{
		Progress: store,
		Catalog:  catalog,
		Grader:   grading.NewGrader(store),
		Reporter: report.New(report.Config{Progress: store, Students: students, Units: catalog}),
		Hub:      hub,
		Checks:   checks,
		Now:      func() time.Time { return fixedNow },
	})
	return env{srv: srv, store: store, storage: storage, hub: hub}
}

func (e env) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "healthz returns 200",
			path:       "/healthz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "readyz returns 200",
			path:       "/readyz",
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, tt.path, "")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}
}

func TestReadyz_Unavailable(t *testing.T) {
	e := newEnv(t, downChecker{})

	rec := e.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestUnitProgress(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"known", "/v1/students/anna/units/unit-1", http.StatusOK},
		{"unknown student", "/v1/students/ghost/units/unit-1", http.StatusNotFound},
		{"unknown unit", "/v1/students/anna/units/unit-9", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	up := decode[progress.UnitProgress](t, e.do(t, http.MethodGet, "/v1/students/anna/units/unit-1", ""))
	if len(up.Vocabulary) != 1 || len(up.Grammar) != 1 || up.Completion != 0 {
		t.Errorf("unit progress = %+v, want zero state with both rounds", up)
	}
}

func TestRecordAttempt(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/students/anna/units/unit-1/grammar/to-be/attempts",
		`{"answers": {"q1": "is", "q2": " paris. "}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	type response struct {
		Results []struct {
			ItemID  string `json:"item_id"`
			Correct bool   `json:"correct"`
		} `json:"results"`
		Correct    int                    `json:"correct"`
		Score      float64                `json:"score"`
		Round      progress.RoundProgress `json:"round"`
		Completion float64                `json:"completion"`
	}
	got := decode[response](t, rec)

	if got.Score != 100 || got.Correct != 2 {
		t.Errorf("score = %v, correct = %d, want 100, 2", got.Score, got.Correct)
	}
	if len(got.Results) != 2 || got.Results[0].ItemID != "q1" || !got.Results[1].Correct {
		t.Errorf("results = %+v", got.Results)
	}
	if got.Round.Score != 100 || len(got.Round.Attempts) != 1 {
		t.Errorf("round = %+v", got.Round)
	}
	if got.Completion != 50 {
		t.Errorf("completion = %v, want 50", got.Completion)
	}
}

func TestRecordAttempt_Errors(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"unknown kind", "/v1/students/anna/units/unit-1/listening/family/attempts", `{"answers":{}}`, http.StatusNotFound},
		{"unknown round", "/v1/students/anna/units/unit-1/vocabulary/to-be/attempts", `{"answers":{}}`, http.StatusNotFound},
		{"unknown student", "/v1/students/ghost/units/unit-1/vocabulary/family/attempts", `{"answers":{}}`, http.StatusNotFound},
		{"malformed body", "/v1/students/anna/units/unit-1/vocabulary/family/attempts", `{"answers":`, http.StatusBadRequest},
		{"unknown field", "/v1/students/anna/units/unit-1/vocabulary/family/attempts", `{"answer":{}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestRecordAttempt_EmptySubmissionScoresZero(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/v1/students/anna/units/unit-1/vocabulary/family/attempts", `{"answers":{}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Score float64 `json:"score"`
	}](t, rec)
	if got.Score != 0 {
		t.Errorf("score = %v, want 0", got.Score)
	}
}

func TestSetTestScore(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		user       string
		wantStatus int
		wantField  string
	}{
		{"string score", `{"score":"85"}`, "teacher-1", http.StatusOK, ""},
		{"numeric score", `{"score":72.5}`, "teacher-1", http.StatusOK, ""},
		{"out of range", `{"score":"150"}`, "teacher-1", http.StatusUnprocessableEntity, "score"},
		{"not a number", `{"score":"abc"}`, "teacher-1", http.StatusUnprocessableEntity, "score"},
		{"missing score", `{}`, "teacher-1", http.StatusUnprocessableEntity, "score"},
		{"missing teacher", `{"score":"85"}`, "", http.StatusUnprocessableEntity, "teacher_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			rec := e.do(t, http.MethodPut, "/v1/students/anna/units/unit-1/test", tt.body, server.UserHeader, tt.user)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantField == "" {
				return
			}
			body := decode[struct {
				Fields map[string]string `json:"fields"`
			}](t, rec)
			if body.Fields[tt.wantField] == "" {
				t.Errorf("fields = %v, want a message for %s", body.Fields, tt.wantField)
			}

			up, err := e.store.UnitProgress(t.Context(), "anna", "unit-1")
			if err != nil {
				t.Fatalf("UnitProgress() error = %v", err)
			}
			if up.Test != nil {
				t.Errorf("rejected grade was stored: %+v", up.Test)
			}
		})
	}
}

func TestSetTestScore_UnknownStudent(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPut, "/v1/students/ghost/units/unit-1/test", `{"score":"85"}`, server.UserHeader, "teacher-1")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestSummaries(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPut, "/v1/students/anna/units/unit-1/test", `{"score":"90"}`, server.UserHeader, "teacher-1")

	rec := e.do(t, http.MethodGet, "/v1/students/anna/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	sum := decode[progress.Summary](t, rec)
	// (0 + 0 + 90) / 3 over the single unit
	if sum.TotalUnits != 1 || sum.AverageCompletion != 30 {
		t.Errorf("summary = %+v, want 1 unit at 30", sum)
	}

	rec = e.do(t, http.MethodGet, "/v1/class/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	class := decode[report.ClassReport](t, rec)
	if len(class.Students) != 1 || class.AverageCompletion != 30 {
		t.Errorf("class = %+v", class)
	}

	if rec := e.do(t, http.MethodGet, "/v1/students/ghost/summary", ""); rec.Code != http.StatusNotFound {
		t.Errorf("ghost summary status = %d, want 404", rec.Code)
	}
}

func TestClassWorkbook(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/v1/class/report.xlsx", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	// xlsx files are zip archives.
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("body is not a zip archive")
	}
}

func TestTestSheet(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantItems  int
	}{
		{"whole pool", "/v1/units/unit-1/test-sheet", http.StatusOK, 4},
		{"limited", "/v1/units/unit-1/test-sheet?count=3", http.StatusOK, 3},
		{"bad count", "/v1/units/unit-1/test-sheet?count=x", http.StatusUnprocessableEntity, 0},
		{"unknown unit", "/v1/units/unit-9/test-sheet", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			sheet := decode[struct {
				Items []curriculum.Item `json:"items"`
			}](t, rec)
			if len(sheet.Items) != tt.wantItems {
				t.Errorf("items = %d, want %d", len(sheet.Items), tt.wantItems)
			}
		})
	}
}

type failingProgress struct{}

func (failingProgress) UnitProgress(context.Context, string, string) (*progress.UnitProgress, error) {
	return nil, errors.New("disk on fire")
}

func (failingProgress) RecordAttempt(context.Context, string, string, progress.RoundKind, string, progress.Attempt) (*progress.UnitProgress, error) {
	return nil, errors.New("disk on fire")
}

func TestStorageFailureIsUnavailable(t *testing.T) {
	srv := server.New(server.Config{Progress: failingProgress{}})

	req := httptest.NewRequest(http.MethodGet, "/v1/students/anna/units/unit-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "progress unavailable") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

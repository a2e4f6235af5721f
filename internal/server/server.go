// Package server exposes progress tracking over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/grading"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/progress"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/report"
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/scoring"
)

// UserHeader carries the authenticated user's id. The session provider in
// front of this service sets it; it is trusted as-is.
const UserHeader = "X-User-ID"

const maxBodyBytes = 1 << 20

// Progress is the store surface the handlers use.
type Progress interface {
	UnitProgress(ctx context.Context, studentID, unitID string) (*progress.UnitProgress, error)
	RecordAttempt(ctx context.Context, studentID, unitID string, kind progress.RoundKind, roundID string, a progress.Attempt) (*progress.UnitProgress, error)
}

// Catalog looks up course content.
type Catalog interface {
	Unit(id string) (curriculum.Unit, bool)
	VocabularyRound(unitID, roundID string) (curriculum.VocabularyRound, bool)
	GrammarRound(unitID, roundID string) (curriculum.GrammarRound, bool)
}

// Grader records manual test scores.
type Grader interface {
	Submit(ctx context.Context, in grading.Input) (*progress.UnitProgress, error)
}

// Reporter builds summaries.
type Reporter interface {
	Student(ctx context.Context, studentID string) (progress.Summary, error)
	Class(ctx context.Context) (*report.ClassReport, error)
}

// HealthChecker is pinged by /readyz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds the server's dependencies.
type Config struct {
	Progress Progress
	Catalog  Catalog
	Grader   Grader
	Reporter Reporter
	Hub      *Hub            // optional; enables /v1/events
	Checks   []HealthChecker // optional
	Now      func() time.Time
}

// Server handles HTTP requests.
type Server struct {
	cfg Config
	mux *http.ServeMux
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)

	s.mux.HandleFunc("GET /v1/students/{student}/units/{unit}", s.handleUnitProgress)
	s.mux.HandleFunc("POST /v1/students/{student}/units/{unit}/{kind}/{round}/attempts", s.handleAttempt)
	s.mux.HandleFunc("PUT /v1/students/{student}/units/{unit}/test", s.handleTestScore)
	s.mux.HandleFunc("GET /v1/students/{student}/summary", s.handleStudentSummary)

	s.mux.HandleFunc("GET /v1/class/summary", s.handleClassSummary)
	s.mux.HandleFunc("GET /v1/class/report.xlsx", s.handleClassWorkbook)
	s.mux.HandleFunc("GET /v1/units/{unit}/test-sheet", s.handleTestSheet)

	if s.cfg.Hub != nil {
		s.mux.Handle("GET /v1/events", s.cfg.Hub)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range s.cfg.Checks {
		if err := c.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleUnitProgress(w http.ResponseWriter, r *http.Request) {
	up, err := s.cfg.Progress.UnitProgress(r.Context(), r.PathValue("student"), r.PathValue("unit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

type attemptRequest struct {
	Answers map[string]string `json:"answers"`
}

type attemptResponse struct {
	scoring.Outcome
	Round      *progress.RoundProgress `json:"round"`
	Completion float64                 `json:"completion"`
}

func (s *Server) handleAttempt(w http.ResponseWriter, r *http.Request) {
	studentID, unitID, roundID := r.PathValue("student"), r.PathValue("unit"), r.PathValue("round")

	kind, err := progress.ParseRoundKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", progress.ErrNotFound, err))
		return
	}

	var req attemptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	var out scoring.Outcome
	switch kind {
	case progress.Vocabulary:
		round, ok := s.cfg.Catalog.VocabularyRound(unitID, roundID)
		if !ok {
			writeError(w, r, fmt.Errorf("vocabulary round %q: %w", roundID, progress.ErrNotFound))
			return
		}
		out = scoring.ScoreVocabulary(round, req.Answers)
	case progress.Grammar:
		round, ok := s.cfg.Catalog.GrammarRound(unitID, roundID)
		if !ok {
			writeError(w, r, fmt.Errorf("grammar round %q: %w", roundID, progress.ErrNotFound))
			return
		}
		out = scoring.ScoreGrammar(round, req.Answers)
	}

	up, err := s.cfg.Progress.RecordAttempt(r.Context(), studentID, unitID, kind, roundID, progress.NewAttempt(out, s.cfg.Now()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	rp, _ := up.Round(kind, roundID)
	writeJSON(w, http.StatusOK, attemptResponse{Outcome: out, Round: rp, Completion: up.Completion})
}

type testScoreRequest struct {
	Score json.RawMessage `json:"score"`
}

func (s *Server) handleTestScore(w http.ResponseWriter, r *http.Request) {
	var req testScoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	up, err := s.cfg.Grader.Submit(r.Context(), grading.Input{
		StudentID: r.PathValue("student"),
		UnitID:    r.PathValue("unit"),
		Score:     scoreText(req.Score),
		TeacherID: r.Header.Get(UserHeader),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

// scoreText accepts the score as a JSON string or number.
func scoreText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func (s *Server) handleStudentSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.cfg.Reporter.Student(r.Context(), r.PathValue("student"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleClassSummary(w http.ResponseWriter, r *http.Request) {
	rep, err := s.cfg.Reporter.Class(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleClassWorkbook(w http.ResponseWriter, r *http.Request) {
	rep, err := s.cfg.Reporter.Class(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, rep); err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="class-report.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

type testSheet struct {
	UnitID string            `json:"unit_id"`
	Items  []curriculum.Item `json:"items"`
}

func (s *Server) handleTestSheet(w http.ResponseWriter, r *http.Request) {
	unit, ok := s.cfg.Catalog.Unit(r.PathValue("unit"))
	if !ok {
		writeError(w, r, fmt.Errorf("unit %q: %w", r.PathValue("unit"), progress.ErrNotFound))
		return
	}

	count := 0
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "count must be a non-negative integer"})
			return
		}
		count = n
	}

	writeJSON(w, http.StatusOK, testSheet{UnitID: unit.ID, Items: curriculum.SelectTestItems(unit, count, nil)})
}

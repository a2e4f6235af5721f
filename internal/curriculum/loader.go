// Package curriculum loads the EnglishFamily course catalog: units with their
// vocabulary and grammar rounds.
package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and caches course units from the filesystem.
type Loader struct {
	rootDir string
	units   map[string]Unit
	ordered []Unit
	mu      sync.RWMutex
}

// NewLoader creates a new catalog loader and loads all units under rootDir.
// rootDir must be a readable directory holding at least one valid unit.
func NewLoader(rootDir string) (*Loader, error) {
	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, fmt.Errorf("curriculum dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("curriculum path %s is not a directory", rootDir)
	}

	l := &Loader{
		rootDir: rootDir,
		units:   make(map[string]Unit),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}
	if len(l.units) == 0 {
		return nil, fmt.Errorf("no valid units found in %s", rootDir)
	}
	l.sortUnits()

	slog.Info("curriculum loaded", "units", len(l.units))
	return l, nil
}

// NewStatic builds a catalog from units already in memory.
func NewStatic(units ...Unit) (*Loader, error) {
	l := &Loader{units: make(map[string]Unit)}
	for _, u := range units {
		if err := validateUnit(u); err != nil {
			return nil, fmt.Errorf("unit %q: %w", u.ID, err)
		}
		if _, dup := l.units[u.ID]; dup {
			return nil, fmt.Errorf("duplicate unit id %q", u.ID)
		}
		l.units[u.ID] = u
	}
	l.sortUnits()
	return l, nil
}

// Unit returns a unit by ID.
func (l *Loader) Unit(id string) (Unit, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.units[id]
	return u, ok
}

// VocabularyRound returns a vocabulary round of a unit.
func (l *Loader) VocabularyRound(unitID, roundID string) (VocabularyRound, bool) {
	u, ok := l.Unit(unitID)
	if !ok {
		return VocabularyRound{}, false
	}
	return u.VocabularyRound(roundID)
}

// GrammarRound returns a grammar round of a unit.
func (l *Loader) GrammarRound(unitID, roundID string) (GrammarRound, bool) {
	u, ok := l.Unit(unitID)
	if !ok {
		return GrammarRound{}, false
	}
	return u.GrammarRound(roundID)
}

// Units returns all units in catalog order. The order is stable for the
// lifetime of the loader.
func (l *Loader) Units() []Unit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Unit(nil), l.ordered...)
}

func (l *Loader) sortUnits() {
	l.ordered = make([]Unit, 0, len(l.units))
	for _, u := range l.units {
		l.ordered = append(l.ordered, u)
	}
	sort.Slice(l.ordered, func(i, j int) bool {
		if l.ordered[i].Order != l.ordered[j].Order {
			return l.ordered[i].Order < l.ordered[j].Order
		}
		return l.ordered[i].ID < l.ordered[j].ID
	})
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadUnit(path)
		}
		return nil
	})
}

func (l *Loader) loadUnit(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var unit Unit
	if err := yaml.Unmarshal(data, &unit); err != nil {
		slog.Warn("skipping invalid unit YAML", "path", path, "error", err)
		return nil
	}

	if unit.ID == "" {
		return nil // Not a unit file
	}

	if err := validateUnit(unit); err != nil {
		slog.Warn("skipping malformed unit", "path", path, "unit_id", unit.ID, "error", err)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.units[unit.ID]; dup {
		slog.Warn("skipping duplicate unit", "path", path, "unit_id", unit.ID)
		return nil
	}
	l.units[unit.ID] = unit

	return nil
}

// validateUnit checks the invariants scoring relies on: unique round IDs,
// unique item IDs per round, known question types and multiple-choice answers
// that appear among their choices.
func validateUnit(u Unit) error {
	if u.ID == "" {
		return fmt.Errorf("unit id is empty")
	}

	rounds := make(map[string]bool)
	for _, r := range u.VocabularyRounds {
		if r.ID == "" || rounds[r.ID] {
			return fmt.Errorf("missing or duplicate round id %q", r.ID)
		}
		rounds[r.ID] = true

		items := make(map[string]bool)
		for _, w := range r.Words {
			if w.ID == "" || items[w.ID] {
				return fmt.Errorf("round %q: missing or duplicate word id %q", r.ID, w.ID)
			}
			items[w.ID] = true
		}
	}

	for _, r := range u.GrammarRounds {
		if r.ID == "" || rounds[r.ID] {
			return fmt.Errorf("missing or duplicate round id %q", r.ID)
		}
		rounds[r.ID] = true

		items := make(map[string]bool)
		for _, q := range r.Questions {
			if q.ID == "" || items[q.ID] {
				return fmt.Errorf("round %q: missing or duplicate question id %q", r.ID, q.ID)
			}
			items[q.ID] = true

			if !q.Type.Valid() {
				return fmt.Errorf("question %q: unknown type %q", q.ID, q.Type)
			}
			if q.Type == MultipleChoice && !contains(q.Choices, q.Answer) {
				return fmt.Errorf("question %q: answer %q is not one of the choices", q.ID, q.Answer)
			}
		}
	}

	if rounds[TestRoundID(u.ID)] {
		return fmt.Errorf("round id %q is reserved for the unit test", TestRoundID(u.ID))
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

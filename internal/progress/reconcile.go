package progress

import (
	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
)

// ReconcileMode selects how a loaded store is brought in line with the
// current roster and catalog.
type ReconcileMode string

const (
	// ReconcileMerge adds missing students, units and rounds at zero and keeps
	// everything already recorded.
	ReconcileMerge ReconcileMode = "merge"
	// ReconcileReset discards the loaded store when its students or units
	// differ from the roster and catalog, and starts from zero.
	ReconcileReset ReconcileMode = "reset"
)

// ReconcileStats counts what reconciliation changed.
type ReconcileStats struct {
	AddedStudents  int `json:"added_students"`
	AddedUnits     int `json:"added_units"`
	AddedRounds    int `json:"added_rounds"`
	RetiredRounds  int `json:"retired_rounds"`
	RestoredRounds int `json:"restored_rounds"` // retired rounds back in the catalog
	OrphanStudents int `json:"orphan_students"` // recorded but not on the roster
	OrphanUnits    int `json:"orphan_units"`    // recorded but not in the catalog
}

// ShapeMismatch reports whether the loaded student or unit sets differed from
// roster × catalog.
func (s ReconcileStats) ShapeMismatch() bool {
	return s.AddedStudents > 0 || s.AddedUnits > 0 || s.OrphanStudents > 0 || s.OrphanUnits > 0
}

// Changed reports whether reconciliation modified anything.
func (s ReconcileStats) Changed() bool {
	return s.ShapeMismatch() || s.AddedRounds > 0 || s.RetiredRounds > 0 || s.RestoredRounds > 0
}

// newStudents builds a zero-state store for every roster student and catalog unit.
func newStudents(studentIDs []string, units []curriculum.Unit) Students {
	students := make(Students, len(studentIDs))
	for _, sid := range studentIDs {
		m := make(map[string]*UnitProgress, len(units))
		for _, u := range units {
			m[u.ID] = newUnitProgress(u)
		}
		students[sid] = m
	}
	return students
}

// reconcile merges students against roster × catalog in place. Records that
// no longer match the roster or catalog are kept but counted.
func reconcile(students Students, studentIDs []string, units []curriculum.Unit) ReconcileStats {
	var stats ReconcileStats

	onRoster := make(map[string]bool, len(studentIDs))
	for _, sid := range studentIDs {
		onRoster[sid] = true
	}
	inCatalog := make(map[string]bool, len(units))
	for _, u := range units {
		inCatalog[u.ID] = true
	}

	for sid, recorded := range students {
		if !onRoster[sid] {
			stats.OrphanStudents++
			continue
		}
		for uid := range recorded {
			if !inCatalog[uid] {
				stats.OrphanUnits++
			}
		}
	}

	for _, sid := range studentIDs {
		recorded, known := students[sid]
		if !known {
			recorded = make(map[string]*UnitProgress, len(units))
			students[sid] = recorded
			stats.AddedStudents++
		}
		for _, u := range units {
			up, ok := recorded[u.ID]
			if !ok {
				recorded[u.ID] = newUnitProgress(u)
				// A new student's units are counted once, as the student.
				if known {
					stats.AddedUnits++
				}
				continue
			}
			rs := reconcileRounds(up, u)
			stats.AddedRounds += rs.AddedRounds
			stats.RetiredRounds += rs.RetiredRounds
			stats.RestoredRounds += rs.RestoredRounds
			up.Completion = UnitCompletion(up)
		}
	}

	return stats
}

// reconcileRounds adds catalog rounds missing from up, retires recorded
// rounds the catalog no longer has and restores retired rounds that are back.
// Item counts follow the catalog.
func reconcileRounds(up *UnitProgress, u curriculum.Unit) ReconcileStats {
	wantVocab := make(map[string]int, len(u.VocabularyRounds))
	for _, r := range u.VocabularyRounds {
		wantVocab[r.ID] = len(r.Words)
	}
	wantGrammar := make(map[string]int, len(u.GrammarRounds))
	for _, r := range u.GrammarRounds {
		wantGrammar[r.ID] = len(r.Questions)
	}

	var stats ReconcileStats
	retireRounds(up, up.Vocabulary, wantVocab, &stats)
	retireRounds(up, up.Grammar, wantGrammar, &stats)
	addRounds(up, up.Vocabulary, wantVocab, &stats)
	addRounds(up, up.Grammar, wantGrammar, &stats)
	return stats
}

func retireRounds(up *UnitProgress, have map[string]*RoundProgress, want map[string]int, stats *ReconcileStats) {
	for id, rp := range have {
		if _, ok := want[id]; ok {
			continue
		}
		delete(have, id)
		if len(rp.Attempts) > 0 {
			up.Retired = append(up.Retired, rp)
		}
		stats.RetiredRounds++
	}
}

func addRounds(up *UnitProgress, have map[string]*RoundProgress, want map[string]int, stats *ReconcileStats) {
	for id, total := range want {
		if rp, ok := have[id]; ok {
			rp.TotalItems = total
			continue
		}
		if rp := up.unretire(id); rp != nil {
			rp.TotalItems = total
			have[id] = rp
			stats.RestoredRounds++
			continue
		}
		have[id] = newRoundProgress(id, total)
		stats.AddedRounds++
	}
}

package progress

import (
	"maps"
	"math"
	"slices"
)

// CompleteThreshold is the unit completion at which a unit counts as done.
const CompleteThreshold = 100

// UnitCompletion is the unweighted mean of every vocabulary and grammar best
// score, plus the test score when a completed test is present. A unit without
// rounds or test scores 0.
func UnitCompletion(up *UnitProgress) float64 {
	if up == nil {
		return 0
	}

	var sum float64
	var n int
	// Sorted so repeated calls sum in the same order.
	for _, id := range slices.Sorted(maps.Keys(up.Vocabulary)) {
		sum += up.Vocabulary[id].Score
		n++
	}
	for _, id := range slices.Sorted(maps.Keys(up.Grammar)) {
		sum += up.Grammar[id].Score
		n++
	}
	if up.Test != nil && up.Test.Completed {
		sum += up.Test.Score
		n++
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Summarize rolls unit records up into a student summary. The average is
// taken over catalogSize, so units without a record count as 0. Completion
// is recomputed from each record rather than trusted.
func Summarize(studentID string, units []*UnitProgress, catalogSize int) Summary {
	s := Summary{
		StudentID:  studentID,
		TotalUnits: catalogSize,
	}
	if catalogSize <= 0 {
		return s
	}

	var sum float64
	for _, up := range units {
		c := UnitCompletion(up)
		sum += c
		if c >= CompleteThreshold {
			s.CompletedUnits++
		}
	}
	s.AverageCompletion = sum / float64(catalogSize)
	return s
}

// ClampScore limits a score to [0, 100]. NaN becomes 0.
func ClampScore(score float64) float64 {
	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(100, score))
}

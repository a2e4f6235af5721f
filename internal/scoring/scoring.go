// Package scoring checks a learner's answers to a practice round.
//
// Scoring is a pure computation: the same items and submissions always
// produce the same Outcome.
package scoring

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Vladislav15-maker/English-family-app-sub000/internal/curriculum"
)

// Result is the verdict for a single item.
type Result struct {
	ItemID    string `json:"item_id"`
	Submitted string `json:"submitted"`
	Correct   bool   `json:"correct"`
}

// Outcome is the scored pass through a round.
type Outcome struct {
	Results []Result `json:"results"`
	Correct int      `json:"correct"`
	Total   int      `json:"total"`
	Score   float64  `json:"score"`
}

// Score checks submitted answers (item ID -> raw text) against items.
// Results follow item order. Items without a submission count as misses.
func Score(items []curriculum.Item, submitted map[string]string) Outcome {
	out := Outcome{
		Results: make([]Result, 0, len(items)),
		Total:   len(items),
	}

	for _, it := range items {
		answer := submitted[it.ID()]
		ok := Check(it, answer)
		if ok {
			out.Correct++
		}
		out.Results = append(out.Results, Result{
			ItemID:    it.ID(),
			Submitted: answer,
			Correct:   ok,
		})
	}

	out.Score = Percentage(out.Correct, out.Total)
	return out
}

// ScoreVocabulary scores a vocabulary round.
func ScoreVocabulary(r curriculum.VocabularyRound, submitted map[string]string) Outcome {
	return Score(r.Items(), submitted)
}

// ScoreGrammar scores a grammar round.
func ScoreGrammar(r curriculum.GrammarRound, submitted map[string]string) Outcome {
	return Score(r.Items(), submitted)
}

// Check reports whether answer is correct for the item. Multiple-choice
// answers must equal the correct option exactly; everything else is compared
// after Normalize.
func Check(it curriculum.Item, answer string) bool {
	switch it.Kind {
	case curriculum.ItemWord:
		return matchNormalized(answer, it.Word.Word)
	case curriculum.ItemQuestion:
		if it.Question.Type == curriculum.MultipleChoice {
			return answer == it.Question.Answer
		}
		return matchNormalized(answer, it.Question.Answer)
	}
	return false
}

// Normalize trims surrounding whitespace, lowercases and strips one trailing
// period.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	// Casers are stateful; one per call.
	s = cases.Lower(language.Und).String(s)
	return strings.TrimSuffix(s, ".")
}

// Percentage returns correct/total as 0-100, or 0 when total is 0.
func Percentage(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

func matchNormalized(answer, want string) bool {
	got := Normalize(answer)
	if got == "" {
		return false
	}
	return got == Normalize(want)
}

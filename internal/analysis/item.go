// Package analysis derives psychometric statistics from submitted results.
// Nothing here is stored; every figure is recomputed from a result set.
package analysis

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const (
	LabelEasy   = "easy"
	LabelMedium = "medium"
	LabelHard   = "hard"

	LabelExcellent = "excellent"
	LabelGood      = "good"
	LabelFair      = "fair"
	LabelPoor      = "poor"

	LabelUndefined = "N/A"
)

// epsilon absorbs float error in differences like 3/5 - 1/5 at label cut-offs.
const epsilon = 1e-9

// Index is a statistic with its category label.
type Index struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// OptionTally counts how many respondents chose one option.
type OptionTally struct {
	Label   model.OptionLabel `json:"label"`
	Count   int               `json:"count"`
	Correct bool              `json:"correct"`
}

// ItemAnalysis is the derived statistics for one question.
type ItemAnalysis struct {
	QuestionID     uuid.UUID         `json:"question_id"`
	OrderNum       int               `json:"order_num"`
	Prompt         string            `json:"prompt"`
	CorrectOption  model.OptionLabel `json:"correct_option"`
	Tally          []OptionTally     `json:"tally"`
	Unanswered     int               `json:"unanswered"`
	CorrectCount   int               `json:"correct_count"`
	Respondents    int               `json:"respondents"`
	Difficulty     Index             `json:"difficulty"`
	Discrimination Index             `json:"discrimination"`
}

// Analyze computes per-question statistics over results. results must be
// in submission order; that order breaks score ties when the upper and
// lower groups are formed.
func Analyze(questions []model.Question, results []model.Result) []ItemAnalysis {
	n := len(results)
	upper, lower := splitGroups(results)

	items := make([]ItemAnalysis, 0, len(questions))
	for _, q := range questions {
		item := ItemAnalysis{
			QuestionID:    q.ID,
			OrderNum:      q.OrderNum,
			Prompt:        q.Prompt,
			CorrectOption: q.CorrectOption,
			Respondents:   n,
		}

		counts := make(map[model.OptionLabel]int, len(q.Options))
		for i := range results {
			sel, ok := results[i].SelectedFor(q.ID)
			if !ok || !q.HasOption(sel) {
				item.Unanswered++
				continue
			}
			counts[sel]++
			if sel == q.CorrectOption {
				item.CorrectCount++
			}
		}
		for _, l := range q.OptionLabels() {
			item.Tally = append(item.Tally, OptionTally{Label: l, Count: counts[l], Correct: l == q.CorrectOption})
		}

		if n == 0 {
			item.Difficulty = Index{Label: LabelUndefined}
		} else {
			p := float64(item.CorrectCount) / float64(n)
			item.Difficulty = Index{Value: p, Label: DifficultyLabel(p)}
		}

		if len(upper) == 0 || len(lower) == 0 {
			item.Discrimination = Index{Label: LabelUndefined}
		} else {
			d := correctRate(q, upper) - correctRate(q, lower)
			item.Discrimination = Index{Value: d, Label: DiscriminationLabel(d)}
		}

		items = append(items, item)
	}
	return items
}

// DifficultyLabel categorizes a difficulty index P.
func DifficultyLabel(p float64) string {
	switch {
	case p >= 0.7-epsilon:
		return LabelEasy
	case p >= 0.3-epsilon:
		return LabelMedium
	default:
		return LabelHard
	}
}

// DiscriminationLabel categorizes a discrimination index D.
func DiscriminationLabel(d float64) string {
	switch {
	case d >= 0.4-epsilon:
		return LabelExcellent
	case d >= 0.3-epsilon:
		return LabelGood
	case d >= 0.2-epsilon:
		return LabelFair
	default:
		return LabelPoor
	}
}

// splitGroups ranks results by score, highest first, keeping input order
// among equal scores, and returns the top ceil(n/2) and the rest.
func splitGroups(results []model.Result) (upper, lower []model.Result) {
	ranked := Rank(results)
	cut := int(math.Ceil(float64(len(ranked)) / 2))
	return ranked[:cut], ranked[cut:]
}

// Rank returns a copy of results ordered by score descending. Equal scores
// keep their input order.
func Rank(results []model.Result) []model.Result {
	ranked := make([]model.Result, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func correctRate(q model.Question, group []model.Result) float64 {
	correct := 0
	for i := range group {
		if sel, ok := group[i].SelectedFor(q.ID); ok && sel == q.CorrectOption {
			correct++
		}
	}
	return float64(correct) / float64(len(group))
}

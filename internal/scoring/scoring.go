// Package scoring grades a submission against canonical answer keys.
package scoring

import (
	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Outcome classifies a single answer.
type Outcome int

const (
	Unanswered Outcome = iota
	Correct
	Incorrect
)

// Classify grades one selection against q's correct label.
func Classify(q model.Question, selected *model.OptionLabel) Outcome {
	if selected == nil || *selected == "" {
		return Unanswered
	}
	if *selected == q.CorrectOption {
		return Correct
	}
	return Incorrect
}

// Score grades answers against questions. It is pure: the returned Result
// carries counts, the unrounded 0–100 score, and exactly one AnswerRecord
// per question in question order. Answers for unknown questions are
// ignored; a question with no matching answer counts as unanswered.
// Identity, user and timestamp fields are left for the caller.
func Score(questions []model.Question, answers []model.AnswerRecord) model.Result {
	byQuestion := make(map[uuid.UUID]*model.OptionLabel, len(answers))
	for _, a := range answers {
		if _, seen := byQuestion[a.QuestionID]; !seen {
			byQuestion[a.QuestionID] = a.Selected
		}
	}

	res := model.Result{Answers: make([]model.AnswerRecord, 0, len(questions))}
	for _, q := range questions {
		sel := byQuestion[q.ID]
		switch Classify(q, sel) {
		case Correct:
			res.Correct++
		case Incorrect:
			res.Incorrect++
		default:
			res.Unanswered++
			sel = nil
		}
		res.Answers = append(res.Answers, model.AnswerRecord{QuestionID: q.ID, Selected: cloneLabel(sel)})
	}

	res.Score = Percent(res.Correct, len(questions))
	return res
}

// Percent returns correct/total*100, or 0 when total is 0.
func Percent(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

// Validate rejects malformed answer payloads: unknown or repeated question
// ids, and labels that are not options of their question.
func Validate(questions []model.Question, answers []model.AnswerRecord) error {
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	seen := make(map[uuid.UUID]bool, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return apperror.Validation("scoring.validate", "unknown question %s", a.QuestionID)
		}
		if seen[a.QuestionID] {
			return apperror.Validation("scoring.validate", "duplicate answer for question %s", a.QuestionID)
		}
		seen[a.QuestionID] = true

		if !a.Answered() {
			continue
		}
		if !a.Selected.Valid() || !q.HasOption(*a.Selected) {
			return apperror.Validation("scoring.validate", "option %q is not valid for question %s", *a.Selected, a.QuestionID)
		}
	}
	return nil
}

// Equivalent reports whether two results agree on counts and score.
func Equivalent(a, b model.Result) bool {
	return a.Correct == b.Correct &&
		a.Incorrect == b.Incorrect &&
		a.Unanswered == b.Unanswered &&
		a.Score == b.Score
}

func cloneLabel(l *model.OptionLabel) *model.OptionLabel {
	if l == nil {
		return nil
	}
	v := *l
	return &v
}

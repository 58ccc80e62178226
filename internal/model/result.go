package model

import (
	"time"

	"github.com/google/uuid"
)

// AnswerRecord is one question's final answer. Selected is nil when unanswered.
type AnswerRecord struct {
	QuestionID uuid.UUID    `json:"question_id"`
	Selected   *OptionLabel `json:"selected"`
}

// Answered reports whether the record carries a selection.
func (a AnswerRecord) Answered() bool {
	return a.Selected != nil && *a.Selected != ""
}

// Result is an immutable scored submission.
type Result struct {
	ID          uuid.UUID      `json:"id"`
	UserID      int            `json:"user_id"`
	ExamID      uuid.UUID      `json:"exam_id"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Correct     int            `json:"correct"`
	Incorrect   int            `json:"incorrect"`
	Unanswered  int            `json:"unanswered"`
	Score       float64        `json:"score"`
	Answers     []AnswerRecord `json:"answers"`
}

// Total returns the number of questions the result covers.
func (r *Result) Total() int {
	return r.Correct + r.Incorrect + r.Unanswered
}

// SelectedFor returns the selection recorded for questionID, if any.
func (r *Result) SelectedFor(questionID uuid.UUID) (OptionLabel, bool) {
	for _, a := range r.Answers {
		if a.QuestionID == questionID {
			if a.Answered() {
				return *a.Selected, true
			}
			return "", false
		}
	}
	return "", false
}

// RankedResult is a result annotated with its position in the exam ranking.
type RankedResult struct {
	Rank int `json:"rank"`
	Result
}

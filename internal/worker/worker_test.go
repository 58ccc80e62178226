package worker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func labelPtr(l model.OptionLabel) *model.OptionLabel { return &l }
func boolPtr(b bool) *bool                            { return &b }

func TestCollapse(t *testing.T) {
	exam := uuid.New()
	q1, q2 := uuid.New(), uuid.New()

	batch := []model.AnswerJob{
		{UserID: 1, ExamID: exam, QuestionID: q1, Selected: labelPtr(model.OptionA)},
		{UserID: 1, ExamID: exam, QuestionID: q1, Flagged: boolPtr(true)},
		{UserID: 2, ExamID: exam, QuestionID: q1, Selected: labelPtr(model.OptionD)},
		{UserID: 1, ExamID: exam, QuestionID: q1, Selected: labelPtr(model.OptionC)},
		{UserID: 1, ExamID: exam, QuestionID: q2, Flagged: boolPtr(false)},
	}

	got := collapse(batch)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	first := got[0]
	if first.UserID != 1 || first.QuestionID != q1 {
		t.Fatalf("first row = %+v, want user 1 / q1 in arrival order", first)
	}
	if first.Selected == nil || *first.Selected != model.OptionC {
		t.Errorf("selected = %v, want latest C", first.Selected)
	}
	if first.Flagged == nil || !*first.Flagged {
		t.Errorf("flagged = %v, want true carried from earlier job", first.Flagged)
	}

	if got[1].UserID != 2 || *got[1].Selected != model.OptionD {
		t.Errorf("second row = %+v", got[1])
	}
	if got[2].Selected != nil || got[2].Flagged == nil || *got[2].Flagged {
		t.Errorf("flag-only row = %+v, want nil selection and explicit false", got[2])
	}
}

func TestCollapseKeepsEarliestSaveTime(t *testing.T) {
	exam, q := uuid.New(), uuid.New()
	before := time.Date(2025, 4, 14, 8, 0, 0, 0, time.UTC)
	after := before.Add(5 * time.Minute)

	got := collapse([]model.AnswerJob{
		{UserID: 1, ExamID: exam, QuestionID: q, Selected: labelPtr(model.OptionA), SavedAt: before},
		{UserID: 1, ExamID: exam, QuestionID: q, Flagged: boolPtr(true), SavedAt: after},
	})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if !got[0].SavedAt.Equal(before) {
		t.Errorf("SavedAt = %v, want %v", got[0].SavedAt, before)
	}

	got = collapse([]model.AnswerJob{
		{UserID: 1, ExamID: exam, QuestionID: q, Selected: labelPtr(model.OptionA), SavedAt: after},
		{UserID: 1, ExamID: exam, QuestionID: q, Selected: labelPtr(model.OptionB), SavedAt: before},
	})
	if !got[0].SavedAt.Equal(before) || *got[0].Selected != model.OptionB {
		t.Errorf("merged = %+v, want earliest time and latest selection", got[0])
	}
}

func TestAnswerColumns(t *testing.T) {
	sel, flag := answerColumns(model.AnswerJob{Selected: labelPtr(model.OptionB)})
	if sel == nil || *sel != "B" || flag != nil {
		t.Errorf("selection job = (%v, %v)", sel, flag)
	}

	sel, flag = answerColumns(model.AnswerJob{Flagged: boolPtr(true)})
	if sel != nil || flag == nil || !*flag {
		t.Errorf("flag job = (%v, %v)", sel, flag)
	}
}

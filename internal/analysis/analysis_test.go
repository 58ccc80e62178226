package analysis

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func label(l model.OptionLabel) *model.OptionLabel { return &l }

func fourOptionQuestion(key model.OptionLabel, order int) model.Question {
	return model.Question{
		ID: uuid.New(),
		Options: []model.Option{
			{Label: "A", Text: "a"}, {Label: "B", Text: "b"}, {Label: "C", Text: "c"}, {Label: "D", Text: "d"},
		},
		CorrectOption: key,
		OrderNum:      order,
	}
}

// result builds a result whose only answer is sel for q.
func result(user int, score float64, q model.Question, sel *model.OptionLabel) model.Result {
	return model.Result{
		ID:          uuid.New(),
		UserID:      user,
		Score:       score,
		SubmittedAt: time.Date(2025, 5, 1, 10, user, 0, 0, time.UTC),
		Answers:     []model.AnswerRecord{{QuestionID: q.ID, Selected: sel}},
	}
}

func TestAnalyzeDifficultyIsExactRatio(t *testing.T) {
	q := fourOptionQuestion("B", 1)
	var results []model.Result
	for i := range 7 {
		sel := label("A")
		if i < 3 {
			sel = label("B")
		}
		results = append(results, result(i, float64(100-i), q, sel))
	}

	got := Analyze([]model.Question{q}, results)[0]
	if got.Difficulty.Value != 3.0/7.0 {
		t.Errorf("P = %v, want %v", got.Difficulty.Value, 3.0/7.0)
	}
	if got.Difficulty.Label != LabelMedium {
		t.Errorf("P label = %s, want %s", got.Difficulty.Label, LabelMedium)
	}
	if got.CorrectCount != 3 || got.Respondents != 7 {
		t.Errorf("correct/respondents = %d/%d, want 3/7", got.CorrectCount, got.Respondents)
	}
}

func TestAnalyzeDiscriminationTenSplitFiveFive(t *testing.T) {
	q := fourOptionQuestion("C", 1)
	var results []model.Result
	// Upper five (scores 100..60): 4 correct. Lower five (50..10): 1 correct.
	upperCorrect := []bool{true, true, false, true, true}
	lowerCorrect := []bool{false, false, true, false, false}
	for i, ok := range append(upperCorrect, lowerCorrect...) {
		sel := label("A")
		if ok {
			sel = label("C")
		}
		results = append(results, result(i, float64(100-10*i), q, sel))
	}

	got := Analyze([]model.Question{q}, results)[0]
	want := 4.0/5.0 - 1.0/5.0
	if math.Abs(got.Discrimination.Value-want) > 1e-12 {
		t.Errorf("D = %v, want %v", got.Discrimination.Value, want)
	}
	if got.Discrimination.Label != LabelExcellent {
		t.Errorf("D label = %s, want %s", got.Discrimination.Label, LabelExcellent)
	}
}

func TestAnalyzeDiscriminationUsesScoreOrderNotInputOrder(t *testing.T) {
	q := fourOptionQuestion("A", 1)
	// Lowest scorers come first in submission order and answer correctly.
	results := []model.Result{
		result(1, 10, q, label("A")),
		result(2, 20, q, label("A")),
		result(3, 90, q, label("B")),
		result(4, 80, q, label("B")),
	}

	got := Analyze([]model.Question{q}, results)[0]
	if got.Discrimination.Value != -1 {
		t.Errorf("D = %v, want -1", got.Discrimination.Value)
	}
	if got.Discrimination.Label != LabelPoor {
		t.Errorf("D label = %s, want %s", got.Discrimination.Label, LabelPoor)
	}
}

func TestAnalyzeTiesKeepSubmissionOrder(t *testing.T) {
	q := fourOptionQuestion("A", 1)
	// All tied; first two submitted form the upper group.
	results := []model.Result{
		result(1, 50, q, label("A")),
		result(2, 50, q, label("A")),
		result(3, 50, q, label("B")),
		result(4, 50, q, nil),
	}

	for range 5 {
		got := Analyze([]model.Question{q}, results)[0]
		if got.Discrimination.Value != 1 {
			t.Fatalf("D = %v, want 1", got.Discrimination.Value)
		}
	}
}

func TestAnalyzeOddGroupSizes(t *testing.T) {
	q := fourOptionQuestion("A", 1)
	results := []model.Result{
		result(1, 90, q, label("A")),
		result(2, 80, q, label("A")),
		result(3, 70, q, label("B")),
		result(4, 60, q, label("A")),
		result(5, 50, q, label("B")),
	}

	// Upper = ceil(5/2) = 3 (2 correct), lower = 2 (1 correct).
	got := Analyze([]model.Question{q}, results)[0]
	want := 2.0/3.0 - 1.0/2.0
	if math.Abs(got.Discrimination.Value-want) > 1e-12 {
		t.Errorf("D = %v, want %v", got.Discrimination.Value, want)
	}
}

func TestAnalyzeUndefinedDiscrimination(t *testing.T) {
	q := fourOptionQuestion("A", 1)

	single := Analyze([]model.Question{q}, []model.Result{result(1, 100, q, label("A"))})[0]
	if single.Discrimination.Label != LabelUndefined || single.Discrimination.Value != 0 {
		t.Errorf("one result: D = %+v, want 0 N/A", single.Discrimination)
	}
	if single.Difficulty.Value != 1 || single.Difficulty.Label != LabelEasy {
		t.Errorf("one result: P = %+v, want 1 easy", single.Difficulty)
	}

	empty := Analyze([]model.Question{q}, nil)[0]
	if empty.Discrimination.Label != LabelUndefined || empty.Difficulty.Label != LabelUndefined {
		t.Errorf("no results: got %+v / %+v, want N/A labels", empty.Difficulty, empty.Discrimination)
	}
}

func TestAnalyzeTallySumsToRespondents(t *testing.T) {
	q := fourOptionQuestion("D", 1)
	other := fourOptionQuestion("A", 2)
	results := []model.Result{
		result(1, 90, q, label("A")),
		result(2, 80, q, label("D")),
		result(3, 70, q, label("D")),
		result(4, 60, q, nil),
		result(5, 50, q, label("E")), // not an option of q
		result(6, 40, other, label("A")),
	}

	got := Analyze([]model.Question{q}, results)[0]
	sum := got.Unanswered
	counts := map[model.OptionLabel]int{}
	for _, tl := range got.Tally {
		sum += tl.Count
		counts[tl.Label] = tl.Count
		if tl.Correct != (tl.Label == "D") {
			t.Errorf("tally %s marked correct=%v", tl.Label, tl.Correct)
		}
	}
	if sum != len(results) {
		t.Errorf("tally sum = %d, want %d", sum, len(results))
	}
	if counts["A"] != 1 || counts["D"] != 2 || got.Unanswered != 3 {
		t.Errorf("tally = %v unanswered=%d", counts, got.Unanswered)
	}
	if len(got.Tally) != 4 {
		t.Errorf("tally has %d options, want 4", len(got.Tally))
	}
}

func TestLabels(t *testing.T) {
	difficulty := []struct {
		p    float64
		want string
	}{
		{1, LabelEasy}, {0.7, LabelEasy}, {0.69, LabelMedium}, {0.3, LabelMedium}, {0.29, LabelHard}, {0, LabelHard},
	}
	for _, tc := range difficulty {
		if got := DifficultyLabel(tc.p); got != tc.want {
			t.Errorf("DifficultyLabel(%v) = %s, want %s", tc.p, got, tc.want)
		}
	}

	discrimination := []struct {
		d    float64
		want string
	}{
		{0.4, LabelExcellent}, {3.0/5.0 - 1.0/5.0, LabelExcellent}, {0.39, LabelGood}, {0.3, LabelGood},
		{0.2, LabelFair}, {0.19, LabelPoor}, {-0.5, LabelPoor},
	}
	for _, tc := range discrimination {
		if got := DiscriminationLabel(tc.d); got != tc.want {
			t.Errorf("DiscriminationLabel(%v) = %s, want %s", tc.d, got, tc.want)
		}
	}
}

func TestDistribution(t *testing.T) {
	scores := []float64{0, 0.5, 1, 10, 10.5, 11, 55, 90, 91, 100, 100, 120, -5}
	var results []model.Result
	for _, s := range scores {
		results = append(results, model.Result{Score: s})
	}

	bins := Distribution(results)
	if len(bins) != BinCount {
		t.Fatalf("len = %d, want %d", len(bins), BinCount)
	}

	want := []struct {
		label string
		count int
	}{
		{"1-10", 4}, {"11-20", 1}, {"21-30", 0}, {"31-40", 0}, {"41-50", 0},
		{"51-60", 1}, {"61-70", 0}, {"71-80", 0}, {"81-90", 1}, {"91-100", 4},
	}
	total := 0
	for i, w := range want {
		if bins[i].Label != w.label || bins[i].Count != w.count {
			t.Errorf("bin %d = %s:%d, want %s:%d", i, bins[i].Label, bins[i].Count, w.label, w.count)
		}
		total += bins[i].Count
	}
	if total != len(scores)-2 {
		t.Errorf("binned %d scores, want %d (zero and negative excluded)", total, len(scores)-2)
	}
}

func TestDistributionEmptyIsZeroFilled(t *testing.T) {
	bins := Distribution(nil)
	if len(bins) != BinCount {
		t.Fatalf("len = %d, want %d", len(bins), BinCount)
	}
	for _, b := range bins {
		if b.Count != 0 {
			t.Errorf("bin %s = %d, want 0", b.Label, b.Count)
		}
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize([]model.Result{{Score: 40}, {Score: 80}, {Score: 60}})
	want := Summary{Participants: 3, Mean: 60, Highest: 80, Lowest: 40}
	if got != want {
		t.Errorf("Summarize = %+v, want %+v", got, want)
	}
	if (Summarize(nil) != Summary{}) {
		t.Error("Summarize(nil) should be zero")
	}
}

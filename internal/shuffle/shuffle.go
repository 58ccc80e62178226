// Package shuffle randomizes question and option order for an exam attempt.
package shuffle

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// DisplayOption is an option as presented to the student. Label is
// positional (A, B, C, …); Original is the label the answer is stored under.
type DisplayOption struct {
	Label    model.OptionLabel `json:"label"`
	Text     string            `json:"text"`
	Original model.OptionLabel `json:"-"`
}

// Shuffler produces unbiased permutations using Fisher–Yates.
// It is safe for concurrent use.
type Shuffler struct {
	mu sync.Mutex
	r  *rand.Rand
}

// New returns a Shuffler seeded from the wall clock.
func New() *Shuffler {
	now := uint64(time.Now().UnixNano())
	return NewSeeded(now, now>>1|1)
}

// NewSeeded returns a Shuffler with a fixed PCG seed for reproducible runs.
func NewSeeded(seed1, seed2 uint64) *Shuffler {
	return &Shuffler{r: rand.New(rand.NewPCG(seed1, seed2))}
}

// Sequence returns a copy of questions, uniformly permuted when shuffle is true.
func (s *Shuffler) Sequence(questions []model.Question, shuffle bool) []model.Question {
	out := make([]model.Question, len(questions))
	copy(out, questions)
	if shuffle {
		s.permute(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

// OptionOrder returns the question's options in display order. Display
// labels are reassigned by position; Original keeps the canonical label.
func (s *Shuffler) OptionOrder(q model.Question, shuffle bool) []DisplayOption {
	labels := q.OptionLabels()
	if shuffle {
		s.permute(len(labels), func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })
	}
	return Display(q, labels)
}

// Display lays out q's options in the given original-label order.
// Labels not present on q and repeated labels are skipped.
func Display(q model.Question, order []model.OptionLabel) []DisplayOption {
	text := make(map[model.OptionLabel]string, len(q.Options))
	for _, o := range q.Options {
		text[o.Label] = o.Text
	}

	out := make([]DisplayOption, 0, len(q.Options))
	seen := make(map[model.OptionLabel]bool, len(order))
	for _, orig := range order {
		if len(out) == len(model.CanonicalLabels) {
			break
		}
		t, ok := text[orig]
		if !ok || seen[orig] {
			continue
		}
		seen[orig] = true
		out = append(out, DisplayOption{
			Label:    model.CanonicalLabels[len(out)],
			Text:     t,
			Original: orig,
		})
	}
	return out
}

// Originals extracts the original-label order from a display layout.
func Originals(opts []DisplayOption) []model.OptionLabel {
	out := make([]model.OptionLabel, len(opts))
	for i, o := range opts {
		out[i] = o.Original
	}
	return out
}

func (s *Shuffler) permute(n int, swap func(i, j int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r.Shuffle(n, swap)
}

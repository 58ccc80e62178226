package model

import (
	"github.com/google/uuid"
)

// OptionLabel is a canonical answer label, A through E.
type OptionLabel string

const (
	OptionA OptionLabel = "A"
	OptionB OptionLabel = "B"
	OptionC OptionLabel = "C"
	OptionD OptionLabel = "D"
	OptionE OptionLabel = "E"
)

// CanonicalLabels lists option labels in display order.
var CanonicalLabels = []OptionLabel{OptionA, OptionB, OptionC, OptionD, OptionE}

// Valid reports whether l is one of A–E.
func (l OptionLabel) Valid() bool {
	switch l {
	case OptionA, OptionB, OptionC, OptionD, OptionE:
		return true
	}
	return false
}

// Option is a single labeled answer choice.
type Option struct {
	Label OptionLabel `json:"label"`
	Text  string      `json:"text"`
}

// MediaKind enumerates supported attachment types.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// Media references an attachment shown with a question prompt.
type Media struct {
	Kind MediaKind `json:"kind"`
	URL  string    `json:"url"`
}

// Question is a multiple-choice item. It is immutable once fetched for a session.
type Question struct {
	ID            uuid.UUID   `json:"id"`
	ExamID        uuid.UUID   `json:"exam_id"`
	Prompt        string      `json:"prompt"`
	Options       []Option    `json:"options"`
	CorrectOption OptionLabel `json:"correct_option"`
	Media         []Media     `json:"media,omitempty"`
	OrderNum      int         `json:"order_num"`
}

// HasOption reports whether label is one of the question's own options.
func (q *Question) HasOption(label OptionLabel) bool {
	for _, o := range q.Options {
		if o.Label == label {
			return true
		}
	}
	return false
}

// OptionLabels returns the question's labels in canonical A–E order.
func (q *Question) OptionLabels() []OptionLabel {
	labels := make([]OptionLabel, 0, len(q.Options))
	for _, l := range CanonicalLabels {
		if q.HasOption(l) {
			labels = append(labels, l)
		}
	}
	return labels
}

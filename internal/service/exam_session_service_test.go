package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func TestBuildLobby(t *testing.T) {
	now := time.Date(2025, 4, 14, 8, 0, 0, 0, time.UTC)
	open := model.ExamConfig{ID: uuid.New(), Title: "Matematika", StartsAt: now.Add(-time.Hour), Active: true, AccessToken: "MTK001"}
	later := model.ExamConfig{ID: uuid.New(), Title: "Fisika", StartsAt: now.Add(time.Hour), Active: true, AccessToken: "FIS001"}
	done := model.ExamConfig{ID: uuid.New(), Title: "Biologi", StartsAt: now.Add(-2 * time.Hour), Active: true, AccessToken: "BIO001"}
	doneEarly := model.ExamConfig{ID: uuid.New(), Title: "Kimia", StartsAt: now.Add(time.Hour), Active: true, AccessToken: "KIM001"}

	scores := map[uuid.UUID]float64{done.ID: 80, doneEarly.ID: 60}
	lobby := buildLobby([]model.ExamConfig{open, later, done, doneEarly}, scores, now)

	tests := []struct {
		title  string
		status LobbyStatus
		score  *float64
	}{
		{"Matematika", LobbyStatusAvailable, nil},
		{"Fisika", LobbyStatusUpcoming, nil},
		{"Biologi", LobbyStatusCompleted, ptr(80.0)},
		{"Kimia", LobbyStatusCompleted, ptr(60.0)},
	}
	if len(lobby) != len(tests) {
		t.Fatalf("len = %d, want %d", len(lobby), len(tests))
	}
	for i, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got := lobby[i]
			if got.Title != tt.title || got.LobbyStatus != tt.status {
				t.Errorf("entry = %s/%s, want %s/%s", got.Title, got.LobbyStatus, tt.title, tt.status)
			}
			if got.AccessToken != "" {
				t.Errorf("access token leaked: %q", got.AccessToken)
			}
			switch {
			case tt.score == nil && got.FinalScore != nil:
				t.Errorf("final score = %v, want none", *got.FinalScore)
			case tt.score != nil && (got.FinalScore == nil || *got.FinalScore != *tt.score):
				t.Errorf("final score = %v, want %v", got.FinalScore, *tt.score)
			}
		})
	}
}

func TestBuildLobbyEmpty(t *testing.T) {
	lobby := buildLobby(nil, nil, time.Now())
	if lobby == nil || len(lobby) != 0 {
		t.Fatalf("lobby = %#v, want empty non-nil slice", lobby)
	}
}

func ptr[T any](v T) *T { return &v }

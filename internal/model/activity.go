package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType classifies a logged proctoring or session event.
type ActivityType string

const (
	ActivityVisibilityHidden ActivityType = "VISIBILITY_HIDDEN"
	ActivityFullscreenExit   ActivityType = "FULLSCREEN_EXIT"
	ActivityBrowserUnload    ActivityType = "BROWSER_UNLOAD"
	ActivityLogout           ActivityType = "LOGOUT"
)

// ActivityEvent is an append-only anomaly log entry.
type ActivityEvent struct {
	UserID    int          `json:"user_id"`
	ExamID    uuid.UUID    `json:"exam_id"`
	Type      ActivityType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
}

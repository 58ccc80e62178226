package model

// View names the screen a client was on when the snapshot was taken.
type View string

const (
	ViewLogin     View = "login"
	ViewDashboard View = "dashboard"
	ViewExam      View = "exam"
	ViewResult    View = "result"
)

// SnapshotUser is the identity portion of a session snapshot.
type SnapshotUser struct {
	ID   int    `json:"id" binding:"required"`
	Name string `json:"name" binding:"required,max=255"`
	Role string `json:"role" binding:"required,oneof=student admin teacher"`
}

// SessionSnapshot is the opaque client state restored across page reloads.
// Time fields travel as RFC 3339 strings and decode back into time.Time.
type SessionSnapshot struct {
	User        *SnapshotUser `json:"user" binding:"required"`
	CurrentView View          `json:"currentView" binding:"required,oneof=login dashboard exam result"`
	ActiveExam  *ExamConfig   `json:"activeExam"`
	ExamResult  *Result       `json:"examResult"`
}

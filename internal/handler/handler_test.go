package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"bad token", service.ErrInvalidToken, http.StatusNotFound, response.ErrInvalidExamToken},
		{"inactive", service.ErrExamInactive, http.StatusForbidden, response.ErrExamInactive},
		{"not started", service.ErrExamNotStarted, http.StatusForbidden, response.ErrExamNotStarted},
		{"completed", fmt.Errorf("open: %w", service.ErrAlreadyCompleted), http.StatusConflict, response.ErrAlreadyCompleted},
		{"not joined", service.ErrNoAttempt, http.StatusForbidden, response.ErrNotJoined},
		{"submit lock", service.ErrSubmissionPending, http.StatusConflict, response.ErrSubmissionPending},
		{"submit in flight", session.ErrSubmitInFlight, http.StatusConflict, response.ErrSubmissionPending},
		{"no questions beats not found", apperror.NotFound("fetch questions", session.ErrNoQuestions), http.StatusNotFound, response.ErrNoQuestions},
		{"confirmation", session.ErrConfirmationRequired, http.StatusConflict, response.ErrConfirmRequired},
		{"not active", session.ErrNotActive, http.StatusConflict, response.ErrSessionNotActive},
		{"closed", session.ErrClosed, http.StatusConflict, response.ErrSessionNotActive},
		{"validation", apperror.Validation("score", "unknown question %s", "x"), http.StatusUnprocessableEntity, response.ErrValidation},
		{"fullscreen", apperror.ProctoringSignal("start", errors.New("denied")), http.StatusConflict, response.ErrFullscreenRejected},
		{"not found", apperror.NotFound("get exam", errors.New("no rows")), http.StatusNotFound, response.ErrNotFound},
		{"network", apperror.Network("submit", errors.New("timeout")), http.StatusServiceUnavailable, response.ErrNetwork},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := classifyError(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("classifyError = (%d, %s), want (%d, %s)", status, code, tt.status, tt.code)
			}
		})
	}
}

func TestFailFromErrorWritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	failFromError(c, zerolog.Nop(), service.ErrExamNotStarted, "join")

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	var body response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != response.ErrExamNotStarted {
		t.Fatalf("error = %+v", body.Error)
	}
	if body.Error.Message != response.GetMessage(response.ErrExamNotStarted) {
		t.Errorf("message = %q", body.Error.Message)
	}
}

// Requests rejected before any service call need no service.
func TestHandlersRejectBadInput(t *testing.T) {
	withClaims := func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeStudent, UserID: 5})
	}

	portal := NewStudentPortalHandler(nil, zerolog.Nop())
	snapshots := NewSnapshotHandler(nil, zerolog.Nop())
	reports := NewReportHandler(nil, nil, zerolog.Nop())

	r := gin.New()
	r.GET("/lobby-anon", portal.GetLobby)
	r.GET("/state-anon/:exam_id", portal.GetExamState)
	r.GET("/state/:exam_id", withClaims, portal.GetExamState)
	r.DELETE("/snapshot", withClaims, snapshots.ClearSnapshot)
	r.GET("/reports/:id/results", reports.Results)
	r.GET("/reports/:id/activity", reports.Activity)
	r.DELETE("/reports/:id/participants/:user_id", reports.ResetParticipant)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"lobby without claims", http.MethodGet, "/lobby-anon", http.StatusUnauthorized},
		{"state without claims", http.MethodGet, "/state-anon/" + "00000000-0000-0000-0000-000000000001", http.StatusUnauthorized},
		{"state with bad exam id", http.MethodGet, "/state/not-a-uuid", http.StatusBadRequest},
		{"snapshot bad reason", http.MethodDelete, "/snapshot?reason=bored", http.StatusBadRequest},
		{"results bad exam id", http.MethodGet, "/reports/123/results", http.StatusBadRequest},
		{"results page zero", http.MethodGet, "/reports/00000000-0000-0000-0000-000000000001/results?page=0", http.StatusBadRequest},
		{"results per_page too large", http.MethodGet, "/reports/00000000-0000-0000-0000-000000000001/results?per_page=500", http.StatusBadRequest},
		{"activity limit too large", http.MethodGet, "/reports/00000000-0000-0000-0000-000000000001/activity?limit=5000", http.StatusBadRequest},
		{"activity limit not a number", http.MethodGet, "/reports/00000000-0000-0000-0000-000000000001/activity?limit=ten", http.StatusBadRequest},
		{"reset bad user id", http.MethodDelete, "/reports/00000000-0000-0000-0000-000000000001/participants/0", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "0m 42s"},
		{3*time.Hour + 5*time.Minute, "3h 5m 0s"},
		{50*time.Hour + 61*time.Second, "2d 2h 1m 1s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

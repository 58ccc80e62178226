package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// SnapshotHandler serves the client session snapshot.
type SnapshotHandler struct {
	snapshotService *service.SnapshotService
	log             zerolog.Logger
}

// NewSnapshotHandler creates a new SnapshotHandler.
func NewSnapshotHandler(snapshotService *service.SnapshotService, log zerolog.Logger) *SnapshotHandler {
	return &SnapshotHandler{
		snapshotService: snapshotService,
		log:             log.With().Str("component", "snapshot_handler").Logger(),
	}
}

// GetSnapshot godoc
// GET /api/v1/student/snapshot
func (h *SnapshotHandler) GetSnapshot(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	snap, err := h.snapshotService.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		failFromError(c, h.log, err, "Get snapshot failed")
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// SaveSnapshot godoc
// PUT /api/v1/student/snapshot
// Saving with currentView "login" clears the snapshot.
func (h *SnapshotHandler) SaveSnapshot(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var snap model.SessionSnapshot
	if fields := validator.Bind(c, &snap); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.snapshotService.Save(c.Request.Context(), claims.UserID, &snap); err != nil {
		failFromError(c, h.log, err, "Save snapshot failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved": snap.CurrentView != model.ViewLogin})
}

// ClearSnapshot godoc
// DELETE /api/v1/student/snapshot?reason=logout
func (h *SnapshotHandler) ClearSnapshot(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	reason := service.ClearReason(c.DefaultQuery("reason", string(service.ClearReasonLogout)))
	if reason != service.ClearReasonLogout && reason != service.ClearReasonLogin {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"reason": "reason must be one of [logout login]"})
		return
	}

	if err := h.snapshotService.Clear(c.Request.Context(), claims.UserID, reason); err != nil {
		failFromError(c, h.log, err, "Clear snapshot failed")
		return
	}
	c.Status(http.StatusNoContent)
}

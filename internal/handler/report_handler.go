package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// ReportHandler serves post-exam analytics and participant management.
type ReportHandler struct {
	reportService   *service.ReportService
	activityService *service.ActivityService
	log             zerolog.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(reportService *service.ReportService, activityService *service.ActivityService, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		reportService:   reportService,
		activityService: activityService,
		log:             log.With().Str("component", "report_handler").Logger(),
	}
}

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// pageParams reads ?page= and ?per_page=, writing a 400 on bad input.
func pageParams(c *gin.Context) (page, perPage int, ok bool) {
	fields := map[string]string{}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		fields["page"] = "page must be a positive number"
	}
	perPage, err = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage < 1 || perPage > maxPerPage {
		fields["per_page"] = "per_page must be between 1 and " + strconv.Itoa(maxPerPage)
	}
	if len(fields) > 0 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return 0, 0, false
	}
	return page, perPage, true
}

func examIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// ItemAnalysis godoc
// GET /api/v1/admin/exams/:id/item-analysis
func (h *ReportHandler) ItemAnalysis(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	report, err := h.reportService.ItemAnalysis(c.Request.Context(), examID)
	if err != nil {
		failFromError(c, h.log, err, "Item analysis failed")
		return
	}
	response.Success(c, http.StatusOK, report)
}

// ScoreDistribution godoc
// GET /api/v1/admin/exams/:id/score-distribution
func (h *ReportHandler) ScoreDistribution(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	report, err := h.reportService.ScoreDistribution(c.Request.Context(), examID)
	if err != nil {
		failFromError(c, h.log, err, "Score distribution failed")
		return
	}
	response.Success(c, http.StatusOK, report)
}

// Results godoc
// GET /api/v1/admin/exams/:id/results?page=1&per_page=50
// Ranked by score over the whole exam; ties keep submission order.
func (h *ReportHandler) Results(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	page, perPage, ok := pageParams(c)
	if !ok {
		return
	}
	ranked, err := h.reportService.RankedResults(c.Request.Context(), examID)
	if err != nil {
		failFromError(c, h.log, err, "List results failed")
		return
	}

	p := response.NewPagination(page, perPage, len(ranked))
	start, end := p.Bounds()
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": ranked[start:end]}, p)
}

// Activity godoc
// GET /api/v1/admin/exams/:id/activity?limit=200
func (h *ReportHandler) Activity(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultActivityLimit)))
	if err != nil || limit <= 0 || limit > 1000 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"limit": "limit must be between 1 and 1000"})
		return
	}

	events, err := h.activityService.ListByExam(c.Request.Context(), examID, limit)
	if err != nil {
		failFromError(c, h.log, err, "List activity failed")
		return
	}
	response.Success(c, http.StatusOK, gin.H{"activity": events})
}

// ResetParticipant godoc
// DELETE /api/v1/admin/exams/:id/participants/:user_id
func (h *ReportHandler) ResetParticipant(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || userID <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.reportService.ResetParticipant(c.Request.Context(), examID, userID); err != nil {
		failFromError(c, h.log, err, "Reset participant failed")
		return
	}
	c.Status(http.StatusNoContent)
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // a slow query must not stall the stream
)

// MonitorHandler streams live exam activity to proctors over SSE.
type MonitorHandler struct {
	reportService   *service.ReportService
	monitorService  *service.MonitorService
	activityService *service.ActivityService
	log             zerolog.Logger
}

func NewMonitorHandler(
	reportService *service.ReportService,
	monitorService *service.MonitorService,
	activityService *service.ActivityService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		reportService:   reportService,
		monitorService:  monitorService,
		activityService: activityService,
		log:             log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:id/monitor
// Sends a snapshot, then every activity event as it happens, plus periodic
// progress refreshes and keepalives.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()
	exam, err := h.reportService.GetExam(reqCtx, examID)
	if err != nil {
		failFromError(c, h.log, err, "Monitor exam lookup failed")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	pubsub := h.activityService.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	snapshot := h.progress(reqCtx, examID)
	c.SSEvent("snapshot", gin.H{"exam": exam, "progress": snapshot})
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	log := h.log.With().Str("exam_id", examID.String()).Logger()
	log.Info().Msg("Proctor attached to live monitor")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Proctor detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payload is already JSON; forward it untouched.
			c.Writer.Write([]byte("event: activity\ndata: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			if p := h.progress(reqCtx, examID); p != nil {
				c.SSEvent("refresh", p)
				c.Writer.Flush()
			}

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"at": time.Now()})
			c.Writer.Flush()
		}
	}
}

// progress fetches live counters under a short timeout. A failure yields nil
// so the stream keeps going.
func (h *MonitorHandler) progress(parent context.Context, examID uuid.UUID) *service.ProgressSnapshot {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	p, err := h.monitorService.GetProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to fetch live progress")
		return nil
	}
	return p
}

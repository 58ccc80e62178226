package handler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/service"
)

const metricsInterval = 7 * time.Second

// SystemHandler streams engine health via SSE: live sessions, persistence
// queue depths and Go runtime figures.
type SystemHandler struct {
	rdb            *redis.Client
	sessionService *service.ExamSessionService
	startTime      time.Time
	log            zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, sessionService *service.ExamSessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:            rdb,
		sessionService: sessionService,
		startTime:      time.Now(),
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

type systemMetrics struct {
	Timestamp    int64  `json:"timestamp"`
	Uptime       string `json:"uptime"`
	LiveSessions int    `json:"live_sessions"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`

	// Pending jobs per persistence queue; -1 when Redis did not answer.
	QueueActivity   int64 `json:"queue_activity"`
	QueueAnswers    int64 `json:"queue_answers"`
	QueueLayout     int64 `json:"queue_layout"`
	QueueCompletion int64 `json:"queue_completion"`
}

// SystemMetricsSSE godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system metrics")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	c.SSEvent("metrics", h.collect(reqCtx))
	c.Writer.Flush()
	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics")
			return
		case <-ticker.C:
			c.SSEvent("metrics", h.collect(reqCtx))
			c.Writer.Flush()
		}
	}
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp:    time.Now().Unix(),
		Uptime:       formatDuration(time.Since(h.startTime)),
		LiveSessions: h.sessionService.LiveCount(),
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.HeapSys
	m.NumGC = ms.NumGC

	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	pipe := h.rdb.Pipeline()
	activity := pipe.LLen(ctx, config.WorkerKey.PersistActivityQueue)
	answers := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	layout := pipe.LLen(ctx, config.WorkerKey.PersistLayoutQueue)
	completion := pipe.LLen(ctx, config.WorkerKey.PersistCompletionQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to read queue depths")
		m.QueueActivity, m.QueueAnswers, m.QueueLayout, m.QueueCompletion = -1, -1, -1, -1
		return m
	}
	m.QueueActivity = activity.Val()
	m.QueueAnswers = answers.Val()
	m.QueueLayout = layout.Val()
	m.QueueCompletion = completion.Val()
	return m
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// reportCacheSeconds lets a proctor's browser reuse a report for a short while.
const reportCacheSeconds = 30

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentPortal *handler.StudentPortalHandler
	Snapshot      *handler.SnapshotHandler
	WS            *handler.WSHandler
	Report        *handler.ReportHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
}

// Middlewares groups middleware that needs runtime dependencies.
type Middlewares struct {
	JoinLimiter *middleware.RateLimiter
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	mw *Middlewares,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to AllowedOrigins when set; otherwise allow all for dev.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService), middleware.NoStore())
	{
		studentAPI.GET("/exams", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/exams/join", mw.JoinLimiter.Middleware(), handlers.StudentPortal.JoinExam)
		studentAPI.GET("/exams/:exam_id/state", handlers.StudentPortal.GetExamState)

		studentAPI.GET("/snapshot", handlers.Snapshot.GetSnapshot)
		studentAPI.PUT("/snapshot", handlers.Snapshot.SaveSnapshot)
		studentAPI.DELETE("/snapshot", handlers.Snapshot.ClearSnapshot)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	// ─── 3. Admin Group (JWT + permissions) ────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Reports are large JSON documents; compress and briefly cache them.
		reports := adminAPI.Group("/exams/:id")
		reports.Use(
			middleware.RequirePermission(model.PermissionReportsRead),
			middleware.Brotli(),
			middleware.CacheControl(reportCacheSeconds),
		)
		{
			reports.GET("/item-analysis", handlers.Report.ItemAnalysis)
			reports.GET("/score-distribution", handlers.Report.ScoreDistribution)
			reports.GET("/results", handlers.Report.Results)
		}

		adminAPI.GET("/exams/:id/activity",
			middleware.RequireAnyPermission(model.PermissionActivityRead, model.PermissionMonitorRead),
			middleware.NoStore(),
			handlers.Report.Activity,
		)
		adminAPI.DELETE("/exams/:id/participants/:user_id",
			middleware.RequirePermission(model.PermissionParticipantsReset),
			handlers.Report.ResetParticipant,
		)

		// Live streams
		adminAPI.GET("/exams/:id/monitor",
			middleware.RequirePermission(model.PermissionMonitorRead),
			handlers.Monitor.MonitorExamSSE,
		)
		adminAPI.GET("/system/metrics",
			middleware.RequirePermission(model.PermissionMonitorRead),
			handlers.System.SystemMetricsSSE,
		)
	}

	return router
}

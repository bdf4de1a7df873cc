package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/examind/examind-backend/internal/config"
	"github.com/examind/examind-backend/internal/handler"
	"github.com/examind/examind-backend/internal/middleware"
	"github.com/examind/examind-backend/internal/response"
	"github.com/examind/examind-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam          *handler.ExamHandler
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	Monitor       *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokenService *service.TokenService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally. The exam paper payload is the big
	// win; SSE and WebSocket upgrades are skipped inside the middleware.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for the entry gate: bcrypt on every attempt makes it the
	// obvious brute-force target (30 requests per minute per IP).
	joinLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Student Portal (lobby and join are public, the rest needs a token) ───
	portalAPI := router.Group("/api/v1/portal")
	{
		portalAPI.GET("/lobby/:code", handlers.StudentPortal.Lobby)
		portalAPI.POST("/join", joinLimiter.Middleware(), handlers.StudentPortal.Join)

		authed := portalAPI.Group("")
		authed.Use(middleware.RequireSessionToken(tokenService))
		{
			authed.GET("/paper", handlers.StudentPortal.GetPaper)
			authed.GET("/state", handlers.StudentPortal.GetState)
			authed.GET("/result", handlers.StudentPortal.GetResult)
		}
	}

	// ─── 2. WebSocket (session token via query param) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireSessionWSAuth(tokenService))
	{
		ws.GET("/session/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Exam authoring and review ──────────────────────────────────
	examAPI := router.Group("/api/v1/exams")
	{
		examAPI.GET("", handlers.Exam.ListExams)
		examAPI.POST("", handlers.Exam.CreateExam)
		examAPI.GET("/:exam_id", handlers.Exam.GetExam)
		examAPI.PUT("/:exam_id", handlers.Exam.UpdateExam)
		examAPI.DELETE("/:exam_id", handlers.Exam.DeleteExam)
		examAPI.POST("/:exam_id/publish", handlers.Exam.PublishExam)
		examAPI.POST("/:exam_id/archive", handlers.Exam.ArchiveExam)
		examAPI.GET("/:exam_id/results", handlers.Exam.ListResults)
		examAPI.GET("/:exam_id/violations", handlers.Exam.ListViolations)
		examAPI.GET("/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)
	}

	return router
}

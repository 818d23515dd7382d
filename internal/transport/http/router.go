package http

import (
	"net/http"
	"time"

	"superexam-session-service/internal/app"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterConfig carries the transport settings read from the service config.
type RouterConfig struct {
	GinMode        string
	AllowedOrigins []string
	TickInterval   time.Duration
}

// NewRouter wires the REST API and the timer websocket onto a gin engine.
func NewRouter(service *app.ExamService, cfg RouterConfig, log zerolog.Logger) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(log))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", func(c *gin.Context) {
		success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	sessions := NewSessionHandler(service, log)
	timer := NewTimerHandler(service, cfg.TickInterval, cfg.AllowedOrigins, log)

	v1 := router.Group("/api/v1/sessions")
	{
		v1.POST("", sessions.Create)
		v1.GET("", sessions.List)
		v1.GET("/:id", sessions.Resume)
		v1.GET("/:id/questions", sessions.Questions)
		v1.PUT("/:id/answers/:questionId", sessions.SetAnswer)
		v1.POST("/:id/answers/:questionId/toggle", sessions.ToggleAnswer)
		v1.PUT("/:id/cursor", sessions.UpdateCursor)
		v1.POST("/:id/submit", sessions.Submit)
		v1.GET("/:id/review", sessions.Review)
		v1.GET("/:id/timer", timer.ServeTimer)
	}
	return router
}

func accessLog(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("request_id", requestIDOf(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

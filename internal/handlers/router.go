package handlers

import (
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/auth"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/hub"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
}

type Router struct {
	Hub         *hub.Hub
	Validator   *auth.JWTValidator
	Metrics     *metrics.Metrics
	Limiter     *middleware.RateLimiter
	Violations  *ViolationHandler
	Leaderboard *LeaderboardHandler
	WebSocket   *WebSocketHandler
	Ready       map[string]Pinger
	Logger      zerolog.Logger
}

// UserKey charges rate limits to the authenticated user, falling back to the
// client address.
func UserKey(c *gin.Context) string {
	if claims := auth.ClaimsFrom(c); claims != nil {
		return "user:" + claims.GetUserID()
	}
	return "ip:" + c.ClientIP()
}

func (rt *Router) Engine(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(rt.Logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", HealthHandler())
	router.GET("/readyz", ReadyHandler(rt.Hub, rt.Ready))
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	v1.Use(auth.Authenticate(rt.Validator, rt.Metrics))
	{
		v1.GET("/ws", rt.WebSocket.Handle)

		contests := v1.Group("/contests/:contestId")
		{
			report := []gin.HandlerFunc{rt.Violations.Report}
			if rt.Limiter != nil {
				report = append([]gin.HandlerFunc{rt.Limiter.Limit()}, report...)
			}
			contests.POST("/violations", report...)
			contests.GET("/violations/me", rt.Violations.Status)
			contests.GET("/leaderboard", rt.Leaderboard.Get)
		}

		admin := v1.Group("/admin")
		admin.Use(auth.RequireAdmin())
		{
			admin.GET("/contests/:contestId/violations", rt.Violations.ContestSummary)
			admin.POST("/contests/:contestId/leaderboard/rebuild", rt.Leaderboard.Rebuild)
			admin.POST("/violations/disqualify", rt.Violations.Disqualify)
			admin.POST("/violations/unflag", rt.Violations.Unflag)
		}
	}

	return router
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	logger = logger.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		evt := logger.Debug()
		if c.Writer.Status() >= 500 {
			evt = logger.Warn()
		}
		evt.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}

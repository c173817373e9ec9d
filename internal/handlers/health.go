package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/hub"
	"github.com/gin-gonic/gin"
)

// Pinger is any dependency readiness should wait on: the store, Redis.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func ReadyHandler(h *hub.Hub, deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		ready := true
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}

		status, code := "ready", http.StatusOK
		if !ready {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status": status,
			"checks": checks,
			"stats":  h.Stats(),
		})
	}
}

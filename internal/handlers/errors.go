package handlers

import (
	"net/http"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// respondError maps a service error onto its HTTP status. Store failures are
// logged here and hidden from the caller.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("Request failed")
		c.AbortWithStatusJSON(status, gin.H{"error": "service temporarily unavailable"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

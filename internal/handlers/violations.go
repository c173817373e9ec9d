package handlers

import (
	"net/http"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/auth"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type ViolationHandler struct {
	ledger *ledger.Ledger
	logger zerolog.Logger
}

func NewViolationHandler(l *ledger.Ledger, logger zerolog.Logger) *ViolationHandler {
	return &ViolationHandler{
		ledger: l,
		logger: logger.With().Str("component", "violation-handler").Logger(),
	}
}

type reportRequest struct {
	ViolationType string `json:"violationType" binding:"required"`
	Metadata      string `json:"metadata"`
}

type adminActionRequest struct {
	UserID    string `json:"userId" binding:"required"`
	ContestID string `json:"contestId" binding:"required"`
	Reason    string `json:"reason"`
}

func caller(c *gin.Context) ledger.Caller {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		return ledger.Caller{}
	}
	return ledger.Caller{UserID: claims.GetUserID(), Admin: claims.IsAdmin()}
}

// Report records a proctoring violation for the calling participant.
func (h *ViolationHandler) Report(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "violationType is required")
		return
	}
	vt, err := ledger.ParseViolationType(req.ViolationType)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	res, err := h.ledger.ReportViolation(c.Request.Context(), caller(c), c.Param("contestId"), vt, req.Metadata)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ViolationHandler) Status(c *gin.Context) {
	res, err := h.ledger.Status(c.Request.Context(), c.Param("contestId"), caller(c).UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ViolationHandler) ContestSummary(c *gin.Context) {
	summary, err := h.ledger.GetContestViolations(c.Request.Context(), c.Param("contestId"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ViolationHandler) Disqualify(c *gin.Context) {
	var req adminActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId and contestId are required")
		return
	}
	res, err := h.ledger.Disqualify(c.Request.Context(), caller(c), req.ContestID, req.UserID, req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ViolationHandler) Unflag(c *gin.Context) {
	var req adminActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "userId and contestId are required")
		return
	}
	res, err := h.ledger.Unflag(c.Request.Context(), caller(c), req.ContestID, req.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

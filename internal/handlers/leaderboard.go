package handlers

import (
	"net/http"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/directory"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type LeaderboardHandler struct {
	engine    *leaderboard.Engine
	directory directory.Directory
	logger    zerolog.Logger
	now       func() time.Time
}

func NewLeaderboardHandler(e *leaderboard.Engine, dir directory.Directory, logger zerolog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		engine:    e,
		directory: dir,
		logger:    logger.With().Str("component", "leaderboard-handler").Logger(),
		now:       time.Now,
	}
}

type leaderboardResponse struct {
	ContestID string            `json:"contestId"`
	Status    directory.Status  `json:"status"`
	Data      []leaderboard.Row `json:"data"`
}

func (h *LeaderboardHandler) respond(c *gin.Context, contestID string, rows []leaderboard.Row) {
	contest, err := h.directory.Contest(c.Request.Context(), contestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if rows == nil {
		rows = []leaderboard.Row{}
	}
	c.JSON(http.StatusOK, leaderboardResponse{
		ContestID: contestID,
		Status:    contest.Status(h.now()),
		Data:      rows,
	})
}

func (h *LeaderboardHandler) Get(c *gin.Context) {
	contestID := c.Param("contestId")
	rows, err := h.engine.GetLeaderboard(c.Request.Context(), contestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.respond(c, contestID, rows)
}

// Rebuild recomputes the board from stored facts, picking up problem list
// edits made in the directory.
func (h *LeaderboardHandler) Rebuild(c *gin.Context) {
	contestID := c.Param("contestId")
	rows, err := h.engine.Rebuild(c.Request.Context(), contestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info().
		Str("contestId", contestID).
		Str("actorId", caller(c).UserID).
		Msg("Leaderboard rebuild requested")
	h.respond(c, contestID, rows)
}

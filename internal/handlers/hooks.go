package handlers

import (
	"context"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/hub"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
	"github.com/rs/zerolog"
)

// LeaderboardSnapshot sends the current table to a connection that just
// subscribed to a leaderboard topic, so it does not wait for the next fact.
func LeaderboardSnapshot(h *hub.Hub, e *leaderboard.Engine, logger zerolog.Logger) hub.SubscribeHook {
	logger = logger.With().Str("component", "snapshot-hook").Logger()
	return func(c *hub.Client, topic string) {
		contestID, ok := protocol.LeaderboardContest(topic)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rows, err := e.GetLeaderboard(ctx, contestID)
		if err != nil {
			logger.Debug().Err(err).Str("contestId", contestID).Msg("No snapshot for subscriber")
			return
		}
		if rows == nil {
			rows = []leaderboard.Row{}
		}
		payload, err := protocol.NewLeaderboard(contestID, rows)
		if err != nil {
			logger.Error().Err(err).Str("contestId", contestID).Msg("Failed to encode snapshot")
			return
		}
		h.Send(c, payload)
	}
}

package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/events"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(topic string, payload []byte) int
	PublishOnce(topic string, payload []byte) int
}

type Standings interface {
	ApplySubmissionFact(ctx context.Context, f leaderboard.Fact) (*leaderboard.Delta, error)
	Rebuild(ctx context.Context, contestID string) ([]leaderboard.Row, error)
}

// ProblemSetter is implemented by directories the engine may update itself.
type ProblemSetter interface {
	SetProblems(contestID string, problems []string) bool
}

type Handlers struct {
	hub       Publisher
	standings Standings
	problems  ProblemSetter
	logger    zerolog.Logger
}

func NewHandlers(h Publisher, s Standings, problems ProblemSetter, logger zerolog.Logger) *Handlers {
	return &Handlers{
		hub:       h,
		standings: s,
		problems:  problems,
		logger:    logger.With().Str("component", "kafka-handlers").Logger(),
	}
}

// HandleSubmissionJudged notifies watchers of the submission and, for final
// contest verdicts, feeds the leaderboard.
func (h *Handlers) HandleSubmissionJudged(ctx context.Context, msg kafka.Message) error {
	var event events.SubmissionJudgedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal submission.judged event")
		return apperrors.Client("kafka.HandleSubmissionJudged", err)
	}

	h.logger.Info().
		Str("submissionId", event.SubmissionID).
		Str("userId", event.UserID).
		Str("verdict", event.Verdict).
		Msg("Processing submission.judged")

	if event.SubmissionID != "" {
		update, err := protocol.NewSubmissionUpdate(event.SubmissionID, event.Verdict)
		if err != nil {
			return err
		}
		topic := protocol.SubmissionWatchTopic(event.SubmissionID)
		if event.IsFinal() {
			h.hub.PublishOnce(topic, update)
		} else {
			h.hub.Publish(topic, update)
		}
	}

	if event.ContestID == nil || *event.ContestID == "" || !event.IsFinal() {
		return nil
	}

	fact, err := factFromEvent(event)
	if err != nil {
		h.logger.Warn().Err(err).Str("submissionId", event.SubmissionID).Msg("Dropping malformed submission fact")
		return err
	}

	if _, err := h.standings.ApplySubmissionFact(ctx, fact); err != nil {
		if apperrors.IsClient(err) {
			h.logger.Warn().Err(err).
				Str("contestId", fact.ContestID).
				Str("submissionId", event.SubmissionID).
				Msg("Submission fact rejected")
		}
		return err
	}
	return nil
}

func (h *Handlers) HandleProblemsChanged(ctx context.Context, msg kafka.Message) error {
	var event events.ContestProblemsChangedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal contest.problems_changed event")
		return apperrors.Client("kafka.HandleProblemsChanged", err)
	}

	h.logger.Info().
		Str("contestId", event.ContestID).
		Int("problems", len(event.Problems)).
		Msg("Processing contest.problems_changed")

	if h.problems != nil && event.Problems != nil {
		if !h.problems.SetProblems(event.ContestID, event.Problems) {
			h.logger.Warn().Str("contestId", event.ContestID).Msg("Problem list for unknown contest")
		}
	}

	_, err := h.standings.Rebuild(ctx, event.ContestID)
	return err
}

func (h *Handlers) RegisterAll(consumer *Consumer) {
	consumer.RegisterHandler(events.TopicSubmissionJudged, h.HandleSubmissionJudged)
	consumer.RegisterHandler(events.TopicContestProblemsChanged, h.HandleProblemsChanged)
}

func factFromEvent(event events.SubmissionJudgedEvent) (leaderboard.Fact, error) {
	raw := event.SubmittedAt
	if raw == "" {
		raw = event.Timestamp
	}
	submittedAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return leaderboard.Fact{}, apperrors.Client("kafka.factFromEvent",
			fmt.Errorf("%w: submittedAt %q", apperrors.ErrInvalidFact, raw))
	}

	verdict := leaderboard.VerdictWrong
	if event.Verdict == events.VerdictAccepted {
		verdict = leaderboard.VerdictSolved
	}

	return leaderboard.Fact{
		ContestID:     *event.ContestID,
		ParticipantID: event.UserID,
		ProblemID:     event.ProblemID,
		SubmissionID:  event.SubmissionID,
		Verdict:       verdict,
		SubmittedAt:   submittedAt.UTC(),
	}, nil
}

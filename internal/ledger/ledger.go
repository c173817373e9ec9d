package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/directory"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Publisher interface {
	Publish(topic string, payload []byte) int
}

type Presence interface {
	GetOnlineUsers(ctx context.Context, userIDs []string) ([]string, error)
}

type Caller struct {
	UserID string
	Admin  bool
}

type Result struct {
	ViolationCount int      `json:"violationCount"`
	IsFlagged      bool     `json:"isFlagged"`
	IsDisqualified bool     `json:"isDisqualified"`
	Warning        *Warning `json:"warning,omitempty"`
	Exempt         bool     `json:"exempt,omitempty"`
}

type ParticipantSummary struct {
	ParticipantID  string       `json:"participantId"`
	Name           string       `json:"participantName"`
	RollNumber     string       `json:"participantRollNumber"`
	ViolationCount int          `json:"violationCount"`
	IsFlagged      bool         `json:"isFlagged"`
	IsDisqualified bool         `json:"isDisqualified"`
	Online         bool         `json:"online"`
	Violations     []Event      `json:"violations"`
	Audit          []AuditEntry `json:"audit,omitempty"`
}

// FlaggedCount includes disqualified participants.
type Summary struct {
	ContestID         string               `json:"contestId"`
	ContestTitle      string               `json:"contestTitle"`
	TotalViolations   int                  `json:"totalViolations"`
	FlaggedCount      int                  `json:"flaggedCount"`
	DisqualifiedCount int                  `json:"disqualifiedCount"`
	Participants      []ParticipantSummary `json:"perParticipant"`
}

type Ledger struct {
	store     Store
	directory directory.Directory
	publisher Publisher
	presence  Presence
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time

	locks sync.Map
}

func New(store Store, dir directory.Directory, pub Publisher, m *metrics.Metrics, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:     store,
		directory: dir,
		publisher: pub,
		metrics:   m,
		logger:    logger.With().Str("component", "ledger").Logger(),
		now:       time.Now,
	}
}

func (l *Ledger) SetPresence(p Presence) {
	l.presence = p
}

func (l *Ledger) lockParticipant(contestID, participantID string) func() {
	v, _ := l.locks.LoadOrStore(contestID+"\x00"+participantID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (l *Ledger) load(ctx context.Context, contestID, participantID string) (*Record, error) {
	rec, err := l.store.LoadRecord(ctx, contestID, participantID)
	if errors.Is(err, ErrRecordNotFound) {
		return &Record{ContestID: contestID, ParticipantID: participantID}, nil
	}
	if err != nil {
		return nil, apperrors.Persistence("ledger.load", err)
	}
	return rec, nil
}

// ReportViolation records one violation and escalates the participant.
// Administrators are exempt: nothing is recorded and their current state, if
// any, is returned with Exempt set.
func (l *Ledger) ReportViolation(ctx context.Context, caller Caller, contestID string, vt ViolationType, metadata string) (*Result, error) {
	if !vt.Valid() {
		return nil, apperrors.Client("ledger.ReportViolation", apperrors.ErrInvalidViolationType)
	}
	if caller.Admin {
		rec, err := l.load(ctx, contestID, caller.UserID)
		if err != nil {
			return nil, err
		}
		res := l.current(rec)
		res.Exempt = true
		return res, nil
	}

	contest, err := l.directory.Contest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	participant, err := l.directory.Participant(ctx, contestID, caller.UserID)
	if err != nil {
		return nil, err
	}

	unlock := l.lockParticipant(contestID, caller.UserID)
	rec, err := l.load(ctx, contestID, caller.UserID)
	if err != nil {
		unlock()
		return nil, err
	}

	if rec.IsDisqualified {
		unlock()
		l.logger.Debug().
			Str("contestId", contestID).
			Str("participantId", caller.UserID).
			Msg("Ignoring violation from disqualified participant")
		return resultOf(rec), nil
	}

	prev := rec.State()
	next := *rec
	next.ViolationCount++
	state := Evaluate(next.ViolationCount)
	next.IsFlagged = state >= StateFlagged
	next.IsDisqualified = state == StateDisqualified
	next.UpdatedAt = l.now().UTC()

	ev := Event{
		ID:            uuid.New().String(),
		ContestID:     contestID,
		ParticipantID: caller.UserID,
		Type:          vt,
		Metadata:      metadata,
		Timestamp:     next.UpdatedAt,
	}

	if err := l.store.AppendViolation(ctx, &next, ev); err != nil {
		unlock()
		l.logger.Error().Err(err).
			Str("contestId", contestID).
			Str("participantId", caller.UserID).
			Msg("Failed to persist violation")
		return nil, apperrors.Persistence("ledger.ReportViolation", err)
	}
	unlock()

	l.metrics.IncViolation(vt.String())
	changed := state != prev
	if changed {
		l.metrics.IncTransition(state.String())
		l.logger.Info().
			Str("contestId", contestID).
			Str("participantId", caller.UserID).
			Str("from", prev.String()).
			Str("to", state.String()).
			Int("violationCount", next.ViolationCount).
			Msg("Participant state changed")
	}

	if changed || next.ViolationCount >= FlagThreshold {
		l.publishAlert(contest, participant, &next, vt.String(), metadata, ev.Timestamp)
	}

	return resultOf(&next), nil
}

// Disqualify forces the terminal state regardless of count.
func (l *Ledger) Disqualify(ctx context.Context, actor Caller, contestID, participantID, reason string) (*Result, error) {
	if !actor.Admin {
		return nil, apperrors.Forbidden("ledger.Disqualify", apperrors.ErrAdminOnly)
	}
	contest, participant, err := l.resolve(ctx, contestID, participantID)
	if err != nil {
		return nil, err
	}

	unlock := l.lockParticipant(contestID, participantID)
	rec, err := l.load(ctx, contestID, participantID)
	if err != nil {
		unlock()
		return nil, err
	}
	if rec.IsDisqualified {
		unlock()
		return resultOf(rec), nil
	}

	next := *rec
	next.IsFlagged = true
	next.IsDisqualified = true
	next.UpdatedAt = l.now().UTC()
	entry := AuditEntry{
		ID:            uuid.New().String(),
		ContestID:     contestID,
		ParticipantID: participantID,
		Action:        ActionDisqualify,
		ActorID:       actor.UserID,
		Reason:        reason,
		Timestamp:     next.UpdatedAt,
	}
	if err := l.store.SaveAdminAction(ctx, &next, entry); err != nil {
		unlock()
		return nil, apperrors.Persistence("ledger.Disqualify", err)
	}
	unlock()

	l.metrics.IncTransition(StateDisqualified.String())
	l.logger.Warn().
		Str("contestId", contestID).
		Str("participantId", participantID).
		Str("actorId", actor.UserID).
		Str("reason", reason).
		Msg("Participant disqualified manually")

	l.publishAlert(contest, participant, &next, "MANUAL_"+string(ActionDisqualify), reason, entry.Timestamp)
	return resultOf(&next), nil
}

// Unflag clears the flag after human review. The count is kept.
func (l *Ledger) Unflag(ctx context.Context, actor Caller, contestID, participantID string) (*Result, error) {
	if !actor.Admin {
		return nil, apperrors.Forbidden("ledger.Unflag", apperrors.ErrAdminOnly)
	}
	contest, participant, err := l.resolve(ctx, contestID, participantID)
	if err != nil {
		return nil, err
	}

	unlock := l.lockParticipant(contestID, participantID)
	rec, err := l.load(ctx, contestID, participantID)
	if err != nil {
		unlock()
		return nil, err
	}
	if rec.IsDisqualified {
		unlock()
		return nil, apperrors.Conflict("ledger.Unflag", apperrors.ErrDisqualifiedUnflag)
	}
	if !rec.IsFlagged {
		unlock()
		return resultOf(rec), nil
	}

	next := *rec
	next.IsFlagged = false
	next.UpdatedAt = l.now().UTC()
	entry := AuditEntry{
		ID:            uuid.New().String(),
		ContestID:     contestID,
		ParticipantID: participantID,
		Action:        ActionUnflag,
		ActorID:       actor.UserID,
		Timestamp:     next.UpdatedAt,
	}
	if err := l.store.SaveAdminAction(ctx, &next, entry); err != nil {
		unlock()
		return nil, apperrors.Persistence("ledger.Unflag", err)
	}
	unlock()

	l.metrics.IncTransition(StateClean.String())
	l.logger.Info().
		Str("contestId", contestID).
		Str("participantId", participantID).
		Str("actorId", actor.UserID).
		Int("violationCount", next.ViolationCount).
		Msg("Participant unflagged")

	l.publishAlert(contest, participant, &next, "MANUAL_"+string(ActionUnflag), "", entry.Timestamp)
	return resultOf(&next), nil
}

// Status returns the caller's current disciplinary state without changing it.
func (l *Ledger) Status(ctx context.Context, contestID, participantID string) (*Result, error) {
	if _, _, err := l.resolve(ctx, contestID, participantID); err != nil {
		return nil, err
	}
	rec, err := l.load(ctx, contestID, participantID)
	if err != nil {
		return nil, err
	}
	return l.current(rec), nil
}

func (l *Ledger) current(rec *Record) *Result {
	res := resultOf(rec)
	if rec.ViolationCount == 0 && !rec.IsFlagged {
		res.Warning = nil
	}
	return res
}

func (l *Ledger) GetContestViolations(ctx context.Context, contestID string) (*Summary, error) {
	contest, err := l.directory.Contest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	records, err := l.store.ListContest(ctx, contestID)
	if err != nil {
		return nil, apperrors.Persistence("ledger.GetContestViolations", err)
	}

	registered := make(map[string]directory.Participant)
	if participants, err := l.directory.Participants(ctx, contestID); err == nil {
		for _, p := range participants {
			registered[p.UserID] = p
		}
	} else {
		l.logger.Warn().Err(err).Str("contestId", contestID).Msg("Failed to load participants for summary")
	}

	online := make(map[string]bool)
	if l.presence != nil && len(records) > 0 {
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r.ParticipantID)
		}
		users, err := l.presence.GetOnlineUsers(ctx, ids)
		if err != nil {
			l.logger.Warn().Err(err).Msg("Failed to resolve presence")
		}
		for _, u := range users {
			online[u] = true
		}
	}

	summary := &Summary{
		ContestID:    contestID,
		ContestTitle: contest.Title,
		Participants: make([]ParticipantSummary, 0, len(records)),
	}
	for _, r := range records {
		summary.TotalViolations += r.ViolationCount
		if r.IsFlagged {
			summary.FlaggedCount++
		}
		if r.IsDisqualified {
			summary.DisqualifiedCount++
		}
		p := registered[r.ParticipantID]
		violations := r.Violations
		if violations == nil {
			violations = []Event{}
		}
		summary.Participants = append(summary.Participants, ParticipantSummary{
			ParticipantID:  r.ParticipantID,
			Name:           p.Name,
			RollNumber:     p.RollNumber,
			ViolationCount: r.ViolationCount,
			IsFlagged:      r.IsFlagged,
			IsDisqualified: r.IsDisqualified,
			Online:         online[r.ParticipantID],
			Violations:     violations,
			Audit:          r.Audit,
		})
	}

	sort.Slice(summary.Participants, func(i, j int) bool {
		a, b := summary.Participants[i], summary.Participants[j]
		if a.ViolationCount != b.ViolationCount {
			return a.ViolationCount > b.ViolationCount
		}
		return a.ParticipantID < b.ParticipantID
	})

	return summary, nil
}

func (l *Ledger) resolve(ctx context.Context, contestID, participantID string) (*directory.Contest, *directory.Participant, error) {
	contest, err := l.directory.Contest(ctx, contestID)
	if err != nil {
		return nil, nil, err
	}
	participant, err := l.directory.Participant(ctx, contestID, participantID)
	if err != nil {
		return nil, nil, err
	}
	return contest, participant, nil
}

func (l *Ledger) publishAlert(contest *directory.Contest, participant *directory.Participant, rec *Record, violationType, metadata string, ts time.Time) {
	data, err := protocol.NewViolationAlert(protocol.ViolationAlert{
		ContestID:             contest.ID,
		ContestTitle:          contest.Title,
		ParticipantID:         participant.UserID,
		ParticipantName:       participant.Name,
		ParticipantRollNumber: participant.RollNumber,
		ViolationType:         violationType,
		ViolationCount:        rec.ViolationCount,
		IsFlagged:             rec.IsFlagged,
		IsDisqualified:        rec.IsDisqualified,
		Metadata:              metadata,
		Timestamp:             ts,
	})
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to encode violation alert")
		return
	}

	l.publisher.Publish(protocol.AdminAlertsTopic(contest.ID), data)
	l.publisher.Publish(protocol.TopicAdminAlertsGlobal, data)
}

func resultOf(rec *Record) *Result {
	return &Result{
		ViolationCount: rec.ViolationCount,
		IsFlagged:      rec.IsFlagged,
		IsDisqualified: rec.IsDisqualified,
		Warning:        warningFor(rec.State(), rec.ViolationCount),
	}
}

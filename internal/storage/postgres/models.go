package postgres

import (
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/directory"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
)

type recordRow struct {
	ContestID      string    `gorm:"primaryKey"`
	ParticipantID  string    `gorm:"primaryKey"`
	ViolationCount int       `gorm:"not null"`
	IsFlagged      bool      `gorm:"not null"`
	IsDisqualified bool      `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (recordRow) TableName() string {
	return "violation_records"
}

func recordRowFrom(r *ledger.Record) recordRow {
	return recordRow{
		ContestID:      r.ContestID,
		ParticipantID:  r.ParticipantID,
		ViolationCount: r.ViolationCount,
		IsFlagged:      r.IsFlagged,
		IsDisqualified: r.IsDisqualified,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r recordRow) toRecord() ledger.Record {
	return ledger.Record{
		ContestID:      r.ContestID,
		ParticipantID:  r.ParticipantID,
		ViolationCount: r.ViolationCount,
		IsFlagged:      r.IsFlagged,
		IsDisqualified: r.IsDisqualified,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type eventRow struct {
	ID            string `gorm:"primaryKey"`
	ContestID     string
	ParticipantID string
	ViolationType string
	Metadata      string
	CreatedAt     time.Time
}

func (eventRow) TableName() string {
	return "violation_events"
}

func eventRowFrom(ev ledger.Event) eventRow {
	return eventRow{
		ID:            ev.ID,
		ContestID:     ev.ContestID,
		ParticipantID: ev.ParticipantID,
		ViolationType: ev.Type.String(),
		Metadata:      ev.Metadata,
		CreatedAt:     ev.Timestamp,
	}
}

func (r eventRow) toEvent() (ledger.Event, error) {
	vt, err := ledger.ParseViolationType(r.ViolationType)
	if err != nil {
		return ledger.Event{}, err
	}
	return ledger.Event{
		ID:            r.ID,
		ContestID:     r.ContestID,
		ParticipantID: r.ParticipantID,
		Type:          vt,
		Metadata:      r.Metadata,
		Timestamp:     r.CreatedAt.UTC(),
	}, nil
}

type auditRow struct {
	ID            string `gorm:"primaryKey"`
	ContestID     string
	ParticipantID string
	Action        string
	ActorID       string
	Reason        string
	CreatedAt     time.Time
}

func (auditRow) TableName() string {
	return "violation_audit"
}

func auditRowFrom(e ledger.AuditEntry) auditRow {
	return auditRow{
		ID:            e.ID,
		ContestID:     e.ContestID,
		ParticipantID: e.ParticipantID,
		Action:        string(e.Action),
		ActorID:       e.ActorID,
		Reason:        e.Reason,
		CreatedAt:     e.Timestamp,
	}
}

func (r auditRow) toEntry() ledger.AuditEntry {
	return ledger.AuditEntry{
		ID:            r.ID,
		ContestID:     r.ContestID,
		ParticipantID: r.ParticipantID,
		Action:        ledger.AdminAction(r.Action),
		ActorID:       r.ActorID,
		Reason:        r.Reason,
		Timestamp:     r.CreatedAt.UTC(),
	}
}

// factRow's primary key is the fact identity, so a replayed judge event
// collides instead of inserting twice.
type factRow struct {
	ContestID     string    `gorm:"primaryKey"`
	ParticipantID string    `gorm:"primaryKey"`
	ProblemID     string    `gorm:"primaryKey"`
	SubmittedAt   time.Time `gorm:"primaryKey"`
	SubmissionID  string
	Verdict       string
	WrongBefore   int
}

func (factRow) TableName() string {
	return "submission_facts"
}

func factRowFrom(f leaderboard.Fact) factRow {
	return factRow{
		ContestID:     f.ContestID,
		ParticipantID: f.ParticipantID,
		ProblemID:     f.ProblemID,
		SubmittedAt:   f.SubmittedAt.UTC(),
		SubmissionID:  f.SubmissionID,
		Verdict:       f.Verdict.String(),
		WrongBefore:   f.WrongAttemptsBeforeSolve,
	}
}

func (r factRow) toFact() (leaderboard.Fact, error) {
	v, err := leaderboard.ParseVerdict(r.Verdict)
	if err != nil {
		return leaderboard.Fact{}, err
	}
	return leaderboard.Fact{
		ContestID:                r.ContestID,
		ParticipantID:            r.ParticipantID,
		ProblemID:                r.ProblemID,
		SubmissionID:             r.SubmissionID,
		Verdict:                  v,
		SubmittedAt:              r.SubmittedAt.UTC(),
		WrongAttemptsBeforeSolve: r.WrongBefore,
	}, nil
}

// Platform-owned tables, read only.

type contestRow struct {
	ID        string `gorm:"primaryKey"`
	Title     string
	StartTime time.Time
	EndTime   *time.Time
}

func (contestRow) TableName() string {
	return "contests"
}

type contestProblemRow struct {
	ContestID string
	ProblemID string
	Position  int
}

func (contestProblemRow) TableName() string {
	return "contest_problems"
}

type registrationRow struct {
	ContestID  string
	UserID     string
	Name       string
	RollNumber string
}

func (registrationRow) TableName() string {
	return "contest_registrations"
}

func (r contestRow) toContest(problems []string) directory.Contest {
	c := directory.Contest{
		ID:        r.ID,
		Title:     r.Title,
		StartTime: r.StartTime.UTC(),
		Problems:  problems,
	}
	if r.EndTime != nil {
		c.EndTime = r.EndTime.UTC()
	}
	return c
}

func (r registrationRow) toParticipant() directory.Participant {
	return directory.Participant{
		UserID:     r.UserID,
		Name:       r.Name,
		RollNumber: r.RollNumber,
	}
}

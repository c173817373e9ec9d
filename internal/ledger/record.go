package ledger

import (
	"context"
	"errors"
	"time"
)

var ErrRecordNotFound = errors.New("ledger record not found")

// Record is the per (contest, participant) disciplinary state. It is never
// deleted. IsDisqualified implies IsFlagged.
type Record struct {
	ContestID      string       `json:"contestId"`
	ParticipantID  string       `json:"participantId"`
	ViolationCount int          `json:"violationCount"`
	IsFlagged      bool         `json:"isFlagged"`
	IsDisqualified bool         `json:"isDisqualified"`
	Violations     []Event      `json:"violations,omitempty"`
	Audit          []AuditEntry `json:"audit,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func (r *Record) State() State {
	switch {
	case r.IsDisqualified:
		return StateDisqualified
	case r.IsFlagged:
		return StateFlagged
	default:
		return StateClean
	}
}

// Event is immutable once appended.
type Event struct {
	ID            string        `json:"id"`
	ContestID     string        `json:"contestId"`
	ParticipantID string        `json:"participantId"`
	Type          ViolationType `json:"violationType"`
	Metadata      string        `json:"metadata,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

type AdminAction string

const (
	ActionDisqualify AdminAction = "DISQUALIFY"
	ActionUnflag     AdminAction = "UNFLAG"
)

type AuditEntry struct {
	ID            string      `json:"id"`
	ContestID     string      `json:"contestId"`
	ParticipantID string      `json:"participantId"`
	Action        AdminAction `json:"action"`
	ActorID       string      `json:"actorId"`
	Reason        string      `json:"reason,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Store persists ledger state. Writes that carry an event or audit entry must
// commit the updated record and the entry atomically.
type Store interface {
	// LoadRecord returns ErrRecordNotFound when nothing was recorded yet.
	// Violations and Audit may be left empty.
	LoadRecord(ctx context.Context, contestID, participantID string) (*Record, error)
	AppendViolation(ctx context.Context, rec *Record, ev Event) error
	SaveAdminAction(ctx context.Context, rec *Record, entry AuditEntry) error
	// ListContest returns every record of the contest with Violations and
	// Audit populated in timestamp order.
	ListContest(ctx context.Context, contestID string) ([]Record, error)
}

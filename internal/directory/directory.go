// Package directory resolves contest and registration metadata owned by the
// wider platform: titles, schedule, problem lists and who is registered.
package directory

import (
	"context"
	"slices"
	"time"
)

type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

type Contest struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	StartTime time.Time `json:"startTime" yaml:"startTime"`
	EndTime   time.Time `json:"endTime" yaml:"endTime"`
	Problems  []string  `json:"problems" yaml:"problems"`
}

// Status is derived from the clock and never stored.
func (c *Contest) Status(now time.Time) Status {
	switch {
	case now.Before(c.StartTime):
		return StatusUpcoming
	case !c.EndTime.IsZero() && now.After(c.EndTime):
		return StatusEnded
	default:
		return StatusActive
	}
}

func (c *Contest) HasProblem(problemID string) bool {
	return slices.Contains(c.Problems, problemID)
}

type Participant struct {
	UserID     string `json:"userId" yaml:"userId"`
	Name       string `json:"name" yaml:"name"`
	RollNumber string `json:"rollNumber" yaml:"rollNumber"`
}

// Directory returns apperrors NotFound errors wrapping ErrUnknownContest or
// ErrUnknownParticipant for ids it does not know.
type Directory interface {
	Contest(ctx context.Context, contestID string) (*Contest, error)
	Participant(ctx context.Context, contestID, userID string) (*Participant, error)
	Participants(ctx context.Context, contestID string) ([]Participant, error)
}

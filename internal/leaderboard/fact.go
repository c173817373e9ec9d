package leaderboard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
)

type Verdict uint8

const (
	VerdictUnknown Verdict = iota
	VerdictSolved
	VerdictWrong
)

func (v Verdict) String() string {
	switch v {
	case VerdictSolved:
		return "SOLVED"
	case VerdictWrong:
		return "WRONG"
	default:
		return "UNKNOWN"
	}
}

func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "SOLVED":
		return VerdictSolved, nil
	case "WRONG":
		return VerdictWrong, nil
	default:
		return VerdictUnknown, fmt.Errorf("%w: verdict %q", apperrors.ErrInvalidFact, s)
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	if v != VerdictSolved && v != VerdictWrong {
		return nil, fmt.Errorf("%w: verdict %d", apperrors.ErrInvalidFact, v)
	}
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	parsed, err := ParseVerdict(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Fact is one judged submission. Facts are append-only and identified by
// (ParticipantID, ProblemID, SubmittedAt) within a contest.
type Fact struct {
	ContestID     string    `json:"contestId"`
	ParticipantID string    `json:"participantId"`
	ProblemID     string    `json:"problemId"`
	SubmissionID  string    `json:"submissionId,omitempty"`
	Verdict       Verdict   `json:"verdict"`
	SubmittedAt   time.Time `json:"submittedAt"`
	// WrongAttemptsBeforeSolve is the judge's running count. Ranking derives
	// its own count from the stored WRONG facts.
	WrongAttemptsBeforeSolve int `json:"wrongAttemptsBeforeSolve"`
}

func (f *Fact) Key() string {
	return f.ParticipantID + "\x00" + f.ProblemID + "\x00" + strconv.FormatInt(f.SubmittedAt.UnixNano(), 10)
}

func (f *Fact) Validate() error {
	switch {
	case f.ContestID == "":
		return apperrors.Client("leaderboard.Validate", fmt.Errorf("%w: contestId is required", apperrors.ErrInvalidFact))
	case f.ParticipantID == "":
		return apperrors.Client("leaderboard.Validate", fmt.Errorf("%w: participantId is required", apperrors.ErrInvalidFact))
	case f.ProblemID == "":
		return apperrors.Client("leaderboard.Validate", fmt.Errorf("%w: problemId is required", apperrors.ErrInvalidFact))
	case f.Verdict != VerdictSolved && f.Verdict != VerdictWrong:
		return apperrors.Client("leaderboard.Validate", fmt.Errorf("%w: verdict must be SOLVED or WRONG", apperrors.ErrInvalidFact))
	case f.SubmittedAt.IsZero():
		return apperrors.Client("leaderboard.Validate", fmt.Errorf("%w: submittedAt is required", apperrors.ErrInvalidFact))
	}
	return nil
}

type FactStore interface {
	// AppendFact reports false when a fact with the same key already exists.
	AppendFact(ctx context.Context, f Fact) (bool, error)
	ListFacts(ctx context.Context, contestID string) ([]Fact, error)
	ContestIDs(ctx context.Context) ([]string, error)
}

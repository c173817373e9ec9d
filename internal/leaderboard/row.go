package leaderboard

import (
	"cmp"
	"slices"
	"time"
)

const PenaltyMinutesPerWrongAttempt = 20

type ProblemCell struct {
	ProblemID     string `json:"problemId"`
	Solved        bool   `json:"solved"`
	WrongAttempts int    `json:"wrongAttempts"`
	// SolveTimeMinutes is minutes from contest start to the accepted
	// submission; zero when unsolved.
	SolveTimeMinutes int `json:"solveTimeMinutesFromContestStart"`
}

type Row struct {
	ParticipantID      string        `json:"participantId"`
	SolvedCount        int           `json:"solvedCount"`
	PenaltyTimeMinutes int           `json:"penaltyTimeMinutes"`
	Problems           []ProblemCell `json:"problems"`
	Rank               int           `json:"rank"`
}

// computeRow scores one participant. byProblem holds that participant's facts
// sorted by SubmittedAt.
func computeRow(participantID string, start time.Time, problems []string, byProblem map[string][]Fact) Row {
	row := Row{
		ParticipantID: participantID,
		Problems:      make([]ProblemCell, 0, len(problems)),
	}

	for _, problemID := range problems {
		cell := ProblemCell{ProblemID: problemID}
		for _, f := range byProblem[problemID] {
			if f.Verdict == VerdictSolved {
				cell.Solved = true
				cell.SolveTimeMinutes = minutesSince(start, f.SubmittedAt)
				break
			}
			cell.WrongAttempts++
		}
		if cell.Solved {
			row.SolvedCount++
			row.PenaltyTimeMinutes += cell.SolveTimeMinutes + PenaltyMinutesPerWrongAttempt*cell.WrongAttempts
		}
		row.Problems = append(row.Problems, cell)
	}

	return row
}

func minutesSince(start, at time.Time) int {
	d := at.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// compareRows is a total order: more solved first, then less penalty, then
// participant id.
func compareRows(a, b Row) int {
	if c := cmp.Compare(b.SolvedCount, a.SolvedCount); c != 0 {
		return c
	}
	if c := cmp.Compare(a.PenaltyTimeMinutes, b.PenaltyTimeMinutes); c != 0 {
		return c
	}
	return cmp.Compare(a.ParticipantID, b.ParticipantID)
}

func orderRows(rows map[string]Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	slices.SortFunc(out, compareRows)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func insertSorted(facts []Fact, f Fact) []Fact {
	i, _ := slices.BinarySearchFunc(facts, f, func(a, b Fact) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	return slices.Insert(facts, i, f)
}

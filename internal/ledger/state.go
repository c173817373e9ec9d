package ledger

import "fmt"

const (
	FlagThreshold       = 3
	DisqualifyThreshold = 7
)

type State uint8

const (
	StateClean State = iota
	StateFlagged
	StateDisqualified
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateFlagged:
		return "flagged"
	case StateDisqualified:
		return "disqualified"
	default:
		return "unknown"
	}
}

// Evaluate maps a violation count onto the disciplinary state.
func Evaluate(count int) State {
	switch {
	case count >= DisqualifyThreshold:
		return StateDisqualified
	case count >= FlagThreshold:
		return StateFlagged
	default:
		return StateClean
	}
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityDanger   Severity = "danger"
	SeverityCritical Severity = "critical"
)

type Warning struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func warningFor(state State, count int) *Warning {
	switch state {
	case StateDisqualified:
		return &Warning{
			Severity: SeverityCritical,
			Message:  "You have been disqualified from this contest. Your work will be submitted automatically.",
		}
	case StateFlagged:
		return &Warning{
			Severity: SeverityDanger,
			Message: fmt.Sprintf("Your attempt has been flagged for review after %d violations. %d more will disqualify you.",
				count, DisqualifyThreshold-count),
		}
	default:
		if count >= FlagThreshold {
			return &Warning{
				Severity: SeverityWarning,
				Message:  "Your flag was cleared after review. Any further violation flags your attempt again.",
			}
		}
		return &Warning{
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Integrity violation recorded (%d). Reaching %d violations flags your attempt for review.",
				count, FlagThreshold),
		}
	}
}

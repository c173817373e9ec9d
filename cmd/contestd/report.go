package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/config"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/hub"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	flaggedStyle = cellStyle.Foreground(lipgloss.Color("#F4D03F"))
	dqStyle      = cellStyle.Foreground(lipgloss.Color("#E74C3C"))
)

// offline wires the services against the configured store with a hub that
// has no connections, so nothing is broadcast.
type offline struct {
	ledger *ledger.Ledger
	engine *leaderboard.Engine
	close  func() error
}

func openOffline(ctx context.Context) (*offline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := cfg.Log.Logger().Level(zerolog.WarnLevel)

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	m := metrics.New(prometheus.NewRegistry())
	h := hub.NewHub(hub.DefaultConfig(), m, logger)
	return &offline{
		ledger: ledger.New(b.ledger, b.directory, h, m, logger),
		engine: leaderboard.NewEngine(b.facts, b.directory, h, m, logger),
		close:  b.close,
	}, nil
}

func runStandings(cmd *cobra.Command, args []string) error {
	svc, err := openOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.close()

	rows, err := svc.engine.GetLeaderboard(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	return renderStandings(cmd.OutOrStdout(), args[0], rows)
}

func runViolations(cmd *cobra.Command, args []string) error {
	svc, err := openOffline(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.close()

	summary, err := svc.ledger.GetContestViolations(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), summary)
	}
	return renderViolations(cmd.OutOrStdout(), summary)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// problemCell renders one ICPC cell: "+" solved first try, "+2" solved after
// two wrong attempts, "-3" three wrong attempts, empty untouched.
func problemCell(c leaderboard.ProblemCell) string {
	switch {
	case c.Solved && c.WrongAttempts == 0:
		return fmt.Sprintf("+ (%d)", c.SolveTimeMinutes)
	case c.Solved:
		return fmt.Sprintf("+%d (%d)", c.WrongAttempts, c.SolveTimeMinutes)
	case c.WrongAttempts > 0:
		return "-" + strconv.Itoa(c.WrongAttempts)
	default:
		return ""
	}
}

func renderStandings(w io.Writer, contestID string, rows []leaderboard.Row) error {
	headers := []string{"Rank", "Participant", "Solved", "Penalty"}
	if len(rows) > 0 {
		for _, c := range rows[0].Problems {
			headers = append(headers, c.ProblemID)
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		cells := []string{
			strconv.Itoa(r.Rank),
			r.ParticipantID,
			strconv.Itoa(r.SolvedCount),
			strconv.Itoa(r.PenaltyTimeMinutes),
		}
		for _, c := range r.Problems {
			cells = append(cells, problemCell(c))
		}
		t.Row(cells...)
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", titleStyle.Render("Standings · "+contestID), t.Render())
	return err
}

func renderViolations(w io.Writer, s *ledger.Summary) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Participant", "Name", "Roll", "Count", "State", "Online").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(s.Participants) {
				return cellStyle
			}
			p := s.Participants[row]
			switch {
			case p.IsDisqualified:
				return dqStyle
			case p.IsFlagged:
				return flaggedStyle
			default:
				return cellStyle
			}
		})
	for _, p := range s.Participants {
		state := "clean"
		switch {
		case p.IsDisqualified:
			state = "disqualified"
		case p.IsFlagged:
			state = "flagged"
		}
		online := ""
		if p.Online {
			online = "yes"
		}
		t.Row(p.ParticipantID, p.Name, p.RollNumber, strconv.Itoa(p.ViolationCount), state, online)
	}

	header := fmt.Sprintf("Violations · %s (%s)", s.ContestTitle, s.ContestID)
	totals := strings.Join([]string{
		"total " + strconv.Itoa(s.TotalViolations),
		"flagged " + strconv.Itoa(s.FlaggedCount),
		"disqualified " + strconv.Itoa(s.DisqualifiedCount),
	}, " · ")
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", titleStyle.Render(header), t.Render(), totals)
	return err
}

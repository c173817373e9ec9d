package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	outputJSON bool

	rootCmd = &cobra.Command{
		Use:   "contestd",
		Short: "Contest integrity ledger and live leaderboard service",
		Long: `contestd records proctoring violations, ranks contest submissions
ICPC style and pushes both to connected clients over websockets.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and Kafka consumer service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	standingsCmd = &cobra.Command{
		Use:   "standings [contestId]",
		Short: "Print the leaderboard of a contest from stored submission facts",
		Args:  cobra.ExactArgs(1),
		RunE:  runStandings,
	}

	violationsCmd = &cobra.Command{
		Use:   "violations [contestId]",
		Short: "Print the violation summary of a contest",
		Args:  cobra.ExactArgs(1),
		RunE:  runViolations,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (environment variables override it)")
	standingsCmd.Flags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")
	violationsCmd.Flags().BoolVar(&outputJSON, "json", false, "print JSON instead of a table")

	rootCmd.AddCommand(serveCmd, standingsCmd, violationsCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/events"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
)

var (
	contestID   string
	problemID   string
	verdict     string
	minutesAgo  int
	problemList []string
)

var rootCmd = &cobra.Command{
	Use:   "judgefeed",
	Short: "Publish sample judge events for local testing",
}

var judgedCmd = &cobra.Command{
	Use:   "judged [user-id]",
	Short: "Publish one submission.judged event",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJudged,
}

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "Publish a contest.problems_changed event",
	RunE:  runProblems,
}

func init() {
	judgedCmd.Flags().StringVar(&contestID, "contest", "", "contest id; empty sends a practice submission")
	judgedCmd.Flags().StringVar(&problemID, "problem", "A", "problem id")
	judgedCmd.Flags().StringVar(&verdict, "verdict", events.VerdictAccepted, "judge verdict")
	judgedCmd.Flags().IntVar(&minutesAgo, "minutes-ago", 0, "backdate submittedAt by this many minutes")

	problemsCmd.Flags().StringVar(&contestID, "contest", "", "contest id")
	problemsCmd.Flags().StringSliceVar(&problemList, "problems", nil, "ordered problem ids")
	_ = problemsCmd.MarkFlagRequired("contest")

	rootCmd.AddCommand(judgedCmd, problemsCmd)
}

func writer(topic string) *kafka.Writer {
	for _, f := range []string{".env", "../.env"} {
		_ = godotenv.Load(f)
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:9092"
	}

	return &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(brokers, ",")...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
}

func send(ctx context.Context, topic, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	w := writer(topic)
	defer w.Close()

	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		return fmt.Errorf("write to kafka: %w", err)
	}
	fmt.Printf("Sent to %s: %s\n", topic, data)
	return nil
}

func runJudged(cmd *cobra.Command, args []string) error {
	userID := "test-user-123"
	if len(args) > 0 {
		userID = args[0]
	}

	now := time.Now().UTC()
	execTime := 150
	memUsed := 2048

	event := events.SubmissionJudgedEvent{
		SubmissionID:    uuid.New().String(),
		UserID:          userID,
		ProblemID:       problemID,
		Verdict:         verdict,
		ExecutionTimeMs: &execTime,
		MemoryUsedKb:    &memUsed,
		TestCasesPassed: 10,
		TestCasesTotal:  10,
		SubmittedAt:     now.Add(-time.Duration(minutesAgo) * time.Minute).Format(time.RFC3339),
		Timestamp:       now.Format(time.RFC3339),
	}
	if contestID != "" {
		event.ContestID = &contestID
	}
	if verdict == events.VerdictAccepted {
		event.Score = 100
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return send(ctx, events.TopicSubmissionJudged, userID, event)
}

func runProblems(cmd *cobra.Command, args []string) error {
	event := events.ContestProblemsChangedEvent{
		ContestID: contestID,
		Problems:  problemList,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	return send(ctx, events.TopicContestProblemsChanged, contestID, event)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

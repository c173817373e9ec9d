package events

const (
	TopicSubmissionJudged       = "submission.judged"
	TopicContestProblemsChanged = "contest.problems_changed"
)

// Verdicts as emitted by the judge.
const (
	VerdictPending             = "PENDING"
	VerdictJudging             = "JUDGING"
	VerdictAccepted            = "ACCEPTED"
	VerdictWrongAnswer         = "WRONG_ANSWER"
	VerdictTimeLimitExceeded   = "TIME_LIMIT_EXCEEDED"
	VerdictMemoryLimitExceeded = "MEMORY_LIMIT_EXCEEDED"
	VerdictRuntimeError        = "RUNTIME_ERROR"
	VerdictCompilationError    = "COMPILATION_ERROR"
)

type SubmissionJudgedEvent struct {
	SubmissionID    string  `json:"submissionId"`
	UserID          string  `json:"userId"`
	ProblemID       string  `json:"problemId"`
	ContestID       *string `json:"contestId"`
	Verdict         string  `json:"verdict"`
	Score           int     `json:"score"`
	ExecutionTimeMs *int    `json:"executionTimeMs"`
	MemoryUsedKb    *int    `json:"memoryUsedKb"`
	TestCasesPassed int     `json:"testCasesPassed"`
	TestCasesTotal  int     `json:"testCasesTotal"`
	SubmittedAt     string  `json:"submittedAt"`
	Timestamp       string  `json:"timestamp"`
}

// IsFinal reports whether the verdict has left the queue.
func (e SubmissionJudgedEvent) IsFinal() bool {
	return e.Verdict != "" && e.Verdict != VerdictPending && e.Verdict != VerdictJudging
}

type ContestProblemsChangedEvent struct {
	ContestID string   `json:"contestId"`
	Problems  []string `json:"problems"`
	Timestamp string   `json:"timestamp"`
}

package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/directory"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/storage/badger"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alertRecorder struct {
	mu     sync.Mutex
	topics []string
	alerts []protocol.ViolationAlert
}

func (r *alertRecorder) Publish(topic string, payload []byte) int {
	var alert protocol.ViolationAlert
	if err := json.Unmarshal(payload, &alert); err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	if topic == protocol.TopicAdminAlertsGlobal {
		r.alerts = append(r.alerts, alert)
	}
	return 1
}

func (r *alertRecorder) snapshot() ([]string, []protocol.ViolationAlert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...), append([]protocol.ViolationAlert(nil), r.alerts...)
}

type fakePresence struct {
	online map[string]bool
}

func (p fakePresence) GetOnlineUsers(ctx context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if p.online[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type brokenStore struct {
	ledger.Store
}

func (brokenStore) AppendViolation(ctx context.Context, rec *ledger.Record, ev ledger.Event) error {
	return errors.New("disk unavailable")
}

func newDirectory() *directory.Memory {
	dir := directory.NewMemory()
	dir.PutContest(directory.Contest{
		ID:        "c1",
		Title:     "Weekly Round 12",
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
		Problems:  []string{"A", "B"},
	})
	for _, p := range []directory.Participant{
		{UserID: "u1", Name: "Ayesha Rahman", RollNumber: "2021-001"},
		{UserID: "u2", Name: "Tanvir Hasan", RollNumber: "2021-002"},
		{UserID: "u3", Name: "Nusrat Jahan", RollNumber: "2021-003"},
	} {
		dir.Register("c1", p)
	}
	return dir
}

func newLedger(t *testing.T) (*ledger.Ledger, *alertRecorder) {
	t.Helper()
	db, err := badger.Open(badger.InMemoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := &alertRecorder{}
	l := ledger.New(badger.NewLedgerStore(db), newDirectory(), rec, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	return l, rec
}

var participant = ledger.Caller{UserID: "u1"}
var admin = ledger.Caller{UserID: "root", Admin: true}

func report(t *testing.T, l *ledger.Ledger, caller ledger.Caller, n int) *ledger.Result {
	t.Helper()
	var res *ledger.Result
	for i := 0; i < n; i++ {
		var err error
		res, err = l.ReportViolation(context.Background(), caller, "c1", ledger.TabSwitch, "")
		require.NoError(t, err)
	}
	return res
}

func TestReportEscalatesThroughThresholds(t *testing.T) {
	l, rec := newLedger(t)

	res := report(t, l, participant, 2)
	assert.Equal(t, 2, res.ViolationCount)
	assert.False(t, res.IsFlagged)
	assert.Equal(t, ledger.SeverityWarning, res.Warning.Severity)
	topics, _ := rec.snapshot()
	assert.Empty(t, topics)

	res = report(t, l, participant, 1)
	assert.True(t, res.IsFlagged)
	assert.False(t, res.IsDisqualified)
	assert.Equal(t, ledger.SeverityDanger, res.Warning.Severity)

	res = report(t, l, participant, 4)
	assert.Equal(t, 7, res.ViolationCount)
	assert.True(t, res.IsFlagged)
	assert.True(t, res.IsDisqualified)
	assert.Equal(t, ledger.SeverityCritical, res.Warning.Severity)

	topics, alerts := rec.snapshot()
	require.Len(t, alerts, 5)
	assert.Len(t, topics, 10)
	assert.Equal(t, "adminAlerts:c1", topics[0])
	assert.Equal(t, "adminAlertsGlobal", topics[1])
	for i, a := range alerts {
		assert.Equal(t, i+3, a.ViolationCount)
		assert.Equal(t, protocol.MessageType("violation_alert"), a.Type)
		assert.Equal(t, "Weekly Round 12", a.ContestTitle)
		assert.Equal(t, "Ayesha Rahman", a.ParticipantName)
		assert.Equal(t, "2021-001", a.ParticipantRollNumber)
		assert.Equal(t, "TAB_SWITCH", a.ViolationType)
	}
	assert.True(t, alerts[4].IsDisqualified)
}

func TestDisqualifiedParticipantIsTerminal(t *testing.T) {
	l, rec := newLedger(t)
	report(t, l, participant, 7)
	_, before := rec.snapshot()

	res := report(t, l, participant, 3)
	assert.Equal(t, 7, res.ViolationCount)
	assert.True(t, res.IsDisqualified)

	_, after := rec.snapshot()
	assert.Len(t, after, len(before))

	status, err := l.Status(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, status.ViolationCount)
}

func TestUnflagKeepsCountAndNextReportFlagsAgain(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()
	report(t, l, participant, 5)

	res, err := l.Unflag(ctx, admin, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, res.ViolationCount)
	assert.False(t, res.IsFlagged)
	_, alerts := rec.snapshot()
	assert.Equal(t, "MANUAL_UNFLAG", alerts[len(alerts)-1].ViolationType)

	_, before := rec.snapshot()
	res = report(t, l, participant, 1)
	assert.Equal(t, 6, res.ViolationCount)
	assert.True(t, res.IsFlagged)
	assert.False(t, res.IsDisqualified)

	_, after := rec.snapshot()
	require.Len(t, after, len(before)+1)
	assert.True(t, after[len(after)-1].IsFlagged)
	assert.Equal(t, 6, after[len(after)-1].ViolationCount)

	res = report(t, l, participant, 1)
	assert.Equal(t, 7, res.ViolationCount)
	assert.True(t, res.IsFlagged)
	assert.True(t, res.IsDisqualified)
	assert.Equal(t, ledger.SeverityCritical, res.Warning.Severity)

	_, final := rec.snapshot()
	require.Len(t, final, len(after)+1)
	last := final[len(final)-1]
	assert.Equal(t, 7, last.ViolationCount)
	assert.True(t, last.IsDisqualified)
	assert.Equal(t, "TAB_SWITCH", last.ViolationType)
}

func TestUnflagRejectsDisqualified(t *testing.T) {
	l, _ := newLedger(t)
	report(t, l, participant, 7)

	_, err := l.Unflag(context.Background(), admin, "c1", "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrDisqualifiedUnflag)
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestManualDisqualify(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()
	report(t, l, participant, 1)

	_, err := l.Disqualify(ctx, participant, "c1", "u1", "self")
	assert.Equal(t, apperrors.KindForbidden, apperrors.KindOf(err))

	res, err := l.Disqualify(ctx, admin, "c1", "u1", "phone during contest")
	require.NoError(t, err)
	assert.True(t, res.IsDisqualified)
	assert.True(t, res.IsFlagged)
	assert.Equal(t, 1, res.ViolationCount)

	_, alerts := rec.snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, "MANUAL_DISQUALIFY", alerts[0].ViolationType)
	assert.Equal(t, "phone during contest", alerts[0].Metadata)

	_, err = l.Disqualify(ctx, admin, "c1", "u1", "again")
	require.NoError(t, err)
	_, alerts = rec.snapshot()
	assert.Len(t, alerts, 1)

	summary, err := l.GetContestViolations(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, summary.Participants[0].Audit, 1)
	assert.Equal(t, "root", summary.Participants[0].Audit[0].ActorID)
}

func TestAdminReportIsExempt(t *testing.T) {
	l, rec := newLedger(t)

	res, err := l.ReportViolation(context.Background(), admin, "c1", ledger.PasteAttempt, "")
	require.NoError(t, err)
	assert.True(t, res.Exempt)
	assert.Zero(t, res.ViolationCount)
	assert.Nil(t, res.Warning)
	topics, _ := rec.snapshot()
	assert.Empty(t, topics)

	report(t, l, participant, 3)
	_, before := rec.snapshot()
	promoted := ledger.Caller{UserID: participant.UserID, Admin: true}
	res, err = l.ReportViolation(context.Background(), promoted, "c1", ledger.PasteAttempt, "")
	require.NoError(t, err)
	assert.True(t, res.Exempt)
	assert.Equal(t, 3, res.ViolationCount)
	assert.True(t, res.IsFlagged)
	_, after := rec.snapshot()
	assert.Len(t, after, len(before))
}

func TestReportRejectsBadInput(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	_, err := l.ReportViolation(ctx, participant, "c1", ledger.ViolationUnknown, "")
	assert.True(t, apperrors.IsClient(err))
	assert.ErrorIs(t, err, apperrors.ErrInvalidViolationType)

	_, err = l.ReportViolation(ctx, participant, "nope", ledger.TabSwitch, "")
	assert.ErrorIs(t, err, apperrors.ErrUnknownContest)

	_, err = l.ReportViolation(ctx, ledger.Caller{UserID: "stranger"}, "c1", ledger.TabSwitch, "")
	assert.ErrorIs(t, err, apperrors.ErrUnknownParticipant)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	db, err := badger.Open(badger.InMemoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	rec := &alertRecorder{}
	l := ledger.New(brokenStore{badger.NewLedgerStore(db)}, newDirectory(), rec, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	_, err = l.ReportViolation(context.Background(), participant, "c1", ledger.CopyAttempt, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsPersistence(err))

	status, err := l.Status(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.Zero(t, status.ViolationCount)
	assert.Nil(t, status.Warning)
	topics, _ := rec.snapshot()
	assert.Empty(t, topics)
}

func TestConcurrentReportsCrossThresholdsOnce(t *testing.T) {
	l, rec := newLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.ReportViolation(context.Background(), participant, "c1", ledger.FullscreenExit, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	status, err := l.Status(context.Background(), "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, status.ViolationCount)
	assert.True(t, status.IsDisqualified)

	_, alerts := rec.snapshot()
	require.Len(t, alerts, 5)
	counts := make(map[int]int)
	disqualified := 0
	for _, a := range alerts {
		counts[a.ViolationCount]++
		if a.IsDisqualified {
			disqualified++
		}
	}
	for c := 3; c <= 7; c++ {
		assert.Equal(t, 1, counts[c], "alerts at count %d", c)
	}
	assert.Equal(t, 1, disqualified)
}

func TestContestSummary(t *testing.T) {
	l, _ := newLedger(t)
	l.SetPresence(fakePresence{online: map[string]bool{"u2": true}})

	report(t, l, ledger.Caller{UserID: "u1"}, 3)
	report(t, l, ledger.Caller{UserID: "u2"}, 3)
	report(t, l, ledger.Caller{UserID: "u3"}, 7)

	summary, err := l.GetContestViolations(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Weekly Round 12", summary.ContestTitle)
	assert.Equal(t, 13, summary.TotalViolations)
	assert.Equal(t, 3, summary.FlaggedCount)
	assert.Equal(t, 1, summary.DisqualifiedCount)

	require.Len(t, summary.Participants, 3)
	assert.Equal(t, "u3", summary.Participants[0].ParticipantID)
	assert.Equal(t, "u1", summary.Participants[1].ParticipantID)
	assert.Equal(t, "u2", summary.Participants[2].ParticipantID)
	assert.True(t, summary.Participants[2].Online)
	assert.False(t, summary.Participants[1].Online)
	assert.Equal(t, "Nusrat Jahan", summary.Participants[0].Name)
	assert.Len(t, summary.Participants[0].Violations, 7)

	_, err = l.GetContestViolations(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrUnknownContest)
}

package badger

import (
	"context"
	"testing"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(InMemoryConfig(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	db, err := Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	inserted, err := NewFactStore(db).AppendFact(ctx, leaderboard.Fact{
		ContestID: "c1", ParticipantID: "u1", ProblemID: "A",
		Verdict: leaderboard.VerdictSolved, SubmittedAt: time.Unix(1700000000, 0).UTC(),
	})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, db.Close())

	db, err = Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()
	facts, err := NewFactStore(db).ListFacts(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, leaderboard.VerdictSolved, facts[0].Verdict)
}

func TestLedgerRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))

	_, err := store.LoadRecord(ctx, "c1", "u1")
	assert.ErrorIs(t, err, ledger.ErrRecordNotFound)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, vt := range []ledger.ViolationType{ledger.TabSwitch, ledger.PasteAttempt, ledger.DevtoolsOpen} {
		rec := &ledger.Record{
			ContestID:      "c1",
			ParticipantID:  "u1",
			ViolationCount: i + 1,
			IsFlagged:      i+1 >= ledger.FlagThreshold,
			UpdatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.AppendViolation(ctx, rec, ledger.Event{
			ID:            string(rune('a' + i)),
			ContestID:     "c1",
			ParticipantID: "u1",
			Type:          vt,
			Timestamp:     rec.UpdatedAt,
		}))
	}

	rec, err := store.LoadRecord(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.ViolationCount)
	assert.True(t, rec.IsFlagged)
	assert.Empty(t, rec.Violations)

	records, err := store.ListContest(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Violations, 3)
	assert.Equal(t, ledger.TabSwitch, records[0].Violations[0].Type)
	assert.Equal(t, ledger.DevtoolsOpen, records[0].Violations[2].Type)
}

func TestLedgerAuditEntries(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))

	rec := &ledger.Record{ContestID: "c1", ParticipantID: "u1", IsFlagged: true, IsDisqualified: true}
	require.NoError(t, store.SaveAdminAction(ctx, rec, ledger.AuditEntry{
		ID:            "a1",
		ContestID:     "c1",
		ParticipantID: "u1",
		Action:        ledger.ActionDisqualify,
		ActorID:       "admin",
		Reason:        "shared screen",
		Timestamp:     time.Now().UTC(),
	}))

	records, err := store.ListContest(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsDisqualified)
	require.Len(t, records[0].Audit, 1)
	assert.Equal(t, ledger.ActionDisqualify, records[0].Audit[0].Action)
	assert.Equal(t, "shared screen", records[0].Audit[0].Reason)
}

func TestLedgerContestsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := NewLedgerStore(openTestDB(t))

	for _, id := range []string{"c1", "c1/x", "c10"} {
		require.NoError(t, store.AppendViolation(ctx,
			&ledger.Record{ContestID: id, ParticipantID: "u1", ViolationCount: 1},
			ledger.Event{ID: "e", ContestID: id, ParticipantID: "u1", Type: ledger.RightClick, Timestamp: time.Now()}))
	}

	records, err := store.ListContest(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "c1", records[0].ContestID)
	assert.Len(t, records[0].Violations, 1)
}

func TestFactAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewFactStore(openTestDB(t))

	f := leaderboard.Fact{
		ContestID: "c1", ParticipantID: "u1", ProblemID: "A",
		Verdict: leaderboard.VerdictWrong, SubmittedAt: time.Now().UTC(),
	}
	inserted, err := store.AppendFact(ctx, f)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AppendFact(ctx, f)
	require.NoError(t, err)
	assert.False(t, inserted)

	facts, err := store.ListFacts(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestFactContestIDs(t *testing.T) {
	ctx := context.Background()
	store := NewFactStore(openTestDB(t))

	ids, err := store.ContestIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, c := range []string{"beta", "alpha", "beta", "team/finals"} {
		_, err := store.AppendFact(ctx, leaderboard.Fact{
			ContestID: c, ParticipantID: "u1", ProblemID: "A",
			Verdict: leaderboard.VerdictSolved, SubmittedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	ids, err = store.ContestIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta", "team/finals"}, ids)
}

package leaderboard

import (
	"context"
	"sync"
	"time"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/directory"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/protocol"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type Publisher interface {
	Publish(topic string, payload []byte) int
}

type Delta struct {
	ContestID string `json:"contestId"`
	Rows      []Row  `json:"data"`
	Changed   bool   `json:"-"`
}

// feed is shared by every board generation of a contest.
type feed struct {
	mu        sync.Mutex
	published uint64
}

type board struct {
	mu      sync.Mutex
	contest directory.Contest
	facts   map[string]map[string][]Fact
	seen    map[string]struct{}
	rows    map[string]Row
	ordered []Row
	version uint64
	// retired is set once a rebuild replaced the board. Callers holding a
	// retired board must fetch the current one.
	retired bool

	feed *feed
}

type Engine struct {
	store     FactStore
	directory directory.Directory
	publisher Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu       sync.RWMutex
	boards   map[string]*board
	loads    singleflight.Group
	rebuilds sync.Map
}

func NewEngine(store FactStore, dir directory.Directory, pub Publisher, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		directory: dir,
		publisher: pub,
		metrics:   m,
		logger:    logger.With().Str("component", "leaderboard").Logger(),
		boards:    make(map[string]*board),
	}
}

// ApplySubmissionFact persists the fact, rescores its participant and
// publishes the reordered table. Duplicates are accepted and leave the table
// untouched.
func (e *Engine) ApplySubmissionFact(ctx context.Context, f Fact) (*Delta, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	b, err := e.board(ctx, f.ContestID)
	if err != nil {
		return nil, err
	}

	if _, err := e.store.AppendFact(ctx, f); err != nil {
		e.metrics.IncFact("error")
		e.logger.Error().Err(err).
			Str("contestId", f.ContestID).
			Str("participantId", f.ParticipantID).
			Msg("Failed to persist submission fact")
		return nil, apperrors.Persistence("leaderboard.ApplySubmissionFact", err)
	}

	start := time.Now()
	b, err = e.lockCurrent(ctx, b)
	if err != nil {
		return nil, err
	}
	key := f.Key()
	if _, dup := b.seen[key]; dup {
		rows := b.ordered
		b.mu.Unlock()
		e.metrics.IncFact("duplicate")
		return &Delta{ContestID: f.ContestID, Rows: rows}, nil
	}
	b.add(f)
	b.rescore(f.ParticipantID)
	rows, version := b.ordered, b.version
	b.mu.Unlock()
	e.metrics.ObserveRecompute(time.Since(start).Seconds())
	e.metrics.IncFact("applied")

	e.logger.Debug().
		Str("contestId", f.ContestID).
		Str("participantId", f.ParticipantID).
		Str("problemId", f.ProblemID).
		Str("verdict", f.Verdict.String()).
		Msg("Applied submission fact")

	e.publish(b, rows, version)
	return &Delta{ContestID: f.ContestID, Rows: rows, Changed: true}, nil
}

func (e *Engine) GetLeaderboard(ctx context.Context, contestID string) ([]Row, error) {
	b, err := e.board(ctx, contestID)
	if err != nil {
		return nil, err
	}
	b, err = e.lockCurrent(ctx, b)
	if err != nil {
		return nil, err
	}
	defer b.mu.Unlock()
	return b.ordered, nil
}

// lockCurrent locks b, moving on to the contest's current board if a rebuild
// retired b in the meantime.
func (e *Engine) lockCurrent(ctx context.Context, b *board) (*board, error) {
	for {
		b.mu.Lock()
		if !b.retired {
			return b, nil
		}
		contestID := b.contest.ID
		b.mu.Unlock()

		next, err := e.board(ctx, contestID)
		if err != nil {
			return nil, err
		}
		b = next
	}
}

// Rebuild recomputes the contest board from stored facts and swaps it in.
// Used when the contest problem list changes. Facts applied to the old board
// while the new one was loading are carried over.
func (e *Engine) Rebuild(ctx context.Context, contestID string) ([]Row, error) {
	gate, _ := e.rebuilds.LoadOrStore(contestID, &sync.Mutex{})
	gate.(*sync.Mutex).Lock()
	defer gate.(*sync.Mutex).Unlock()

	fresh, err := e.load(ctx, contestID)
	if err != nil {
		return nil, err
	}

	fresh.mu.Lock()
	e.mu.Lock()
	old := e.boards[contestID]
	e.boards[contestID] = fresh
	e.mu.Unlock()

	carried := 0
	if old != nil {
		old.mu.Lock()
		old.retired = true
		fresh.feed = old.feed
		fresh.version += old.version
		for _, byProblem := range old.facts {
			for _, facts := range byProblem {
				for _, f := range facts {
					if _, ok := fresh.seen[f.Key()]; ok {
						continue
					}
					fresh.add(f)
					fresh.rescore(f.ParticipantID)
					carried++
				}
			}
		}
		old.mu.Unlock()
	}
	rows, version := fresh.ordered, fresh.version
	fresh.mu.Unlock()

	e.logger.Info().
		Str("contestId", contestID).
		Int("rows", len(rows)).
		Int("problems", len(fresh.contest.Problems)).
		Int("carried", carried).
		Msg("Leaderboard rebuilt")

	e.publish(fresh, rows, version)
	return rows, nil
}

// WarmUp loads every contest that has stored facts.
func (e *Engine) WarmUp(ctx context.Context) error {
	ids, err := e.store.ContestIDs(ctx)
	if err != nil {
		return apperrors.Persistence("leaderboard.WarmUp", err)
	}
	for _, id := range ids {
		if _, err := e.board(ctx, id); err != nil {
			e.logger.Warn().Err(err).Str("contestId", id).Msg("Skipping contest during warm up")
		}
	}
	e.logger.Info().Int("contests", len(ids)).Msg("Leaderboards warmed up")
	return nil
}

func (e *Engine) board(ctx context.Context, contestID string) (*board, error) {
	e.mu.RLock()
	b := e.boards[contestID]
	e.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	v, err, _ := e.loads.Do(contestID, func() (interface{}, error) {
		e.mu.RLock()
		existing := e.boards[contestID]
		e.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		loaded, err := e.load(ctx, contestID)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if existing := e.boards[contestID]; existing != nil {
			return existing, nil
		}
		e.boards[contestID] = loaded
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*board), nil
}

func (e *Engine) load(ctx context.Context, contestID string) (*board, error) {
	contest, err := e.directory.Contest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	facts, err := e.store.ListFacts(ctx, contestID)
	if err != nil {
		return nil, apperrors.Persistence("leaderboard.load", err)
	}

	b := &board{
		contest: *contest,
		facts:   make(map[string]map[string][]Fact),
		seen:    make(map[string]struct{}),
		rows:    make(map[string]Row),
		feed:    &feed{},
	}

	participants, err := e.directory.Participants(ctx, contestID)
	if err != nil {
		e.logger.Warn().Err(err).Str("contestId", contestID).Msg("Building board without registrations")
	}
	for _, p := range participants {
		if _, ok := b.facts[p.UserID]; !ok {
			b.facts[p.UserID] = make(map[string][]Fact)
		}
	}
	for _, f := range facts {
		if _, dup := b.seen[f.Key()]; dup {
			continue
		}
		b.add(f)
	}

	start := time.Now()
	for participantID, byProblem := range b.facts {
		b.rows[participantID] = computeRow(participantID, b.contest.StartTime, b.contest.Problems, byProblem)
	}
	b.ordered = orderRows(b.rows)
	b.version = 1
	e.metrics.ObserveRecompute(time.Since(start).Seconds())

	return b, nil
}

func (b *board) add(f Fact) {
	b.seen[f.Key()] = struct{}{}
	byProblem := b.facts[f.ParticipantID]
	if byProblem == nil {
		byProblem = make(map[string][]Fact)
		b.facts[f.ParticipantID] = byProblem
	}
	byProblem[f.ProblemID] = insertSorted(byProblem[f.ProblemID], f)
}

// rescore recomputes one participant's row and re-sorts the table. Caller
// holds b.mu.
func (b *board) rescore(participantID string) {
	b.rows[participantID] = computeRow(participantID, b.contest.StartTime, b.contest.Problems, b.facts[participantID])
	b.ordered = orderRows(b.rows)
	b.version++
}

// publish drops snapshots older than one already sent.
func (e *Engine) publish(b *board, rows []Row, version uint64) {
	b.feed.mu.Lock()
	defer b.feed.mu.Unlock()
	if version <= b.feed.published {
		return
	}

	data, err := protocol.NewLeaderboard(b.contest.ID, rows)
	if err != nil {
		e.logger.Error().Err(err).Str("contestId", b.contest.ID).Msg("Failed to encode leaderboard")
		return
	}
	b.feed.published = version
	e.publisher.Publish(protocol.LeaderboardTopic(b.contest.ID), data)
}

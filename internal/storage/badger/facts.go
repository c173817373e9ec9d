package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/dgraph-io/badger/v4"
)

type FactStore struct {
	db *DB
}

func NewFactStore(db *DB) *FactStore {
	return &FactStore{db: db}
}

var _ leaderboard.FactStore = (*FactStore)(nil)

func (s *FactStore) AppendFact(ctx context.Context, f leaderboard.Fact) (bool, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return false, fmt.Errorf("encode fact: %w", err)
	}

	key := factKey(f.ContestID, f.ParticipantID, f.ProblemID, f.SubmittedAt)
	var inserted bool
	for attempt := 0; attempt < 3; attempt++ {
		inserted, err = s.insert(ctx, key, f.ContestID, data)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return false, fmt.Errorf("append fact: %w", err)
	}
	return inserted, nil
}

// insert loses a concurrent race with badger.ErrConflict; the retry then sees
// the winner's key and reports a duplicate.
func (s *FactStore) insert(ctx context.Context, key []byte, contestID string, data []byte) (bool, error) {
	inserted := false
	err := s.db.update(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		inserted = true
		return txn.Set(factContestKey(contestID), nil)
	})
	return inserted, err
}

func (s *FactStore) ListFacts(ctx context.Context, contestID string) ([]leaderboard.Fact, error) {
	var facts []leaderboard.Fact
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, factPrefix(contestID), func(_, value []byte) error {
			var f leaderboard.Fact
			if err := json.Unmarshal(value, &f); err != nil {
				return err
			}
			facts = append(facts, f)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	return facts, nil
}

func (s *FactStore) ContestIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixFactContests), func(key, _ []byte) error {
			id, err := contestFromIndexKey(key)
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list fact contests: %w", err)
	}
	return ids, nil
}

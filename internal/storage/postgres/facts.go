package postgres

import (
	"context"
	"fmt"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"gorm.io/gorm/clause"
)

type FactStore struct {
	db *DB
}

func NewFactStore(db *DB) *FactStore {
	return &FactStore{db: db}
}

var _ leaderboard.FactStore = (*FactStore)(nil)

// AppendFact relies on the fact-identity primary key. Postgres keeps
// microseconds, so facts closer together than that collapse into one.
func (s *FactStore) AppendFact(ctx context.Context, f leaderboard.Fact) (bool, error) {
	row := factRowFrom(f)
	res := s.db.gorm.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("append fact: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *FactStore) ListFacts(ctx context.Context, contestID string) ([]leaderboard.Fact, error) {
	var rows []factRow
	err := s.db.gorm.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("submitted_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}

	facts := make([]leaderboard.Fact, 0, len(rows))
	for _, r := range rows {
		f, err := r.toFact()
		if err != nil {
			return nil, fmt.Errorf("decode fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

func (s *FactStore) ContestIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.gorm.WithContext(ctx).
		Model(&factRow{}).
		Distinct("contest_id").
		Order("contest_id").
		Pluck("contest_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list fact contests: %w", err)
	}
	return ids, nil
}

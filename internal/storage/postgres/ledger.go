package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerStore struct {
	db *DB
}

func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

var _ ledger.Store = (*LedgerStore)(nil)

func (s *LedgerStore) LoadRecord(ctx context.Context, contestID, participantID string) (*ledger.Record, error) {
	var row recordRow
	err := s.db.gorm.WithContext(ctx).
		Where("contest_id = ? AND participant_id = ?", contestID, participantID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledger.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger record: %w", err)
	}
	rec := row.toRecord()
	return &rec, nil
}

func (s *LedgerStore) AppendViolation(ctx context.Context, rec *ledger.Record, ev ledger.Event) error {
	row := eventRowFrom(ev)
	return s.saveWith(ctx, rec, &row)
}

func (s *LedgerStore) SaveAdminAction(ctx context.Context, rec *ledger.Record, entry ledger.AuditEntry) error {
	row := auditRowFrom(entry)
	return s.saveWith(ctx, rec, &row)
}

// saveWith upserts the record and inserts one history row in a single
// transaction.
func (s *LedgerStore) saveWith(ctx context.Context, rec *ledger.Record, history interface{}) error {
	head := recordRowFrom(rec)
	err := s.db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(history).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "contest_id"}, {Name: "participant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"violation_count", "is_flagged", "is_disqualified", "updated_at"}),
		}).Create(&head).Error
	})
	if err != nil {
		return fmt.Errorf("save ledger record: %w", err)
	}
	return nil
}

func (s *LedgerStore) ListContest(ctx context.Context, contestID string) ([]ledger.Record, error) {
	var (
		heads  []recordRow
		events []eventRow
		audits []auditRow
	)
	db := s.db.gorm.WithContext(ctx)
	if err := db.Where("contest_id = ?", contestID).Order("participant_id").Find(&heads).Error; err != nil {
		return nil, fmt.Errorf("list contest ledger: %w", err)
	}
	if err := db.Where("contest_id = ?", contestID).Order("created_at, id").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list violation events: %w", err)
	}
	if err := db.Where("contest_id = ?", contestID).Order("created_at, id").Find(&audits).Error; err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	records := make([]ledger.Record, len(heads))
	index := make(map[string]*ledger.Record, len(heads))
	for i, h := range heads {
		records[i] = h.toRecord()
		index[h.ParticipantID] = &records[i]
	}
	for _, e := range events {
		rec, ok := index[e.ParticipantID]
		if !ok {
			continue
		}
		ev, err := e.toEvent()
		if err != nil {
			return nil, fmt.Errorf("decode violation event %s: %w", e.ID, err)
		}
		rec.Violations = append(rec.Violations, ev)
	}
	for _, a := range audits {
		if rec, ok := index[a.ParticipantID]; ok {
			rec.Audit = append(rec.Audit, a.toEntry())
		}
	}
	return records, nil
}

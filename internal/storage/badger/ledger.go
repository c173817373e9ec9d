package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
	"github.com/dgraph-io/badger/v4"
)

type LedgerStore struct {
	db *DB
}

func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

var _ ledger.Store = (*LedgerStore)(nil)

func (s *LedgerStore) LoadRecord(ctx context.Context, contestID, participantID string) (*ledger.Record, error) {
	var rec ledger.Record
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(contestID, participantID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ledger.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ledger record: %w", err)
	}
	return &rec, nil
}

func (s *LedgerStore) AppendViolation(ctx context.Context, rec *ledger.Record, ev ledger.Event) error {
	evData, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode violation event: %w", err)
	}
	return s.saveWith(ctx, rec, eventKey(ev.ContestID, ev.ParticipantID, ev.Timestamp, ev.ID), evData)
}

func (s *LedgerStore) SaveAdminAction(ctx context.Context, rec *ledger.Record, entry ledger.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}
	return s.saveWith(ctx, rec, auditKey(entry.ContestID, entry.ParticipantID, entry.Timestamp, entry.ID), data)
}

// saveWith writes the record and one history entry in a single transaction.
func (s *LedgerStore) saveWith(ctx context.Context, rec *ledger.Record, key, value []byte) error {
	head := *rec
	head.Violations = nil
	head.Audit = nil
	recData, err := json.Marshal(head)
	if err != nil {
		return fmt.Errorf("encode ledger record: %w", err)
	}

	err = s.db.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(recordKey(rec.ContestID, rec.ParticipantID), recData)
	})
	if err != nil {
		return fmt.Errorf("save ledger record: %w", err)
	}
	return nil
}

func (s *LedgerStore) ListContest(ctx context.Context, contestID string) ([]ledger.Record, error) {
	var records []ledger.Record
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		err := scan(txn, recordPrefix(contestID), func(_, value []byte) error {
			var rec ledger.Record
			if err := json.Unmarshal(value, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
		if err != nil {
			return err
		}

		for i := range records {
			r := &records[i]
			err := scan(txn, eventPrefix(r.ContestID, r.ParticipantID), func(_, value []byte) error {
				var ev ledger.Event
				if err := json.Unmarshal(value, &ev); err != nil {
					return err
				}
				r.Violations = append(r.Violations, ev)
				return nil
			})
			if err != nil {
				return err
			}
			err = scan(txn, auditPrefix(r.ContestID, r.ParticipantID), func(_, value []byte) error {
				var entry ledger.AuditEntry
				if err := json.Unmarshal(value, &entry); err != nil {
					return err
				}
				r.Audit = append(r.Audit, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list contest ledger: %w", err)
	}
	return records, nil
}

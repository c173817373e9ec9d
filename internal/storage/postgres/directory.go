package postgres

import (
	"context"
	"errors"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/apperrors"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/directory"
	"gorm.io/gorm"
)

// Directory reads contests and registrations from the platform tables.
type Directory struct {
	db *DB
}

func NewDirectory(db *DB) *Directory {
	return &Directory{db: db}
}

var _ directory.Directory = (*Directory)(nil)

func (d *Directory) contest(ctx context.Context, op, contestID string) (*contestRow, error) {
	var row contestRow
	err := d.db.gorm.WithContext(ctx).Where("id = ?", contestID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound(op, apperrors.ErrUnknownContest)
	}
	if err != nil {
		return nil, apperrors.Persistence(op, err)
	}
	return &row, nil
}

func (d *Directory) Contest(ctx context.Context, contestID string) (*directory.Contest, error) {
	row, err := d.contest(ctx, "directory.Contest", contestID)
	if err != nil {
		return nil, err
	}

	var problems []string
	err = d.db.gorm.WithContext(ctx).
		Model(&contestProblemRow{}).
		Where("contest_id = ?", contestID).
		Order("position, problem_id").
		Pluck("problem_id", &problems).Error
	if err != nil {
		return nil, apperrors.Persistence("directory.Contest", err)
	}

	c := row.toContest(problems)
	return &c, nil
}

func (d *Directory) Participant(ctx context.Context, contestID, userID string) (*directory.Participant, error) {
	if _, err := d.contest(ctx, "directory.Participant", contestID); err != nil {
		return nil, err
	}

	var row registrationRow
	err := d.db.gorm.WithContext(ctx).
		Where("contest_id = ? AND user_id = ?", contestID, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("directory.Participant", apperrors.ErrUnknownParticipant)
	}
	if err != nil {
		return nil, apperrors.Persistence("directory.Participant", err)
	}
	p := row.toParticipant()
	return &p, nil
}

func (d *Directory) Participants(ctx context.Context, contestID string) ([]directory.Participant, error) {
	if _, err := d.contest(ctx, "directory.Participants", contestID); err != nil {
		return nil, err
	}

	var rows []registrationRow
	err := d.db.gorm.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Persistence("directory.Participants", err)
	}

	out := make([]directory.Participant, len(rows))
	for i, r := range rows {
		out[i] = r.toParticipant()
	}
	return out, nil
}

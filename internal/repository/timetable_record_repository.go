package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// TimetableRecordRepository replaces both record tables atomically.
type TimetableRecordRepository struct {
	db          *sqlx.DB
	assignments *AssignmentRecordRepository
	slots       *TimetableSlotRepository
}

// NewTimetableRecordRepository constructs the repository.
func NewTimetableRecordRepository(db *sqlx.DB) *TimetableRecordRepository {
	return &TimetableRecordRepository{
		db:          db,
		assignments: NewAssignmentRecordRepository(db),
		slots:       NewTimetableSlotRepository(db),
	}
}

// ReplaceAll swaps the stored assignment and timetable rows in one transaction.
func (r *TimetableRecordRepository) ReplaceAll(ctx context.Context, assignments []models.AssignmentRecord, timetable []models.TimetableRecord) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timetable import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.assignments.Replace(ctx, tx, assignments); err != nil {
		return err
	}
	if err = r.slots.Replace(ctx, tx, timetable); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit timetable import: %w", err)
	}
	return nil
}

// ListAssignments returns the stored assignment rows.
func (r *TimetableRecordRepository) ListAssignments(ctx context.Context) ([]models.AssignmentRecord, error) {
	return r.assignments.List(ctx)
}

// ListTimetable returns the stored timetable rows.
func (r *TimetableRecordRepository) ListTimetable(ctx context.Context) ([]models.TimetableRecord, error) {
	return r.slots.List(ctx)
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// TimetableSlotRepository stores raw master timetable rows. Weekday and period tokens are kept
// unparsed so a rebuild applies the current parsing rules.
type TimetableSlotRepository struct {
	db *sqlx.DB
}

// NewTimetableSlotRepository builds the repository.
func NewTimetableSlotRepository(db *sqlx.DB) *TimetableSlotRepository {
	return &TimetableSlotRepository{db: db}
}

func (r *TimetableSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Replace deletes every stored row and inserts rows in order.
func (r *TimetableSlotRepository) Replace(ctx context.Context, exec sqlx.ExtContext, rows []models.TimetableRecord) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM timetable_slot_rows`); err != nil {
		return fmt.Errorf("clear timetable rows: %w", err)
	}

	const query = `
INSERT INTO timetable_slot_rows (class_id, subject, weekday_token, period_token, position)
VALUES (:class_id, :subject, :weekday_token, :period_token, :position)`

	for i := range rows {
		row := rows[i]
		if row.Position == 0 {
			row.Position = i + 1
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, row); err != nil {
			return fmt.Errorf("insert timetable row %d: %w", row.Position, err)
		}
	}
	return nil
}

// List returns every stored row in import order.
func (r *TimetableSlotRepository) List(ctx context.Context) ([]models.TimetableRecord, error) {
	const query = `SELECT class_id, subject, weekday_token, period_token, position FROM timetable_slot_rows ORDER BY position ASC`
	var rows []models.TimetableRecord
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list timetable rows: %w", err)
	}
	return rows, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// AssignmentRecordRepository stores raw teacher-assignment rows as imported.
type AssignmentRecordRepository struct {
	db *sqlx.DB
}

// NewAssignmentRecordRepository constructs the repository.
func NewAssignmentRecordRepository(db *sqlx.DB) *AssignmentRecordRepository {
	return &AssignmentRecordRepository{db: db}
}

func (r *AssignmentRecordRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Replace deletes every stored row and inserts rows in order. Positions are assigned when missing.
func (r *AssignmentRecordRepository) Replace(ctx context.Context, exec sqlx.ExtContext, rows []models.AssignmentRecord) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM timetable_assignment_rows`); err != nil {
		return fmt.Errorf("clear assignment rows: %w", err)
	}

	const query = `
INSERT INTO timetable_assignment_rows (class_id, subject, teacher_field, position)
VALUES (:class_id, :subject, :teacher_field, :position)`

	for i := range rows {
		row := rows[i]
		if row.Position == 0 {
			row.Position = i + 1
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, row); err != nil {
			return fmt.Errorf("insert assignment row %d: %w", row.Position, err)
		}
	}
	return nil
}

// List returns every stored row in import order.
func (r *AssignmentRecordRepository) List(ctx context.Context) ([]models.AssignmentRecord, error) {
	const query = `SELECT class_id, subject, teacher_field, position FROM timetable_assignment_rows ORDER BY position ASC`
	var rows []models.AssignmentRecord
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list assignment rows: %w", err)
	}
	return rows, nil
}

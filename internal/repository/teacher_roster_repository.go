package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TeacherRosterRepository reads the preferred teacher ordering.
type TeacherRosterRepository struct {
	db *sqlx.DB
}

// NewTeacherRosterRepository constructs the repository.
func NewTeacherRosterRepository(db *sqlx.DB) *TeacherRosterRepository {
	return &TeacherRosterRepository{db: db}
}

// Names returns roster names by sort order, ties broken by name.
func (r *TeacherRosterRepository) Names(ctx context.Context) ([]string, error) {
	const query = `SELECT name FROM teacher_roster ORDER BY sort_order ASC, name ASC`
	var names []string
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("list teacher roster: %w", err)
	}
	return names, nil
}

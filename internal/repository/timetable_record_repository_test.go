package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

func newTimetableRecordMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTimetableRecordRepositoryReplaceAll(t *testing.T) {
	db, mock, cleanup := newTimetableRecordMock(t)
	defer cleanup()
	repo := NewTimetableRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM timetable_assignment_rows").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO timetable_assignment_rows").
		WithArgs("701", "國文", "A/B", 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM timetable_slot_rows").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("INSERT INTO timetable_slot_rows").
		WithArgs("701", "國文", "三", "第3節", 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO timetable_slot_rows").
		WithArgs("701", "國文", "四", "第1節", 7).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ReplaceAll(context.Background(),
		[]models.AssignmentRecord{{ClassID: "701", Subject: "國文", TeacherField: "A/B"}},
		[]models.TimetableRecord{
			{ClassID: "701", Subject: "國文", WeekdayToken: "三", PeriodToken: "第3節"},
			{ClassID: "701", Subject: "國文", WeekdayToken: "四", PeriodToken: "第1節", Position: 7},
		})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRecordRepositoryReplaceAllRollsBack(t *testing.T) {
	db, mock, cleanup := newTimetableRecordMock(t)
	defer cleanup()
	repo := NewTimetableRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM timetable_assignment_rows").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM timetable_slot_rows").WillReturnError(errors.New("relation missing"))
	mock.ExpectRollback()

	err := repo.ReplaceAll(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear timetable rows")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRecordRepositoryLists(t *testing.T) {
	db, mock, cleanup := newTimetableRecordMock(t)
	defer cleanup()
	repo := NewTimetableRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT class_id, subject, teacher_field, position FROM timetable_assignment_rows ORDER BY position ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "subject", "teacher_field", "position"}).
			AddRow("701", "國文", "A/B", 1).
			AddRow("701", "英文", "C", 2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT class_id, subject, weekday_token, period_token, position FROM timetable_slot_rows ORDER BY position ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"class_id", "subject", "weekday_token", "period_token", "position"}).
			AddRow("701", "國文", "三", "第3節", 1))

	assignments, err := repo.ListAssignments(context.Background())
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.Equal(t, "A/B", assignments[0].TeacherField)

	timetable, err := repo.ListTimetable(context.Background())
	require.NoError(t, err)
	require.Len(t, timetable, 1)
	assert.Equal(t, "第3節", timetable[0].PeriodToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

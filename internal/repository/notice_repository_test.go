package repository

import (
	"context"
	"database/sql"
	"net/http"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

var noticeColumns = []string{"id", "snapshot_version", "selection", "format", "filename", "storage_path", "reference_date", "created_by", "created_at"}

func TestNoticeRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newTimetableRecordMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO substitution_notices")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.NoticeRecord{
		SnapshotVersion: 3,
		Selection: models.NoticeSelection{Selection: models.Selection{
			Slot:               models.Slot{Day: 3, Period: 3},
			ClassID:            "701",
			Subject:            "國文",
			AbsentTeacher:      "A",
			ReplacementTeacher: "C",
			Kind:               models.ChangeKindSubstitute,
		}},
		Format:        models.NoticeFormatDOCX,
		Filename:      "115.02.11_C_通知單.docx",
		StoragePath:   "notices/115.02.11_C_通知單.docx",
		ReferenceDate: time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		CreatedBy:     "office@example.com",
	}
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)

	rows := sqlmock.NewRows(noticeColumns).
		AddRow(record.ID, 3, []byte(`{"slot":{"day":3,"period":3},"class_id":"701","subject":"國文","absent_teacher":"A","replacement_teacher":"C","kind":"SUBSTITUTE"}`),
			"docx", record.Filename, record.StoragePath, record.ReferenceDate, record.CreatedBy, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, snapshot_version, selection")).
		WithArgs(record.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", found.Selection.ReplacementTeacher)
	assert.Equal(t, models.Slot{Day: 3, Period: 3}, found.Selection.Slot)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoticeRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newTimetableRecordMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectQuery("SELECT id, snapshot_version").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestNoticeRepositoryListRecentClampsLimit(t *testing.T) {
	db, mock, cleanup := newTimetableRecordMock(t)
	defer cleanup()
	repo := NewNoticeRepository(db)

	mock.ExpectQuery("FROM substitution_notices ORDER BY created_at DESC LIMIT").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(noticeColumns))

	records, err := repo.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

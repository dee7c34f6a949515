package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// NoticeRepository keeps the log of issued substitution notices.
type NoticeRepository struct {
	db *sqlx.DB
}

// NewNoticeRepository constructs the repository.
func NewNoticeRepository(db *sqlx.DB) *NoticeRepository {
	return &NoticeRepository{db: db}
}

// Create stores a notice log entry.
func (r *NoticeRepository) Create(ctx context.Context, record *models.NoticeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO substitution_notices
	(id, snapshot_version, selection, format, filename, storage_path, reference_date, created_by, created_at)
	VALUES (:id, :snapshot_version, :selection, :format, :filename, :storage_path, :reference_date, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create notice record: %w", err)
	}
	return nil
}

// GetByID retrieves one notice log entry.
func (r *NoticeRepository) GetByID(ctx context.Context, id string) (*models.NoticeRecord, error) {
	const query = `SELECT id, snapshot_version, selection, format, filename, storage_path, reference_date, created_by, created_at
	FROM substitution_notices WHERE id = $1`
	var record models.NoticeRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notice not found")
		}
		return nil, fmt.Errorf("get notice record: %w", err)
	}
	return &record, nil
}

// ListRecent returns the latest notices, newest first.
func (r *NoticeRepository) ListRecent(ctx context.Context, limit int) ([]models.NoticeRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, snapshot_version, selection, format, filename, storage_path, reference_date, created_by, created_at
	FROM substitution_notices ORDER BY created_at DESC LIMIT $1`
	var records []models.NoticeRecord
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("list notice records: %w", err)
	}
	return records, nil
}

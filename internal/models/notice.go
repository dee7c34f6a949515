package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ChangeKind distinguishes a plain substitution from a lesson swap.
type ChangeKind string

const (
	ChangeKindSubstitute ChangeKind = "SUBSTITUTE"
	ChangeKindSwap       ChangeKind = "SWAP"
)

// Prefix returns the single-character marker rendered before the class id.
func (k ChangeKind) Prefix() string {
	if k == ChangeKindSwap {
		return "調"
	}
	return "代"
}

// Valid reports whether k is a known change kind.
func (k ChangeKind) Valid() bool {
	return k == ChangeKindSubstitute || k == ChangeKindSwap
}

// NoticeFormat enumerates the document formats a notice can be rendered to.
type NoticeFormat string

const (
	NoticeFormatDOCX NoticeFormat = "docx"
	NoticeFormatPDF  NoticeFormat = "pdf"
)

// Selection is the operator's choice of lesson and replacement teacher.
type Selection struct {
	Slot               Slot       `json:"slot"`
	ClassID            string     `json:"class_id"`
	Subject            string     `json:"subject"`
	AbsentTeacher      string     `json:"absent_teacher"`
	ReplacementTeacher string     `json:"replacement_teacher"`
	Kind               ChangeKind `json:"kind"`
}

// NoticeStatus captures batch job lifecycle states.
type NoticeStatus string

const (
	NoticeStatusQueued     NoticeStatus = "QUEUED"
	NoticeStatusProcessing NoticeStatus = "PROCESSING"
	NoticeStatusFinished   NoticeStatus = "FINISHED"
	NoticeStatusFailed     NoticeStatus = "FAILED"
)

// NoticeRecord is the persisted log entry of an issued substitution notice.
type NoticeRecord struct {
	ID              string          `db:"id" json:"id"`
	SnapshotVersion int64           `db:"snapshot_version" json:"snapshot_version"`
	Selection       NoticeSelection `db:"selection" json:"selection"`
	Format          NoticeFormat    `db:"format" json:"format"`
	Filename        string          `db:"filename" json:"filename"`
	StoragePath     string          `db:"storage_path" json:"storage_path"`
	ReferenceDate   time.Time       `db:"reference_date" json:"reference_date"`
	CreatedBy       string          `db:"created_by" json:"created_by"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// NoticeSelection wraps Selection for JSONB persistence.
type NoticeSelection struct {
	Selection
}

// Value marshals the selection to JSON for persistence.
func (s NoticeSelection) Value() (driver.Value, error) {
	data, err := json.Marshal(s.Selection)
	if err != nil {
		return nil, fmt.Errorf("marshal notice selection: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the selection.
func (s *NoticeSelection) Scan(value interface{}) error {
	if value == nil {
		*s = NoticeSelection{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for NoticeSelection", value)
	}
	if len(data) == 0 {
		*s = NoticeSelection{}
		return nil
	}
	if err := json.Unmarshal(data, &s.Selection); err != nil {
		return fmt.Errorf("unmarshal notice selection: %w", err)
	}
	return nil
}

// NoticeJob tracks one item of an asynchronous batch.
type NoticeJob struct {
	ID           string       `json:"id"`
	BatchID      string       `json:"batch_id"`
	Status       NoticeStatus `json:"status"`
	Attempts     int          `json:"attempts"`
	NoticeID     string       `json:"notice_id,omitempty"`
	Filename     string       `json:"filename,omitempty"`
	DownloadURL  string       `json:"download_url,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	FinishedAt   *time.Time   `json:"finished_at,omitempty"`
}

package dto

import (
	"time"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// NoticeRequest selects a lesson of the absent teacher and the teacher covering it.
type NoticeRequest struct {
	AbsentTeacher      string              `json:"absent_teacher" yaml:"absent_teacher" validate:"required"`
	ReplacementTeacher string              `json:"replacement_teacher" yaml:"replacement_teacher" validate:"required,nefield=AbsentTeacher"`
	Day                int                 `json:"day" yaml:"day"`
	Period             int                 `json:"period" yaml:"period"`
	Kind               models.ChangeKind   `json:"kind" yaml:"kind" validate:"omitempty,oneof=SUBSTITUTE SWAP"`
	ClassID            string              `json:"class_id" yaml:"class_id"`
	Subject            string              `json:"subject" yaml:"subject"`
	ReferenceDate      string              `json:"reference_date" yaml:"reference_date" validate:"omitempty,datetime=2006-01-02"`
	Format             models.NoticeFormat `json:"format" yaml:"format" validate:"omitempty,oneof=docx pdf"`
}

// NoticeResponse describes a generated notice. StoragePath is relative to the notice storage directory.
type NoticeResponse struct {
	ID              string              `json:"id"`
	Filename        string              `json:"filename"`
	Format          models.NoticeFormat `json:"format"`
	Selection       models.Selection    `json:"selection"`
	SnapshotVersion int64               `json:"snapshot_version"`
	DownloadURL     string              `json:"download_url,omitempty"`
	ExpiresAt       *time.Time          `json:"expires_at,omitempty"`
	Tags            map[string]string   `json:"tags"`
	StoragePath     string              `json:"-"`
}

// BatchNoticeRequest asks for several notices to be generated in the background.
type BatchNoticeRequest struct {
	Notices []NoticeRequest `json:"notices" yaml:"notices" validate:"required,min=1,max=50,dive"`
}

// BatchNoticeResponse lists the queued jobs of a batch.
type BatchNoticeResponse struct {
	BatchID string             `json:"batch_id"`
	Jobs    []models.NoticeJob `json:"jobs"`
}

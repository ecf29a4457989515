package models

import (
	"time"
)

// AnalysisJob tracks one paid analysis operation. CreditReserved is true
// exactly while the job is pending or processing; completion consumes the
// reservation and failure refunds it, so a terminal job never holds one.
type AnalysisJob struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	UserID         uint       `gorm:"not null;index" json:"user_id"`
	Status         string     `gorm:"size:20;not null;index" json:"status"` // pending, processing, completed, failed
	RetryCount     int        `gorm:"not null;default:0" json:"retry_count"`
	CreditReserved bool       `gorm:"not null;default:false" json:"credit_reserved"`
	ArtifactURL    string     `gorm:"size:512" json:"-"`
	Filename       string     `gorm:"size:255" json:"filename"`
	Keywords       string     `gorm:"size:255" json:"keywords"`
	Deep           bool       `gorm:"default:false" json:"deep"`
	Confidence     float64    `json:"confidence"`
	ProcessingMS   int64      `json:"processing_ms"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message"`
	ErrorKind      string     `gorm:"size:20" json:"error_kind"`
	RetrySuggested bool       `gorm:"default:false" json:"retry_suggested"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

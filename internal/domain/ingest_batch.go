package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	BatchStatusPending     = "pending"
	BatchStatusExtracting  = "extracting"
	BatchStatusClassifying = "classifying"
	BatchStatusProcessing  = "processing"
	BatchStatusCompleted   = "completed"
	BatchStatusFailed      = "failed"
)

const (
	IngestModeChunks       = "chunks"
	IngestModeMentorMemory = "mentor_memory"
)

// IngestBatch is one archive-upload ingestion job. It is created once per
// upload and mutated by the orchestrator until it reaches a terminal status.
type IngestBatch struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// Namespace is the fixed upload target when AutoDetect is off.
	Namespace  string `gorm:"column:namespace;not null" json:"namespace"`
	AutoDetect bool   `gorm:"column:auto_detect;not null;default:false" json:"auto_detect"`
	Mode       string `gorm:"column:mode;not null" json:"mode"`
	Persona    string `gorm:"column:persona" json:"persona,omitempty"`

	Status string `gorm:"column:status;not null;index" json:"status"`

	TotalEpisodes      int `gorm:"column:total_episodes;not null;default:0" json:"total_episodes"`
	ProcessedEpisodes  int `gorm:"column:processed_episodes;not null;default:0" json:"processed_episodes"`
	SuccessfulEpisodes int `gorm:"column:successful_episodes;not null;default:0" json:"successful_episodes"`
	FailedEpisodes     int `gorm:"column:failed_episodes;not null;default:0" json:"failed_episodes"`
	SkippedEpisodes    int `gorm:"column:skipped_episodes;not null;default:0" json:"skipped_episodes"`
	TotalChunks        int `gorm:"column:total_chunks;not null;default:0" json:"total_chunks"`
	DuplicateFiles     int `gorm:"column:duplicate_files;not null;default:0" json:"duplicate_files"`

	Error string `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (IngestBatch) TableName() string { return "ingest_batch" }

// Terminal reports whether the batch can no longer make progress.
func (b *IngestBatch) Terminal() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusFailed
}

package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EpisodeStatusPending    = "pending"
	EpisodeStatusProcessing = "processing"
	EpisodeStatusCompleted  = "completed"
	EpisodeStatusFailed     = "failed"
	EpisodeStatusSkipped    = "skipped"
)

// Episode is one transcript file extracted from an ingest batch archive.
// The raw transcript, the computed chunk list and the per-namespace upload
// progress all live on this row so a restart can resume from any point.
type Episode struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID uuid.UUID `gorm:"type:uuid;not null;index" json:"batch_id"`

	Filename    string `gorm:"column:filename;not null" json:"filename"`
	Transcript  string `gorm:"column:transcript;type:text;not null" json:"-"`
	ContentHash string `gorm:"column:content_hash;not null;index" json:"content_hash"`

	Status string `gorm:"column:status;not null;index" json:"status"`

	PrimaryNamespace   string  `gorm:"column:primary_namespace" json:"primary_namespace,omitempty"`
	SecondaryNamespace string  `gorm:"column:secondary_namespace" json:"secondary_namespace,omitempty"`
	Confidence         float64 `gorm:"column:confidence" json:"confidence,omitempty"`
	Rationale          string  `gorm:"column:rationale" json:"rationale,omitempty"`
	ManualOverride     bool    `gorm:"column:manual_override;not null;default:false" json:"manual_override"`

	// Chunks is the persisted chunk list; once non-empty the content
	// transformation step is never re-run for this episode.
	Chunks          datatypes.JSON `gorm:"column:chunks;type:jsonb" json:"chunks,omitempty"`
	ChunkCount      int            `gorm:"column:chunk_count;not null;default:0" json:"chunk_count"`
	DiscardedChunks int            `gorm:"column:discarded_chunks;not null;default:0" json:"discarded_chunks"`

	// NamespaceProgress maps UPPER(namespace) -> chunks already embedded and
	// upserted into that namespace. Monotone, never exceeds ChunkCount.
	NamespaceProgress datatypes.JSON `gorm:"column:namespace_progress;type:jsonb" json:"namespace_progress,omitempty"`

	Error string `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Episode) TableName() string { return "episode" }

// Terminal reports whether the episode needs no further work.
func (e *Episode) Terminal() bool {
	switch e.Status {
	case EpisodeStatusCompleted, EpisodeStatusFailed, EpisodeStatusSkipped:
		return true
	}
	return false
}

// HasChunks reports whether the chunk list checkpoint is persisted.
func (e *Episode) HasChunks() bool {
	return len(e.Chunks) > 0 && string(e.Chunks) != "null" && e.ChunkCount > 0
}

// DecodeChunks returns the persisted chunk list, or nil when absent.
func (e *Episode) DecodeChunks() ([]Chunk, error) {
	if len(e.Chunks) == 0 || string(e.Chunks) == "null" {
		return nil, nil
	}
	var out []Chunk
	if err := json.Unmarshal(e.Chunks, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeChunks replaces the persisted chunk list and count.
func (e *Episode) EncodeChunks(chunks []Chunk) error {
	raw, err := json.Marshal(chunks)
	if err != nil {
		return err
	}
	e.Chunks = datatypes.JSON(raw)
	e.ChunkCount = len(chunks)
	return nil
}

// Progress returns the per-namespace upload offsets, never nil.
func (e *Episode) Progress() map[string]int {
	out := map[string]int{}
	if len(e.NamespaceProgress) == 0 || string(e.NamespaceProgress) == "null" {
		return out
	}
	_ = json.Unmarshal(e.NamespaceProgress, &out)
	return out
}

// SetProgress records the upload offset for one namespace. Offsets only move
// forward; a lower value than the stored one is ignored.
func (e *Episode) SetProgress(namespace string, uploaded int) error {
	key := NamespaceKey(namespace)
	cur := e.Progress()
	if uploaded < cur[key] {
		uploaded = cur[key]
	}
	if uploaded > e.ChunkCount {
		uploaded = e.ChunkCount
	}
	cur[key] = uploaded
	raw, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	e.NamespaceProgress = datatypes.JSON(raw)
	return nil
}

// NamespaceKey normalizes a namespace name for progress-map lookups.
func NamespaceKey(ns string) string {
	return strings.ToUpper(strings.TrimSpace(ns))
}

// TargetNamespaces returns the namespaces this episode uploads to: predicted
// primary plus optional secondary when the batch auto-detects, otherwise the
// batch's fixed namespace.
func (e *Episode) TargetNamespaces(batch *IngestBatch) []string {
	if batch != nil && batch.AutoDetect {
		targets := []string{}
		if strings.TrimSpace(e.PrimaryNamespace) != "" {
			targets = append(targets, e.PrimaryNamespace)
		}
		if strings.TrimSpace(e.SecondaryNamespace) != "" &&
			NamespaceKey(e.SecondaryNamespace) != NamespaceKey(e.PrimaryNamespace) {
			targets = append(targets, e.SecondaryNamespace)
		}
		if len(targets) > 0 {
			return targets
		}
	}
	if batch != nil && strings.TrimSpace(batch.Namespace) != "" {
		return []string{batch.Namespace}
	}
	return nil
}

// FullyUploaded reports whether every target namespace has received the whole
// chunk list.
func (e *Episode) FullyUploaded(batch *IngestBatch) bool {
	if !e.HasChunks() {
		return false
	}
	targets := e.TargetNamespaces(batch)
	if len(targets) == 0 {
		return false
	}
	progress := e.Progress()
	for _, ns := range targets {
		if progress[NamespaceKey(ns)] < e.ChunkCount {
			return false
		}
	}
	return true
}

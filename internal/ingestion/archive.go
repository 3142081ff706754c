package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	ingestrepo "github.com/sagewell/transcripta-backend/internal/data/repos/ingest"
	"github.com/sagewell/transcripta-backend/internal/domain"
	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
)

// transcriptExtensions are the entry types accepted from an uploaded archive.
var transcriptExtensions = map[string]bool{
	".txt":  true,
	".text": true,
	".md":   true,
	".srt":  true,
	".vtt":  true,
}

const defaultMaxTranscriptBytes = 10 << 20 // 10 MiB per entry

// Extractor unpacks an uploaded archive into Episode rows. Raw text is
// persisted on the row immediately so extraction survives restarts without
// any temp-directory state.
type Extractor struct {
	log         *logger.Logger
	db          *gorm.DB
	batchRepo   ingestrepo.BatchRepo
	episodeRepo ingestrepo.EpisodeRepo

	maxTranscriptBytes int64
}

func NewExtractor(db *gorm.DB, baseLog *logger.Logger, batchRepo ingestrepo.BatchRepo, episodeRepo ingestrepo.EpisodeRepo) *Extractor {
	return &Extractor{
		log:                baseLog.With("component", "Extractor"),
		db:                 db,
		batchRepo:          batchRepo,
		episodeRepo:        episodeRepo,
		maxTranscriptBytes: defaultMaxTranscriptBytes,
	}
}

// Extract reads every acceptable entry of the archive, dedups against
// completed episodes system-wide, and persists the rest as pending episodes.
// A corrupt archive marks the batch failed; episodes created before the
// failure are kept (inert rows, no rollback).
func (x *Extractor) Extract(ctx context.Context, batch *domain.IngestBatch, archive []byte) error {
	if err := x.batchRepo.UpdateFields(ctx, nil, batch.ID, map[string]interface{}{
		"status": domain.BatchStatusExtracting,
	}); err != nil {
		return fmt.Errorf("mark batch extracting: %w", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		msg := fmt.Sprintf("corrupt archive: %v", err)
		_ = x.batchRepo.UpdateFields(ctx, nil, batch.ID, map[string]interface{}{
			"status": domain.BatchStatusFailed,
			"error":  msg,
		})
		return fmt.Errorf("open archive: %w", err)
	}

	var (
		created    int
		duplicates int
		seen       = map[string]bool{}
	)

	for _, f := range zr.File {
		if !acceptEntry(f, x.maxTranscriptBytes) {
			continue
		}

		text, err := readEntry(f, x.maxTranscriptBytes)
		if err != nil {
			msg := fmt.Sprintf("corrupt archive entry %q: %v", f.Name, err)
			_ = x.batchRepo.UpdateFields(ctx, nil, batch.ID, map[string]interface{}{
				"status": domain.BatchStatusFailed,
				"error":  msg,
			})
			return fmt.Errorf("read archive entry %q: %w", f.Name, err)
		}
		text = NormalizeTranscript(text)
		if text == "" {
			continue
		}

		hash := HashContent(text)
		if seen[hash] {
			duplicates++
			continue
		}
		seen[hash] = true

		dup, err := x.episodeRepo.ExistsCompletedByHash(ctx, nil, hash)
		if err != nil {
			return fmt.Errorf("duplicate lookup for %q: %w", f.Name, err)
		}
		if dup {
			x.log.Info("Skipping duplicate transcript",
				"batch_id", batch.ID, "filename", f.Name, "content_hash", hash)
			duplicates++
			continue
		}

		now := time.Now().UTC()
		ep := &domain.Episode{
			ID:          uuid.New(),
			BatchID:     batch.ID,
			Filename:    path.Base(f.Name),
			Transcript:  text,
			ContentHash: hash,
			Status:      domain.EpisodeStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := x.episodeRepo.Create(ctx, nil, []*domain.Episode{ep}); err != nil {
			return fmt.Errorf("persist episode %q: %w", f.Name, err)
		}
		created++
	}

	if err := x.batchRepo.UpdateFields(ctx, nil, batch.ID, map[string]interface{}{
		"total_episodes":  created,
		"duplicate_files": duplicates,
	}); err != nil {
		return fmt.Errorf("record extraction totals: %w", err)
	}

	x.log.Info("Archive extracted",
		"batch_id", batch.ID, "episodes", created, "duplicates", duplicates)
	return nil
}

func acceptEntry(f *zip.File, maxBytes int64) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	name := strings.ReplaceAll(f.Name, "\\", "/")
	for _, part := range strings.Split(name, "/") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, ".") || strings.HasPrefix(part, "~") || part == "__MACOSX" {
			return false
		}
	}
	if !transcriptExtensions[strings.ToLower(path.Ext(name))] {
		return false
	}
	if f.UncompressedSize64 == 0 || int64(f.UncompressedSize64) > maxBytes {
		return false
	}
	return true
}

func readEntry(f *zip.File, maxBytes int64) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(raw)) > maxBytes {
		return "", fmt.Errorf("entry exceeds %d bytes", maxBytes)
	}
	return string(raw), nil
}

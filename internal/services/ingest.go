package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	ingestrepo "github.com/sagewell/transcripta-backend/internal/data/repos/ingest"
	"github.com/sagewell/transcripta-backend/internal/domain"
	"github.com/sagewell/transcripta-backend/internal/ingestion"
	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
)

// UploadRequest carries the validated parameters of one archive upload.
type UploadRequest struct {
	Archive    []byte
	Namespace  string
	AutoDetect bool
	Mode       string
	Persona    string
}

// BatchProgress is the derived progress object for status polling.
type BatchProgress struct {
	Percent    float64 `json:"percent"`
	Processed  int     `json:"processed"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Classified int     `json:"classified"`
}

// BatchStatus is the API view of a batch: the row plus derived progress and
// the per-episode summaries.
type BatchStatus struct {
	Batch    *domain.IngestBatch `json:"batch"`
	Progress BatchProgress       `json:"progress"`
	Episodes []*domain.Episode   `json:"episodes"`
}

type IngestService interface {
	UploadArchive(ctx context.Context, req UploadRequest) (*domain.IngestBatch, error)
	GetStatus(ctx context.Context, batchID uuid.UUID) (*BatchStatus, error)
	RetryFailed(ctx context.Context, batchID uuid.UUID) (*domain.IngestBatch, int, error)
	OverrideNamespace(ctx context.Context, episodeID uuid.UUID, primary, secondary string) (*domain.Episode, error)
	RecoverStuckBatches(ctx context.Context) (int, error)
}

type ingestService struct {
	db  *gorm.DB
	log *logger.Logger

	batchRepo    ingestrepo.BatchRepo
	episodeRepo  ingestrepo.EpisodeRepo
	orchestrator *ingestion.Orchestrator
	recovery     *ingestion.RecoveryScanner
}

func NewIngestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	batchRepo ingestrepo.BatchRepo,
	episodeRepo ingestrepo.EpisodeRepo,
	orchestrator *ingestion.Orchestrator,
	recovery *ingestion.RecoveryScanner,
) IngestService {
	return &ingestService{
		db:           db,
		log:          baseLog.With("service", "IngestService"),
		batchRepo:    batchRepo,
		episodeRepo:  episodeRepo,
		orchestrator: orchestrator,
		recovery:     recovery,
	}
}

// UploadArchive validates the request, creates the batch row and kicks off
// the pipeline in the background. The caller gets the pending batch back
// immediately and polls GetStatus for progress.
func (s *ingestService) UploadArchive(ctx context.Context, req UploadRequest) (*domain.IngestBatch, error) {
	if len(req.Archive) == 0 {
		return nil, fmt.Errorf("archive is empty")
	}

	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = domain.IngestModeChunks
	}
	if mode != domain.IngestModeChunks && mode != domain.IngestModeMentorMemory {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	namespace := domain.NamespaceKey(req.Namespace)
	if !req.AutoDetect {
		if namespace == "" {
			return nil, fmt.Errorf("namespace is required unless auto_detect is set")
		}
		if !ingestion.ValidNamespace(namespace) {
			return nil, fmt.Errorf("unknown namespace %q", namespace)
		}
	}

	now := time.Now().UTC()
	batch := &domain.IngestBatch{
		ID:         uuid.New(),
		Namespace:  namespace,
		AutoDetect: req.AutoDetect,
		Mode:       mode,
		Persona:    strings.TrimSpace(req.Persona),
		Status:     domain.BatchStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.batchRepo.Create(ctx, nil, []*domain.IngestBatch{batch}); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	s.log.Info("Batch accepted",
		"batch_id", batch.ID, "mode", batch.Mode,
		"auto_detect", batch.AutoDetect, "archive_bytes", len(req.Archive))

	s.orchestrator.Kickoff(batch.ID, req.Archive)
	return batch, nil
}

func (s *ingestService) GetStatus(ctx context.Context, batchID uuid.UUID) (*BatchStatus, error) {
	batch, err := s.batchRepo.GetByID(ctx, nil, batchID)
	if err != nil {
		return nil, err
	}
	episodes, err := s.episodeRepo.GetByBatchID(ctx, nil, batchID)
	if err != nil {
		return nil, err
	}
	return &BatchStatus{
		Batch:    batch,
		Progress: batchProgress(batch, episodes),
		Episodes: episodes,
	}, nil
}

// batchProgress derives the progress object. The percentage counts labeled
// episodes while classifying and terminal episodes from processing onward.
func batchProgress(batch *domain.IngestBatch, episodes []*domain.Episode) BatchProgress {
	out := BatchProgress{
		Processed:  batch.ProcessedEpisodes,
		Successful: batch.SuccessfulEpisodes,
		Failed:     batch.FailedEpisodes,
		Skipped:    batch.SkippedEpisodes,
	}
	for _, ep := range episodes {
		if strings.TrimSpace(ep.PrimaryNamespace) != "" {
			out.Classified++
		}
	}

	switch batch.Status {
	case domain.BatchStatusCompleted:
		out.Percent = 1
		return out
	case domain.BatchStatusPending, domain.BatchStatusExtracting:
		return out
	}
	if len(episodes) == 0 {
		return out
	}

	var done int
	if batch.Status == domain.BatchStatusClassifying {
		for _, ep := range episodes {
			if strings.TrimSpace(ep.PrimaryNamespace) != "" || ep.Terminal() {
				done++
			}
		}
	} else {
		for _, ep := range episodes {
			if ep.Terminal() {
				done++
			}
		}
	}
	out.Percent = float64(done) / float64(len(episodes))
	return out
}

// RetryFailed resets the batch's failed episodes and re-runs the pipeline in
// the background. Returns the refreshed batch and the number of resets; the
// caller polls GetStatus for the outcome.
func (s *ingestService) RetryFailed(ctx context.Context, batchID uuid.UUID) (*domain.IngestBatch, int, error) {
	reset, err := s.orchestrator.Retry(ctx, batchID)
	if err != nil {
		return nil, 0, err
	}
	if reset > 0 {
		s.orchestrator.Kickoff(batchID, nil)
	}
	batch, err := s.batchRepo.GetByID(ctx, nil, batchID)
	if err != nil {
		return nil, reset, err
	}
	s.log.Info("Retry accepted", "batch_id", batchID, "reset_episodes", reset)
	return batch, reset, nil
}

// OverrideNamespace pins an episode's labels as human-confirmed. The override
// survives later classification passes; retries will not relabel the episode.
func (s *ingestService) OverrideNamespace(ctx context.Context, episodeID uuid.UUID, primary, secondary string) (*domain.Episode, error) {
	primaryKey := domain.NamespaceKey(primary)
	if !ingestion.ValidNamespace(primaryKey) {
		return nil, fmt.Errorf("unknown namespace %q", primary)
	}
	secondaryKey := domain.NamespaceKey(secondary)
	if secondaryKey != "" {
		if !ingestion.ValidNamespace(secondaryKey) {
			return nil, fmt.Errorf("unknown namespace %q", secondary)
		}
		if secondaryKey == primaryKey {
			secondaryKey = ""
		}
	}

	ep, err := s.episodeRepo.GetByID(ctx, nil, episodeID)
	if err != nil {
		return nil, err
	}

	if err := s.episodeRepo.UpdateFields(ctx, nil, ep.ID, map[string]interface{}{
		"primary_namespace":   primaryKey,
		"secondary_namespace": secondaryKey,
		"manual_override":     true,
	}); err != nil {
		return nil, err
	}

	s.log.Info("Namespace overridden",
		"episode_id", ep.ID, "primary", primaryKey, "secondary", secondaryKey)
	return s.episodeRepo.GetByID(ctx, nil, episodeID)
}

func (s *ingestService) RecoverStuckBatches(ctx context.Context) (int, error) {
	return s.recovery.Scan(ctx)
}

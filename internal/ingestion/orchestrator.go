package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	ingestrepo "github.com/sagewell/transcripta-backend/internal/data/repos/ingest"
	"github.com/sagewell/transcripta-backend/internal/domain"
	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
)

// Orchestrator owns the batch state machine:
//
//	pending → extracting → (classifying) → processing → completed|failed
//
// It persists after every step so Run can be re-entered at any point after a
// crash. Episodes within one batch run strictly sequentially; concurrency
// only exists across batches.
type Orchestrator struct {
	db  *gorm.DB
	log *logger.Logger

	batchRepo   ingestrepo.BatchRepo
	episodeRepo ingestrepo.EpisodeRepo

	extractor  *Extractor
	classifier *Classifier
	processor  *Processor
	uploader   *Uploader

	// episodeLimiter paces the loop between episodes as courtesy to the
	// generative and embedding services.
	episodeLimiter *rate.Limiter
}

func NewOrchestrator(
	db *gorm.DB,
	baseLog *logger.Logger,
	batchRepo ingestrepo.BatchRepo,
	episodeRepo ingestrepo.EpisodeRepo,
	extractor *Extractor,
	classifier *Classifier,
	processor *Processor,
	uploader *Uploader,
	episodeLimiter *rate.Limiter,
) *Orchestrator {
	return &Orchestrator{
		db:             db,
		log:            baseLog.With("component", "Orchestrator"),
		batchRepo:      batchRepo,
		episodeRepo:    episodeRepo,
		extractor:      extractor,
		classifier:     classifier,
		processor:      processor,
		uploader:       uploader,
		episodeLimiter: episodeLimiter,
	}
}

// Run drives one batch to a terminal status. archive carries the uploaded
// bytes on a fresh upload and is nil on resume; a batch that never finished
// extraction cannot be resumed without its archive and is failed instead.
func (o *Orchestrator) Run(ctx context.Context, batchID uuid.UUID, archive []byte) error {
	batch, err := o.batchRepo.GetByID(ctx, nil, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if batch.Terminal() {
		return nil
	}

	log := o.log.With("batch_id", batch.ID)

	switch batch.Status {
	case domain.BatchStatusPending:
		if archive == nil {
			log.Warn("Pending batch has no archive to extract; failing")
			return o.failBatch(ctx, batch.ID, "archive unavailable: process restarted before extraction")
		}
		if err := o.extractor.Extract(ctx, batch, archive); err != nil {
			log.Error("Extraction failed", "error", err)
			// Extract already marked the batch failed for archive errors;
			// persistence errors still need the terminal write.
			_ = o.failBatchIfNotTerminal(ctx, batch.ID, fmt.Sprintf("extraction failed: %v", err))
			return err
		}

	case domain.BatchStatusExtracting:
		// Interrupted mid-extraction. The archive is gone, but episodes
		// persisted before the crash are intact; continue with those.
		episodes, err := o.episodeRepo.GetByBatchID(ctx, nil, batch.ID)
		if err != nil {
			return fmt.Errorf("load episodes: %w", err)
		}
		if len(episodes) == 0 {
			log.Warn("Batch interrupted during extraction with no episodes; failing")
			return o.failBatch(ctx, batch.ID, "interrupted during extraction; archive not retained")
		}
		log.Warn("Resuming batch interrupted during extraction",
			"episodes", len(episodes))
		if err := o.batchRepo.UpdateFields(ctx, nil, batch.ID, map[string]interface{}{
			"total_episodes": len(episodes),
		}); err != nil {
			return err
		}
	}

	batch, err = o.batchRepo.GetByID(ctx, nil, batchID)
	if err != nil {
		return err
	}
	if batch.Terminal() {
		return nil
	}

	if batch.AutoDetect {
		if err := o.classifyEpisodes(ctx, batch); err != nil {
			return err
		}
	}

	if err := o.batchRepo.UpdateFields(ctx, nil, batch.ID, map[string]interface{}{
		"status": domain.BatchStatusProcessing,
	}); err != nil {
		return err
	}
	batch.Status = domain.BatchStatusProcessing

	if err := o.processEpisodes(ctx, batch); err != nil {
		return err
	}

	return o.finalizeBatch(ctx, batch.ID)
}

// Retry resets every failed episode of the batch to pending, moves the batch
// back to processing and reports how many episodes were reset. It does not
// process anything itself; run the batch afterwards.
func (o *Orchestrator) Retry(ctx context.Context, batchID uuid.UUID) (int, error) {
	if _, err := o.batchRepo.GetByID(ctx, nil, batchID); err != nil {
		return 0, err
	}

	reset, err := o.episodeRepo.ResetFailed(ctx, nil, batchID)
	if err != nil {
		return 0, fmt.Errorf("reset failed episodes: %w", err)
	}
	if reset == 0 {
		return 0, nil
	}

	if err := o.batchRepo.UpdateFields(ctx, nil, batchID, map[string]interface{}{
		"status": domain.BatchStatusProcessing,
		"error":  "",
	}); err != nil {
		return 0, err
	}
	return int(reset), nil
}

// classifyEpisodes labels every unclassified episode. Failures inside the
// classifier degrade to the fallback label, so this stage cannot fail the
// batch; only persistence errors propagate.
func (o *Orchestrator) classifyEpisodes(ctx context.Context, batch *domain.IngestBatch) error {
	episodes, err := o.episodeRepo.GetByBatchID(ctx, nil, batch.ID)
	if err != nil {
		return fmt.Errorf("load episodes: %w", err)
	}

	pending := make([]*domain.Episode, 0, len(episodes))
	for _, ep := range episodes {
		if ep.ManualOverride || strings.TrimSpace(ep.PrimaryNamespace) != "" || ep.Terminal() {
			continue
		}
		pending = append(pending, ep)
	}
	if len(pending) == 0 {
		return nil
	}

	if err := o.batchRepo.UpdateFields(ctx, nil, batch.ID, map[string]interface{}{
		"status": domain.BatchStatusClassifying,
	}); err != nil {
		return err
	}
	batch.Status = domain.BatchStatusClassifying

	for _, ep := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cls := o.classifier.Classify(ctx, ep.Transcript, ep.Filename)
		if err := o.episodeRepo.UpdateFields(ctx, nil, ep.ID, map[string]interface{}{
			"primary_namespace":   cls.Primary,
			"secondary_namespace": cls.Secondary,
			"confidence":          cls.Confidence,
			"rationale":           cls.Rationale,
		}); err != nil {
			return fmt.Errorf("persist classification for %s: %w", ep.ID, err)
		}
	}
	return nil
}

// processEpisodes walks the batch sequentially and drives every episode that
// still needs work. Episode failures are recorded and never halt the loop.
func (o *Orchestrator) processEpisodes(ctx context.Context, batch *domain.IngestBatch) error {
	episodes, err := o.episodeRepo.GetByBatchID(ctx, nil, batch.ID)
	if err != nil {
		return fmt.Errorf("load episodes: %w", err)
	}

	first := true
	for _, ep := range episodes {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !episodeNeedsWork(ep, batch) {
			continue
		}
		if !first && o.episodeLimiter != nil {
			if err := o.episodeLimiter.Wait(ctx); err != nil {
				return err
			}
		}
		first = false

		o.processOne(ctx, batch, ep)

		if err := o.recomputeCounters(ctx, batch.ID); err != nil {
			return err
		}
	}
	return nil
}

// episodeNeedsWork reconstructs the "still to do" set from persisted state:
// never-started and interrupted episodes, plus any episode whose chunk list
// exists but has not reached every target namespace.
func episodeNeedsWork(ep *domain.Episode, batch *domain.IngestBatch) bool {
	switch ep.Status {
	case domain.EpisodeStatusPending, domain.EpisodeStatusProcessing:
		return true
	}
	if ep.Terminal() {
		return false
	}
	return ep.HasChunks() && !ep.FullyUploaded(batch)
}

func (o *Orchestrator) processOne(ctx context.Context, batch *domain.IngestBatch, ep *domain.Episode) {
	log := o.log.With("batch_id", batch.ID, "episode_id", ep.ID, "filename", ep.Filename)

	failEpisode := func(err error) {
		log.Warn("Episode failed", "error", err)
		_ = o.episodeRepo.UpdateFields(ctx, nil, ep.ID, map[string]interface{}{
			"status": domain.EpisodeStatusFailed,
			"error":  err.Error(),
		})
		ep.Status = domain.EpisodeStatusFailed
	}

	if err := o.episodeRepo.UpdateFields(ctx, nil, ep.ID, map[string]interface{}{
		"status": domain.EpisodeStatusProcessing,
	}); err != nil {
		failEpisode(fmt.Errorf("mark processing: %w", err))
		return
	}
	ep.Status = domain.EpisodeStatusProcessing

	// The chunk list is the expensive checkpoint: compute it at most once.
	if !ep.HasChunks() {
		if strings.TrimSpace(ep.Transcript) == "" {
			failEpisode(fmt.Errorf("transcript missing on resume"))
			return
		}

		result, err := o.processor.Process(ctx, batch, ep)
		if err != nil {
			failEpisode(fmt.Errorf("content processing: %w", err))
			return
		}
		if result.SkipReason != "" {
			log.Info("Episode skipped", "reason", result.SkipReason)
			_ = o.episodeRepo.UpdateFields(ctx, nil, ep.ID, map[string]interface{}{
				"status":           domain.EpisodeStatusSkipped,
				"error":            result.SkipReason,
				"discarded_chunks": result.Discarded,
			})
			ep.Status = domain.EpisodeStatusSkipped
			return
		}

		if err := ep.EncodeChunks(result.Chunks); err != nil {
			failEpisode(fmt.Errorf("encode chunks: %w", err))
			return
		}
		ep.DiscardedChunks = result.Discarded
		if err := o.episodeRepo.UpdateFields(ctx, nil, ep.ID, map[string]interface{}{
			"chunks":           ep.Chunks,
			"chunk_count":      ep.ChunkCount,
			"discarded_chunks": ep.DiscardedChunks,
		}); err != nil {
			failEpisode(fmt.Errorf("persist chunks: %w", err))
			return
		}
		log.Info("Chunk list persisted", "chunks", ep.ChunkCount, "discarded", ep.DiscardedChunks)
	}

	chunks, err := ep.DecodeChunks()
	if err != nil {
		failEpisode(fmt.Errorf("decode persisted chunks: %w", err))
		return
	}

	if err := o.uploader.Upload(ctx, batch, ep, chunks); err != nil {
		failEpisode(fmt.Errorf("upload: %w", err))
		return
	}

	if err := o.episodeRepo.UpdateFields(ctx, nil, ep.ID, map[string]interface{}{
		"status": domain.EpisodeStatusCompleted,
		"error":  "",
	}); err != nil {
		failEpisode(fmt.Errorf("mark completed: %w", err))
		return
	}
	ep.Status = domain.EpisodeStatusCompleted
	log.Info("Episode completed", "chunks", len(chunks))
}

// recomputeCounters rebuilds the batch aggregates from the full episode set
// rather than incrementing, so manual retries cannot skew them.
func (o *Orchestrator) recomputeCounters(ctx context.Context, batchID uuid.UUID) error {
	episodes, err := o.episodeRepo.GetByBatchID(ctx, nil, batchID)
	if err != nil {
		return err
	}

	var processed, successful, failed, skipped, totalChunks int
	for _, ep := range episodes {
		switch ep.Status {
		case domain.EpisodeStatusCompleted:
			processed++
			successful++
			totalChunks += ep.ChunkCount
		case domain.EpisodeStatusFailed:
			processed++
			failed++
		case domain.EpisodeStatusSkipped:
			processed++
			skipped++
		}
	}

	return o.batchRepo.UpdateFields(ctx, nil, batchID, map[string]interface{}{
		"total_episodes":      len(episodes),
		"processed_episodes":  processed,
		"successful_episodes": successful,
		"failed_episodes":     failed,
		"skipped_episodes":    skipped,
		"total_chunks":        totalChunks,
	})
}

// finalizeBatch applies the terminal rule: failed only when every episode
// failed, completed otherwise (including partial failures and skips).
func (o *Orchestrator) finalizeBatch(ctx context.Context, batchID uuid.UUID) error {
	if err := o.recomputeCounters(ctx, batchID); err != nil {
		return err
	}

	episodes, err := o.episodeRepo.GetByBatchID(ctx, nil, batchID)
	if err != nil {
		return err
	}

	allFailed := len(episodes) > 0
	for _, ep := range episodes {
		if ep.Status != domain.EpisodeStatusFailed {
			allFailed = false
			break
		}
	}

	if allFailed {
		return o.failBatch(ctx, batchID, "all episodes failed")
	}

	o.log.Info("Batch completed", "batch_id", batchID, "episodes", len(episodes))
	return o.batchRepo.UpdateFields(ctx, nil, batchID, map[string]interface{}{
		"status": domain.BatchStatusCompleted,
		"error":  "",
	})
}

func (o *Orchestrator) failBatch(ctx context.Context, batchID uuid.UUID, msg string) error {
	return o.batchRepo.UpdateFields(ctx, nil, batchID, map[string]interface{}{
		"status": domain.BatchStatusFailed,
		"error":  msg,
	})
}

func (o *Orchestrator) failBatchIfNotTerminal(ctx context.Context, batchID uuid.UUID, msg string) error {
	batch, err := o.batchRepo.GetByID(ctx, nil, batchID)
	if err != nil {
		return err
	}
	if batch.Terminal() {
		return nil
	}
	return o.failBatch(ctx, batchID, msg)
}

// Kickoff spawns Run in the background; the upload call returns immediately.
// The handle exists for logging only, nothing blocks on it.
func (o *Orchestrator) Kickoff(batchID uuid.UUID, archive []byte) {
	go func() {
		started := time.Now()
		if err := o.Run(context.Background(), batchID, archive); err != nil {
			o.log.Error("Batch run failed",
				"batch_id", batchID, "elapsed", time.Since(started).String(), "error", err)
			return
		}
		o.log.Info("Batch run finished",
			"batch_id", batchID, "elapsed", time.Since(started).String())
	}()
}

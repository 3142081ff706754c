package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sagewell/transcripta-backend/internal/domain"
	pkgerrors "github.com/sagewell/transcripta-backend/internal/pkg/errors"
	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
)

type EpisodeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, episodes []*domain.Episode) ([]*domain.Episode, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Episode, error)
	GetByBatchID(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) ([]*domain.Episode, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	// ExistsCompletedByHash reports whether any completed episode system-wide
	// carries the given content hash. Used for duplicate detection.
	ExistsCompletedByHash(ctx context.Context, tx *gorm.DB, contentHash string) (bool, error)
	// ResetFailed flips every failed episode of a batch back to pending and
	// returns how many rows changed.
	ResetFailed(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (int64, error)
}

type episodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEpisodeRepo(db *gorm.DB, baseLog *logger.Logger) EpisodeRepo {
	return &episodeRepo{db: db, log: baseLog.With("repo", "EpisodeRepo")}
}

func (r *episodeRepo) Create(ctx context.Context, tx *gorm.DB, episodes []*domain.Episode) ([]*domain.Episode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(episodes) == 0 {
		return []*domain.Episode{}, nil
	}

	// Keep batches small because Transcript is large.
	const batchSize = 50

	if err := transaction.WithContext(ctx).CreateInBatches(episodes, batchSize).Error; err != nil {
		return nil, err
	}
	return episodes, nil
}

func (r *episodeRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Episode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out domain.Episode
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *episodeRepo) GetByBatchID(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) ([]*domain.Episode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.Episode
	if err := transaction.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("filename ASC, created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *episodeRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctx).
		Model(&domain.Episode{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *episodeRepo) ExistsCompletedByHash(ctx context.Context, tx *gorm.DB, contentHash string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if contentHash == "" {
		return false, nil
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&domain.Episode{}).
		Where("content_hash = ? AND status = ?", contentHash, domain.EpisodeStatusCompleted).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *episodeRepo) ResetFailed(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&domain.Episode{}).
		Where("batch_id = ? AND status = ?", batchID, domain.EpisodeStatusFailed).
		Updates(map[string]interface{}{
			"status":     domain.EpisodeStatusPending,
			"error":      "",
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

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

type BatchRepo interface {
	Create(ctx context.Context, tx *gorm.DB, batches []*domain.IngestBatch) ([]*domain.IngestBatch, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.IngestBatch, error)
	ListByStatuses(ctx context.Context, tx *gorm.DB, statuses []string) ([]*domain.IngestBatch, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, baseLog *logger.Logger) BatchRepo {
	return &batchRepo{db: db, log: baseLog.With("repo", "BatchRepo")}
}

func (r *batchRepo) Create(ctx context.Context, tx *gorm.DB, batches []*domain.IngestBatch) ([]*domain.IngestBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(batches) == 0 {
		return []*domain.IngestBatch{}, nil
	}
	if err := transaction.WithContext(ctx).Create(batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *batchRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.IngestBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out domain.IngestBatch
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *batchRepo) ListByStatuses(ctx context.Context, tx *gorm.DB, statuses []string) ([]*domain.IngestBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.IngestBatch
	if len(statuses) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("status IN ?", statuses).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *batchRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
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
		Model(&domain.IngestBatch{}).
		Where("id = ?", id).
		Updates(updates).Error
}

package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sagewell/transcripta-backend/internal/data/repos/testutil"
	"github.com/sagewell/transcripta-backend/internal/domain"
	pkgerrors "github.com/sagewell/transcripta-backend/internal/pkg/errors"
)

func newBatch(status string) *domain.IngestBatch {
	now := time.Now().UTC()
	return &domain.IngestBatch{
		ID:        uuid.New(),
		Namespace: "BUSINESS",
		Mode:      domain.IngestModeChunks,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestBatchRepoCreateAndGet(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewBatchRepo(db, testutil.Logger(t))
	ctx := context.Background()

	batch := newBatch(domain.BatchStatusPending)
	if _, err := repo.Create(ctx, tx, []*domain.IngestBatch{batch}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, batch.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Namespace != "BUSINESS" || got.Status != domain.BatchStatusPending {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestBatchRepoGetMissingReturnsNotFound(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewBatchRepo(db, testutil.Logger(t))

	_, err := repo.GetByID(context.Background(), tx, uuid.New())
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBatchRepoListByStatuses(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewBatchRepo(db, testutil.Logger(t))
	ctx := context.Background()

	pending := newBatch(domain.BatchStatusPending)
	processing := newBatch(domain.BatchStatusProcessing)
	done := newBatch(domain.BatchStatusCompleted)
	if _, err := repo.Create(ctx, tx, []*domain.IngestBatch{pending, processing, done}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.ListByStatuses(ctx, tx, []string{
		domain.BatchStatusPending,
		domain.BatchStatusProcessing,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := map[uuid.UUID]bool{}
	for _, b := range got {
		found[b.ID] = true
		if b.Terminal() {
			t.Fatalf("terminal batch returned: %+v", b)
		}
	}
	if !found[pending.ID] || !found[processing.ID] {
		t.Fatalf("expected both non-terminal batches, got %d", len(got))
	}

	empty, err := repo.ListByStatuses(ctx, tx, nil)
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("no statuses should match nothing, got %d", len(empty))
	}
}

func TestBatchRepoUpdateFields(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewBatchRepo(db, testutil.Logger(t))
	ctx := context.Background()

	batch := newBatch(domain.BatchStatusPending)
	if _, err := repo.Create(ctx, tx, []*domain.IngestBatch{batch}); err != nil {
		t.Fatalf("create: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := repo.UpdateFields(ctx, tx, batch.ID, map[string]interface{}{
		"status":         domain.BatchStatusFailed,
		"error":          "all episodes failed",
		"total_episodes": 7,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, batch.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.BatchStatusFailed || got.Error != "all episodes failed" || got.TotalEpisodes != 7 {
		t.Fatalf("update not applied: %+v", got)
	}
	if !got.UpdatedAt.After(batch.UpdatedAt) {
		t.Fatalf("updated_at not bumped")
	}
}

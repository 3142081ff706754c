package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sagewell/transcripta-backend/internal/data/repos/testutil"
	"github.com/sagewell/transcripta-backend/internal/domain"
)

func newEpisode(batchID uuid.UUID, filename, status string) *domain.Episode {
	now := time.Now().UTC()
	return &domain.Episode{
		ID:          uuid.New(),
		BatchID:     batchID,
		Filename:    filename,
		Transcript:  "transcript for " + filename,
		ContentHash: "hash-" + uuid.NewString(),
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestEpisodeRepoGetByBatchIDOrdered(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEpisodeRepo(db, testutil.Logger(t))
	ctx := context.Background()

	batchID := uuid.New()
	eps := []*domain.Episode{
		newEpisode(batchID, "c.txt", domain.EpisodeStatusPending),
		newEpisode(batchID, "a.txt", domain.EpisodeStatusPending),
		newEpisode(batchID, "b.txt", domain.EpisodeStatusPending),
		newEpisode(uuid.New(), "other.txt", domain.EpisodeStatusPending),
	}
	if _, err := repo.Create(ctx, tx, eps); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByBatchID(ctx, tx, batchID)
	if err != nil {
		t.Fatalf("get by batch: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(got))
	}
	for i, want := range []string{"a.txt", "b.txt", "c.txt"} {
		if got[i].Filename != want {
			t.Fatalf("order wrong at %d: got %s want %s", i, got[i].Filename, want)
		}
	}
}

func TestEpisodeRepoExistsCompletedByHash(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEpisodeRepo(db, testutil.Logger(t))
	ctx := context.Background()

	batchID := uuid.New()
	done := newEpisode(batchID, "done.txt", domain.EpisodeStatusCompleted)
	failed := newEpisode(batchID, "failed.txt", domain.EpisodeStatusFailed)
	if _, err := repo.Create(ctx, tx, []*domain.Episode{done, failed}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.ExistsCompletedByHash(ctx, tx, done.ContentHash)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !got {
		t.Fatalf("completed hash should be found")
	}

	// Non-completed statuses do not count as duplicates.
	got, err = repo.ExistsCompletedByHash(ctx, tx, failed.ContentHash)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if got {
		t.Fatalf("failed episode must not block re-ingestion")
	}

	got, err = repo.ExistsCompletedByHash(ctx, tx, "")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if got {
		t.Fatalf("empty hash should never match")
	}
}

func TestEpisodeRepoResetFailed(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEpisodeRepo(db, testutil.Logger(t))
	ctx := context.Background()

	batchID := uuid.New()
	failedA := newEpisode(batchID, "a.txt", domain.EpisodeStatusFailed)
	failedA.Error = "model unavailable"
	failedB := newEpisode(batchID, "b.txt", domain.EpisodeStatusFailed)
	completed := newEpisode(batchID, "c.txt", domain.EpisodeStatusCompleted)
	if _, err := repo.Create(ctx, tx, []*domain.Episode{failedA, failedB, completed}); err != nil {
		t.Fatalf("create: %v", err)
	}

	reset, err := repo.ResetFailed(ctx, tx, batchID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset != 2 {
		t.Fatalf("reset = %d, want 2", reset)
	}

	got, err := repo.GetByBatchID(ctx, tx, batchID)
	if err != nil {
		t.Fatalf("get by batch: %v", err)
	}
	for _, ep := range got {
		switch ep.Filename {
		case "a.txt", "b.txt":
			if ep.Status != domain.EpisodeStatusPending || ep.Error != "" {
				t.Fatalf("episode %s not reset: status=%s error=%q", ep.Filename, ep.Status, ep.Error)
			}
		case "c.txt":
			if ep.Status != domain.EpisodeStatusCompleted {
				t.Fatalf("completed episode was touched: %s", ep.Status)
			}
		}
	}
}

func TestEpisodeRepoUpdateFieldsPersistsChunks(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewEpisodeRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ep := newEpisode(uuid.New(), "ep.txt", domain.EpisodeStatusProcessing)
	if _, err := repo.Create(ctx, tx, []*domain.Episode{ep}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := ep.EncodeChunks([]domain.Chunk{
		{ID: "chk_1", Kind: domain.ChunkKindConversational, Text: "first"},
		{ID: "chk_2", Kind: domain.ChunkKindConversational, Text: "second"},
	}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := repo.UpdateFields(ctx, tx, ep.ID, map[string]interface{}{
		"chunks":      ep.Chunks,
		"chunk_count": ep.ChunkCount,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, ep.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.HasChunks() || got.ChunkCount != 2 {
		t.Fatalf("chunk checkpoint not persisted: %+v", got)
	}
	chunks, err := got.DecodeChunks()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(chunks) != 2 || chunks[0].ID != "chk_1" {
		t.Fatalf("chunks mangled: %+v", chunks)
	}
}

package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	ingestrepo "github.com/sagewell/transcripta-backend/internal/data/repos/ingest"
	"github.com/sagewell/transcripta-backend/internal/data/repos/testutil"
	"github.com/sagewell/transcripta-backend/internal/domain"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func seedBatch(t *testing.T, repo ingestrepo.BatchRepo, mutate func(*domain.IngestBatch)) *domain.IngestBatch {
	t.Helper()
	now := time.Now().UTC()
	batch := &domain.IngestBatch{
		ID:        uuid.New(),
		Namespace: "BUSINESS",
		Mode:      domain.IngestModeChunks,
		Status:    domain.BatchStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mutate != nil {
		mutate(batch)
	}
	if _, err := repo.Create(context.Background(), nil, []*domain.IngestBatch{batch}); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return batch
}

func TestExtractAcceptsTranscriptsSkipsNoise(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	batchRepo := ingestrepo.NewBatchRepo(db, log)
	episodeRepo := ingestrepo.NewEpisodeRepo(db, log)
	x := NewExtractor(db, log, batchRepo, episodeRepo)

	batch := seedBatch(t, batchRepo, nil)
	archive := buildZip(t, map[string]string{
		"show/ep1.txt":          "first transcript " + uuid.NewString(),
		"show/ep2.md":           "second transcript " + uuid.NewString(),
		"show/notes.pdf":        "not a transcript",
		"show/.hidden.txt":      "hidden",
		"__MACOSX/ep1.txt":      "resource fork",
		"show/~backup.txt":      "editor backup",
		"show/subdir/ep3.srt":   "third transcript " + uuid.NewString(),
		"show/empty.txt":        "",
	})

	if err := x.Extract(context.Background(), batch, archive); err != nil {
		t.Fatalf("extract: %v", err)
	}

	episodes, err := episodeRepo.GetByBatchID(context.Background(), nil, batch.ID)
	if err != nil {
		t.Fatalf("load episodes: %v", err)
	}
	if len(episodes) != 3 {
		names := make([]string, 0, len(episodes))
		for _, ep := range episodes {
			names = append(names, ep.Filename)
		}
		t.Fatalf("expected 3 episodes, got %d: %v", len(episodes), names)
	}
	for _, ep := range episodes {
		if ep.Status != domain.EpisodeStatusPending {
			t.Fatalf("episode %s not pending: %s", ep.Filename, ep.Status)
		}
		if ep.ContentHash == "" || ep.Transcript == "" {
			t.Fatalf("episode %s missing hash or transcript", ep.Filename)
		}
	}

	stored, err := batchRepo.GetByID(context.Background(), nil, batch.ID)
	if err != nil {
		t.Fatalf("reload batch: %v", err)
	}
	if stored.TotalEpisodes != 3 {
		t.Fatalf("total_episodes = %d, want 3", stored.TotalEpisodes)
	}
	if stored.Status != domain.BatchStatusExtracting {
		t.Fatalf("status = %s, want extracting", stored.Status)
	}
}

func TestExtractCorruptArchiveFailsBatch(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	batchRepo := ingestrepo.NewBatchRepo(db, log)
	episodeRepo := ingestrepo.NewEpisodeRepo(db, log)
	x := NewExtractor(db, log, batchRepo, episodeRepo)

	batch := seedBatch(t, batchRepo, nil)
	if err := x.Extract(context.Background(), batch, []byte("not a zip file")); err == nil {
		t.Fatalf("expected error for corrupt archive")
	}

	stored, err := batchRepo.GetByID(context.Background(), nil, batch.ID)
	if err != nil {
		t.Fatalf("reload batch: %v", err)
	}
	if stored.Status != domain.BatchStatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if stored.Error == "" {
		t.Fatalf("failed batch should carry an error message")
	}
}

func TestExtractDedupsWithinArchiveAndAgainstCompleted(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	batchRepo := ingestrepo.NewBatchRepo(db, log)
	episodeRepo := ingestrepo.NewEpisodeRepo(db, log)
	x := NewExtractor(db, log, batchRepo, episodeRepo)

	already := "previously ingested transcript " + uuid.NewString()

	// A completed episode from an earlier batch holds the same content.
	prior := seedBatch(t, batchRepo, nil)
	now := time.Now().UTC()
	done := &domain.Episode{
		ID:          uuid.New(),
		BatchID:     prior.ID,
		Filename:    "old.txt",
		Transcript:  NormalizeTranscript(already),
		ContentHash: HashContent(already),
		Status:      domain.EpisodeStatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := episodeRepo.Create(context.Background(), nil, []*domain.Episode{done}); err != nil {
		t.Fatalf("seed completed episode: %v", err)
	}

	fresh := "brand new transcript " + uuid.NewString()
	batch := seedBatch(t, batchRepo, nil)
	archive := buildZip(t, map[string]string{
		"a.txt": fresh,
		"b.txt": fresh + "\r\n", // same content, different line endings
		"c.txt": already,
	})

	if err := x.Extract(context.Background(), batch, archive); err != nil {
		t.Fatalf("extract: %v", err)
	}

	episodes, err := episodeRepo.GetByBatchID(context.Background(), nil, batch.ID)
	if err != nil {
		t.Fatalf("load episodes: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode after dedup, got %d", len(episodes))
	}

	stored, err := batchRepo.GetByID(context.Background(), nil, batch.ID)
	if err != nil {
		t.Fatalf("reload batch: %v", err)
	}
	if stored.DuplicateFiles != 2 {
		t.Fatalf("duplicate_files = %d, want 2", stored.DuplicateFiles)
	}
}

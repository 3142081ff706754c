package ingestion

import (
	"context"
	"fmt"

	ingestrepo "github.com/sagewell/transcripta-backend/internal/data/repos/ingest"
	"github.com/sagewell/transcripta-backend/internal/clients/pinecone"
	"github.com/sagewell/transcripta-backend/internal/domain"
	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
)

const (
	defaultEmbedBatchSize  = 64
	defaultUpsertBatchSize = 100
)

// Uploader embeds an episode's chunk list and upserts it into each target
// namespace, persisting the per-namespace offset after every namespace so a
// restart skips work that already landed.
type Uploader struct {
	log         *logger.Logger
	embedder    Embedder
	store       pinecone.VectorStore
	episodeRepo ingestrepo.EpisodeRepo

	embedBatchSize  int
	upsertBatchSize int
}

func NewUploader(baseLog *logger.Logger, embedder Embedder, store pinecone.VectorStore, episodeRepo ingestrepo.EpisodeRepo) *Uploader {
	return &Uploader{
		log:             baseLog.With("component", "Uploader"),
		embedder:        embedder,
		store:           store,
		episodeRepo:     episodeRepo,
		embedBatchSize:  defaultEmbedBatchSize,
		upsertBatchSize: defaultUpsertBatchSize,
	}
}

// Upload pushes chunks into every incomplete target namespace. Namespaces are
// independent: a failure in one leaves earlier namespaces' persisted offsets
// untouched.
func (u *Uploader) Upload(ctx context.Context, batch *domain.IngestBatch, ep *domain.Episode, chunks []domain.Chunk) error {
	targets := ep.TargetNamespaces(batch)
	if len(targets) == 0 {
		return fmt.Errorf("episode %s has no target namespace", ep.ID)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("episode %s has no chunks to upload", ep.ID)
	}

	// Embeddings are shared across namespaces; computed lazily so fully
	// uploaded episodes never touch the embedding service again.
	var vectors []pinecone.Vector

	progress := ep.Progress()
	for _, ns := range targets {
		key := domain.NamespaceKey(ns)
		if progress[key] >= len(chunks) {
			u.log.Debug("Namespace already complete; skipping",
				"episode_id", ep.ID, "namespace", key)
			continue
		}

		if vectors == nil {
			var err error
			vectors, err = u.embedChunks(ctx, batch, ep, chunks)
			if err != nil {
				return fmt.Errorf("embed chunks: %w", err)
			}
		}

		for start := 0; start < len(vectors); start += u.upsertBatchSize {
			end := start + u.upsertBatchSize
			if end > len(vectors) {
				end = len(vectors)
			}
			if err := u.store.Upsert(ctx, key, vectors[start:end]); err != nil {
				return fmt.Errorf("upsert into %s: %w", key, err)
			}
		}

		if err := ep.SetProgress(key, len(chunks)); err != nil {
			return fmt.Errorf("record progress for %s: %w", key, err)
		}
		if err := u.episodeRepo.UpdateFields(ctx, nil, ep.ID, map[string]interface{}{
			"namespace_progress": ep.NamespaceProgress,
		}); err != nil {
			return fmt.Errorf("persist progress for %s: %w", key, err)
		}
		progress = ep.Progress()

		u.log.Info("Namespace upload complete",
			"episode_id", ep.ID, "namespace", key, "chunks", len(chunks))
	}

	return nil
}

func (u *Uploader) embedChunks(ctx context.Context, batch *domain.IngestBatch, ep *domain.Episode, chunks []domain.Chunk) ([]pinecone.Vector, error) {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	vectors := make([]pinecone.Vector, 0, len(chunks))
	for start := 0; start < len(texts); start += u.embedBatchSize {
		end := start + u.embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := u.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(embeddings) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: want %d got %d", end-start, len(embeddings))
		}
		for i, emb := range embeddings {
			c := chunks[start+i]
			meta := c.Metadata()
			meta["episode_id"] = ep.ID.String()
			meta["batch_id"] = batch.ID.String()
			meta["filename"] = ep.Filename
			vectors = append(vectors, pinecone.Vector{
				ID:       c.ID,
				Values:   emb,
				Metadata: meta,
			})
		}
	}
	return vectors, nil
}

package ingestion

import (
	"context"

	"golang.org/x/sync/errgroup"

	ingestrepo "github.com/sagewell/transcripta-backend/internal/data/repos/ingest"
	"github.com/sagewell/transcripta-backend/internal/domain"
	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
)

// recoveryConcurrency caps how many interrupted batches resume at once so a
// restart after a long outage does not stampede the generative services.
const recoveryConcurrency = 4

// RecoveryScanner finds batches left non-terminal by a previous process and
// hands them back to the orchestrator. Meant to run once on startup.
type RecoveryScanner struct {
	log          *logger.Logger
	batchRepo    ingestrepo.BatchRepo
	orchestrator *Orchestrator
}

func NewRecoveryScanner(baseLog *logger.Logger, batchRepo ingestrepo.BatchRepo, orchestrator *Orchestrator) *RecoveryScanner {
	return &RecoveryScanner{
		log:          baseLog.With("component", "RecoveryScanner"),
		batchRepo:    batchRepo,
		orchestrator: orchestrator,
	}
}

// Scan resumes every interrupted batch and returns how many were found.
// Individual batch failures are absorbed; the orchestrator records them on
// the batch row.
func (s *RecoveryScanner) Scan(ctx context.Context) (int, error) {
	batches, err := s.batchRepo.ListByStatuses(ctx, nil, []string{
		domain.BatchStatusPending,
		domain.BatchStatusExtracting,
		domain.BatchStatusClassifying,
		domain.BatchStatusProcessing,
	})
	if err != nil {
		return 0, err
	}
	if len(batches) == 0 {
		s.log.Info("No interrupted batches found")
		return 0, nil
	}

	s.log.Warn("Resuming interrupted batches", "count", len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recoveryConcurrency)
	for _, batch := range batches {
		b := batch
		g.Go(func() error {
			if err := s.orchestrator.Run(gctx, b.ID, nil); err != nil {
				s.log.Error("Batch recovery failed", "batch_id", b.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(batches), nil
}

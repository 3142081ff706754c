package ingestion

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/sagewell/transcripta-backend/internal/domain"
	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
)

const (
	// minSubstantiveChars is the floor under which an extracted transcript is
	// treated as having no substantive content.
	minSubstantiveChars = 100

	// maxPromptChars bounds how much transcript goes into one generative call.
	maxPromptChars = 8000

	minChunkChars      = 40
	maxChunkTokenGuess = 1200
)

// ProcessResult is the uniform output of both transformation strategies.
// A non-empty SkipReason means the episode holds no usable content; that is
// a quality outcome, not an error.
type ProcessResult struct {
	Chunks     []domain.Chunk
	Discarded  int
	SkipReason string
}

// Processor turns one episode's transcript into chunk records using the
// strategy selected by the batch mode. It is only ever invoked for episodes
// without a persisted chunk list; the orchestrator enforces that.
type Processor struct {
	log     *logger.Logger
	ai      TextGenerator
	limiter *rate.Limiter
}

func NewProcessor(baseLog *logger.Logger, ai TextGenerator, limiter *rate.Limiter) *Processor {
	return &Processor{
		log:     baseLog.With("component", "Processor"),
		ai:      ai,
		limiter: limiter,
	}
}

func (p *Processor) Process(ctx context.Context, batch *domain.IngestBatch, ep *domain.Episode) (*ProcessResult, error) {
	switch batch.Mode {
	case domain.IngestModeMentorMemory:
		return p.distill(ctx, batch, ep)
	default:
		return p.conversational(ctx, ep)
	}
}

func (p *Processor) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/sagewell/transcripta-backend/internal/domain"
)

const extractSystemPrompt = `You clean podcast transcripts. Remove advertisements, sponsor reads,
intros/outros, housekeeping and filler. Keep every substantive exchange verbatim,
including who said what when speaker labels exist. Return only the cleaned text.`

const chunkSystemPrompt = `You split cleaned conversation into self-contained knowledge units.
Each unit must stand alone: one insight, story, piece of advice, framework,
observation or question-answer exchange. Keep the speaker's own words.
Classify every unit.`

func chunkingSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"units": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text":         map[string]any{"type": "string"},
						"content_type": map[string]any{"type": "string", "enum": domain.ChunkContentTypes},
						"tone":         map[string]any{"type": "string", "enum": domain.ChunkTones},
						"topic":        map[string]any{"type": "string"},
						"confidence":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"voice_origin": map[string]any{"type": "string", "enum": domain.ChunkVoiceOrigins},
						"attribution":  map[string]any{"type": "string"},
					},
					"required":             []string{"text", "content_type", "tone", "topic", "confidence", "voice_origin"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"units"},
		"additionalProperties": false,
	}
}

// conversational runs the verbatim pipeline: substance extraction over
// paragraph-bounded slices, then classified chunking of the extracted text.
func (p *Processor) conversational(ctx context.Context, ep *domain.Episode) (*ProcessResult, error) {
	slices := splitByParagraph(ep.Transcript, maxPromptChars)

	extracted := make([]string, 0, len(slices))
	var totalLen int
	for i, slice := range slices {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		text, err := p.extractSubstance(ctx, slice)
		if err != nil {
			return nil, fmt.Errorf("substance extraction (slice %d/%d): %w", i+1, len(slices), err)
		}
		text = strings.TrimSpace(text)
		if text != "" {
			extracted = append(extracted, text)
			totalLen += len(text)
		}
	}

	if totalLen < minSubstantiveChars {
		return &ProcessResult{SkipReason: "not enough substantive content"}, nil
	}

	var (
		chunks    []domain.Chunk
		discarded int
	)
	for i, text := range extracted {
		if err := p.wait(ctx); err != nil {
			return nil, err
		}
		obj, err := p.ai.GenerateJSON(ctx, chunkSystemPrompt, text, "conversation_chunks", chunkingSchema())
		if err != nil {
			return nil, fmt.Errorf("chunking (slice %d/%d): %w", i+1, len(extracted), err)
		}
		kept, dropped := parseChunkUnits(obj)
		chunks = append(chunks, kept...)
		discarded += dropped
	}

	if len(chunks) == 0 {
		return &ProcessResult{Discarded: discarded, SkipReason: "no valid chunks produced"}, nil
	}

	p.log.Debug("Conversational processing done",
		"episode_id", ep.ID, "chunks", len(chunks), "discarded", discarded)
	return &ProcessResult{Chunks: chunks, Discarded: discarded}, nil
}

// extractSubstance calls the extraction prompt; the client already retries
// transport failures, so only one content-level retry on empty output.
func (p *Processor) extractSubstance(ctx context.Context, slice string) (string, error) {
	text, err := p.ai.GenerateText(ctx, extractSystemPrompt, slice)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		text, err = p.ai.GenerateText(ctx, extractSystemPrompt, slice)
		if err != nil {
			return "", err
		}
	}
	return text, nil
}

func parseChunkUnits(obj map[string]any) ([]domain.Chunk, int) {
	rawUnits, _ := obj["units"].([]any)

	var (
		kept    []domain.Chunk
		dropped int
	)
	for _, rawUnit := range rawUnits {
		unit, ok := rawUnit.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		text := strings.TrimSpace(stringField(unit, "text"))
		if len(text) < minChunkChars || estimateTokens(text) > maxChunkTokenGuess {
			dropped++
			continue
		}

		c := domain.Chunk{
			ID:          ChunkID(domain.ChunkKindConversational, text),
			Kind:        domain.ChunkKindConversational,
			Text:        text,
			ContentType: coerceEnum(stringField(unit, "content_type"), domain.ChunkContentTypes),
			Tone:        coerceEnum(stringField(unit, "tone"), domain.ChunkTones),
			Topic:       strings.TrimSpace(stringField(unit, "topic")),
			VoiceOrigin: coerceEnum(stringField(unit, "voice_origin"), domain.ChunkVoiceOrigins),
			Attribution: strings.TrimSpace(stringField(unit, "attribution")),
			Confidence:  clamp01(floatField(unit, "confidence")),
		}
		kept = append(kept, c)
	}
	return kept, dropped
}

// splitByParagraph slices text into ≤maxChars pieces on paragraph boundaries,
// falling back to a hard cut for a single oversized paragraph.
func splitByParagraph(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= maxChars {
		return []string{text}
	}

	paragraphs := strings.Split(text, "\n\n")
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	for _, para := range paragraphs {
		if len(para) > maxChars {
			flush()
			for len(para) > maxChars {
				out = append(out, strings.TrimSpace(para[:maxChars]))
				para = para[maxChars:]
			}
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return out
}

func estimateTokens(text string) int {
	// Rough heuristic: ~4 chars per token for English text.
	return len(text) / 4
}

func coerceEnum(val string, allowed []string) string {
	val = strings.ToLower(strings.TrimSpace(val))
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	return allowed[0]
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sagewell/transcripta-backend/internal/domain"
)

const distillSystemPrompt = `You distill podcast transcripts into generalized, non-attributable wisdom.
Strip names, anecdote specifics and show references. Capture what a careful
listener would carry away: topics covered, durable principles, mental models,
practical heuristics, common misconceptions addressed, and red flags raised.
Write the disclaimer as the boundary of what this conversation can teach.
Leave a list empty rather than padding it.`

const mentorSystemPrompt = `You restate distilled wisdom in a named mentor's voice so it can answer
questions later. Produce voice rules (how the mentor phrases things),
trigger/response patterns (when asked X, the mentor says Y), signature
principles in the mentor's phrasing, questions the mentor would ask back,
and boundaries the mentor will not cross. Stay faithful to the source wisdom;
invent no facts.`

type wisdomDoc struct {
	Topics         []string `json:"topics"`
	Principles     []string `json:"principles"`
	MentalModels   []string `json:"mental_models"`
	Heuristics     []string `json:"heuristics"`
	Misconceptions []string `json:"misconceptions"`
	RedFlags       []string `json:"red_flags"`
	Disclaimer     string   `json:"disclaimer"`
	Confidence     float64  `json:"confidence"`
}

func (d wisdomDoc) empty() bool {
	return len(d.Topics) == 0 && len(d.Principles) == 0 && len(d.MentalModels) == 0 &&
		len(d.Heuristics) == 0 && len(d.Misconceptions) == 0 && len(d.RedFlags) == 0
}

type mentorPattern struct {
	Trigger  string `json:"trigger"`
	Response string `json:"response"`
}

type mentorMemoryDoc struct {
	VoiceRules          []string        `json:"voice_rules"`
	Patterns            []mentorPattern `json:"patterns"`
	SignaturePrinciples []string        `json:"signature_principles"`
	QuestionPrompts     []string        `json:"question_prompts"`
	Boundaries          []string        `json:"boundaries"`
	Confidence          float64         `json:"confidence"`
}

func (d mentorMemoryDoc) empty() bool {
	return len(d.VoiceRules) == 0 && len(d.Patterns) == 0 && len(d.SignaturePrinciples) == 0 &&
		len(d.QuestionPrompts) == 0 && len(d.Boundaries) == 0
}

func stringListSchema() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

func wisdomSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topics":         stringListSchema(),
			"principles":     stringListSchema(),
			"mental_models":  stringListSchema(),
			"heuristics":     stringListSchema(),
			"misconceptions": stringListSchema(),
			"red_flags":      stringListSchema(),
			"disclaimer":     map[string]any{"type": "string"},
			"confidence":     map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required":             []string{"topics", "principles", "mental_models", "heuristics", "misconceptions", "red_flags", "disclaimer", "confidence"},
		"additionalProperties": false,
	}
}

func mentorMemorySchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"voice_rules": stringListSchema(),
			"patterns": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"trigger":  map[string]any{"type": "string"},
						"response": map[string]any{"type": "string"},
					},
					"required":             []string{"trigger", "response"},
					"additionalProperties": false,
				},
			},
			"signature_principles": stringListSchema(),
			"question_prompts":     stringListSchema(),
			"boundaries":           stringListSchema(),
			"confidence":           map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		},
		"required":             []string{"voice_rules", "patterns", "signature_principles", "question_prompts", "boundaries", "confidence"},
		"additionalProperties": false,
	}
}

// distill runs the wisdom pipeline: one distillation call, then an optional
// persona-voice rewrite when the batch names a persona.
func (p *Processor) distill(ctx context.Context, batch *domain.IngestBatch, ep *domain.Episode) (*ProcessResult, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	transcript := ep.Transcript
	if len(transcript) > maxPromptChars*2 {
		transcript = transcript[:maxPromptChars*2]
	}

	obj, err := p.ai.GenerateJSON(ctx, distillSystemPrompt, transcript, "wisdom_document", wisdomSchema())
	if err != nil {
		return nil, fmt.Errorf("distillation: %w", err)
	}
	var wisdom wisdomDoc
	if err := decodeDoc(obj, &wisdom); err != nil {
		return nil, fmt.Errorf("distillation decode: %w", err)
	}
	if wisdom.empty() {
		return &ProcessResult{SkipReason: "no extractable wisdom"}, nil
	}

	persona := strings.TrimSpace(batch.Persona)
	if persona == "" {
		chunks := flattenWisdom(wisdom)
		p.log.Debug("Distillation done", "episode_id", ep.ID, "chunks", len(chunks))
		return &ProcessResult{Chunks: chunks}, nil
	}

	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	wisdomJSON, _ := json.Marshal(wisdom)
	user := fmt.Sprintf("Mentor name: %s\n\nSource wisdom document:\n%s", persona, string(wisdomJSON))
	memObj, err := p.ai.GenerateJSON(ctx, mentorSystemPrompt, user, "mentor_memory_document", mentorMemorySchema())
	if err != nil {
		return nil, fmt.Errorf("mentor rewrite: %w", err)
	}
	var memory mentorMemoryDoc
	if err := decodeDoc(memObj, &memory); err != nil {
		return nil, fmt.Errorf("mentor rewrite decode: %w", err)
	}
	if memory.empty() {
		// Rewrite produced nothing usable; fall back to the raw wisdom.
		chunks := flattenWisdom(wisdom)
		return &ProcessResult{Chunks: chunks}, nil
	}

	chunks := flattenMentorMemory(memory, persona)
	p.log.Debug("Mentor memory done", "episode_id", ep.ID, "persona", persona, "chunks", len(chunks))
	return &ProcessResult{Chunks: chunks}, nil
}

func decodeDoc(obj map[string]any, out any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func flattenWisdom(doc wisdomDoc) []domain.Chunk {
	conf := doc.Confidence
	if conf <= 0 {
		conf = 0.75
	}

	var out []domain.Chunk
	add := func(kind string, items []string) {
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			out = append(out, distilledChunk(kind, item, "", false, conf))
		}
	}
	add(domain.WisdomKindTopic, doc.Topics)
	add(domain.WisdomKindPrinciple, doc.Principles)
	add(domain.WisdomKindMentalModel, doc.MentalModels)
	add(domain.WisdomKindHeuristic, doc.Heuristics)
	add(domain.WisdomKindMisconception, doc.Misconceptions)
	add(domain.WisdomKindRedFlag, doc.RedFlags)
	if d := strings.TrimSpace(doc.Disclaimer); d != "" {
		out = append(out, distilledChunk(domain.WisdomKindDisclaimer, d, "", false, conf))
	}
	return out
}

func flattenMentorMemory(doc mentorMemoryDoc, persona string) []domain.Chunk {
	conf := doc.Confidence
	if conf <= 0 {
		conf = 0.75
	}

	var out []domain.Chunk
	add := func(kind string, items []string) {
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			out = append(out, distilledChunk(kind, item, persona, true, conf))
		}
	}
	add(domain.WisdomKindVoiceRule, doc.VoiceRules)
	for _, pat := range doc.Patterns {
		trigger := strings.TrimSpace(pat.Trigger)
		response := strings.TrimSpace(pat.Response)
		if trigger == "" || response == "" {
			continue
		}
		text := fmt.Sprintf("When asked: %s\nRespond: %s", trigger, response)
		out = append(out, distilledChunk(domain.WisdomKindPattern, text, persona, true, conf))
	}
	add(domain.WisdomKindSignaturePrinciple, doc.SignaturePrinciples)
	add(domain.WisdomKindQuestionPrompt, doc.QuestionPrompts)
	add(domain.WisdomKindBoundary, doc.Boundaries)
	return out
}

func distilledChunk(wisdomKind, text, mentor string, derived bool, conf float64) domain.Chunk {
	return domain.Chunk{
		// Hash over the wisdom kind as well so the same sentence filed under
		// two kinds keeps distinct ids.
		ID:         ChunkID(domain.ChunkKindDistilled+":"+wisdomKind, text),
		Kind:       domain.ChunkKindDistilled,
		Text:       text,
		WisdomKind: wisdomKind,
		Mentor:     mentor,
		Derived:    derived,
		Confidence: clamp01(conf),
	}
}

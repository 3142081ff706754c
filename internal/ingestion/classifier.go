package ingestion

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/sagewell/transcripta-backend/internal/pkg/logger"
)

// Namespaces is the closed taxonomy a transcript can be filed under.
// FallbackNamespace catches everything the model cannot place confidently.
var Namespaces = []string{
	"BUSINESS",
	"INVESTING",
	"HEALTH",
	"RELATIONSHIPS",
	"CAREER",
	"MINDSET",
	"CREATIVITY",
	"GENERAL",
}

const FallbackNamespace = "GENERAL"

const classifyExcerptLimit = 4000

// ValidNamespace reports whether a label belongs to the taxonomy.
func ValidNamespace(label string) bool {
	key := strings.ToUpper(strings.TrimSpace(label))
	for _, ns := range Namespaces {
		if ns == key {
			return true
		}
	}
	return false
}

type Classification struct {
	Primary    string
	Secondary  string
	Confidence float64
	Rationale  string
}

// Classifier assigns taxonomy labels to a transcript excerpt. It never
// returns an error: any service failure degrades to the fallback label so
// classification cannot block ingestion.
type Classifier struct {
	log     *logger.Logger
	ai      TextGenerator
	limiter *rate.Limiter
}

func NewClassifier(baseLog *logger.Logger, ai TextGenerator, limiter *rate.Limiter) *Classifier {
	return &Classifier{
		log:     baseLog.With("component", "Classifier"),
		ai:      ai,
		limiter: limiter,
	}
}

const classifySystemPrompt = `You are a librarian filing podcast transcripts into a fixed set of topic shelves.
Pick exactly one primary_namespace from the allowed list. Add a secondary_namespace
only when a second topic genuinely carries a large share of the conversation.
Confidence is your own calibration in [0,1]. Keep the rationale to one sentence.`

func classificationSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"primary_namespace":   map[string]any{"type": "string", "enum": Namespaces},
			"secondary_namespace": map[string]any{"type": "string"},
			"confidence":          map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"rationale":           map[string]any{"type": "string"},
		},
		"required":             []string{"primary_namespace", "confidence", "rationale"},
		"additionalProperties": false,
	}
}

func (c *Classifier) Classify(ctx context.Context, excerpt string, filename string) Classification {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.fallback(fmt.Sprintf("classification interrupted: %v", err))
		}
	}

	if len(excerpt) > classifyExcerptLimit {
		excerpt = excerpt[:classifyExcerptLimit]
	}

	user := fmt.Sprintf("Filename: %s\n\nAllowed namespaces: %s\n\nTranscript excerpt:\n%s",
		filename, strings.Join(Namespaces, ", "), excerpt)

	obj, err := c.ai.GenerateJSON(ctx, classifySystemPrompt, user, "namespace_classification", classificationSchema())
	if err != nil {
		c.log.Warn("Classification call failed; using fallback",
			"filename", filename, "error", err)
		return c.fallback(fmt.Sprintf("classification unavailable: %v", err))
	}

	out := Classification{
		Primary:    strings.ToUpper(strings.TrimSpace(stringField(obj, "primary_namespace"))),
		Secondary:  strings.ToUpper(strings.TrimSpace(stringField(obj, "secondary_namespace"))),
		Confidence: floatField(obj, "confidence"),
		Rationale:  strings.TrimSpace(stringField(obj, "rationale")),
	}

	if !ValidNamespace(out.Primary) {
		c.log.Warn("Classifier returned label outside taxonomy; defaulting",
			"filename", filename, "label", out.Primary)
		out.Primary = FallbackNamespace
	}
	if out.Secondary != "" && (!ValidNamespace(out.Secondary) || out.Secondary == out.Primary) {
		out.Secondary = ""
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out
}

func (c *Classifier) fallback(reason string) Classification {
	return Classification{
		Primary:    FallbackNamespace,
		Confidence: 0.25,
		Rationale:  reason,
	}
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func floatField(obj map[string]any, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

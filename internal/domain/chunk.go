package domain

const (
	ChunkKindConversational = "conversational"
	ChunkKindDistilled      = "distilled"
)

// Conversational chunk classification enums. Unknown values coming back from
// the model are coerced to the first entry of each list.
var (
	ChunkContentTypes = []string{"insight", "story", "advice", "framework", "observation", "qa"}
	ChunkTones        = []string{"analytical", "casual", "passionate", "reflective", "humorous"}
	ChunkVoiceOrigins = []string{"host", "guest", "mixed"}
)

// Distilled wisdom kinds produced by the distillation strategy.
const (
	WisdomKindTopic              = "topic"
	WisdomKindPrinciple          = "principle"
	WisdomKindMentalModel        = "mental_model"
	WisdomKindHeuristic          = "heuristic"
	WisdomKindMisconception      = "misconception"
	WisdomKindRedFlag            = "red_flag"
	WisdomKindDisclaimer         = "disclaimer"
	WisdomKindVoiceRule          = "voice_rule"
	WisdomKindPattern            = "pattern"
	WisdomKindSignaturePrinciple = "signature_principle"
	WisdomKindQuestionPrompt     = "question_prompt"
	WisdomKindBoundary           = "boundary"
)

// Chunk is one embeddable knowledge unit derived from an episode. Kind tags
// which of the two field groups is populated; chunks are immutable once
// written into Episode.Chunks.
type Chunk struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Text string `json:"text"`

	// Conversational fields.
	ContentType string `json:"content_type,omitempty"`
	Tone        string `json:"tone,omitempty"`
	Topic       string `json:"topic,omitempty"`
	VoiceOrigin string `json:"voice_origin,omitempty"`
	Attribution string `json:"attribution,omitempty"`

	// Distilled fields.
	WisdomKind string `json:"wisdom_kind,omitempty"`
	Mentor     string `json:"mentor,omitempty"`
	Derived    bool   `json:"derived,omitempty"`

	Confidence float64 `json:"confidence,omitempty"`
}

// Metadata returns the vector-store payload for this chunk.
func (c Chunk) Metadata() map[string]any {
	m := map[string]any{
		"kind": c.Kind,
		"text": c.Text,
	}
	switch c.Kind {
	case ChunkKindConversational:
		m["content_type"] = c.ContentType
		m["tone"] = c.Tone
		m["topic"] = c.Topic
		m["voice_origin"] = c.VoiceOrigin
		if c.Attribution != "" {
			m["attribution"] = c.Attribution
		}
	case ChunkKindDistilled:
		m["wisdom_kind"] = c.WisdomKind
		if c.Mentor != "" {
			m["mentor"] = c.Mentor
		}
		m["derived"] = c.Derived
	}
	if c.Confidence > 0 {
		m["confidence"] = c.Confidence
	}
	return m
}

package ingestion

import "context"

// TextGenerator is the slice of the OpenAI client the pipeline's generative
// steps consume. Narrow on purpose so tests can script responses.
type TextGenerator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	GenerateText(ctx context.Context, system string, user string) (string, error)
}

// Embedder embeds chunk texts in request-sized slices.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

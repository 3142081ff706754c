package ingestion

import (
	"context"
	"fmt"
	"sync"

	"github.com/sagewell/transcripta-backend/internal/clients/pinecone"
)

// fakeAI scripts the generative and embedding calls so pipeline tests run
// without the real service. Unset handlers fall back to simple defaults.
type fakeAI struct {
	mu         sync.Mutex
	textCalls  int
	jsonCalls  int
	embedCalls int

	textFn  func(system, user string) (string, error)
	jsonFn  func(schemaName, user string) (map[string]any, error)
	embedFn func(inputs []string) ([][]float32, error)
}

func (f *fakeAI) GenerateText(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.textCalls++
	fn := f.textFn
	f.mu.Unlock()
	if fn == nil {
		return user, nil
	}
	return fn(system, user)
}

func (f *fakeAI) GenerateJSON(_ context.Context, system, user, schemaName string, _ map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.jsonCalls++
	fn := f.jsonFn
	f.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("no scripted response for schema %q", schemaName)
	}
	return fn(schemaName, user)
}

func (f *fakeAI) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	fn := f.embedFn
	f.mu.Unlock()
	if fn != nil {
		return fn(inputs)
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i])), 0.5, -0.5}
	}
	return out, nil
}

func (f *fakeAI) counts() (text, json, embed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.textCalls, f.jsonCalls, f.embedCalls
}

// fakeStore records upserts per namespace and can fail selected namespaces.
type fakeStore struct {
	mu      sync.Mutex
	upserts map[string][]pinecone.Vector
	fail    map[string]bool
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		upserts: map[string][]pinecone.Vector{},
		fail:    map[string]bool{},
	}
}

func (s *fakeStore) Upsert(_ context.Context, namespace string, vectors []pinecone.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail[namespace] {
		return fmt.Errorf("injected upsert failure for %s", namespace)
	}
	s.upserts[namespace] = append(s.upserts[namespace], vectors...)
	return nil
}

func (s *fakeStore) stored(namespace string) []pinecone.Vector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pinecone.Vector(nil), s.upserts[namespace]...)
}

// chunkUnit builds one well-formed unit for the chunking schema response.
func chunkUnit(text string) map[string]any {
	return map[string]any{
		"text":         text,
		"content_type": "insight",
		"tone":         "analytical",
		"topic":        "testing",
		"confidence":   0.9,
		"voice_origin": "host",
	}
}

func unitsResponse(texts ...string) map[string]any {
	units := make([]any, 0, len(texts))
	for _, t := range texts {
		units = append(units, chunkUnit(t))
	}
	return map[string]any{"units": units}
}

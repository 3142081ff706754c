package ingestion

import (
	"strings"
	"testing"

	"github.com/sagewell/transcripta-backend/internal/domain"
)

func TestNormalizeTranscript(t *testing.T) {
	in := "line one\r\nline two\rline three\n\n  "
	want := "line one\nline two\nline three"
	if got := NormalizeTranscript(in); got != want {
		t.Fatalf("normalize mismatch: got %q want %q", got, want)
	}
}

func TestHashContentIgnoresLineEndings(t *testing.T) {
	a := HashContent(NormalizeTranscript("hello\r\nworld"))
	b := HashContent(NormalizeTranscript("hello\nworld"))
	if a != b {
		t.Fatalf("hash should not depend on line endings: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", a)
	}
}

func TestChunkIDDeterministic(t *testing.T) {
	a := ChunkID(domain.ChunkKindConversational, "some chunk text")
	b := ChunkID(domain.ChunkKindConversational, "some chunk text")
	if a != b {
		t.Fatalf("same input produced different ids: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "chk_") || len(a) != len("chk_")+32 {
		t.Fatalf("unexpected id shape: %q", a)
	}

	c := ChunkID(domain.ChunkKindDistilled, "some chunk text")
	if a == c {
		t.Fatalf("kind must be part of the id, got identical ids for different kinds")
	}
}

package ingestion

import (
	"context"
	"fmt"
	"testing"

	"github.com/sagewell/transcripta-backend/internal/data/repos/testutil"
)

func TestClassifyValidResponse(t *testing.T) {
	ai := &fakeAI{
		jsonFn: func(schemaName, user string) (map[string]any, error) {
			if schemaName != "namespace_classification" {
				return nil, fmt.Errorf("unexpected schema %q", schemaName)
			}
			return map[string]any{
				"primary_namespace":   "business",
				"secondary_namespace": "MINDSET",
				"confidence":          0.91,
				"rationale":           "mostly startup operations",
			}, nil
		},
	}
	c := NewClassifier(testutil.Logger(t), ai, nil)

	got := c.Classify(context.Background(), "transcript text", "ep1.txt")
	if got.Primary != "BUSINESS" {
		t.Fatalf("primary not normalized: %q", got.Primary)
	}
	if got.Secondary != "MINDSET" {
		t.Fatalf("secondary lost: %q", got.Secondary)
	}
	if got.Confidence != 0.91 {
		t.Fatalf("confidence mangled: %v", got.Confidence)
	}
}

func TestClassifyInvalidPrimaryFallsBack(t *testing.T) {
	ai := &fakeAI{
		jsonFn: func(schemaName, user string) (map[string]any, error) {
			return map[string]any{
				"primary_namespace": "CRYPTOCURRENCY",
				"confidence":        0.8,
				"rationale":         "x",
			}, nil
		},
	}
	c := NewClassifier(testutil.Logger(t), ai, nil)

	got := c.Classify(context.Background(), "text", "ep.txt")
	if got.Primary != FallbackNamespace {
		t.Fatalf("out-of-taxonomy label should default to %s, got %s", FallbackNamespace, got.Primary)
	}
}

func TestClassifyDropsDuplicateSecondary(t *testing.T) {
	ai := &fakeAI{
		jsonFn: func(schemaName, user string) (map[string]any, error) {
			return map[string]any{
				"primary_namespace":   "HEALTH",
				"secondary_namespace": "health",
				"confidence":          1.7,
				"rationale":           "x",
			}, nil
		},
	}
	c := NewClassifier(testutil.Logger(t), ai, nil)

	got := c.Classify(context.Background(), "text", "ep.txt")
	if got.Secondary != "" {
		t.Fatalf("secondary equal to primary should be dropped, got %q", got.Secondary)
	}
	if got.Confidence != 1 {
		t.Fatalf("confidence should clamp to 1, got %v", got.Confidence)
	}
}

func TestClassifyServiceFailureFallsBack(t *testing.T) {
	ai := &fakeAI{
		jsonFn: func(schemaName, user string) (map[string]any, error) {
			return nil, fmt.Errorf("upstream down")
		},
	}
	c := NewClassifier(testutil.Logger(t), ai, nil)

	got := c.Classify(context.Background(), "text", "ep.txt")
	if got.Primary != FallbackNamespace {
		t.Fatalf("failure should degrade to fallback, got %s", got.Primary)
	}
	if got.Confidence != 0.25 {
		t.Fatalf("fallback confidence should be 0.25, got %v", got.Confidence)
	}
	if got.Rationale == "" {
		t.Fatalf("fallback should carry a rationale")
	}
}

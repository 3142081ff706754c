package services

import (
	"context"
	"testing"

	"github.com/sagewell/transcripta-backend/internal/domain"
)

func TestUploadArchiveValidation(t *testing.T) {
	s := &ingestService{}
	ctx := context.Background()

	cases := []struct {
		name string
		req  UploadRequest
	}{
		{"empty archive", UploadRequest{Namespace: "BUSINESS"}},
		{"unknown mode", UploadRequest{Archive: []byte("zip"), Namespace: "BUSINESS", Mode: "summarize"}},
		{"missing namespace", UploadRequest{Archive: []byte("zip")}},
		{"unknown namespace", UploadRequest{Archive: []byte("zip"), Namespace: "CRYPTO"}},
	}
	for _, tc := range cases {
		if _, err := s.UploadArchive(ctx, tc.req); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestBatchProgress(t *testing.T) {
	classifying := &domain.IngestBatch{Status: domain.BatchStatusClassifying}
	processing := &domain.IngestBatch{Status: domain.BatchStatusProcessing}

	episodes := []*domain.Episode{
		{Status: domain.EpisodeStatusPending, PrimaryNamespace: "BUSINESS"},
		{Status: domain.EpisodeStatusPending},
		{Status: domain.EpisodeStatusCompleted, PrimaryNamespace: "HEALTH"},
		{Status: domain.EpisodeStatusFailed},
	}

	// While classifying, labeled or terminal episodes count as done.
	got := batchProgress(classifying, episodes)
	if got.Percent != 0.75 {
		t.Fatalf("classifying percent = %v, want 0.75", got.Percent)
	}
	if got.Classified != 2 {
		t.Fatalf("classified = %d, want 2", got.Classified)
	}

	// From processing on, only terminal episodes count.
	if got := batchProgress(processing, episodes); got.Percent != 0.5 {
		t.Fatalf("processing percent = %v, want 0.5", got.Percent)
	}

	done := &domain.IngestBatch{Status: domain.BatchStatusCompleted}
	if got := batchProgress(done, nil); got.Percent != 1 {
		t.Fatalf("completed percent = %v, want 1", got.Percent)
	}

	pending := &domain.IngestBatch{Status: domain.BatchStatusPending}
	if got := batchProgress(pending, episodes); got.Percent != 0 {
		t.Fatalf("pending percent = %v, want 0", got.Percent)
	}

	if got := batchProgress(processing, nil); got.Percent != 0 {
		t.Fatalf("no episodes should report 0, got %v", got.Percent)
	}

	withCounters := &domain.IngestBatch{
		Status:             domain.BatchStatusProcessing,
		ProcessedEpisodes:  2,
		SuccessfulEpisodes: 1,
		FailedEpisodes:     1,
	}
	got = batchProgress(withCounters, episodes)
	if got.Processed != 2 || got.Successful != 1 || got.Failed != 1 {
		t.Fatalf("counters not carried over: %+v", got)
	}
}

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNormalizeJobStatus(t *testing.T) {
	tests := map[string]JobStatus{
		"starting":   JobStatusQueued,
		"processing": JobStatusRunning,
		"succeeded":  JobStatusSucceeded,
		"failed":     JobStatusFailed,
		"canceled":   JobStatusCanceled,
		"cancelled":  JobStatusCanceled,
		" Queued ":   JobStatusQueued,
	}
	for raw, want := range tests {
		if got := NormalizeJobStatus(raw); got != want {
			t.Fatalf("NormalizeJobStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestJobAdvanceIsMonotonic(t *testing.T) {
	job := &Job{ID: "p1", Status: JobStatusQueued}
	if err := job.Advance(JobStatusRunning); err != nil {
		t.Fatalf("queued -> running: %v", err)
	}
	if err := job.Advance(JobStatusQueued); err == nil {
		t.Fatalf("expected running -> queued to be rejected")
	}
	if err := job.Advance(JobStatusSucceeded); err != nil {
		t.Fatalf("running -> succeeded: %v", err)
	}
	if err := job.Advance(JobStatusFailed); err == nil {
		t.Fatalf("expected terminal state to be final")
	}
	if job.Status != JobStatusSucceeded {
		t.Fatalf("status = %s, want succeeded", job.Status)
	}
}

func TestJobAdvanceSkipsRunning(t *testing.T) {
	job := &Job{ID: "p2", Status: JobStatusQueued}
	if err := job.Advance(JobStatusCanceled); err != nil {
		t.Fatalf("queued -> canceled: %v", err)
	}
}

func TestKindOf(t *testing.T) {
	remote := &RemoteJobError{Kind: KindTimeout, JobID: "abc"}
	wrapped := fmt.Errorf("process: %w", remote)
	if got := KindOf(wrapped); got != KindTimeout {
		t.Fatalf("KindOf(wrapped remote) = %q", got)
	}
	if got := KindOf(fmt.Errorf("x: %w", ErrNoImage)); got != KindValidation {
		t.Fatalf("KindOf(no image) = %q", got)
	}
	user := &UserError{Kind: KindNetwork, Message: "offline", Err: errors.New("dial tcp")}
	if got := KindOf(user); got != KindNetwork {
		t.Fatalf("KindOf(user) = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Fatalf("KindOf(plain) = %q", got)
	}
}

func TestFallbackAvailable(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &RemoteJobError{Kind: KindMemoryExhausted, FallbackAvailable: true})
	if !FallbackAvailable(err) {
		t.Fatalf("expected fallback to be available")
	}
	if FallbackAvailable(&RemoteJobError{Kind: KindFailed}) {
		t.Fatalf("failed job should not offer fallback")
	}
}

func TestImageDataURL(t *testing.T) {
	img := Image{Data: []byte("abc"), MIME: "image/jpeg"}
	if got := img.DataURL(); got != "data:image/jpeg;base64,YWJj" {
		t.Fatalf("DataURL = %q", got)
	}
	if (Image{}).DataURL() != "data:image/png;base64," {
		t.Fatalf("empty image should default to png")
	}
}

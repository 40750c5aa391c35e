package domain

import (
	"fmt"
	"strings"
)

// JobStatus enumerates remote job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// NormalizeJobStatus maps the vocabulary of the remote service onto JobStatus.
// Replicate reports "starting" and "processing" for the two live phases.
func NormalizeJobStatus(raw string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "starting", "queued", "":
		return JobStatusQueued
	case "processing", "running":
		return JobStatusRunning
	case "succeeded", "successful", "success":
		return JobStatusSucceeded
	case "failed", "error":
		return JobStatusFailed
	case "canceled", "cancelled":
		return JobStatusCanceled
	default:
		return JobStatusRunning
	}
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusRunning:
		return 1
	default:
		return 2
	}
}

// Job is the client-side view of one remote prediction. It lives only while
// the poll loop runs and is forgotten once its output has been extracted.
type Job struct {
	ID     string
	Status JobStatus
	// Output holds the result URLs once the job has succeeded.
	Output []string
	// Error is the failure detail once the job has failed or been canceled.
	Error string
}

// Advance applies a status observed by polling. Transitions are monotonic
// (queued -> running -> terminal) and terminal states are final.
func (j *Job) Advance(next JobStatus) error {
	if j.Status == next {
		return nil
	}
	if j.Status.Terminal() {
		return fmt.Errorf("job %s: %s is terminal, cannot move to %s", j.ID, j.Status, next)
	}
	if next.rank() < j.Status.rank() {
		return fmt.Errorf("job %s: cannot move back from %s to %s", j.ID, j.Status, next)
	}
	j.Status = next
	return nil
}

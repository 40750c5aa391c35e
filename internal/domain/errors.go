package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoImage          = errors.New("no image provided")
	ErrUnsupportedImage = errors.New("unsupported image format")
	ErrInvalidRatio     = errors.New("unsupported aspect ratio")
	ErrSessionNotFound  = errors.New("session not found")
	ErrNoHeadshot       = errors.New("session has no processed headshot")
	ErrTooManyEmojis    = errors.New("too many emojis")
	ErrUnknownOverlay   = errors.New("unknown overlay")
	ErrInvalidEmoji     = errors.New("invalid emoji")
	ErrInvalidScale     = errors.New("invalid scale")
	ErrNotConfigured    = errors.New("service not configured")
)

// ErrorKind classifies failures for retry decisions and user messaging.
type ErrorKind string

const (
	KindNetwork         ErrorKind = "network_error"
	KindMemoryExhausted ErrorKind = "memory_exhausted"
	KindTimeout         ErrorKind = "timeout"
	KindFailed          ErrorKind = "failed"
	KindMalformedOutput ErrorKind = "malformed_output"
	KindValidation      ErrorKind = "validation_error"
)

// RemoteJobError is returned by the remote job client.
type RemoteJobError struct {
	Kind ErrorKind
	// JobID is empty when the failure happened before submission completed.
	JobID  string
	Detail string
	// FallbackAvailable is set once memory retries are exhausted and a
	// lower-cost profile may still succeed.
	FallbackAvailable bool
	Err               error
}

func (e *RemoteJobError) Error() string {
	msg := string(e.Kind)
	if e.JobID != "" {
		msg += " (job " + e.JobID + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil && e.Detail == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteJobError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind carried by err, or "" if it has none.
func KindOf(err error) ErrorKind {
	var remote *RemoteJobError
	if errors.As(err, &remote) {
		return remote.Kind
	}
	var user *UserError
	if errors.As(err, &user) {
		return user.Kind
	}
	if errors.Is(err, ErrNoImage) || errors.Is(err, ErrUnsupportedImage) || errors.Is(err, ErrInvalidRatio) ||
		errors.Is(err, ErrTooManyEmojis) || errors.Is(err, ErrInvalidEmoji) || errors.Is(err, ErrInvalidScale) {
		return KindValidation
	}
	return ""
}

// FallbackAvailable reports whether err allows a fallback submission.
func FallbackAvailable(err error) bool {
	var remote *RemoteJobError
	return errors.As(err, &remote) && remote.FallbackAvailable
}

// UserError annotates a failure with text suitable for end users.
type UserError struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	Err        error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *UserError) Unwrap() error {
	return e.Err
}

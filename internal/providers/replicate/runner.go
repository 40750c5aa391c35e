package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/infra"
)

// PredictionAPI is the subset of Client the runner needs.
type PredictionAPI interface {
	CreatePrediction(ctx context.Context, version string, input map[string]any) (*Prediction, error)
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
}

// RunnerOptions tunes polling and memory retries.
type RunnerOptions struct {
	PollInterval time.Duration
	MaxPolls     int
	// RetryDelays are the waits before each memory retry; its length is the
	// retry budget.
	RetryDelays []time.Duration
	Logger      *infra.Logger
	// Sleep replaces the context-aware timer wait; tests use it to skip time.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryDelays are the waits between whole-cycle memory retries.
var DefaultRetryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}

// Runner submits jobs, waits for them with bounded polling and applies the
// memory-retry policy.
type Runner struct {
	api          PredictionAPI
	pollInterval time.Duration
	maxPolls     int
	retryDelays  []time.Duration
	logger       *infra.Logger
	sleep        func(ctx context.Context, d time.Duration) error
}

// Source is the image handed to the model: inline bytes or a remote URL.
type Source struct {
	Image domain.Image
	URL   string
}

// ImageSource wraps inline image bytes.
func ImageSource(img domain.Image) Source { return Source{Image: img} }

// URLSource wraps an already hosted image.
func URLSource(u string) Source { return Source{URL: strings.TrimSpace(u)} }

func (s Source) empty() bool {
	return s.URL == "" && s.Image.Empty()
}

// Output is a finished job.
type Output struct {
	URL          string
	PredictionID string
	// Attempts counts submissions, including memory retries.
	Attempts int
}

// NewRunner wires a runner around api.
func NewRunner(api PredictionAPI, opts RunnerOptions) *Runner {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 60
	}
	delays := opts.RetryDelays
	if delays == nil {
		delays = DefaultRetryDelays
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Runner{
		api:          api,
		pollInterval: interval,
		maxPolls:     maxPolls,
		retryDelays:  delays,
		logger:       logger,
		sleep:        sleep,
	}
}

// SubmitAndAwait runs profile against src and returns the first output URL.
// Memory failures are retried transparently when the profile allows it; once
// the budget is spent the error is memory_exhausted with FallbackAvailable set.
func (r *Runner) SubmitAndAwait(ctx context.Context, src Source, profile Profile, seed *int) (*Output, error) {
	if r == nil || r.api == nil {
		return nil, domain.ErrNotConfigured
	}
	if src.empty() {
		return nil, domain.ErrNoImage
	}
	ref := r.prepare(src, profile)

	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := r.attempt(ctx, ref, profile, seed)
		if err == nil {
			out.Attempts = attempt + 1
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		if domain.KindOf(err) != domain.KindMemoryExhausted || !profile.RetryOnMemory {
			return nil, err
		}
		if attempt >= len(r.retryDelays) {
			break
		}
		delay := r.retryDelays[attempt]
		r.logger.Warn().
			Str("profile", profile.Name).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("replicate: gpu memory exhausted, retrying")
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	var jobID string
	var remote *domain.RemoteJobError
	if errors.As(lastErr, &remote) {
		jobID = remote.JobID
	}
	return nil, &domain.RemoteJobError{
		Kind:              domain.KindMemoryExhausted,
		JobID:             jobID,
		Detail:            fmt.Sprintf("GPU memory exhausted after %d attempts", len(r.retryDelays)+1),
		FallbackAvailable: true,
		Err:               lastErr,
	}
}

// Fallback runs the lower-cost profile once against the same source.
func (r *Runner) Fallback(ctx context.Context, src Source, seed *int) (*Output, error) {
	profile := FallbackProfile()
	profile.RetryOnMemory = false
	return r.SubmitAndAwait(ctx, src, profile, seed)
}

func (r *Runner) prepare(src Source, profile Profile) string {
	if src.URL != "" {
		return src.URL
	}
	img := src.Image
	if profile.MaxEdge > 0 {
		shrunk, _, err := imaging.Downscale(img, profile.MaxEdge, profile.JPEGQuality)
		if err != nil {
			r.logger.Warn().Err(err).Str("profile", profile.Name).Msg("replicate: input resize failed, sending original")
		} else {
			img = shrunk
		}
	}
	return img.DataURL()
}

func (r *Runner) attempt(ctx context.Context, ref string, profile Profile, seed *int) (*Output, error) {
	pred, err := r.api.CreatePrediction(ctx, profile.Version, profile.input(ref, seed))
	if err != nil {
		return nil, classify("", err)
	}
	job := &domain.Job{ID: pred.ID, Status: domain.NormalizeJobStatus(pred.Status)}
	r.logger.Info().
		Str("prediction_id", job.ID).
		Str("profile", profile.Name).
		Str("status", string(job.Status)).
		Msg("replicate: prediction submitted")

	for polls := 0; !job.Status.Terminal() && polls < r.maxPolls; polls++ {
		if err := r.sleep(ctx, r.pollInterval); err != nil {
			return nil, err
		}
		next, err := r.api.GetPrediction(ctx, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, classify(job.ID, err)
		}
		pred = next
		if err := job.Advance(domain.NormalizeJobStatus(next.Status)); err != nil {
			r.logger.Warn().Err(err).Str("prediction_id", job.ID).Msg("replicate: ignoring status regression")
			continue
		}
		r.logger.Debug().
			Str("prediction_id", job.ID).
			Int("poll", polls+1).
			Str("status", string(job.Status)).
			Msg("replicate: poll")
	}

	switch job.Status {
	case domain.JobStatusSucceeded:
		if job.Output, err = outputURLs(pred.Output); err != nil {
			return nil, &domain.RemoteJobError{Kind: domain.KindMalformedOutput, JobID: job.ID, Err: err}
		}
		return &Output{URL: job.Output[0], PredictionID: job.ID}, nil
	case domain.JobStatusFailed, domain.JobStatusCanceled:
		job.Error = pred.ErrorText()
		if job.Error == "" {
			job.Error = "prediction " + string(job.Status)
		}
		kind := domain.KindFailed
		if isMemoryError(job.Error) {
			kind = domain.KindMemoryExhausted
		}
		return nil, &domain.RemoteJobError{Kind: kind, JobID: job.ID, Detail: job.Error}
	default:
		return nil, &domain.RemoteJobError{
			Kind:   domain.KindTimeout,
			JobID:  job.ID,
			Detail: fmt.Sprintf("prediction still %s after %d polls", job.Status, r.maxPolls),
		}
	}
}

func classify(jobID string, err error) error {
	if isMemoryError(err.Error()) {
		return &domain.RemoteJobError{Kind: domain.KindMemoryExhausted, JobID: jobID, Err: err}
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &domain.RemoteJobError{Kind: domain.KindFailed, JobID: jobID, Detail: apiErr.Detail, Err: err}
	}
	if errors.Is(err, ErrMissingAPIToken) {
		return &domain.RemoteJobError{Kind: domain.KindFailed, JobID: jobID, Err: errors.Join(domain.ErrNotConfigured, err)}
	}
	return &domain.RemoteJobError{Kind: domain.KindNetwork, JobID: jobID, Err: err}
}

var memoryMarkers = []string{"cuda out of memory", "outofmemoryerror", "memory"}

func isMemoryError(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range memoryMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// outputURLs accepts a non-empty string or a non-empty array whose first
// element is a non-empty string. Later non-string array entries are skipped.
func outputURLs(raw json.RawMessage) ([]string, error) {
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, errors.New("replicate: empty output array")
		}
		urls := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				urls = append(urls, strings.TrimSpace(s))
			} else if len(urls) == 0 {
				return nil, errors.New("replicate: first output is not a url")
			}
		}
		return urls, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
		return []string{strings.TrimSpace(s)}, nil
	}
	return nil, fmt.Errorf("replicate: unexpected output %s", truncate(string(raw), 120))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

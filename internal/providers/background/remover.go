// Package background removes the backdrop behind a headshot. Removal is
// best-effort: every Remover reports failure through Result.Degraded and hands
// back the untouched input, so callers can always continue.
package background

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"poster/internal/domain"
	"poster/internal/infra"
)

// Result is the outcome of one removal attempt.
type Result struct {
	Image domain.Image
	// Degraded is set when removal failed and Image is the original input.
	Degraded bool
	Err      error
}

// Remover strips the background from an image.
type Remover interface {
	RemoveBackground(ctx context.Context, img domain.Image) Result
}

func degraded(img domain.Image, err error) Result {
	return Result{Image: img, Degraded: true, Err: err}
}

// Noop leaves images untouched; it backs BACKGROUND_STRATEGY=none.
type Noop struct{}

// RemoveBackground returns img unchanged and not degraded.
func (Noop) RemoveBackground(_ context.Context, img domain.Image) Result {
	return Result{Image: img}
}

// New builds the Remover selected by cfg.BackgroundStrategy. A cloudinary
// strategy without credentials degrades to Noop with a warning.
func New(cfg *infra.Config, httpClient *http.Client, logger *infra.Logger) (Remover, error) {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	switch cfg.BackgroundStrategy {
	case infra.BackgroundStrategyNone:
		return Noop{}, nil
	case infra.BackgroundStrategySegmentation, "":
		return NewSegmentationRemover(defaultModelLoader, logger), nil
	case infra.BackgroundStrategyCloudinary:
		remover, err := NewCloudinaryRemover(CloudinaryOptions{
			CloudName:    cfg.CloudinaryCloudName,
			APIKey:       cfg.CloudinaryAPIKey,
			APISecret:    cfg.CloudinaryAPISecret,
			UploadPreset: cfg.CloudinaryUploadPreset,
			APIBaseURL:   cfg.CloudinaryAPIBaseURL,
			ResBaseURL:   cfg.CloudinaryResBaseURL,
			HTTPClient:   httpClient,
			Logger:       logger,
		})
		if errors.Is(err, ErrCloudinaryNotConfigured) {
			logger.Warn().Msg("background: cloudinary credentials missing, background removal disabled")
			return Noop{}, nil
		}
		return remover, err
	default:
		return nil, fmt.Errorf("background: unknown strategy %q", cfg.BackgroundStrategy)
	}
}

// Package pipeline turns an uploaded headshot into the stylised image placed
// on the poster.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/infra"
	"poster/internal/providers/background"
	"poster/internal/providers/replicate"
)

// Stylizer runs the remote stylisation model.
type Stylizer interface {
	SubmitAndAwait(ctx context.Context, src replicate.Source, profile replicate.Profile, seed *int) (*replicate.Output, error)
	Fallback(ctx context.Context, src replicate.Source, seed *int) (*replicate.Output, error)
}

// Fetcher downloads a remote output so it can be stored inline.
type Fetcher interface {
	Download(ctx context.Context, url string) (domain.Image, error)
}

// Options wires the orchestrator's collaborators. A nil Stylizer selects the
// local sketch filter; a nil Remover skips background removal.
type Options struct {
	Stylizer      Stylizer
	Fetcher       Fetcher
	Remover       background.Remover
	Profile       replicate.Profile
	MaxUploadEdge int
	JPEGQuality   int
	Logger        *infra.Logger
}

// Orchestrator runs measure, downscale, background removal and stylisation.
type Orchestrator struct {
	stylizer    Stylizer
	fetcher     Fetcher
	remover     background.Remover
	profile     replicate.Profile
	maxEdge     int
	jpegQuality int
	logger      *infra.Logger
}

// Request is one headshot to process.
type Request struct {
	Image            domain.Image
	RemoveBackground bool
	// Regenerate asks for a fresh variation; any Seed is ignored.
	Regenerate bool
	Seed       *int
	Locale     string
}

// Outcome is a processed headshot plus how it was produced.
type Outcome struct {
	Image              *domain.ProcessedImage
	PredictionID       string
	Remote             bool
	UsedFallback       bool
	BackgroundRemoved  bool
	BackgroundDegraded bool
}

// New builds an Orchestrator.
func New(opts Options) *Orchestrator {
	maxEdge := opts.MaxUploadEdge
	if maxEdge <= 0 {
		maxEdge = imaging.MaxUploadEdge
	}
	quality := opts.JPEGQuality
	if quality <= 0 {
		quality = imaging.UploadJPEGQuality
	}
	profile := opts.Profile
	if profile.Version == "" {
		profile = replicate.PrimaryProfile()
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Orchestrator{
		stylizer:    opts.Stylizer,
		fetcher:     opts.Fetcher,
		remover:     opts.Remover,
		profile:     profile,
		maxEdge:     maxEdge,
		jpegQuality: quality,
		logger:      logger,
	}
}

// RemoteEnabled reports whether stylisation goes to the remote model.
func (o *Orchestrator) RemoteEnabled() bool {
	return o.stylizer != nil
}

// ProcessHeadshot runs the full pipeline. Failures come back as
// *domain.UserError localised for req.Locale.
func (o *Orchestrator) ProcessHeadshot(ctx context.Context, req Request) (*Outcome, error) {
	width, height, err := imaging.Measure(req.Image)
	if err != nil {
		return nil, NewUserError(req.Locale, domain.KindValidation, err)
	}

	prepared := req.Image
	if shrunk, resized, err := imaging.Downscale(req.Image, o.maxEdge, o.jpegQuality); err != nil {
		o.logger.Warn().Err(err).Msg("pipeline: resize failed, continuing with original")
	} else if resized {
		o.logger.Debug().Int("width", width).Int("height", height).Int("max_edge", o.maxEdge).Msg("pipeline: downscaled upload")
		prepared = shrunk
	}

	out := &Outcome{}
	if req.RemoveBackground && o.remover != nil {
		res := o.remover.RemoveBackground(ctx, prepared)
		if res.Degraded {
			out.BackgroundDegraded = true
			o.logger.Warn().Err(res.Err).Msg("pipeline: background removal degraded, keeping original")
		} else {
			out.BackgroundRemoved = true
			prepared = res.Image
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var processed domain.Image
	if o.stylizer != nil {
		processed, err = o.stylizeRemote(ctx, prepared, req, out)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			kind := domain.KindOf(err)
			if kind == "" {
				kind = domain.KindFailed
			}
			o.logger.Error().Err(err).Str("kind", string(kind)).Msg("pipeline: stylisation failed")
			return nil, NewUserError(req.Locale, kind, err)
		}
	} else {
		processed, err = imaging.Sketch(prepared)
		if err != nil {
			return nil, NewUserError(req.Locale, domain.KindFailed, err)
		}
	}

	out.Image = &domain.ProcessedImage{
		Original:  req.Image,
		Processed: processed,
		Width:     width,
		Height:    height,
	}
	return out, nil
}

func (o *Orchestrator) stylizeRemote(ctx context.Context, prepared domain.Image, req Request, out *Outcome) (domain.Image, error) {
	seed := req.Seed
	if req.Regenerate {
		seed = nil
	}
	src := replicate.ImageSource(prepared)
	res, err := o.stylizer.SubmitAndAwait(ctx, src, o.profile, seed)
	if err != nil && domain.FallbackAvailable(err) {
		o.logger.Warn().Err(err).Msg("pipeline: primary model out of memory, using fallback")
		res, err = o.stylizer.Fallback(ctx, src, seed)
		out.UsedFallback = err == nil
	}
	if err != nil {
		return domain.Image{}, err
	}
	out.Remote = true
	out.PredictionID = res.PredictionID
	if o.fetcher == nil {
		return domain.Image{}, errors.New("pipeline: no fetcher for remote output")
	}
	img, err := o.fetcher.Download(ctx, res.URL)
	if err != nil {
		return domain.Image{}, &domain.RemoteJobError{
			Kind:  domain.KindNetwork,
			JobID: res.PredictionID,
			Err:   fmt.Errorf("pipeline: fetch output: %w", err),
		}
	}
	return img, nil
}

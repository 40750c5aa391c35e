package background

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	xdraw "golang.org/x/image/draw"

	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/infra"
)

// Segmenter produces a foreground mask for an image: opaque where the
// subject is, transparent where the background is.
type Segmenter interface {
	Mask(img image.Image) *image.Alpha
}

// ModelLoader loads a Segmenter. It runs at most once per remover.
type ModelLoader func() (Segmenter, error)

// SegmentationRemover masks the background out in-process.
type SegmentationRemover struct {
	load   func() (Segmenter, error)
	logger *infra.Logger
}

// NewSegmentationRemover wraps loader so that the first caller triggers the
// load, concurrent callers wait for it, and its outcome (including a load
// error) is reused afterwards.
func NewSegmentationRemover(loader ModelLoader, logger *infra.Logger) *SegmentationRemover {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	if loader == nil {
		loader = func() (Segmenter, error) { return nil, errors.New("segmentation: no model loader") }
	}
	return &SegmentationRemover{
		load: sync.OnceValues(func() (Segmenter, error) {
			model, err := loader()
			if err != nil {
				return nil, fmt.Errorf("segmentation: load model: %w", err)
			}
			logger.Info().Msg("segmentation: model ready")
			return model, nil
		}),
		logger: logger,
	}
}

// RemoveBackground composites the subject onto a transparent PNG.
func (s *SegmentationRemover) RemoveBackground(ctx context.Context, img domain.Image) Result {
	if err := ctx.Err(); err != nil {
		return degraded(img, err)
	}
	model, err := s.load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("segmentation: model unavailable, keeping original")
		return degraded(img, err)
	}
	src, err := imaging.Decode(img)
	if err != nil {
		return degraded(img, err)
	}
	mask := model.Mask(src)
	if mask == nil || !mask.Bounds().Eq(src.Bounds()) {
		return degraded(img, errors.New("segmentation: mask does not match image bounds"))
	}
	out, err := imaging.EncodePNG(Composite(src, mask))
	if err != nil {
		return degraded(img, err)
	}
	return Result{Image: out}
}

// Composite keeps src pixels where mask is set and leaves the rest transparent.
func Composite(src image.Image, mask *image.Alpha) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	xdraw.DrawMask(dst, b, src, b.Min, mask, b.Min, xdraw.Src)
	return dst
}

// BorderModel treats the colour along the image border as the backdrop and
// keeps every pixel that differs from it by more than Tolerance, with a soft
// ramp of width Feather.
type BorderModel struct {
	Tolerance float64
	Feather   float64
}

// DefaultBorderModel returns a BorderModel tuned for studio-style headshots.
func DefaultBorderModel() BorderModel {
	return BorderModel{Tolerance: 48, Feather: 32}
}

// defaultModelLoader backs the segmentation strategy. Builds with the gocv
// tag replace it with GrabCutModelLoader.
var defaultModelLoader ModelLoader = BorderModelLoader

// BorderModelLoader is the built-in ModelLoader.
func BorderModelLoader() (Segmenter, error) {
	return DefaultBorderModel(), nil
}

// Mask implements Segmenter.
func (m BorderModel) Mask(img image.Image) *image.Alpha {
	b := img.Bounds()
	mask := image.NewAlpha(b)
	if b.Empty() {
		return mask
	}
	bg := borderColour(img)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := distance(img.At(x, y), bg)
			mask.SetAlpha(x, y, color.Alpha{A: m.alpha(d)})
		}
	}
	return mask
}

func (m BorderModel) alpha(d float64) uint8 {
	switch {
	case d <= m.Tolerance:
		return 0
	case m.Feather <= 0 || d >= m.Tolerance+m.Feather:
		return 255
	default:
		return uint8(math.Round(255 * (d - m.Tolerance) / m.Feather))
	}
}

type rgb struct{ r, g, b float64 }

func borderColour(img image.Image) rgb {
	b := img.Bounds()
	var sum rgb
	var n float64
	add := func(x, y int) {
		c := toRGB(img.At(x, y))
		sum.r += c.r
		sum.g += c.g
		sum.b += c.b
		n++
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		add(x, b.Min.Y)
		add(x, b.Max.Y-1)
	}
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		add(b.Min.X, y)
		add(b.Max.X-1, y)
	}
	return rgb{sum.r / n, sum.g / n, sum.b / n}
}

func toRGB(c color.Color) rgb {
	r, g, b, _ := c.RGBA()
	return rgb{float64(r >> 8), float64(g >> 8), float64(b >> 8)}
}

func distance(c color.Color, bg rgb) float64 {
	p := toRGB(c)
	dr, dg, db := p.r-bg.r, p.g-bg.g, p.b-bg.b
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

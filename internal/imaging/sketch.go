package imaging

import (
	"image"
	"image/color"

	"poster/internal/domain"
)

// Sketch tuning. The threshold pass pushes light tones to white and deep
// shadows to black, leaving mid tones as grey.
const (
	sketchContrast   = 1.3
	sketchBrightness = 1.1
	sketchThreshold  = 128.0
	sketchShadowCut  = sketchThreshold * 0.3
)

// Sketch is the local stand-in for remote stylisation: greyscale, a
// contrast and brightness lift, then a threshold pass. It is deterministic
// and needs no network. Alpha is preserved so cut-out headshots stay cut out.
func Sketch(img domain.Image) (domain.Image, error) {
	src, err := Decode(img)
	if err != nil {
		return domain.Image{}, err
	}
	return EncodePNG(SketchRaster(src))
}

// SketchRaster applies the sketch filter to a decoded raster.
func SketchRaster(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			v := sketchTone(c.R, c.G, c.B)
			dst.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.NRGBA{R: v, G: v, B: v, A: c.A})
		}
	}
	return dst
}

func sketchTone(r, g, b uint8) uint8 {
	// Rec. 709 luma, as CSS grayscale(100%) uses.
	lum := 0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)
	v := ((lum/255-0.5)*sketchContrast + 0.5) * 255
	v *= sketchBrightness
	v = clamp255(v)
	switch {
	case v > sketchThreshold:
		return 255
	case v < sketchShadowCut:
		return 0
	default:
		return uint8(v)
	}
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

package imaging

import (
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"poster/internal/domain"
)

// MaxUploadEdge is the long-edge threshold above which uploads are shrunk
// before being sent anywhere.
const MaxUploadEdge = 1024

// UploadJPEGQuality is the re-encode quality used after shrinking.
const UploadJPEGQuality = 80

// FitWithin returns dimensions scaled down to fit inside maxEdge x maxEdge,
// preserving aspect ratio. Dimensions already inside the box are unchanged.
func FitWithin(width, height, maxEdge int) (int, int) {
	if width <= 0 || height <= 0 || maxEdge <= 0 {
		return width, height
	}
	if width <= maxEdge && height <= maxEdge {
		return width, height
	}
	scale := math.Min(float64(maxEdge)/float64(width), float64(maxEdge)/float64(height))
	w := int(math.Floor(float64(width) * scale))
	h := int(math.Floor(float64(height) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// Scale resamples src to exactly width x height using Catmull-Rom.
func Scale(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// Downscale shrinks img so its long edge is at most maxEdge and re-encodes it
// as JPEG at the given quality. The second result is false when the image
// already fit and was returned untouched.
func Downscale(img domain.Image, maxEdge, quality int) (domain.Image, bool, error) {
	width, height, err := Measure(img)
	if err != nil {
		return img, false, err
	}
	w, h := FitWithin(width, height, maxEdge)
	if w == width && h == height {
		return img, false, nil
	}
	decoded, err := Decode(img)
	if err != nil {
		return img, false, err
	}
	out, err := EncodeJPEG(Scale(decoded, w, h), quality)
	if err != nil {
		return img, false, fmt.Errorf("imaging: downscale: %w", err)
	}
	return out, true, nil
}

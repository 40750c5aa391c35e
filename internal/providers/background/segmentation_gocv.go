//go:build gocv

package background

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

func init() {
	defaultModelLoader = GrabCutModelLoader
}

// GrabCutModel segments the subject with OpenCV GrabCut seeded by a
// rectangle inset Margin of each edge, then smooths the mask edge.
type GrabCutModel struct {
	Margin     float64
	Iterations int
	Feather    int
}

// GrabCutModelLoader is the ModelLoader used when built with the gocv tag.
func GrabCutModelLoader() (Segmenter, error) {
	return GrabCutModel{Margin: 0.08, Iterations: 4, Feather: 5}, nil
}

// Mask implements Segmenter. It falls back to the border model when
// GrabCut rejects the input.
func (m GrabCutModel) Mask(img image.Image) *image.Alpha {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 8 || h < 8 {
		return DefaultBorderModel().Mask(img)
	}

	src := toBGRMat(img)
	defer src.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	bgd := gocv.NewMat()
	defer bgd.Close()
	fgd := gocv.NewMat()
	defer fgd.Close()

	mx, my := int(float64(w)*m.Margin), int(float64(h)*m.Margin)
	seed := image.Rect(mx, my, w-mx, h-my)
	if err := gocv.GrabCut(src, &labels, seed, &bgd, &fgd, m.Iterations, gocv.GCInitWithRect); err != nil {
		return DefaultBorderModel().Mask(img)
	}

	binary := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	defer binary.Close()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// 1 = definite foreground, 3 = probable foreground.
			if v := labels.GetUCharAt(y, x); v == 1 || v == 3 {
				binary.SetUCharAt(y, x, 255)
			}
		}
	}

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: 5, Y: 5})
	defer kernel.Close()
	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(binary, &closed, gocv.MorphClose, kernel)

	soft := closed
	if m.Feather > 0 {
		k := m.Feather*2 + 1
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(closed, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)
		soft = blurred
	}

	mask := image.NewAlpha(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask.SetAlpha(b.Min.X+x, b.Min.Y+y, color.Alpha{A: soft.GetUCharAt(y, x)})
		}
	}
	return mask
}

func toBGRMat(img image.Image) gocv.Mat {
	b := img.Bounds()
	mat := gocv.NewMatWithSize(b.Dy(), b.Dx(), gocv.MatTypeCV8UC3)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := toRGB(img.At(b.Min.X+x, b.Min.Y+y))
			mat.SetUCharAt3(y, x, 0, uint8(c.b))
			mat.SetUCharAt3(y, x, 1, uint8(c.g))
			mat.SetUCharAt3(y, x, 2, uint8(c.r))
		}
	}
	return mat
}

package canvas

import (
	"fmt"
	"image"
	"image/color"
	"os"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"poster/internal/domain"
	"poster/internal/imaging"
)

// LoadTemplate decodes the poster background from path.
func LoadTemplate(path string) (image.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("canvas: read template: %w", err)
	}
	img, err := imaging.Decode(domain.Image{Data: raw})
	if err != nil {
		return nil, fmt.Errorf("canvas: template %s: %w", path, err)
	}
	return img, nil
}

type caption struct {
	text  string
	x, y  int
	size  int
	color color.Color
}

// Placeholder draws the stand-in poster used when no template is configured:
// a light grid with the event name, tagline and date.
func Placeholder(layout Layout) image.Image {
	w, h := layout.Width, layout.Height
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.RGBA{0xf5, 0xf5, 0xf5, 0xff}), image.Point{}, xdraw.Src)

	grid := image.NewUniform(color.RGBA{0xe0, 0xe0, 0xe0, 0xff})
	for x := 0; x < w; x += 50 {
		xdraw.Draw(dst, image.Rect(x, 0, x+1, h), grid, image.Point{}, xdraw.Src)
	}
	for y := 0; y < h; y += 50 {
		xdraw.Draw(dst, image.Rect(0, y, w, y+1), grid, image.Point{}, xdraw.Src)
	}

	xdraw.Draw(dst, image.Rect(100, 600, 400, 680), image.NewUniform(color.RGBA{0x33, 0x33, 0x33, 0xff}), image.Point{}, xdraw.Src)

	for _, c := range []caption{
		{text: "BLACKWEEK", x: 100, y: 150, size: 60, color: color.Black},
		{text: "2025", x: 600, y: 250, size: 40, color: color.Black},
		{text: "economic forum", x: 120, y: 650, size: 30, color: color.White},
		{text: "CULTURE", x: 150, y: 780, size: 80, color: color.Black},
		{text: "festival", x: 250, y: 880, size: 60, color: color.Black},
		{text: "Oct6-9 * NYC", x: 200, y: 1000, size: 40, color: color.Black},
	} {
		drawCaption(dst, c)
	}
	return dst
}

// drawCaption renders text with the 13px bitmap face and scales it up so the
// cap height roughly matches size; (x, y) is the baseline origin.
func drawCaption(dst *image.RGBA, c caption) {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()
	width := font.MeasureString(face, c.text).Ceil()
	if width == 0 {
		return
	}

	small := image.NewRGBA(image.Rect(0, 0, width, lineHeight))
	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(c.color),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(c.text)

	factor := float64(c.size) / float64(lineHeight)
	scaledW := int(float64(width) * factor)
	scaledH := int(float64(lineHeight) * factor)
	top := c.y - int(float64(ascent)*factor)
	xdraw.NearestNeighbor.Scale(dst, image.Rect(c.x, top, c.x+scaledW, top+scaledH), small, small.Bounds(), xdraw.Over, nil)
}

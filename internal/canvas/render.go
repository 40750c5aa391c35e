package canvas

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"poster/internal/domain"
	"poster/internal/imaging"
)

// Renderer rasterises scenes. It is safe for concurrent use.
type Renderer struct {
	template  image.Image
	emojiFont *opentype.Font

	mu          sync.Mutex
	faces       map[float64]font.Face
	placeholder image.Image
}

// NewRenderer draws scenes over template. A nil emojiFont draws emojis as
// coloured badges.
func NewRenderer(template image.Image, emojiFont *opentype.Font) *Renderer {
	return &Renderer{template: template, emojiFont: emojiFont, faces: make(map[float64]font.Face)}
}

// LoadEmojiFont parses a TrueType or OpenType font file.
func LoadEmojiFont(path string) (*opentype.Font, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("canvas: read emoji font: %w", err)
	}
	f, err := opentype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("canvas: parse emoji font: %w", err)
	}
	return f, nil
}

// ExportFilename is the download name for a poster exported at unix millis.
func ExportFilename(millis int64) string {
	return fmt.Sprintf("blackweek-2025-custom-%d.jpg", millis)
}

// Export rasterises the scene at scale times the layout's export multiplier
// and encodes it as JPEG.
func (s *Scene) Export(ctx context.Context, r *Renderer) (domain.Image, error) {
	s.mu.RLock()
	factor := s.scale * s.layout.ExportMultiplier
	snap := s.snapshotLocked(factor)
	var photo image.Image
	if s.photo != nil {
		photo = s.photo.raster
	}
	layout := s.layout
	s.mu.RUnlock()

	img, err := r.Render(ctx, layout, snap, photo)
	if err != nil {
		return domain.Image{}, err
	}
	return imaging.EncodeJPEG(img, layout.ExportQuality)
}

// Render draws snap over the template. photo is the raster of snap.Photo.
func (r *Renderer) Render(ctx context.Context, layout Layout, snap Snapshot, photo image.Image) (*image.RGBA, error) {
	width := int(math.Round(snap.Width))
	height := int(math.Round(snap.Height))
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: canvas %dx%d", domain.ErrInvalidScale, width, height)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(dst, dst.Bounds(), image.White, image.Point{}, xdraw.Src)

	template := r.templateFor(layout)
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), template, template.Bounds(), xdraw.Over, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if snap.Photo != nil && photo != nil {
		rect := rectAt(snap.Photo.X, snap.Photo.Y, snap.Photo.Width, snap.Photo.Height)
		xdraw.CatmullRom.Scale(dst, rect, photo, photo.Bounds(), xdraw.Over, nil)
		if snap.Photo.Bordered {
			stroke, _ := parseHexColor(layout.PhotoBorderColor)
			drawFrame(dst, rect, int(math.Max(1, math.Round(layout.PhotoBorderWidth*snap.Scale))), stroke)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, e := range snap.Emojis {
		if err := r.drawEmoji(dst, e); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (r *Renderer) templateFor(layout Layout) image.Image {
	if r.template != nil {
		return r.template
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.placeholder == nil || r.placeholder.Bounds().Dx() != layout.Width || r.placeholder.Bounds().Dy() != layout.Height {
		r.placeholder = Placeholder(layout)
	}
	return r.placeholder
}

func (r *Renderer) drawEmoji(dst *image.RGBA, e OverlayView) error {
	if r.emojiFont == nil {
		drawBadge(dst, e)
		return nil
	}
	face, err := r.face(e.FontSize)
	if err != nil {
		return err
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(e.X * 64), Y: fixed.Int26_6(e.Y*64) + face.Metrics().Ascent},
	}
	d.DrawString(e.Glyph)
	return nil
}

func (r *Renderer) face(size float64) (font.Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(r.emojiFont, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("canvas: emoji face: %w", err)
	}
	r.faces[size] = f
	return f, nil
}

// drawBadge stands in for a glyph when no emoji font is configured: a disc
// whose colour is derived from the glyph.
func drawBadge(dst *image.RGBA, e OverlayView) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(e.Glyph))
	sum := h.Sum32()
	fill := color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 255}
	rect := rectAt(e.X, e.Y, e.FontSize, e.FontSize)
	xdraw.DrawMask(dst, rect, image.NewUniform(fill), image.Point{}, &disc{rect: rect}, rect.Min, xdraw.Over)
}

type disc struct {
	rect image.Rectangle
}

func (d *disc) ColorModel() color.Model { return color.AlphaModel }
func (d *disc) Bounds() image.Rectangle { return d.rect }

func (d *disc) At(x, y int) color.Color {
	r := float64(d.rect.Dx()) / 2
	cx := float64(d.rect.Min.X) + r
	cy := float64(d.rect.Min.Y) + r
	dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
	if dx*dx+dy*dy <= r*r {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}

func drawFrame(dst *image.RGBA, r image.Rectangle, width int, c color.Color) {
	src := image.NewUniform(c)
	outer := r.Inset(-width)
	for _, edge := range []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, r.Min.Y),
		image.Rect(outer.Min.X, r.Max.Y, outer.Max.X, outer.Max.Y),
		image.Rect(outer.Min.X, r.Min.Y, r.Min.X, r.Max.Y),
		image.Rect(r.Max.X, r.Min.Y, outer.Max.X, r.Max.Y),
	} {
		xdraw.Draw(dst, edge, src, image.Point{}, xdraw.Over)
	}
}

func rectAt(x, y, w, h float64) image.Rectangle {
	x0, y0 := int(math.Round(x)), int(math.Round(y))
	return image.Rect(x0, y0, x0+int(math.Round(w)), y0+int(math.Round(h)))
}

func parseHexColor(raw string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("canvas: bad colour %q", raw)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("canvas: bad colour %q", raw)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	_ "golang.org/x/image/webp"

	"poster/internal/domain"
)

// Decode parses encoded bytes into a raster.
func Decode(img domain.Image) (image.Image, error) {
	if img.Empty() {
		return nil, domain.ErrNoImage
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode: %w: %v", domain.ErrUnsupportedImage, err)
	}
	return decoded, nil
}

// Measure returns the pixel dimensions without decoding the full raster.
func Measure(img domain.Image) (int, int, error) {
	if img.Empty() {
		return 0, 0, domain.ErrNoImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return 0, 0, fmt.Errorf("imaging: measure: %w: %v", domain.ErrUnsupportedImage, err)
	}
	return cfg.Width, cfg.Height, nil
}

// EncodePNG encodes a raster as PNG, preserving transparency.
func EncodePNG(img image.Image) (domain.Image, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.Image{}, fmt.Errorf("imaging: encode png: %w", err)
	}
	return domain.Image{Data: buf.Bytes(), MIME: "image/png"}, nil
}

// EncodeJPEG flattens the raster onto white and encodes it as JPEG.
func EncodeJPEG(img image.Image, quality int) (domain.Image, error) {
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}
	bounds := img.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Over)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
		return domain.Image{}, fmt.Errorf("imaging: encode jpeg: %w", err)
	}
	return domain.Image{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

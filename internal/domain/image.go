package domain

import (
	"encoding/base64"
	"strings"
)

// Image is an encoded raster held in memory together with its media type.
type Image struct {
	Data []byte
	MIME string
}

// Empty reports whether the image carries no bytes.
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// DataURL renders the image as a base64 data URL.
func (i Image) DataURL() string {
	mime := strings.TrimSpace(i.MIME)
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ProcessedImage is the result of one successful pipeline run. Width and
// Height are the dimensions of the original upload, before any downscale.
type ProcessedImage struct {
	Original  Image
	Processed Image
	Width     int
	Height    int
}

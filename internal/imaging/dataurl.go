package imaging

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"poster/internal/domain"
)

// ParseDataURL decodes a base64 data URL such as "data:image/png;base64,...".
// Bare base64 payloads are accepted and sniffed for their media type.
func ParseDataURL(raw string) (domain.Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Image{}, domain.ErrNoImage
	}
	mime := ""
	payload := raw
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 {
			return domain.Image{}, fmt.Errorf("imaging: malformed data url: %w", domain.ErrUnsupportedImage)
		}
		header := raw[len("data:"):comma]
		payload = raw[comma+1:]
		if !strings.HasSuffix(header, ";base64") {
			return domain.Image{}, fmt.Errorf("imaging: data url is not base64: %w", domain.ErrUnsupportedImage)
		}
		mime = strings.TrimSuffix(header, ";base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return domain.Image{}, fmt.Errorf("imaging: decode base64: %w", domain.ErrUnsupportedImage)
		}
	}
	if len(data) == 0 {
		return domain.Image{}, domain.ErrNoImage
	}
	if mime == "" || !strings.HasPrefix(mime, "image/") {
		mime = SniffMIME(data)
	}
	return domain.Image{Data: data, MIME: mime}, nil
}

// SniffMIME detects the media type of encoded image bytes.
func SniffMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return mime
}

// IsRemoteRef reports whether ref points to a remote resource rather than inline bytes.
func IsRemoteRef(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

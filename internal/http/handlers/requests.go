package handlers

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// seedValue accepts a seed as a JSON number or a numeric string. A string is
// read up to its first non-digit; values without a leading integer count as
// absent.
type seedValue struct {
	value *int
}

func (s *seedValue) UnmarshalJSON(raw []byte) error {
	s.value = nil
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		text = n.String()
	}
	if v, ok := leadingInt(text); ok {
		s.value = &v
	}
	return nil
}

// Ptr returns the seed, or nil when absent.
func (s seedValue) Ptr() *int {
	return s.value
}

func leadingInt(text string) (int, bool) {
	text = strings.TrimSpace(text)
	end := 0
	if end < len(text) && (text[end] == '-' || text[end] == '+') {
		end++
	}
	digits := end
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	v, err := strconv.Atoi(text[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}

type transformRequest struct {
	ImageDataURL string    `json:"imageDataUrl"`
	AspectRatio  string    `json:"aspectRatio"`
	Seed         seedValue `json:"seed"`
}

type editRequest struct {
	ImageURL string    `json:"imageUrl"`
	Prompt   string    `json:"prompt"`
	Seed     seedValue `json:"seed"`
}

type cloudinaryRequest struct {
	Image string `json:"image"`
}

type transformResponse struct {
	Success      bool   `json:"success"`
	OutputURL    string `json:"outputUrl"`
	PredictionID string `json:"predictionId"`
	UsedFallback bool   `json:"usedFallback,omitempty"`
}

type headshotRequest struct {
	ImageDataURL     string    `json:"imageDataUrl"`
	RemoveBackground bool      `json:"removeBackground"`
	Regenerate       bool      `json:"regenerate"`
	Seed             seedValue `json:"seed"`
}

type emojisRequest struct {
	Emojis []emojiItem `json:"emojis"`
}

// emojiItem is either a bare glyph string or {slot, emoji}.
type emojiItem struct {
	Slot  *int
	Glyph string
}

func (e *emojiItem) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		return json.Unmarshal(raw, &e.Glyph)
	}
	var obj struct {
		Slot  *int   `json:"slot"`
		Glyph string `json:"emoji"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	e.Slot, e.Glyph = obj.Slot, obj.Glyph
	return nil
}

type addEmojiRequest struct {
	Emoji string `json:"emoji"`
}

type dragRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type photoScaleRequest struct {
	Scale float64 `json:"scale"`
}

type viewportRequest struct {
	Width          float64 `json:"width"`
	Height         float64 `json:"height"`
	ContainerWidth float64 `json:"containerWidth"`
	Trigger        string  `json:"trigger"`
}

package canvas

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Point is a position in design units (the unscaled poster grid).
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Layout holds the poster geometry. All lengths are design units; the
// rendered size is design units times the current scale.
type Layout struct {
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	PhotoBaseWidth   float64 `yaml:"photo_base_width"`
	PhotoLift        float64 `yaml:"photo_lift"`
	EmojiPresets     []Point `yaml:"emoji_presets"`
	FirstEmojiSize   float64 `yaml:"first_emoji_size"`
	EmojiSize        float64 `yaml:"emoji_size"`
	MaxEmojis        int     `yaml:"max_emojis"`
	ExportMultiplier float64 `yaml:"export_multiplier"`
	ExportQuality    int     `yaml:"export_quality"`
	PhotoBorderColor string  `yaml:"photo_border_color"`
	PhotoBorderWidth float64 `yaml:"photo_border_width"`
}

// DefaultLayout is the Blackweek 2025 poster.
func DefaultLayout() Layout {
	return Layout{
		Width:          800,
		Height:         1066,
		PhotoBaseWidth: 200,
		PhotoLift:      125,
		EmojiPresets: []Point{
			{X: 200, Y: 780},
			{X: 625, Y: 300},
			{X: 560, Y: 380},
			{X: 525, Y: 470},
			{X: 650, Y: 490},
		},
		FirstEmojiSize:   130,
		EmojiSize:        60,
		MaxEmojis:        5,
		ExportMultiplier: 2,
		ExportQuality:    95,
		PhotoBorderColor: "#ececed",
		PhotoBorderWidth: 2,
	}
}

// LoadLayout reads a YAML file over DefaultLayout. An empty path yields the
// defaults.
func LoadLayout(path string) (Layout, error) {
	layout := DefaultLayout()
	if path == "" {
		return layout, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("canvas: read layout: %w", err)
	}
	if err := yaml.Unmarshal(raw, &layout); err != nil {
		return Layout{}, fmt.Errorf("canvas: parse layout: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// Validate checks that the layout can place MaxEmojis emojis on a
// non-empty canvas.
func (l Layout) Validate() error {
	switch {
	case l.Width <= 0 || l.Height <= 0:
		return errors.New("canvas: layout width and height must be positive")
	case l.PhotoBaseWidth <= 0:
		return errors.New("canvas: photo_base_width must be positive")
	case l.MaxEmojis < 0:
		return errors.New("canvas: max_emojis must not be negative")
	case len(l.EmojiPresets) < l.MaxEmojis:
		return fmt.Errorf("canvas: %d emoji presets for max_emojis %d", len(l.EmojiPresets), l.MaxEmojis)
	case l.ExportMultiplier <= 0:
		return errors.New("canvas: export_multiplier must be positive")
	case l.ExportQuality <= 0 || l.ExportQuality > 100:
		return errors.New("canvas: export_quality must be within 1..100")
	}
	if _, err := parseHexColor(l.PhotoBorderColor); err != nil {
		return err
	}
	return nil
}

// EmojiSizeFor returns the font size of the emoji in slot.
func (l Layout) EmojiSizeFor(slot int) float64 {
	if slot == 0 {
		return l.FirstEmojiSize
	}
	return l.EmojiSize
}

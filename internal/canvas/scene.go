// Package canvas composes the poster: a fixed template with one draggable
// photo and a handful of emoji stickers, rescaled to the client viewport and
// rasterised for download.
package canvas

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"poster/internal/domain"
	"poster/internal/imaging"
)

// Kind distinguishes overlay types.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindEmoji Kind = "emoji"
)

// Key identifies an overlay across reconciliations. Emojis are keyed by the
// slot they were given when added, never by their position in a list.
type Key struct {
	Kind Kind
	Slot int
}

// PhotoKey is the key of the single photo overlay.
var PhotoKey = Key{Kind: KindPhoto}

// EmojiKey returns the key of the emoji in slot.
func EmojiKey(slot int) Key { return Key{Kind: KindEmoji, Slot: slot} }

func (k Key) String() string {
	if k.Kind == KindPhoto {
		return string(KindPhoto)
	}
	return string(KindEmoji) + "-" + strconv.Itoa(k.Slot)
}

// ParseKey parses "photo" or "emoji-N".
func ParseKey(raw string) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == string(KindPhoto) {
		return PhotoKey, nil
	}
	if rest, ok := strings.CutPrefix(raw, string(KindEmoji)+"-"); ok {
		slot, err := strconv.Atoi(rest)
		if err == nil && slot >= 0 {
			return EmojiKey(slot), nil
		}
	}
	return Key{}, fmt.Errorf("%w: %q", domain.ErrUnknownOverlay, raw)
}

// EmojiSpec is one requested emoji.
type EmojiSpec struct {
	Slot  int    `json:"slot"`
	Glyph string `json:"emoji"`
}

// EmojiRequest is an emoji a client asked for. A nil Slot means the client
// sent a bare glyph and the slot is resolved by AssignSlots.
type EmojiRequest struct {
	Slot  *int
	Glyph string
}

// AssignSlots turns requests into specs. Explicit slots are kept. Bare
// glyphs are matched, in list order, against the current emojis not claimed
// by an explicit slot, so dropping or inserting one entry leaves the others
// on their slots. Glyphs without a match take the lowest free slots.
func AssignSlots(current []EmojiSpec, requested []EmojiRequest, maxEmojis int) ([]EmojiSpec, error) {
	if len(requested) > maxEmojis {
		return nil, fmt.Errorf("%w: %d requested, at most %d", domain.ErrTooManyEmojis, len(requested), maxEmojis)
	}
	used := make(map[int]bool, len(requested))
	for _, r := range requested {
		if r.Slot != nil {
			used[*r.Slot] = true
		}
	}
	candidates := make([]EmojiSpec, 0, len(current))
	for _, e := range current {
		if !used[e.Slot] {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Slot < candidates[j].Slot })

	out := make([]EmojiSpec, len(requested))
	resolved := make([]bool, len(requested))
	next := 0
	for i, r := range requested {
		if r.Slot != nil {
			out[i], resolved[i] = EmojiSpec{Slot: *r.Slot, Glyph: r.Glyph}, true
			continue
		}
		for j := next; j < len(candidates); j++ {
			if candidates[j].Glyph == r.Glyph {
				out[i], resolved[i] = EmojiSpec{Slot: candidates[j].Slot, Glyph: r.Glyph}, true
				used[candidates[j].Slot] = true
				next = j + 1
				break
			}
		}
	}
	free := 0
	for i, r := range requested {
		if resolved[i] {
			continue
		}
		for free < maxEmojis && used[free] {
			free++
		}
		if free >= maxEmojis {
			return nil, fmt.Errorf("%w: no free slot for %q", domain.ErrTooManyEmojis, r.Glyph)
		}
		out[i] = EmojiSpec{Slot: free, Glyph: r.Glyph}
		used[free] = true
	}
	return out, nil
}

// PhotoSpec is the requested photo. Bordered draws a light frame, used when
// the background was kept.
type PhotoSpec struct {
	Image    domain.Image
	Bordered bool
}

// State is the desired composition. Apply reconciles the scene towards it.
type State struct {
	Photo  *PhotoSpec
	Emojis []EmojiSpec
}

type photoOverlay struct {
	image    domain.Image
	raster   image.Image
	bordered bool
	pos      Point
	moved    bool
}

type emojiOverlay struct {
	slot  int
	glyph string
	pos   Point
	size  float64
}

// Scene is the live composition. Positions are kept in design units so a
// rescale never loses a manual move. Scene is safe for concurrent use.
type Scene struct {
	mu         sync.RWMutex
	layout     Layout
	scale      float64
	photoScale float64
	photo      *photoOverlay
	emojis     map[int]*emojiOverlay
}

// NewScene creates an empty scene at scale 1.
func NewScene(layout Layout) *Scene {
	return &Scene{
		layout:     layout,
		scale:      1,
		photoScale: 1,
		emojis:     make(map[int]*emojiOverlay),
	}
}

// Layout returns the scene geometry.
func (s *Scene) Layout() Layout {
	return s.layout
}

// Scale returns the current render scale.
func (s *Scene) Scale() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scale
}

// Apply adds overlays missing from the scene, removes those no longer
// requested and updates the rest in place. Positions of surviving overlays
// are untouched.
func (s *Scene) Apply(state State) error {
	if err := s.validateEmojis(state.Emojis); err != nil {
		return err
	}
	var raster image.Image
	if state.Photo != nil {
		var err error
		raster, err = imaging.Decode(state.Photo.Image)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case state.Photo == nil:
		s.photo = nil
	case s.photo == nil:
		s.photo = &photoOverlay{image: state.Photo.Image, raster: raster, bordered: state.Photo.Bordered}
		s.recentreLocked()
	default:
		if !sameImage(s.photo.image, state.Photo.Image) {
			s.photo.image = state.Photo.Image
			s.photo.raster = raster
		}
		s.photo.bordered = state.Photo.Bordered
		if !s.photo.moved {
			s.recentreLocked()
		}
	}

	wanted := make(map[int]EmojiSpec, len(state.Emojis))
	for _, e := range state.Emojis {
		wanted[e.Slot] = e
	}
	for slot := range s.emojis {
		if _, ok := wanted[slot]; !ok {
			delete(s.emojis, slot)
		}
	}
	for slot, spec := range wanted {
		if existing, ok := s.emojis[slot]; ok {
			existing.glyph = spec.Glyph
			existing.size = s.layout.EmojiSizeFor(slot)
			continue
		}
		s.emojis[slot] = &emojiOverlay{
			slot:  slot,
			glyph: spec.Glyph,
			pos:   s.layout.EmojiPresets[slot],
			size:  s.layout.EmojiSizeFor(slot),
		}
	}
	return nil
}

func (s *Scene) validateEmojis(emojis []EmojiSpec) error {
	if len(emojis) > s.layout.MaxEmojis {
		return fmt.Errorf("%w: %d requested, at most %d", domain.ErrTooManyEmojis, len(emojis), s.layout.MaxEmojis)
	}
	seen := make(map[int]bool, len(emojis))
	for _, e := range emojis {
		if e.Slot < 0 || e.Slot >= s.layout.MaxEmojis {
			return fmt.Errorf("%w: slot %d out of range", domain.ErrInvalidEmoji, e.Slot)
		}
		if seen[e.Slot] {
			return fmt.Errorf("%w: slot %d used twice", domain.ErrInvalidEmoji, e.Slot)
		}
		seen[e.Slot] = true
		if !ValidGlyph(e.Glyph) {
			return fmt.Errorf("%w: %q", domain.ErrInvalidEmoji, e.Glyph)
		}
	}
	return nil
}

// ValidGlyph accepts a short non-blank string, enough for an emoji with
// skin-tone or variation modifiers.
func ValidGlyph(glyph string) bool {
	n := utf8.RuneCountInString(glyph)
	return strings.TrimSpace(glyph) != "" && n <= 8
}

func sameImage(a, b domain.Image) bool {
	return a.MIME == b.MIME && bytes.Equal(a.Data, b.Data)
}

// Drag moves an overlay to (x, y) given in rendered pixels.
func (s *Scene) Drag(key Key, x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: position (%v, %v)", domain.ErrInvalidScale, x, y)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := Point{X: x / s.scale, Y: y / s.scale}
	switch key.Kind {
	case KindPhoto:
		if s.photo == nil {
			return fmt.Errorf("%w: %s", domain.ErrUnknownOverlay, key)
		}
		s.photo.pos = pos
		s.photo.moved = true
	case KindEmoji:
		e, ok := s.emojis[key.Slot]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownOverlay, key)
		}
		e.pos = pos
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownOverlay, key)
	}
	return nil
}

// SetPhotoScale changes the user's photo zoom. An unmoved photo is recentred.
func (s *Scene) SetPhotoScale(scale float64) error {
	if !(scale > 0) || scale > 10 {
		return fmt.Errorf("%w: photo scale %v", domain.ErrInvalidScale, scale)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photoScale = scale
	if s.photo != nil && !s.photo.moved {
		s.recentreLocked()
	}
	return nil
}

// Rescale changes the render scale. Every overlay keeps its design position,
// so rendered positions change proportionally.
func (s *Scene) Rescale(scale float64) error {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: render scale %v", domain.ErrInvalidScale, scale)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scale = scale
	if s.photo != nil && !s.photo.moved {
		s.recentreLocked()
	}
	return nil
}

// NextSlot returns the lowest free emoji slot, or false when full.
func (s *Scene) NextSlot() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for slot := 0; slot < s.layout.MaxEmojis; slot++ {
		if _, ok := s.emojis[slot]; !ok {
			return slot, true
		}
	}
	return 0, false
}

// Emojis returns the current emoji specs ordered by slot.
func (s *Scene) Emojis() []EmojiSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EmojiSpec, 0, len(s.emojis))
	for _, e := range s.emojis {
		out = append(out, EmojiSpec{Slot: e.slot, Glyph: e.glyph})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Clear removes every overlay and resets the photo zoom.
func (s *Scene) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.photo = nil
	s.photoScale = 1
	s.emojis = make(map[int]*emojiOverlay)
}

func (s *Scene) photoSizeLocked() (float64, float64) {
	w := s.layout.PhotoBaseWidth * s.photoScale
	b := s.photo.raster.Bounds()
	if b.Dx() == 0 {
		return w, 0
	}
	return w, w * float64(b.Dy()) / float64(b.Dx())
}

// recentreLocked centres the photo horizontally and lifts it above the
// vertical centre.
func (s *Scene) recentreLocked() {
	w, h := s.photoSizeLocked()
	s.photo.pos = Point{
		X: float64(s.layout.Width)/2 - w/2,
		Y: float64(s.layout.Height)/2 - h/2 - s.layout.PhotoLift,
	}
}

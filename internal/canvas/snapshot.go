package canvas

import "sort"

// OverlayView is an overlay as the client draws it, in rendered pixels. Slot
// is set for every emoji, slot 0 included, and absent for the photo.
type OverlayView struct {
	Key      string  `json:"key"`
	Kind     Kind    `json:"kind"`
	Slot     *int    `json:"slot,omitempty"`
	Glyph    string  `json:"emoji,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width,omitempty"`
	Height   float64 `json:"height,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Moved    bool    `json:"moved,omitempty"`
	Bordered bool    `json:"bordered,omitempty"`
}

// Snapshot is the scene at its current scale.
type Snapshot struct {
	Width      float64       `json:"width"`
	Height     float64       `json:"height"`
	Scale      float64       `json:"scale"`
	PhotoScale float64       `json:"photoScale"`
	Photo      *OverlayView  `json:"photo,omitempty"`
	Emojis     []OverlayView `json:"emojis"`
}

// Snapshot renders the scene description at the current scale.
func (s *Scene) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(s.scale)
}

func (s *Scene) snapshotLocked(scale float64) Snapshot {
	snap := Snapshot{
		Width:      float64(s.layout.Width) * scale,
		Height:     float64(s.layout.Height) * scale,
		Scale:      scale,
		PhotoScale: s.photoScale,
		Emojis:     make([]OverlayView, 0, len(s.emojis)),
	}
	if s.photo != nil {
		w, h := s.photoSizeLocked()
		snap.Photo = &OverlayView{
			Key:      PhotoKey.String(),
			Kind:     KindPhoto,
			X:        s.photo.pos.X * scale,
			Y:        s.photo.pos.Y * scale,
			Width:    w * scale,
			Height:   h * scale,
			Moved:    s.photo.moved,
			Bordered: s.photo.bordered,
		}
	}
	for _, e := range s.emojis {
		slot := e.slot
		snap.Emojis = append(snap.Emojis, OverlayView{
			Key:      EmojiKey(slot).String(),
			Kind:     KindEmoji,
			Slot:     &slot,
			Glyph:    e.glyph,
			X:        e.pos.X * scale,
			Y:        e.pos.Y * scale,
			FontSize: e.size * scale,
		})
	}
	sort.Slice(snap.Emojis, func(i, j int) bool { return *snap.Emojis[i].Slot < *snap.Emojis[j].Slot })
	return snap
}

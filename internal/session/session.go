// Package session keeps poster edit sessions in memory. Nothing survives a
// restart.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"poster/internal/canvas"
	"poster/internal/domain"
	"poster/internal/infra"
)

// Session is one user's poster in progress.
type Session struct {
	ID        string
	CreatedAt time.Time
	Scene     *canvas.Scene

	debouncer *canvas.Debouncer
	current   atomic.Pointer[domain.ProcessedImage]
	bordered  atomic.Bool
	lastSeen  atomic.Int64

	// mu serialises scene reconciliation so photo and emoji updates never
	// interleave.
	mu sync.Mutex
}

func newSession(id string, layout canvas.Layout, now time.Time, logger *infra.Logger) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		Scene:     canvas.NewScene(layout),
	}
	s.debouncer = canvas.NewDebouncer(func(v canvas.Viewport) {
		scale := canvas.ComputeScale(v, layout.Width, layout.Height)
		if err := s.Scene.Rescale(scale); err != nil {
			logger.Warn().Err(err).Str("session_id", id).Msg("session: rescale rejected")
		}
	})
	s.touch(now)
	return s
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen is the last time the session was looked up.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Image returns the current processed headshot, or nil.
func (s *Session) Image() *domain.ProcessedImage {
	return s.current.Load()
}

// ReplaceImage swaps in a new processed headshot and places it on the scene.
// Bordered frames the photo, which is used when the background was kept.
func (s *Session) ReplaceImage(img *domain.ProcessedImage, bordered bool) error {
	if img == nil || img.Processed.Empty() {
		return domain.ErrNoImage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.Scene.Apply(canvas.State{
		Photo:  &canvas.PhotoSpec{Image: img.Processed, Bordered: bordered},
		Emojis: s.Scene.Emojis(),
	})
	if err != nil {
		return err
	}
	s.current.Store(img)
	s.bordered.Store(bordered)
	return nil
}

// SetEmojis replaces the emoji selection. Emojis that survive the change keep
// their slots and positions.
func (s *Session) SetEmojis(requested []canvas.EmojiRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	emojis, err := canvas.AssignSlots(s.Scene.Emojis(), requested, s.Scene.Layout().MaxEmojis)
	if err != nil {
		return err
	}
	return s.Scene.Apply(canvas.State{Photo: s.photoLocked(), Emojis: emojis})
}

// AddEmoji puts glyph in the lowest free slot.
func (s *Session) AddEmoji(glyph string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.Scene.NextSlot()
	if !ok {
		return 0, fmt.Errorf("%w: all %d slots used", domain.ErrTooManyEmojis, s.Scene.Layout().MaxEmojis)
	}
	emojis := append(s.Scene.Emojis(), canvas.EmojiSpec{Slot: slot, Glyph: glyph})
	if err := s.Scene.Apply(canvas.State{Photo: s.photoLocked(), Emojis: emojis}); err != nil {
		return 0, err
	}
	return slot, nil
}

// RemoveEmoji drops the emoji in slot.
func (s *Session) RemoveEmoji(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.Scene.Emojis()
	kept := current[:0]
	found := false
	for _, e := range current {
		if e.Slot == slot {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return fmt.Errorf("%w: %s", domain.ErrUnknownOverlay, canvas.EmojiKey(slot))
	}
	return s.Scene.Apply(canvas.State{Photo: s.photoLocked(), Emojis: kept})
}

// UpdateViewport schedules a debounced rescale and returns the scale it will
// settle on.
func (s *Session) UpdateViewport(v canvas.Viewport, trigger canvas.Trigger) float64 {
	s.debouncer.Update(v, trigger)
	layout := s.Scene.Layout()
	return canvas.ComputeScale(v, layout.Width, layout.Height)
}

// Settle applies any pending viewport change now.
func (s *Session) Settle() {
	s.debouncer.Flush()
}

// Reset clears the headshot and every overlay.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debouncer.Stop()
	s.current.Store(nil)
	s.bordered.Store(false)
	s.Scene.Clear()
}

func (s *Session) photoLocked() *canvas.PhotoSpec {
	img := s.current.Load()
	if img == nil {
		return nil
	}
	return &canvas.PhotoSpec{Image: img.Processed, Bordered: s.bordered.Load()}
}

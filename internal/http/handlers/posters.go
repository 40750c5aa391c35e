package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"poster/internal/canvas"
	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/middleware"
	"poster/internal/pipeline"
	"poster/internal/session"
	"poster/pkg/zip"
)

func (a *App) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := a.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.userError(w, r, err)
		return nil, false
	}
	return s, true
}

func (a *App) posterView(s *session.Session) map[string]any {
	view := map[string]any{
		"id":          s.ID,
		"createdAt":   s.CreatedAt,
		"hasHeadshot": s.Image() != nil,
		"scene":       s.Scene.Snapshot(),
	}
	if img := s.Image(); img != nil {
		view["headshot"] = map[string]any{"width": img.Width, "height": img.Height}
	}
	return view
}

// CreatePoster starts an empty poster session.
func (a *App) CreatePoster(w http.ResponseWriter, r *http.Request) {
	s := a.Sessions.Create()
	a.json(w, http.StatusCreated, a.posterView(s))
}

// GetPoster returns the scene as the client should draw it.
func (a *App) GetPoster(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.posterView(s))
}

// DeletePoster discards the session, or with ?mode=reset clears it in place.
func (a *App) DeletePoster(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if r.URL.Query().Get("mode") == "reset" {
		s, ok := a.session(w, r)
		if !ok {
			return
		}
		s.Reset()
		a.json(w, http.StatusOK, a.posterView(s))
		return
	}
	if err := a.Sessions.Delete(id); err != nil {
		a.userError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadHeadshot runs the pipeline on an upload and places the result on the
// poster. The photo is framed when its background was kept.
func (a *App) UploadHeadshot(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	var req headshotRequest
	if err := a.decode(w, r, &req); err != nil {
		a.userError(w, r, pipeline.NewUserError(locale, domain.KindValidation, err))
		return
	}
	img, err := imaging.ParseDataURL(req.ImageDataURL)
	if err != nil {
		a.userError(w, r, pipeline.NewUserError(locale, domain.KindValidation, err))
		return
	}
	if a.Pipeline == nil {
		a.userError(w, r, pipeline.NewUserError(locale, domain.KindFailed, domain.ErrNotConfigured))
		return
	}
	out, err := a.Pipeline.ProcessHeadshot(r.Context(), pipeline.Request{
		Image:            img,
		RemoveBackground: req.RemoveBackground,
		Regenerate:       req.Regenerate,
		Seed:             req.Seed.Ptr(),
		Locale:           locale,
	})
	if err != nil {
		a.userError(w, r, err)
		return
	}
	bordered := !out.BackgroundRemoved
	if err := s.ReplaceImage(out.Image, bordered); err != nil {
		a.userError(w, r, err)
		return
	}
	a.requestLogger(r).Info().
		Str("session_id", s.ID).
		Bool("remote", out.Remote).
		Bool("used_fallback", out.UsedFallback).
		Bool("background_removed", out.BackgroundRemoved).
		Msg("poster: headshot placed")
	view := a.posterView(s)
	view["processed"] = map[string]any{
		"imageUrl":           out.Image.Processed.DataURL(),
		"width":              out.Image.Width,
		"height":             out.Image.Height,
		"predictionId":       out.PredictionID,
		"remote":             out.Remote,
		"usedFallback":       out.UsedFallback,
		"backgroundRemoved":  out.BackgroundRemoved,
		"backgroundDegraded": out.BackgroundDegraded,
	}
	a.json(w, http.StatusOK, view)
}

// SetEmojis replaces the emoji selection. Bare glyphs keep the slot of the
// emoji they already name, so removing one from the list leaves the rest in
// place.
func (a *App) SetEmojis(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req emojisRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.KindValidation), "invalid payload")
		return
	}
	specs := make([]canvas.EmojiRequest, 0, len(req.Emojis))
	for _, item := range req.Emojis {
		specs = append(specs, canvas.EmojiRequest{Slot: item.Slot, Glyph: item.Glyph})
	}
	if err := s.SetEmojis(specs); err != nil {
		a.userError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.posterView(s))
}

// AddEmoji appends one emoji in the lowest free slot.
func (a *App) AddEmoji(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req addEmojiRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.KindValidation), "invalid payload")
		return
	}
	slot, err := s.AddEmoji(req.Emoji)
	if err != nil {
		a.userError(w, r, err)
		return
	}
	view := a.posterView(s)
	view["slot"] = slot
	view["key"] = canvas.EmojiKey(slot).String()
	a.json(w, http.StatusCreated, view)
}

// RemoveEmoji drops the emoji in the slot named by the URL. Other emojis keep
// their positions.
func (a *App) RemoveEmoji(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		a.error(w, http.StatusBadRequest, string(domain.KindValidation), "slot must be an integer")
		return
	}
	if err := s.RemoveEmoji(slot); err != nil {
		a.userError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.posterView(s))
}

// DragOverlay moves the photo or an emoji to a position in rendered pixels.
func (a *App) DragOverlay(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	key, err := canvas.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		a.userError(w, r, err)
		return
	}
	var req dragRequest
	if err := a.decode(w, r, &req); err != nil || req.X == nil || req.Y == nil {
		a.error(w, http.StatusBadRequest, string(domain.KindValidation), "x and y are required")
		return
	}
	if err := s.Scene.Drag(key, *req.X, *req.Y); err != nil {
		a.userError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.posterView(s))
}

// SetPhotoScale changes the zoom applied to the headshot.
func (a *App) SetPhotoScale(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req photoScaleRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.KindValidation), "invalid payload")
		return
	}
	if err := s.Scene.SetPhotoScale(req.Scale); err != nil {
		a.userError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.posterView(s))
}

// UpdateViewport schedules a debounced rescale and reports the scale the
// poster will settle on.
func (a *App) UpdateViewport(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req viewportRequest
	if err := a.decode(w, r, &req); err != nil || req.Width <= 0 || req.Height <= 0 {
		a.error(w, http.StatusBadRequest, string(domain.KindValidation), "width and height must be positive")
		return
	}
	trigger := canvas.TriggerResize
	if strings.EqualFold(req.Trigger, "orientation") {
		trigger = canvas.TriggerOrientation
	}
	v := canvas.Viewport{Width: req.Width, Height: req.Height, ContainerWidth: req.ContainerWidth}
	scale := s.UpdateViewport(v, trigger)
	a.json(w, http.StatusOK, map[string]any{
		"scale":      scale,
		"device":     v.Device(),
		"scrollHint": canvas.NeedsScrollHint(v, scale, s.Scene.Layout().Height),
	})
}

func (a *App) exportPoster(w http.ResponseWriter, r *http.Request, s *session.Session) (domain.Image, string, bool) {
	if s.Image() == nil {
		a.userError(w, r, domain.ErrNoHeadshot)
		return domain.Image{}, "", false
	}
	s.Settle()
	img, err := s.Scene.Export(r.Context(), a.Renderer)
	if err != nil {
		a.userError(w, r, err)
		return domain.Image{}, "", false
	}
	name := canvas.ExportFilename(a.Now().UnixMilli())
	if a.Exports != nil {
		key, err := a.Exports.Write(r.Context(), "posters/"+s.ID+"/"+name, img.Data)
		if err != nil {
			a.requestLogger(r).Warn().Err(err).Str("session_id", s.ID).Msg("poster: export not persisted")
		} else {
			a.requestLogger(r).Info().Str("session_id", s.ID).Str("key", key).Msg("poster: export persisted")
		}
	}
	return img, name, true
}

// ExportPoster renders the poster as a JPEG download.
func (a *App) ExportPoster(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	img, name, ok := a.exportPoster(w, r, s)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", img.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// BundlePoster returns a zip with the poster, the upload and the processed
// headshot.
func (a *App) BundlePoster(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	headshot := s.Image()
	poster, name, ok := a.exportPoster(w, r, s)
	if !ok {
		return
	}
	if headshot == nil {
		a.userError(w, r, domain.ErrNoHeadshot)
		return
	}
	archive, err := zip.ArchiveAssets([]zip.Asset{
		{Filename: name, MIME: poster.MIME, Data: poster.Data},
		{Filename: "original" + zip.ExtensionFor(headshot.Original.MIME), MIME: headshot.Original.MIME, Data: headshot.Original.Data},
		{Filename: "processed" + zip.ExtensionFor(headshot.Processed.MIME), MIME: headshot.Processed.MIME, Data: headshot.Processed.Data},
	}, a.Now())
	if err != nil {
		a.userError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", strings.TrimSuffix(name, ".jpg")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

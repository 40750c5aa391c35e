package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/providers/replicate"
)

const (
	memoryDetails    = "The image processing service is experiencing high load. Please try with a smaller image or try again later."
	memorySuggestion = "Consider using a smaller image (max 1024x1024) or trying the FLUX Dev model instead."
)

// sourceFrom turns an uploaded reference into a runner source. Remote URLs
// are passed through untouched.
func sourceFrom(ref string) (replicate.Source, error) {
	if imaging.IsRemoteRef(ref) {
		return replicate.URLSource(ref), nil
	}
	img, err := imaging.ParseDataURL(ref)
	if err != nil {
		return replicate.Source{}, err
	}
	return replicate.ImageSource(img), nil
}

// TransformImage stylises an upload with the primary model. The input is
// shrunk to 1024px and re-encoded before submission; aspectRatio, when set,
// is forwarded to the model.
func (a *App) TransformImage(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if err := a.decode(w, r, &req); err != nil || strings.TrimSpace(req.ImageDataURL) == "" {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "No image provided"})
		return
	}
	if a.Stylizer == nil {
		a.json(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to process image",
			"details": errNoCredentials.Error(),
		})
		return
	}
	src, err := sourceFrom(req.ImageDataURL)
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "No image provided", "details": err.Error()})
		return
	}
	profile, err := replicate.PrimaryProfile().WithAspectRatio(req.AspectRatio)
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "Invalid aspect ratio", "details": err.Error()})
		return
	}
	profile.MaxEdge = imaging.MaxUploadEdge
	profile.JPEGQuality = imaging.UploadJPEGQuality

	log := a.requestLogger(r)
	out, err := a.Stylizer.SubmitAndAwait(r.Context(), src, profile, req.Seed.Ptr())
	if err != nil {
		if domain.FallbackAvailable(err) {
			log.Warn().Err(err).Msg("transform: gpu memory exhausted")
			a.json(w, http.StatusServiceUnavailable, map[string]any{
				"error":             "GPU memory exhausted after multiple attempts",
				"details":           memoryDetails,
				"suggestion":        memorySuggestion,
				"fallbackAvailable": true,
			})
			return
		}
		log.Error().Err(err).Msg("transform: failed")
		a.json(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to process image",
			"details": err.Error(),
		})
		return
	}
	log.Info().Str("prediction_id", out.PredictionID).Int("attempts", out.Attempts).Msg("transform: completed")
	a.json(w, http.StatusOK, transformResponse{Success: true, OutputURL: out.URL, PredictionID: out.PredictionID})
}

// TransformImageFallback runs the lower-cost profile once.
func (a *App) TransformImageFallback(w http.ResponseWriter, r *http.Request) {
	var req transformRequest
	if err := a.decode(w, r, &req); err != nil || strings.TrimSpace(req.ImageDataURL) == "" {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "No image provided"})
		return
	}
	fail := func(err error) {
		a.requestLogger(r).Error().Err(err).Msg("transform fallback: failed")
		a.json(w, http.StatusInternalServerError, map[string]string{
			"error":      "Fallback processing also failed",
			"details":    err.Error(),
			"suggestion": "Please try with a smaller image or try again later.",
		})
	}
	if a.Stylizer == nil {
		fail(errNoCredentials)
		return
	}
	src, err := sourceFrom(req.ImageDataURL)
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "No image provided", "details": err.Error()})
		return
	}
	out, err := a.Stylizer.Fallback(r.Context(), src, req.Seed.Ptr())
	if err != nil {
		fail(err)
		return
	}
	a.json(w, http.StatusOK, transformResponse{
		Success:      true,
		OutputURL:    out.URL,
		PredictionID: out.PredictionID,
		UsedFallback: true,
	})
}

// EditImage applies a free-form instruction to an already hosted image.
func (a *App) EditImage(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := a.decode(w, r, &req); err != nil ||
		strings.TrimSpace(req.ImageURL) == "" || strings.TrimSpace(req.Prompt) == "" {
		a.json(w, http.StatusBadRequest, map[string]string{
			"error": "Missing required parameters: imageUrl and prompt are required",
		})
		return
	}
	fail := func(err error) {
		a.requestLogger(r).Error().Err(err).Msg("edit: failed")
		a.json(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to edit image",
			"details": err.Error(),
		})
	}
	if a.Stylizer == nil {
		fail(errNoCredentials)
		return
	}
	src, err := sourceFrom(req.ImageURL)
	if err != nil {
		fail(err)
		return
	}
	out, err := a.Stylizer.SubmitAndAwait(r.Context(), src, replicate.EditProfile(strings.TrimSpace(req.Prompt)), req.Seed.Ptr())
	if err != nil {
		fail(err)
		return
	}
	a.json(w, http.StatusOK, transformResponse{Success: true, OutputURL: out.URL, PredictionID: out.PredictionID})
}

// CloudinaryRemoveBackground uploads the image and returns the URL of its
// background-removed rendition without fetching it.
func (a *App) CloudinaryRemoveBackground(w http.ResponseWriter, r *http.Request) {
	var req cloudinaryRequest
	if err := a.decode(w, r, &req); err != nil || strings.TrimSpace(req.Image) == "" {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "No image provided"})
		return
	}
	if a.Cloudinary == nil {
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "Cloudinary credentials not configured"})
		return
	}
	file := req.Image
	if !strings.HasPrefix(file, "data:") && !imaging.IsRemoteRef(file) {
		file = "data:image/png;base64," + file
	}
	up, err := a.Cloudinary.Upload(r.Context(), file)
	if err != nil {
		a.requestLogger(r).Error().Err(err).Msg("cloudinary: upload failed")
		a.json(w, http.StatusInternalServerError, map[string]string{
			"error":   "Failed to process image",
			"details": err.Error(),
		})
		return
	}
	transformed := a.Cloudinary.TransformURL(up.PublicID)
	a.json(w, http.StatusOK, map[string]string{
		"transformedImageUrl": transformed,
		"cloudinaryUrl":       transformed,
	})
}

type webhookPayload struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// ReplicateWebhook acknowledges prediction callbacks. Results are only logged.
func (a *App) ReplicateWebhook(w http.ResponseWriter, r *http.Request) {
	var p webhookPayload
	if err := a.decode(w, r, &p); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid webhook payload"})
		return
	}
	status := domain.NormalizeJobStatus(p.Status)
	event := a.requestLogger(r).Info().Str("prediction_id", p.ID).Str("status", string(status))
	if status == domain.JobStatusSucceeded {
		event = event.RawJSON("output", rawOrNull(p.Output))
	}
	if status == domain.JobStatusFailed && len(p.Error) > 0 {
		event = event.RawJSON("prediction_error", p.Error)
	}
	event.Msg("replicate: webhook received")
	a.json(w, http.StatusOK, map[string]bool{"received": true})
}

func rawOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 || !json.Valid(raw) {
		return []byte("null")
	}
	return raw
}

var errNoCredentials = errors.New("replicate api token is not configured")

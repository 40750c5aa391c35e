package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"poster/internal/canvas"
	"poster/internal/domain"
	"poster/internal/infra"
	"poster/internal/middleware"
	"poster/internal/pipeline"
	"poster/internal/providers/background"
	"poster/internal/providers/replicate"
	"poster/internal/session"
)

// maxBodyBytes caps JSON request bodies; uploads arrive as data URLs.
const maxBodyBytes = 50 << 20

// ModelProber checks which stylisation models are reachable.
type ModelProber interface {
	ProbeModels(ctx context.Context, profiles ...replicate.Profile) ([]replicate.ModelStatus, error)
}

// Uploader stores an image with Cloudinary and builds the cut-out URL.
type Uploader interface {
	Upload(ctx context.Context, file string) (*background.Upload, error)
	TransformURL(publicID string) string
}

// HeadshotProcessor runs the image pipeline.
type HeadshotProcessor interface {
	ProcessHeadshot(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// ExportStore keeps exported posters.
type ExportStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// App carries the dependencies shared by every handler. Optional
// collaborators may be nil; the matching routes then answer with an error.
type App struct {
	Config     *infra.Config
	Logger     *infra.Logger
	Stylizer   pipeline.Stylizer
	Models     ModelProber
	Cloudinary Uploader
	Pipeline   HeadshotProcessor
	Sessions   *session.Store
	Renderer   *canvas.Renderer
	Exports    ExportStore
	Now        func() time.Time
}

// NewApp fills in defaults for the logger, clock and renderer.
func NewApp(app App) *App {
	if app.Config == nil {
		app.Config = &infra.Config{}
	}
	if app.Logger == nil {
		app.Logger = infra.DiscardLogger()
	}
	if app.Now == nil {
		app.Now = time.Now
	}
	if app.Renderer == nil {
		app.Renderer = canvas.NewRenderer(nil, nil)
	}
	return &app
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"error": errCode, "message": message})
}

// userError writes a localised error body. Validation and missing sessions
// map to 4xx, memory exhaustion to 503, everything else to 500.
func (a *App) userError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "poster session not found")
		return
	}
	if errors.Is(err, domain.ErrUnknownOverlay) {
		a.error(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	if errors.Is(err, domain.ErrNoHeadshot) {
		a.error(w, http.StatusConflict, "no_headshot", err.Error())
		return
	}
	if errors.Is(err, domain.ErrTooManyEmojis) || errors.Is(err, domain.ErrInvalidEmoji) || errors.Is(err, domain.ErrInvalidScale) {
		a.error(w, http.StatusBadRequest, string(domain.KindValidation), err.Error())
		return
	}
	if errors.Is(err, context.Canceled) {
		a.error(w, 499, "canceled", "request canceled")
		return
	}
	var ue *domain.UserError
	if !errors.As(err, &ue) {
		kind := domain.KindOf(err)
		if kind == "" {
			kind = domain.KindFailed
		}
		ue = pipeline.NewUserError(middleware.LocaleFromContext(r.Context()), kind, err)
	}
	code := http.StatusInternalServerError
	switch ue.Kind {
	case domain.KindValidation:
		code = http.StatusBadRequest
	case domain.KindMemoryExhausted:
		code = http.StatusServiceUnavailable
	case domain.KindTimeout:
		code = http.StatusGatewayTimeout
	case domain.KindNetwork:
		code = http.StatusBadGateway
	}
	if code >= 500 {
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("kind", string(ue.Kind)).
			Msg("request failed")
	}
	body := map[string]string{"error": string(ue.Kind), "message": ue.Message}
	if ue.Suggestion != "" {
		body["suggestion"] = ue.Suggestion
	}
	a.json(w, code, body)
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func (a *App) requestLogger(r *http.Request) *infra.Logger {
	ctx := a.Logger.With().Str("request_id", middleware.RequestIDFromContext(r.Context()))
	if country := middleware.CountryFromContext(r.Context()); country != "" {
		ctx = ctx.Str("country", country)
	}
	l := ctx.Logger()
	return &l
}

package httpapi

import (
	"net/http"
	"time"

	"poster/internal/http/handlers"
	"poster/internal/infra"
	mw "poster/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options configures the router middleware stack.
type Options struct {
	Logger          *infra.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   mw.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		mw.Logger(logger),
		mw.CORS(opts.AllowedOrigins),
		mw.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/health", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/test", app.Test)
		r.Get("/test-models", app.TestModels)
		r.Post("/replicate-webhook", app.ReplicateWebhook)

		// Remote model calls are rate limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit(opts.RateLimitPerMin, time.Minute))
			r.Post("/transform-image", app.TransformImage)
			r.Post("/transform-image-fallback", app.TransformImageFallback)
			r.Post("/edit-image", app.EditImage)
			r.Post("/cloudinary-remove-background", app.CloudinaryRemoveBackground)
		})

		r.Route("/posters", func(r chi.Router) {
			r.Post("/", app.CreatePoster)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetPoster)
				r.Delete("/", app.DeletePoster)
				r.With(mw.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/headshot", app.UploadHeadshot)
				r.Put("/emojis", app.SetEmojis)
				r.Post("/emojis", app.AddEmoji)
				r.Delete("/emojis/{slot}", app.RemoveEmoji)
				r.Patch("/overlays/{key}", app.DragOverlay)
				r.Put("/photo-scale", app.SetPhotoScale)
				r.Put("/viewport", app.UpdateViewport)
				r.Get("/export", app.ExportPoster)
				r.Get("/bundle", app.BundlePoster)
			})
		})
	})

	return r
}

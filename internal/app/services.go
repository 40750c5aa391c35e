// Package app assembles the service graph from configuration. Both the HTTP
// server and the CLI build their dependencies here.
package app

import (
	"errors"
	"fmt"
	"image"
	"net/http"
	"time"

	"golang.org/x/image/font/opentype"

	"poster/internal/canvas"
	"poster/internal/infra"
	"poster/internal/infra/geoip"
	"poster/internal/pipeline"
	"poster/internal/providers/background"
	"poster/internal/providers/replicate"
	"poster/internal/session"
	"poster/internal/storage"
)

// Services holds everything built from a Config. Optional services are nil
// when their configuration is absent.
type Services struct {
	Config     *infra.Config
	Logger     *infra.Logger
	Layout     canvas.Layout
	Renderer   *canvas.Renderer
	Replicate  *replicate.Client
	Runner     *replicate.Runner
	Remover    background.Remover
	Cloudinary *background.CloudinaryRemover
	Pipeline   *pipeline.Orchestrator
	Sessions   *session.Store
	Exports    *storage.FileStore
	GeoIP      *geoip.Resolver
}

// Build wires the services described by cfg.
func Build(cfg *infra.Config, logger *infra.Logger) (*Services, error) {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	svc := &Services{Config: cfg, Logger: logger}
	httpClient := &http.Client{Timeout: 60 * time.Second}

	layout := canvas.DefaultLayout()
	if cfg.PosterLayoutPath != "" {
		loaded, err := canvas.LoadLayout(cfg.PosterLayoutPath)
		if err != nil {
			return nil, err
		}
		layout = loaded
	}
	svc.Layout = layout

	var template image.Image
	if cfg.PosterTemplatePath != "" {
		img, err := canvas.LoadTemplate(cfg.PosterTemplatePath)
		if err != nil {
			return nil, err
		}
		template = img
	} else {
		logger.Warn().Msg("app: POSTER_TEMPLATE_PATH not set, using placeholder template")
	}
	var emojiFont *opentype.Font
	if cfg.PosterEmojiFontPath != "" {
		f, err := canvas.LoadEmojiFont(cfg.PosterEmojiFontPath)
		if err != nil {
			return nil, err
		}
		emojiFont = f
	}
	svc.Renderer = canvas.NewRenderer(template, emojiFont)

	client, err := replicate.NewClient(replicate.Options{
		APIToken:   cfg.ReplicateAPIToken,
		BaseURL:    cfg.ReplicateBaseURL,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	var stylizer pipeline.Stylizer
	if client.HasCredentials() {
		svc.Replicate = client
		svc.Runner = replicate.NewRunner(client, replicate.RunnerOptions{
			PollInterval: cfg.ReplicatePollInterval,
			MaxPolls:     cfg.ReplicateMaxPolls,
			Logger:       logger,
		})
		stylizer = svc.Runner
	} else {
		logger.Warn().Msg("app: replicate token not set, using local sketch filter")
	}

	remover, err := background.New(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}
	svc.Remover = remover

	if cfg.HasCloudinaryCredentials() {
		cld, err := background.NewCloudinaryRemover(background.CloudinaryOptions{
			CloudName:    cfg.CloudinaryCloudName,
			APIKey:       cfg.CloudinaryAPIKey,
			APISecret:    cfg.CloudinaryAPISecret,
			UploadPreset: cfg.CloudinaryUploadPreset,
			APIBaseURL:   cfg.CloudinaryAPIBaseURL,
			ResBaseURL:   cfg.CloudinaryResBaseURL,
			HTTPClient:   httpClient,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		svc.Cloudinary = cld
	}

	opts := pipeline.Options{
		Remover: remover,
		Logger:  logger,
	}
	if stylizer != nil {
		opts.Stylizer = stylizer
		opts.Fetcher = client
	}
	svc.Pipeline = pipeline.New(opts)

	svc.Sessions = session.NewStore(session.Options{
		TTL:    cfg.SessionTTL,
		Layout: layout,
		Logger: logger,
	})

	if cfg.ExportDir != "" {
		store, err := storage.NewFileStore(cfg.ExportDir)
		if err != nil {
			return nil, err
		}
		svc.Exports = store
	}

	if cfg.GeoIPDBPath != "" {
		resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("app: geoip disabled")
		} else {
			svc.GeoIP = resolver
		}
	}

	return svc, nil
}

// Close releases resources held by the services.
func (s *Services) Close() error {
	var errs []error
	if s.GeoIP != nil {
		if err := s.GeoIP.Close(); err != nil {
			errs = append(errs, fmt.Errorf("app: close geoip: %w", err))
		}
	}
	return errors.Join(errs...)
}

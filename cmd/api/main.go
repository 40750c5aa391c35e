package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"poster/internal/app"
	"poster/internal/http/handlers"
	httpapi "poster/internal/http/httpapi"
	"poster/internal/infra"
	"poster/internal/middleware"
)

func main() {
	// .env is optional; the legacy frontend kept it one level up.
	_ = godotenv.Load()
	_ = godotenv.Load("../.env")

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	svc, err := app.Build(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go svc.Sessions.Run(ctx, 0)

	deps := handlers.App{
		Config:   cfg,
		Logger:   &logger,
		Pipeline: svc.Pipeline,
		Sessions: svc.Sessions,
		Renderer: svc.Renderer,
	}
	// Nil pointers must stay out of the interface fields.
	if svc.Runner != nil {
		deps.Stylizer = svc.Runner
		deps.Models = svc.Replicate
	}
	if svc.Cloudinary != nil {
		deps.Cloudinary = svc.Cloudinary
	}
	if svc.Exports != nil {
		deps.Exports = svc.Exports
	}
	var lookup middleware.CountryLookup
	if svc.GeoIP != nil {
		lookup = svc.GeoIP.CountryCode
	}

	router := httpapi.NewRouter(handlers.NewApp(deps), httpapi.Options{
		Logger:          &logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   "en",
		CountryLookup:   lookup,
	})

	server := infra.NewHTTPServer(cfg, router)
	logger.Info().
		Str("addr", server.Addr()).
		Bool("replicate", cfg.HasReplicateCredentials()).
		Str("background", cfg.BackgroundStrategy).
		Msg("API listening")
	if err := server.Run(ctx, cfg.HTTPIdleTimeout); err != nil {
		logger.Error().Err(err).Msg("http server failed")
	}
	logger.Info().Msg("server stopped")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"poster/internal/app"
	"poster/internal/canvas"
	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/infra"
	"poster/internal/pipeline"
	"poster/pkg/zip"
)

func main() {
	var (
		inFlag       string
		outFlag      string
		emojiFlag    string
		removeBGFlag bool
		seedFlag     int
		scaleFlag    float64
		bundleFlag   bool
		timeoutFlag  time.Duration
	)

	flag.StringVar(&inFlag, "in", "", "headshot image to process (JPEG, PNG, GIF or WebP)")
	flag.StringVar(&outFlag, "out", "", "output path (defaults to blackweek-2025-custom-<millis>.jpg)")
	flag.StringVar(&emojiFlag, "emoji", "", "comma-separated emojis to place on the poster")
	flag.BoolVar(&removeBGFlag, "remove-bg", false, "remove the headshot background before stylising")
	flag.IntVar(&seedFlag, "seed", -1, "model seed (negative for a random variation)")
	flag.Float64Var(&scaleFlag, "photo-scale", 1, "zoom applied to the headshot")
	flag.BoolVar(&bundleFlag, "bundle", false, "write a zip with the poster, original and processed images")
	flag.DurationVar(&timeoutFlag, "timeout", 5*time.Minute, "overall processing timeout")
	flag.Parse()

	if strings.TrimSpace(inFlag) == "" {
		exitWithError(errors.New("-in is required"))
	}

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	svc, err := app.Build(cfg, &logger)
	if err != nil {
		exitWithError(err)
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeoutFlag)
	defer cancel()

	raw, err := os.ReadFile(inFlag)
	if err != nil {
		exitWithError(fmt.Errorf("read %s: %w", inFlag, err))
	}
	upload := domain.Image{Data: raw, MIME: imaging.SniffMIME(raw)}

	var seed *int
	if seedFlag >= 0 {
		seed = &seedFlag
	}
	out, err := svc.Pipeline.ProcessHeadshot(ctx, pipeline.Request{
		Image:            upload,
		RemoveBackground: removeBGFlag,
		Seed:             seed,
		Locale:           os.Getenv("LANG"),
	})
	if err != nil {
		var ue *domain.UserError
		if errors.As(err, &ue) && ue.Suggestion != "" {
			exitWithError(fmt.Errorf("%s %s (%v)", ue.Message, ue.Suggestion, ue.Err))
		}
		exitWithError(err)
	}
	if out.BackgroundDegraded {
		logger.Warn().Msg("background removal unavailable, kept original background")
	}

	sess := svc.Sessions.Create()
	if err := sess.ReplaceImage(out.Image, !out.BackgroundRemoved); err != nil {
		exitWithError(err)
	}
	for _, glyph := range splitEmojis(emojiFlag) {
		if _, err := sess.AddEmoji(glyph); err != nil {
			exitWithError(err)
		}
	}
	if err := sess.Scene.SetPhotoScale(scaleFlag); err != nil {
		exitWithError(err)
	}

	img, err := sess.Scene.Export(ctx, svc.Renderer)
	if err != nil {
		exitWithError(err)
	}
	name := outFlag
	if name == "" {
		name = canvas.ExportFilename(time.Now().UnixMilli())
	}
	data := img.Data
	if bundleFlag {
		data, err = zip.ArchiveAssets([]zip.Asset{
			{Filename: filepath.Base(name), MIME: img.MIME, Data: img.Data},
			{Filename: "original" + zip.ExtensionFor(out.Image.Original.MIME), MIME: out.Image.Original.MIME, Data: out.Image.Original.Data},
			{Filename: "processed" + zip.ExtensionFor(out.Image.Processed.MIME), MIME: out.Image.Processed.MIME, Data: out.Image.Processed.Data},
		}, time.Now())
		if err != nil {
			exitWithError(err)
		}
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".zip"
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		exitWithError(fmt.Errorf("write %s: %w", name, err))
	}
	logger.Info().
		Str("out", name).
		Bool("remote", out.Remote).
		Bool("used_fallback", out.UsedFallback).
		Str("prediction_id", out.PredictionID).
		Msg("poster written")
}

func splitEmojis(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "poster: %v\n", err)
	os.Exit(1)
}

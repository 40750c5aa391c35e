package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"poster/internal/infra"
)

func baseConfig() *infra.Config {
	return &infra.Config{
		AppEnv:                "test",
		ReplicatePollInterval: time.Second,
		ReplicateMaxPolls:     60,
		BackgroundStrategy:    infra.BackgroundStrategySegmentation,
		SessionTTL:            time.Hour,
	}
}

func TestBuildWithoutCredentials(t *testing.T) {
	svc, err := Build(baseConfig(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer svc.Close()
	if svc.Runner != nil || svc.Replicate != nil {
		t.Fatalf("expected no remote client without a token")
	}
	if svc.Pipeline.RemoteEnabled() {
		t.Fatalf("pipeline should use the local filter")
	}
	if svc.Cloudinary != nil || svc.Exports != nil || svc.GeoIP != nil {
		t.Fatalf("optional services should be nil: %+v", svc)
	}
	if svc.Layout.Width != 800 || svc.Layout.Height != 1066 {
		t.Fatalf("layout = %dx%d", svc.Layout.Width, svc.Layout.Height)
	}
}

func TestBuildWithCredentialsAndFiles(t *testing.T) {
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "layout.yaml")
	if err := os.WriteFile(layoutPath, []byte("max_emojis: 3\n"), 0o644); err != nil {
		t.Fatalf("write layout: %v", err)
	}
	cfg := baseConfig()
	cfg.ReplicateAPIToken = "r8_token"
	cfg.CloudinaryCloudName = "demo"
	cfg.CloudinaryAPIKey = "key"
	cfg.CloudinaryAPISecret = "secret"
	cfg.PosterLayoutPath = layoutPath
	cfg.ExportDir = filepath.Join(dir, "exports")

	svc, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if svc.Runner == nil || !svc.Pipeline.RemoteEnabled() {
		t.Fatalf("expected remote stylisation")
	}
	if svc.Cloudinary == nil {
		t.Fatalf("expected cloudinary uploader")
	}
	if svc.Exports == nil || svc.Exports.Dir() != cfg.ExportDir {
		t.Fatalf("exports = %+v", svc.Exports)
	}
	if svc.Layout.MaxEmojis != 3 {
		t.Fatalf("MaxEmojis = %d", svc.Layout.MaxEmojis)
	}
}

func TestBuildRejectsMissingTemplate(t *testing.T) {
	cfg := baseConfig()
	cfg.PosterTemplatePath = filepath.Join(t.TempDir(), "missing.png")
	if _, err := Build(cfg, nil); err == nil {
		t.Fatalf("expected error for missing template")
	}
}

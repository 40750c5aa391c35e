package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Background removal strategies accepted by BACKGROUND_STRATEGY.
const (
	BackgroundStrategyNone         = "none"
	BackgroundStrategyCloudinary   = "cloudinary"
	BackgroundStrategySegmentation = "segmentation"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	ReplicateAPIToken     string
	ReplicateBaseURL      string
	ReplicatePollInterval time.Duration
	ReplicateMaxPolls     int

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadPreset string
	CloudinaryAPIBaseURL   string
	CloudinaryResBaseURL   string
	BackgroundStrategy     string

	PosterTemplatePath  string
	PosterLayoutPath    string
	PosterEmojiFontPath string
	ExportDir           string

	GeoIPDBPath        string
	CORSAllowedOrigins []string
	RateLimitPerMin    int
	SessionTTL         time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// A missing Replicate token is not an error: the pipeline falls back to the local sketch filter.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "3001"),

		ReplicateAPIToken:     firstEnv("REPLICATE_API_TOKEN", "VITE_REPLICATE_API_KEY"),
		ReplicateBaseURL:      getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		ReplicatePollInterval: time.Millisecond * time.Duration(getEnvInt("REPLICATE_POLL_INTERVAL_MS", 1000)),
		ReplicateMaxPolls:     getEnvInt("REPLICATE_MAX_POLLS", 60),

		CloudinaryCloudName:    firstEnv("CLOUDINARY_CLOUD_NAME", "VITE_CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:       firstEnv("CLOUDINARY_API_KEY", "VITE_CLOUDINARY_API_KEY"),
		CloudinaryAPISecret:    firstEnv("CLOUDINARY_API_SECRET", "VITE_CLOUDINARY_API_SECRET"),
		CloudinaryUploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", "ml_default"),
		CloudinaryAPIBaseURL:   getEnv("CLOUDINARY_API_BASE_URL", "https://api.cloudinary.com"),
		CloudinaryResBaseURL:   getEnv("CLOUDINARY_RES_BASE_URL", "https://res.cloudinary.com"),
		BackgroundStrategy:     strings.ToLower(getEnv("BACKGROUND_STRATEGY", BackgroundStrategySegmentation)),

		PosterTemplatePath:  os.Getenv("POSTER_TEMPLATE_PATH"),
		PosterLayoutPath:    os.Getenv("POSTER_LAYOUT_PATH"),
		PosterEmojiFontPath: os.Getenv("POSTER_EMOJI_FONT_PATH"),
		ExportDir:           os.Getenv("EXPORT_DIR"),

		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		SessionTTL:         time.Minute * time.Duration(getEnvInt("SESSION_TTL_MINUTES", 60)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.BackgroundStrategy {
	case BackgroundStrategyNone, BackgroundStrategyCloudinary, BackgroundStrategySegmentation:
	default:
		return nil, fmt.Errorf("BACKGROUND_STRATEGY %q is not supported", cfg.BackgroundStrategy)
	}
	if cfg.ReplicateMaxPolls <= 0 {
		return nil, fmt.Errorf("REPLICATE_MAX_POLLS must be positive")
	}
	if cfg.ReplicatePollInterval <= 0 {
		return nil, fmt.Errorf("REPLICATE_POLL_INTERVAL_MS must be positive")
	}

	return cfg, nil
}

// HasReplicateCredentials reports whether remote stylisation is available.
func (c *Config) HasReplicateCredentials() bool {
	return c != nil && strings.TrimSpace(c.ReplicateAPIToken) != ""
}

// HasCloudinaryCredentials reports whether all Cloudinary settings are present.
func (c *Config) HasCloudinaryCredentials() bool {
	return c != nil && c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

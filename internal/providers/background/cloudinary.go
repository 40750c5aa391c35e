package background

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/infra"
)

// ErrCloudinaryNotConfigured is returned when cloud name or key are missing.
var ErrCloudinaryNotConfigured = errors.New("cloudinary: credentials are not configured")

// State is a step of the upload-then-transform flow.
type State string

const (
	StateIdle              State = "idle"
	StateUploading         State = "uploading"
	StateUploaded          State = "uploaded"
	StateFetchingTransform State = "fetching-transform"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// StateObserver is notified on every state change.
type StateObserver func(State)

// CloudinaryOptions configures CloudinaryRemover.
type CloudinaryOptions struct {
	CloudName string
	APIKey    string
	// APISecret is only checked for presence; uploads go through an
	// unsigned preset.
	APISecret    string
	UploadPreset string
	APIBaseURL   string
	ResBaseURL   string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	Observer     StateObserver
}

// CloudinaryRemover uploads the image and downloads Cloudinary's
// e_background_removal transformation of it.
type CloudinaryRemover struct {
	cloudName    string
	apiKey       string
	uploadPreset string
	apiBaseURL   string
	resBaseURL   string
	httpClient   *http.Client
	logger       *infra.Logger
	observer     StateObserver

	mu    sync.Mutex
	state State
}

type uploadRequest struct {
	File         string `json:"file"`
	UploadPreset string `json:"upload_preset"`
	APIKey       string `json:"api_key,omitempty"`
}

// Upload is the part of Cloudinary's upload response we rely on.
type Upload struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
}

// NewCloudinaryRemover builds a remover; it fails unless cloud name, API key
// and API secret are all set.
func NewCloudinaryRemover(opts CloudinaryOptions) (*CloudinaryRemover, error) {
	cloud := strings.TrimSpace(opts.CloudName)
	if cloud == "" || strings.TrimSpace(opts.APIKey) == "" || strings.TrimSpace(opts.APISecret) == "" {
		return nil, ErrCloudinaryNotConfigured
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	preset := strings.TrimSpace(opts.UploadPreset)
	if preset == "" {
		preset = "ml_default"
	}
	apiBase := strings.TrimRight(opts.APIBaseURL, "/")
	if apiBase == "" {
		apiBase = "https://api.cloudinary.com"
	}
	resBase := strings.TrimRight(opts.ResBaseURL, "/")
	if resBase == "" {
		resBase = "https://res.cloudinary.com"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &CloudinaryRemover{
		cloudName:    cloud,
		apiKey:       strings.TrimSpace(opts.APIKey),
		uploadPreset: preset,
		apiBaseURL:   apiBase,
		resBaseURL:   resBase,
		httpClient:   httpClient,
		logger:       logger,
		observer:     opts.Observer,
		state:        StateIdle,
	}, nil
}

// State returns the most recent state.
func (c *CloudinaryRemover) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CloudinaryRemover) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	if c.observer != nil {
		c.observer(s)
	}
}

// TransformURL is the delivery URL of the background-removed PNG.
func (c *CloudinaryRemover) TransformURL(publicID string) string {
	return fmt.Sprintf("%s/%s/image/upload/e_background_removal/f_png/%s", c.resBaseURL, c.cloudName, publicID)
}

// RemoveBackground uploads img, then fetches the transformed PNG.
func (c *CloudinaryRemover) RemoveBackground(ctx context.Context, img domain.Image) Result {
	if img.Empty() {
		c.setState(StateFailed)
		return degraded(img, domain.ErrNoImage)
	}
	upload, err := c.Upload(ctx, img.DataURL())
	if err != nil {
		c.setState(StateFailed)
		c.logger.Warn().Err(err).Msg("cloudinary: upload failed, keeping original")
		return degraded(img, err)
	}

	c.setState(StateFetchingTransform)
	out, err := c.fetch(ctx, c.TransformURL(upload.PublicID))
	if err != nil {
		c.setState(StateFailed)
		c.logger.Warn().Err(err).Str("public_id", upload.PublicID).Msg("cloudinary: transform failed, keeping original")
		return degraded(img, err)
	}
	c.setState(StateDone)
	return Result{Image: out}
}

// Upload sends a data URL (or remote URL) to Cloudinary. A rejected signed
// upload is retried once without the api key.
func (c *CloudinaryRemover) Upload(ctx context.Context, file string) (*Upload, error) {
	c.setState(StateUploading)
	upload, err := c.upload(ctx, uploadRequest{File: file, UploadPreset: c.uploadPreset, APIKey: c.apiKey})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug().Err(err).Msg("cloudinary: signed upload rejected, retrying unsigned")
		upload, err = c.upload(ctx, uploadRequest{File: file, UploadPreset: c.uploadPreset})
		if err != nil {
			return nil, err
		}
	}
	if upload.PublicID == "" {
		return nil, errors.New("cloudinary: upload response missing public_id")
	}
	c.setState(StateUploaded)
	return upload, nil
}

func (c *CloudinaryRemover) upload(ctx context.Context, payload uploadRequest) (*Upload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: encode upload: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1_1/%s/image/upload", c.apiBaseURL, url.PathEscape(c.cloudName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cloudinary: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: upload: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: read upload response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cloudinary: upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out Upload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("cloudinary: decode upload response: %w", err)
	}
	return &out, nil
}

func (c *CloudinaryRemover) fetch(ctx context.Context, target string) (domain.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Image{}, fmt.Errorf("cloudinary: build transform request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Image{}, fmt.Errorf("cloudinary: fetch transform: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.Image{}, fmt.Errorf("cloudinary: transform status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Image{}, fmt.Errorf("cloudinary: read transform: %w", err)
	}
	mime := imaging.SniffMIME(data)
	if !strings.HasPrefix(mime, "image/") {
		return domain.Image{}, fmt.Errorf("cloudinary: transform returned %s", mime)
	}
	return domain.Image{Data: data, MIME: mime}, nil
}

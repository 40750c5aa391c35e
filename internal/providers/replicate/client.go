package replicate

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
	"time"

	"golang.org/x/sync/errgroup"

	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/infra"
)

// ErrMissingAPIToken indicates that the client was configured without credentials.
var ErrMissingAPIToken = errors.New("replicate: api token is required")

// Options configures the Replicate predictions client.
type Options struct {
	APIToken       string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Replicate predictions API.
type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// Prediction mirrors the subset of the Replicate prediction resource we use.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
	Logs   string          `json:"logs,omitempty"`
}

// ErrorText flattens the prediction's error field, which the service sends
// either as a string or as an object.
func (p *Prediction) ErrorText() string {
	if p == nil || len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Error, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(p.Error))
}

type createRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Title  string `json:"title"`
}

// APIError is returned when the service answers with a non-2xx status.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("replicate: status %d: %s", e.Status, e.Detail)
}

// ModelStatus is the outcome of probing one model.
type ModelStatus struct {
	Profile       string `json:"profile"`
	Model         string `json:"model"`
	Version       string `json:"version"`
	LatestVersion string `json:"latestVersion,omitempty"`
	Available     bool   `json:"available"`
	Error         string `json:"error,omitempty"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{
		apiToken:   strings.TrimSpace(opts.APIToken),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiToken != ""
}

// CreatePrediction submits a job for the given model version.
func (c *Client) CreatePrediction(ctx context.Context, version string, input map[string]any) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIToken
	}
	body, err := json.Marshal(createRequest{Version: version, Input: input})
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	var pred Prediction
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/predictions", body, &pred); err != nil {
		return nil, err
	}
	c.logger.Debug().Str("prediction_id", pred.ID).Str("status", pred.Status).Msg("replicate: prediction created")
	return &pred, nil
}

// GetPrediction fetches the current state of a job.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIToken
	}
	var pred Prediction
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+url.PathEscape(id), nil, &pred); err != nil {
		return nil, err
	}
	return &pred, nil
}

// ProbeModels checks every profile's model concurrently. Individual failures
// are reported per model; the returned error is non-nil only when ctx ends.
func (c *Client) ProbeModels(ctx context.Context, profiles ...Profile) ([]ModelStatus, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIToken
	}
	results := make([]ModelStatus, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range profiles {
		g.Go(func() error {
			status := ModelStatus{
				Profile: p.Name,
				Model:   p.ModelOwner + "/" + p.ModelName,
				Version: p.Version,
			}
			var model struct {
				LatestVersion struct {
					ID string `json:"id"`
				} `json:"latest_version"`
			}
			endpoint := c.baseURL + "/models/" + url.PathEscape(p.ModelOwner) + "/" + url.PathEscape(p.ModelName)
			if err := c.do(gctx, http.MethodGet, endpoint, nil, &model); err != nil {
				status.Error = err.Error()
			} else {
				status.Available = true
				status.LatestVersion = model.LatestVersion.ID
			}
			results[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Download fetches a generated asset so it can be inlined.
func (c *Client) Download(ctx context.Context, imageURL string) (domain.Image, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || parsed.Scheme == "" {
		return domain.Image{}, fmt.Errorf("replicate: invalid output url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return domain.Image{}, fmt.Errorf("replicate: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Image{}, fmt.Errorf("replicate: download output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return domain.Image{}, fmt.Errorf("replicate: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Image{}, fmt.Errorf("replicate: read output: %w", err)
	}
	mime := imaging.SniffMIME(data)
	if !strings.HasPrefix(mime, "image/") {
		if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
			mime = ct
		}
	}
	return domain.Image{Data: data, MIME: mime}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("replicate: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replicate: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("replicate: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
			return &APIError{Status: resp.StatusCode, Detail: detail.Detail}
		}
		return &APIError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("replicate: decode response: %w", err)
	}
	return nil
}

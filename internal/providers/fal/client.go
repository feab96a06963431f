package fal

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"renderworker/internal/domain"
	"renderworker/internal/infra"
	"renderworker/internal/providers/backend"
)

// Options configures the fal queue client.
type Options struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	// StorageRoot resolves /storage/-prefixed input image paths.
	StorageRoot string
	HTTPClient  *http.Client
	Logger      *infra.Logger
	// Sleep and Now are injectable so tests can drive the poll loop without
	// wall-clock delays.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Client drives fal's asynchronous queue API: submit a generation request,
// poll the status endpoint until terminal, then fetch the result.
type Client struct {
	apiKey       string
	baseURL      string
	timeout      time.Duration
	pollInterval time.Duration
	storageRoot  string
	httpClient   *http.Client
	logger       *infra.Logger
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type resultResponse struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Image struct {
		URL string `json:"url"`
	} `json:"image"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://queue.fal.run"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		timeout:      timeout,
		pollInterval: pollInterval,
		storageRoot:  strings.TrimSpace(opts.StorageRoot),
		httpClient:   httpClient,
		logger:       logger,
		sleep:        sleep,
		now:          now,
	}
}

// Generate submits one request to the queue and blocks until a terminal
// state or the wall-clock budget runs out.
func (c *Client) Generate(ctx context.Context, req backend.GenerationRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("fal: FAL_KEY is not set: %w", domain.ErrConfiguration)
	}

	requestID, err := c.submit(ctx, req)
	if err != nil {
		return "", err
	}
	c.logger.Info().
		Str("job_id", req.JobID).
		Str("model", req.Model).
		Str("request_id", requestID).
		Msg("fal: job submitted, polling for result")

	return c.pollResult(ctx, req.Model, requestID)
}

func (c *Client) submit(ctx context.Context, req backend.GenerationRequest) (string, error) {
	args := map[string]any{
		"prompt": req.Prompt,
		"image_size": map[string]int{
			"width":  orDefault(req.Width, 1024),
			"height": orDefault(req.Height, 1024),
		},
	}
	if req.Strength > 0 {
		args["strength"] = req.Strength
	}
	if req.Guidance > 0 {
		args["guidance_scale"] = req.Guidance
	}
	if urls := c.encodeInputImages(ctx, req); len(urls) > 0 {
		// Editing models take conditioning images inline; unused parameters
		// are ignored by the API.
		args["image_urls"] = urls
	}

	body, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("fal: encode request: %w", err)
	}
	submitURL := fmt.Sprintf("%s/fal-ai/%s", c.baseURL, req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("fal: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fal: submit: %v: %w", err, domain.ErrTransport)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fal: read submit response: %v: %w", err, domain.ErrTransport)
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("fal: submit status %d: %s: %w", resp.StatusCode, trimBody(raw), domain.ErrProviderFailed)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fal: submit status %d: %s: %w", resp.StatusCode, trimBody(raw), domain.ErrProviderRejected)
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("fal: decode submit response: %v: %w", err, domain.ErrProviderFailed)
	}
	if decoded.RequestID == "" {
		return "", fmt.Errorf("fal: submit response carried no request_id: %w", domain.ErrProviderFailed)
	}
	return decoded.RequestID, nil
}

func (c *Client) pollResult(ctx context.Context, model, requestID string) (string, error) {
	// Status and result endpoints are addressed by the model family, the
	// first path segment only.
	family := model
	if idx := strings.Index(family, "/"); idx >= 0 {
		family = family[:idx]
	}
	statusURL := fmt.Sprintf("%s/fal-ai/%s/requests/%s/status", c.baseURL, family, requestID)
	resultURL := fmt.Sprintf("%s/fal-ai/%s/requests/%s", c.baseURL, family, requestID)

	deadline := c.now().Add(c.timeout)
	notAllowedCount := 0

	for c.now().Before(deadline) {
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return "", err
		}

		status, httpStatus, err := c.checkStatus(ctx, statusURL)
		if err != nil {
			return "", err
		}
		if httpStatus >= 400 {
			// The queue answers 405 once an entry has expired; a few in a
			// row means the request is gone and polling is pointless.
			if httpStatus == http.StatusMethodNotAllowed {
				notAllowedCount++
				if notAllowedCount >= 5 {
					return "", fmt.Errorf("fal: request %s expired on the queue (repeated 405): %w", requestID, domain.ErrProviderFailed)
				}
			}
			c.logger.Warn().
				Str("request_id", requestID).
				Int("http_status", httpStatus).
				Msg("fal: status check failed, retrying")
			continue
		}

		switch status {
		case "COMPLETED":
			return c.fetchResult(ctx, resultURL, requestID)
		case "FAILED", "ERROR":
			return "", fmt.Errorf("fal: request %s finished with status %s: %w", requestID, status, domain.ErrProviderFailed)
		}
		// IN_QUEUE / IN_PROGRESS / anything else: keep polling.
	}

	return "", fmt.Errorf("fal: no result for request %s within %s: %w", requestID, c.timeout, domain.ErrTimeout)
}

func (c *Client) checkStatus(ctx context.Context, statusURL string) (string, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("fal: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Key "+c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("fal: status check: %v: %w", err, domain.ErrTransport)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("fal: read status response: %v: %w", err, domain.ErrTransport)
	}
	if resp.StatusCode >= 400 {
		return "", resp.StatusCode, nil
	}
	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "UNKNOWN", resp.StatusCode, nil
	}
	if decoded.Status == "" {
		return "UNKNOWN", resp.StatusCode, nil
	}
	return decoded.Status, resp.StatusCode, nil
}

func (c *Client) fetchResult(ctx context.Context, resultURL, requestID string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
	if err != nil {
		return "", fmt.Errorf("fal: build result request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Key "+c.apiKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fal: fetch result: %v: %w", err, domain.ErrTransport)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fal: read result response: %v: %w", err, domain.ErrTransport)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fal: result fetch status %d: %s: %w", resp.StatusCode, trimBody(raw), domain.ErrProviderFailed)
	}
	var decoded resultResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("fal: decode result: %v: %w", err, domain.ErrProviderFailed)
	}
	if len(decoded.Images) > 0 && decoded.Images[0].URL != "" {
		return decoded.Images[0].URL, nil
	}
	if decoded.Image.URL != "" {
		return decoded.Image.URL, nil
	}
	return "", fmt.Errorf("fal: result for request %s carried no image url: %w", requestID, domain.ErrProviderFailed)
}

// encodeInputImages inlines conditioning images as data URLs. Sources can be
// http(s) URLs, /storage/-relative keys, or absolute paths. Unreadable inputs
// are logged and skipped rather than failing the whole request.
func (c *Client) encodeInputImages(ctx context.Context, req backend.GenerationRequest) []string {
	var encoded []string
	for _, source := range req.InputImages {
		data, err := c.readInputImage(ctx, source)
		if err != nil || len(data) == 0 {
			c.logger.Warn().
				Err(err).
				Str("job_id", req.JobID).
				Str("source", source).
				Msg("fal: could not read input image, skipping")
			continue
		}
		mime := http.DetectContentType(data)
		encoded = append(encoded, "data:"+mime+";base64,"+base64.StdEncoding.EncodeToString(data))
	}
	return encoded
}

func (c *Client) readInputImage(ctx context.Context, source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		httpReq, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("fal: input image status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	case strings.HasPrefix(source, "/storage/"):
		if c.storageRoot == "" {
			return nil, fmt.Errorf("fal: no storage root configured for %s", source)
		}
		local := filepath.Join(c.storageRoot, filepath.FromSlash(strings.TrimPrefix(source, "/storage/")))
		return os.ReadFile(local)
	default:
		return os.ReadFile(source)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func orDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func trimBody(raw []byte) string {
	body := strings.TrimSpace(string(raw))
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return body
}

var _ backend.Adapter = (*Client)(nil)

package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"renderworker/internal/domain"
	"renderworker/internal/infra"
	"renderworker/internal/providers/backend"
)

// Options configures the DashScope client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client performs a single bounded HTTP call against DashScope's
// multimodal generation API. This is the synchronous adapter variant: one
// request, one response, no polling.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

type generationRequest struct {
	Model string          `json:"model"`
	Input generationInput `json:"input"`
	// Parameters uses the provider's snake_case knobs verbatim.
	Parameters map[string]any `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Text string `json:"text,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-plus"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Generate invokes the API once and returns the generated image URL.
func (c *Client) Generate(ctx context.Context, req backend.GenerationRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("dashscope: DASHSCOPE_API_KEY is not set: %w", domain.ErrConfiguration)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", fmt.Errorf("dashscope: prompt is required: %w", domain.ErrProviderRejected)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	params := map[string]any{}
	if req.Width > 0 && req.Height > 0 {
		params["size"] = fmt.Sprintf("%d*%d", req.Width, req.Height)
	}
	payload := generationRequest{
		Model: model,
		Input: generationInput{
			Messages: []generationMessage{{
				Role:    "user",
				Content: []generationContent{{Text: prompt}},
			}},
		},
		Parameters: params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dashscope: encode request: %w", err)
	}

	endpoint := c.baseURL + "/services/aigc/multimodal-generation/generation"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("dashscope: http request: %v: %w", err, domain.ErrTransport)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("dashscope: read response: %v: %w", err, domain.ErrTransport)
	}

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("dashscope: status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(raw)), domain.ErrProviderFailed)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("dashscope: status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(raw)), domain.ErrProviderRejected)
	}

	var decoded generationResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("dashscope: decode response: %v: %w", err, domain.ErrProviderFailed)
	}
	if decoded.Code != "" {
		return "", fmt.Errorf("dashscope: %s (%s): %w", decoded.Message, decoded.Code, domain.ErrProviderFailed)
	}
	imageURL := firstImageURL(decoded)
	if imageURL == "" {
		return "", fmt.Errorf("dashscope: response carried no image url: %w", domain.ErrProviderFailed)
	}
	c.logger.Debug().
		Str("model", model).
		Str("request_id", decoded.RequestID).
		Str("job_id", req.JobID).
		Msg("dashscope: generated image")
	return imageURL, nil
}

func firstImageURL(resp generationResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if url := strings.TrimSpace(content.Image); url != "" {
				return url
			}
		}
	}
	return ""
}

var _ backend.Adapter = (*Client)(nil)

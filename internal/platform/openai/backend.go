package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/docgen-api/internal/generation"
)

// DefaultBaseURL is the public OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultAzureAPIVersion is used when an Azure backend has no api_version.
const DefaultAzureAPIVersion = "2024-06-01"

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 2048

// Config for the OpenAI client.
type Config struct {
	Name        string
	APIKey      string
	BaseURL     string // default https://api.openai.com/v1
	Model       string // e.g., "gpt-4o-mini"
	Temperature float32

	// Azure selects the Azure OpenAI URL layout and api-key header. BaseURL
	// is then the resource endpoint, e.g. https://example.openai.azure.com.
	Azure      bool
	Deployment string
	APIVersion string

	HTTPClient *http.Client
}

// Backend implements generation.Backend with text-only chat/completions.
type Backend struct {
	cfg      Config
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

var _ generation.Backend = (*Backend)(nil)

// New validates cfg and creates a backend.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key cannot be empty", generation.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	var endpoint string
	if cfg.Azure {
		if cfg.BaseURL == "" || cfg.Deployment == "" {
			return nil, fmt.Errorf("%w: azure backend needs endpoint and deployment", generation.ErrInvalidConfig)
		}
		if cfg.APIVersion == "" {
			cfg.APIVersion = DefaultAzureAPIVersion
		}
		endpoint = strings.TrimRight(cfg.BaseURL, "/") +
			"/openai/deployments/" + url.PathEscape(cfg.Deployment) +
			"/chat/completions?api-version=" + url.QueryEscape(cfg.APIVersion)
		if cfg.Name == "" {
			cfg.Name = "azure:" + cfg.Deployment
		}
	} else {
		if cfg.Model == "" {
			return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultBaseURL
		}
		endpoint = strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
		if cfg.Name == "" {
			cfg.Name = "openai:" + cfg.Model
		}
	}

	return &Backend{
		cfg:      cfg,
		endpoint: endpoint,
		http:     cfg.HTTPClient,
		logger:   logger.With("component", "openai_backend", "backend", cfg.Name),
	}, nil
}

// Name implements generation.Backend.
func (b *Backend) Name() string { return b.cfg.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model,omitempty"`
	Temperature    float32           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
	Messages       []chatMessage     `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate implements generation.Backend.
func (b *Backend) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	start := time.Now()

	body := chatRequest{
		Temperature:    b.cfg.Temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	if !b.cfg.Azure {
		body.Model = b.cfg.Model
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if len(req.Schema) > 0 {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: "JSON Schema:\n" + string(req.Schema)})
	}

	raw, err := b.post(ctx, body)
	if err != nil {
		return nil, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("%w: decode chat response: %w", generation.ErrInvalidResponse, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", generation.ErrInvalidResponse)
	}
	choice := cc.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("%w: finish reason content_filter", generation.ErrContentBlocked)
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message content", generation.ErrInvalidResponse)
	}

	b.logger.DebugContext(ctx, "chat completion finished",
		"unit_key", req.UnitKey,
		"response_bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds())
	return []byte(content), nil
}

func (b *Backend) post(ctx context.Context, body chatRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if b.cfg.Azure {
		httpReq.Header.Set("api-key", b.cfg.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: http: %w", generation.ErrTransientFailure, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			b.logger.Warn("response body close error", "error", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", generation.ErrTransientFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := raw
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: %w", generation.ErrTransientFailure, statusErr)
		}
		return nil, statusErr
	}
	return raw, nil
}

package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/docgen-api/internal/generation"
	"google.golang.org/genai"
)

// contentGenerator is the slice of the genai client this backend uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Config configures one Gemini backend.
type Config struct {
	Name        string
	Model       string
	APIKey      string
	Temperature float32
}

// Backend implements generation.Backend against the Gemini API.
type Backend struct {
	name        string
	model       string
	temperature float32
	models      contentGenerator
	logger      *slog.Logger
}

var _ generation.Backend = (*Backend)(nil)

// New creates a Gemini backend with its own API client.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %w", generation.ErrInvalidConfig, err)
	}
	return newBackend(cfg, client.Models, logger)
}

func newBackend(cfg Config, models contentGenerator, logger *slog.Logger) (*Backend, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if models == nil {
		return nil, fmt.Errorf("%w: gemini client cannot be nil", generation.ErrInvalidConfig)
	}
	if cfg.Name == "" {
		cfg.Name = "gemini:" + cfg.Model
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		name:        cfg.Name,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		models:      models,
		logger:      logger.With("component", "gemini_backend", "backend", cfg.Name),
	}, nil
}

// Name implements generation.Backend.
func (b *Backend) Name() string { return b.name }

// Generate implements generation.Backend. It makes a single API call and
// returns the concatenated text parts of the first candidate.
func (b *Backend) Generate(ctx context.Context, req generation.Request) ([]byte, error) {
	start := time.Now()

	temperature := b.temperature
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	prompt := req.Prompt
	if len(req.Schema) > 0 {
		prompt += "\n\nJSON Schema:\n" + string(req.Schema)
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	resp, err := b.models.GenerateContent(ctx, b.model, contents, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: gemini: %w", generation.ErrTransientFailure, err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	b.logger.DebugContext(ctx, "gemini call completed",
		"unit_key", req.UnitKey,
		"model", b.model,
		"response_bytes", len(text),
		"elapsed_ms", time.Since(start).Milliseconds())
	return []byte(text), nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: response has no text parts", generation.ErrInvalidResponse)
	}
	return b.String(), nil
}

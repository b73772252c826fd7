package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/platform/logger"
	"github.com/phrazzld/docgen-api/internal/redact"
	"golang.org/x/time/rate"
)

// ChainConfig tunes a Chain.
type ChainConfig struct {
	// Timeout bounds each backend attempt. Zero means no per-attempt bound.
	Timeout time.Duration

	// RateLimit caps requests per second across all callers of the chain.
	// Zero disables limiting.
	RateLimit float64

	// Prompts renders request text. Nil uses DefaultPrompts.
	Prompts *Prompts

	Logger *slog.Logger
}

// Chain is an ordered list of backends with fallback. It is safe for
// concurrent use; every worker of a job shares one chain.
type Chain struct {
	backends []Backend
	timeout  time.Duration
	limiter  *rate.Limiter
	prompts  *Prompts
	logger   *slog.Logger
}

// NewChain validates the backends and returns a chain that tries them in order.
func NewChain(backends []Backend, cfg ChainConfig) (*Chain, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: at least one backend is required", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(backends))
	for i, b := range backends {
		if b == nil {
			return nil, fmt.Errorf("%w: backend %d is nil", ErrInvalidConfig, i)
		}
		if _, dup := seen[b.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate backend name %q", ErrInvalidConfig, b.Name())
		}
		seen[b.Name()] = struct{}{}
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: timeout cannot be negative", ErrInvalidConfig)
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("%w: rate limit cannot be negative", ErrInvalidConfig)
	}

	c := &Chain{
		backends: append([]Backend(nil), backends...),
		timeout:  cfg.Timeout,
		prompts:  cfg.Prompts,
		logger:   cfg.Logger,
	}
	if c.prompts == nil {
		c.prompts = DefaultPrompts()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "generation_chain")
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return c, nil
}

// BackendNames returns the configured order.
func (c *Chain) BackendNames() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Generate sends prompt to each backend in order, one attempt each, and
// returns the first output that satisfies schema. If all backends fail the
// error is an *ExhaustedError.
func (c *Chain) Generate(ctx context.Context, unitKey, prompt string, schema *Schema) (json.RawMessage, error) {
	log := logger.FromContextOr(ctx, c.logger).With("unit_key", unitKey)
	req := Request{
		UnitKey:      unitKey,
		SystemPrompt: c.prompts.System(),
		Prompt:       prompt,
		Schema:       schema.Raw(),
	}

	exhausted := &ExhaustedError{UnitKey: unitKey}
	for _, backend := range c.backends {
		if err := ctx.Err(); err != nil {
			exhausted.Failures = append(exhausted.Failures, BackendFailure{Backend: backend.Name(), Err: err})
			break
		}

		start := time.Now()
		out, err := c.attempt(ctx, backend, req, schema)
		if err == nil {
			log.Debug("generation succeeded",
				"backend", backend.Name(),
				"duration_ms", time.Since(start).Milliseconds())
			return out, nil
		}

		log.Warn("generation backend failed",
			"backend", backend.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", redact.Error(err))
		exhausted.Failures = append(exhausted.Failures, BackendFailure{Backend: backend.Name(), Err: err})
	}

	log.Error("all generation backends failed", "attempts", len(exhausted.Failures))
	return nil, exhausted
}

func (c *Chain) attempt(ctx context.Context, backend Backend, req Request, schema *Schema) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := backend.Generate(attemptCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrBackendTimeout, c.timeout, err)
		}
		return nil, err
	}

	cleaned := extractJSON(out)
	if err := schema.Validate(cleaned); err != nil {
		return nil, err
	}
	return json.RawMessage(cleaned), nil
}

// UnitInput is a unit to document.
type UnitInput struct {
	RepositoryName string
	Key            string
	Category       string
	Content        string
}

// UnitOutput is the validated output for a unit.
type UnitOutput struct {
	Raw    json.RawMessage
	Result domain.UnitResult
}

// unitPayload mirrors schemas/unit.json.
type unitPayload struct {
	Summary      string                             `json:"summary"`
	Dependencies map[string]domain.DependencyDetail `json:"dependencies"`
	Symbols      map[string]domain.SymbolDetail     `json:"symbols"`
}

// GenerateUnit documents one unit.
func (c *Chain) GenerateUnit(ctx context.Context, in UnitInput) (*UnitOutput, error) {
	prompt, err := c.prompts.RenderUnit(UnitPromptData{
		RepositoryName: in.RepositoryName,
		Path:           in.Key,
		Category:       in.Category,
		Content:        in.Content,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.Generate(ctx, in.Key, prompt, UnitSchema())
	if err != nil {
		return nil, err
	}

	var payload unitPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode unit output: %w", ErrInvalidResponse, err)
	}
	result := domain.UnitResult{
		Path:         in.Key,
		Summary:      payload.Summary,
		Dependencies: payload.Dependencies,
		Symbols:      payload.Symbols,
	}
	result.Normalize()
	return &UnitOutput{Raw: raw, Result: result}, nil
}

// GenerateOverview documents the repository from the successful unit outputs.
func (c *Chain) GenerateOverview(
	ctx context.Context,
	repositoryName string,
	units []UnitDigest,
) (*domain.RepositoryOverview, error) {
	prompt, err := c.prompts.RenderOverview(OverviewPromptData{
		RepositoryName: repositoryName,
		Units:          units,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.Generate(ctx, domain.OverviewUnitKey, prompt, OverviewSchema())
	if err != nil {
		return nil, err
	}

	var overview domain.RepositoryOverview
	if err := json.Unmarshal(raw, &overview); err != nil {
		return nil, fmt.Errorf("%w: decode overview output: %w", ErrInvalidResponse, err)
	}
	overview.Normalize()
	return &overview, nil
}

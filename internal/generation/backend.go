package generation

import "context"

// Request is a single prompt sent to a backend.
type Request struct {
	// UnitKey identifies the unit for logging; backends do not interpret it.
	UnitKey string

	SystemPrompt string
	Prompt       string

	// Schema is the JSON schema the output must satisfy. Backends may pass it
	// to the model; the chain validates the output regardless.
	Schema []byte
}

// Backend is one configured generation provider.
type Backend interface {
	// Name identifies the backend in logs and failure reports.
	Name() string

	// Generate returns the raw model output for req. It makes exactly one
	// attempt; retries and fallback are the chain's concern.
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc struct {
	BackendName string
	Fn          func(ctx context.Context, req Request) ([]byte, error)
}

// Name implements Backend.
func (b BackendFunc) Name() string { return b.BackendName }

// Generate implements Backend.
func (b BackendFunc) Generate(ctx context.Context, req Request) ([]byte, error) {
	return b.Fn(ctx, req)
}

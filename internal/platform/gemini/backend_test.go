package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/phrazzld/docgen-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// MockModels is a hand-written stand-in for the genai models service.
type MockModels struct {
	GenerateContentFn func(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)

	LastModel    string
	LastContents []*genai.Content
	LastConfig   *genai.GenerateContentConfig
}

func (m *MockModels) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	m.LastModel = model
	m.LastContents = contents
	m.LastConfig = config
	return m.GenerateContentFn(ctx, model, contents, config)
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, &genai.Part{Text: t})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: parts},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func TestNewBackend_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Model: "gemini-2.0-flash"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = newBackend(Config{}, &MockModels{}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = newBackend(Config{Model: "m"}, nil, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	b, err := newBackend(Config{Model: "gemini-2.0-flash"}, &MockModels{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gemini:gemini-2.0-flash", b.Name())
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()

	mock := &MockModels{
		GenerateContentFn: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return textResponse(`{"summary":`, `"ok"}`), nil
		},
	}
	b, err := newBackend(Config{Name: "primary", Model: "gemini-2.0-flash", Temperature: 0.2}, mock, nil)
	require.NoError(t, err)

	out, err := b.Generate(context.Background(), generation.Request{
		UnitKey:      "a.py",
		SystemPrompt: "be precise",
		Prompt:       "document this",
		Schema:       []byte(`{"type":"object"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, string(out))

	assert.Equal(t, "gemini-2.0-flash", mock.LastModel)
	require.Len(t, mock.LastContents, 1)
	assert.Contains(t, mock.LastContents[0].Parts[0].Text, "document this")
	assert.Contains(t, mock.LastContents[0].Parts[0].Text, `{"type":"object"}`)
	assert.Equal(t, "application/json", mock.LastConfig.ResponseMIMEType)
	require.NotNil(t, mock.LastConfig.SystemInstruction)
	assert.Equal(t, "be precise", mock.LastConfig.SystemInstruction.Parts[0].Text)
	require.NotNil(t, mock.LastConfig.Temperature)
	assert.InDelta(t, 0.2, *mock.LastConfig.Temperature, 1e-6)
}

func TestGenerate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		err     error
		wantErr error
	}{
		{name: "api error", err: errors.New("429 resource exhausted"), wantErr: generation.ErrTransientFailure},
		{name: "deadline", err: context.DeadlineExceeded, wantErr: context.DeadlineExceeded},
		{name: "nil response", wantErr: generation.ErrInvalidResponse},
		{
			name:    "no candidates",
			resp:    &genai.GenerateContentResponse{},
			wantErr: generation.ErrInvalidResponse,
		},
		{
			name: "safety block",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
			}}},
			wantErr: generation.ErrContentBlocked,
		},
		{
			name: "nil content",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonStop,
			}}},
			wantErr: generation.ErrInvalidResponse,
		},
		{name: "empty text", resp: textResponse(""), wantErr: generation.ErrInvalidResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mock := &MockModels{
				GenerateContentFn: func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
					return tc.resp, tc.err
				},
			}
			b, err := newBackend(Config{Model: "m"}, mock, nil)
			require.NoError(t, err)

			_, err = b.Generate(context.Background(), generation.Request{Prompt: "p"})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

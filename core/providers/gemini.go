package providers

import (
	"context"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider is the tertiary remote backend. The adapter does not
// implement streaming; GenerateStream fails fast with
// ErrStreamingUnsupported instead of faking a stream from a whole response.
type GeminiProvider struct {
	client *genai.Client
	config GeminiConfig
}

func NewGeminiProvider(ctx context.Context, config GeminiConfig) (*GeminiProvider, error) {
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, config: config}, nil
}

func (p *GeminiProvider) Name() string {
	return string(ProviderTypeGemini)
}

func (p *GeminiProvider) Model() string {
	return p.config.Model
}

func (p *GeminiProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, &GenerationError{Provider: p.Name(), Cause: err}
	}

	return &Response{
		Text:         resp.Text(),
		Provider:     p.Name(),
		Model:        p.config.Model,
		ResponseTime: time.Since(start),
	}, nil
}

func (p *GeminiProvider) GenerateStream(context.Context, *Request) (<-chan StreamChunk, error) {
	return nil, ErrStreamingUnsupported
}

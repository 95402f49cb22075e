package providers

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OllamaProvider is the always-available local backend. It talks to Ollama's
// OpenAI-compatible endpoint, so the chat completions plumbing is shared with
// the OpenAI adapter.
type OllamaProvider struct {
	client *openai.Client
	config OllamaConfig
}

func NewOllamaProvider(config OllamaConfig) (*OllamaProvider, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "llama3.1"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := openai.NewClient(
		option.WithBaseURL(strings.TrimSuffix(config.BaseURL, "/")+"/v1"),
		// Ollama ignores authentication but the client requires a key.
		option.WithAPIKey("ollama"),
	)
	return &OllamaProvider{client: &client, config: config}, nil
}

func (p *OllamaProvider) Name() string {
	return string(ProviderTypeOllama)
}

func (p *OllamaProvider) Model() string {
	return p.config.Model
}

func (p *OllamaProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := chatGenerate(ctx, p.client, p.Name(), p.config.Model, req)
	if err != nil {
		return nil, err
	}
	// Ollama echoes arbitrary model strings back; keep the configured one.
	resp.Model = p.config.Model
	return resp, nil
}

func (p *OllamaProvider) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	return chatStream(ctx, p.client, p.Name(), p.config.Model, req), nil
}

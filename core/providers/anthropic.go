package providers

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider is the best-quality remote backend.
type AnthropicProvider struct {
	client *anthropic.Client
	config AnthropicConfig
}

func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250901"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := anthropic.NewClient(option.WithAPIKey(config.APIKey))
	return &AnthropicProvider{client: &client, config: config}, nil
}

func (p *AnthropicProvider) Name() string {
	return string(ProviderTypeAnthropic)
}

func (p *AnthropicProvider) Model() string {
	return p.config.Model
}

func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, &GenerationError{Provider: p.Name(), Cause: err}
	}

	var text string
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	return &Response{
		Text:         text,
		Provider:     p.Name(),
		Model:        string(msg.Model),
		ResponseTime: time.Since(start),
	}, nil
}

func (p *AnthropicProvider) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			textDelta, ok := delta.Delta.AsAny().(anthropic.TextDelta)
			if !ok {
				continue
			}
			select {
			case chunks <- StreamChunk{Text: textDelta.Text}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Err: &GenerationError{Provider: p.Name(), Cause: err}}
		}
	}()
	return chunks, nil
}

func (p *AnthropicProvider) buildParams(req *Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	return params
}

package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider is the secondary remote backend.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := openai.NewClient(option.WithAPIKey(config.APIKey))
	return &OpenAIProvider{client: &client, config: config}, nil
}

func (p *OpenAIProvider) Name() string {
	return string(ProviderTypeOpenAI)
}

func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	return chatGenerate(ctx, p.client, p.Name(), p.config.Model, req)
}

func (p *OpenAIProvider) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	return chatStream(ctx, p.client, p.Name(), p.config.Model, req), nil
}

// chatGenerate runs a non-streaming chat completion. Shared by every backend
// that speaks the OpenAI chat completions protocol.
func chatGenerate(ctx context.Context, client *openai.Client, name, model string, req *Request) (*Response, error) {
	start := time.Now()

	completion, err := client.Chat.Completions.New(ctx, buildChatParams(model, req))
	if err != nil {
		return nil, &GenerationError{Provider: name, Cause: err}
	}
	if len(completion.Choices) == 0 {
		return nil, &GenerationError{Provider: name, Cause: fmt.Errorf("empty response from backend")}
	}

	return &Response{
		Text:         completion.Choices[0].Message.Content,
		Provider:     name,
		Model:        completion.Model,
		ResponseTime: time.Since(start),
	}, nil
}

func chatStream(ctx context.Context, client *openai.Client, name, model string, req *Request) <-chan StreamChunk {
	stream := client.Chat.Completions.NewStreaming(ctx, buildChatParams(model, req))

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case chunks <- StreamChunk{Text: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Err: &GenerationError{Provider: name, Cause: err}}
		}
	}()
	return chunks
}

func buildChatParams(model string, req *Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

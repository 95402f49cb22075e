package providers

import "fmt"

// ProviderType identifies a backend variant. The set is closed; free-form
// string lookup from the original design is replaced by this enumeration.
type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeGemini    ProviderType = "gemini"
	ProviderTypeOllama    ProviderType = "ollama"
)

// defaultPrecedence is the fixed fallback order for default-provider
// selection: best-quality remote first, degrading to the always-available
// local backend. This is policy, not data.
var defaultPrecedence = []ProviderType{
	ProviderTypeAnthropic,
	ProviderTypeOpenAI,
	ProviderTypeGemini,
	ProviderTypeOllama,
}

func ParseProviderType(s string) (ProviderType, error) {
	switch ProviderType(s) {
	case ProviderTypeAnthropic, ProviderTypeOpenAI, ProviderTypeGemini, ProviderTypeOllama:
		return ProviderType(s), nil
	}
	return "", fmt.Errorf("%w: %s", ErrProviderNotRegistered, s)
}

// AnthropicConfig configures the best-quality remote backend.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

func (c *AnthropicConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("anthropic config: api key is required")
	}
	return nil
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

func (c *OpenAIConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("openai config: api key is required")
	}
	return nil
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

func (c *GeminiConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("gemini config: api key is required")
	}
	return nil
}

// OllamaConfig configures the local backend. No credentials are required;
// it is the always-available end of the fallback chain.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

func (c *OllamaConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("ollama config: base url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("ollama config: model is required")
	}
	return nil
}

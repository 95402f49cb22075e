package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the configured backends and resolves the default by the
// fixed precedence order. Provider construction happens once at process
// start; no ambient lookup exists after that.
type Registry struct {
	mu        sync.RWMutex
	providers map[ProviderType]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[ProviderType]Provider)}
}

func (r *Registry) Register(providerType ProviderType, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[providerType] = provider
}

// Get returns a provider by type, or ErrProviderNotRegistered.
func (r *Registry) Get(providerType ProviderType) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, providerType)
	}
	return provider, nil
}

// Default returns the first registered provider in precedence order.
func (r *Registry) Default() (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range defaultPrecedence {
		if provider, ok := r.providers[t]; ok {
			return provider, nil
		}
	}
	return nil, fmt.Errorf("%w: no providers configured", ErrProviderNotRegistered)
}

// Resolve returns the named provider, or the default when name is empty.
func (r *Registry) Resolve(name string) (Provider, error) {
	if name == "" {
		return r.Default()
	}
	t, err := ParseProviderType(name)
	if err != nil {
		return nil, err
	}
	return r.Get(t)
}

func (r *Registry) Has(providerType ProviderType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[providerType]
	return ok
}

// Available lists registered provider types in precedence order.
func (r *Registry) Available() []ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]ProviderType, 0, len(r.providers))
	for _, t := range defaultPrecedence {
		if _, ok := r.providers[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// BuildConfig carries the credentials and models for registry construction.
type BuildConfig struct {
	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Ollama    OllamaConfig
}

// Build registers every backend with credentials present. The local Ollama
// backend is registered unconditionally so the fallback chain always
// terminates in an available provider.
func Build(ctx context.Context, cfg BuildConfig) (*Registry, error) {
	registry := NewRegistry()

	if cfg.Anthropic.APIKey != "" {
		provider, err := NewAnthropicProvider(cfg.Anthropic)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		registry.Register(ProviderTypeAnthropic, provider)
		slog.Info("provider initialized", slog.String("provider", "anthropic"))
	}

	if cfg.OpenAI.APIKey != "" {
		provider, err := NewOpenAIProvider(cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		registry.Register(ProviderTypeOpenAI, provider)
		slog.Info("provider initialized", slog.String("provider", "openai"))
	}

	if cfg.Gemini.APIKey != "" {
		provider, err := NewGeminiProvider(ctx, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		registry.Register(ProviderTypeGemini, provider)
		slog.Info("provider initialized", slog.String("provider", "gemini"))
	}

	ollama, err := NewOllamaProvider(cfg.Ollama)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	registry.Register(ProviderTypeOllama, ollama)
	slog.Info("provider initialized", slog.String("provider", "ollama"))

	return registry, nil
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/promptab/promptab/core/analyzer"
	"github.com/promptab/promptab/core/config"
	"github.com/promptab/promptab/core/embedder"
	"github.com/promptab/promptab/core/knowledge"
	"github.com/promptab/promptab/core/optimizer"
	"github.com/promptab/promptab/core/providers"
)

// app wires the full pipeline from a loaded configuration. Commands build
// only the slice they need: knowledge commands skip the provider registry,
// the providers command skips the embedder.
type app struct {
	cfg      *config.Config
	embedder *embedder.ONNXEmbedder
	store    *knowledge.Store
	index    *knowledge.Index
	registry *providers.Registry
	analyzer *analyzer.Analyzer
	opt      *optimizer.Optimizer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// openKnowledge builds the embedder, store, and index. The embedding model
// is downloaded on first use, so the initial invocation can take a while.
func openKnowledge(ctx context.Context, cfg *config.Config) (*app, error) {
	emb, err := embedder.NewONNXEmbedder(embedder.ONNXConfig{
		Model:          cfg.Embedding.Model,
		Dimension:      cfg.Embedding.Dimension,
		CacheDir:       cfg.Embedding.CacheDir,
		PoolSize:       cfg.Embedding.PoolSize,
		CacheSize:      cfg.Embedding.CacheSize,
		UseGPU:         cfg.Embedding.UseGPU,
		OrtLibraryPath: cfg.Embedding.ORTLibrary,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if err := emb.EnsureModel(ctx); err != nil {
		return nil, fmt.Errorf("load embedding model: %w", err)
	}

	store, err := knowledge.OpenStore(cfg.Knowledge.DBPath)
	if err != nil {
		emb.Close()
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	index, err := knowledge.NewIndex(store, emb, knowledge.IndexConfig{
		SimilarityThreshold: cfg.Knowledge.SimilarityThreshold,
		MaxSearchResults:    cfg.Knowledge.MaxSearchResults,
		QueryCacheEntries:   cfg.Knowledge.QueryCacheEntries,
		ReindexBatchSize:    cfg.Embedding.BatchSize,
	})
	if err != nil {
		store.Close()
		emb.Close()
		return nil, fmt.Errorf("create knowledge index: %w", err)
	}

	if err := index.VerifyDimension(ctx); err != nil {
		index.Close()
		store.Close()
		emb.Close()
		return nil, err
	}

	return &app{cfg: cfg, embedder: emb, store: store, index: index}, nil
}

// openFull extends openKnowledge with the provider registry and optimizer.
func openFull(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := openKnowledge(ctx, cfg)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.registry = registry

	a.analyzer = analyzer.New(analyzer.DefaultConfig(), buildExtractors(cfg, a.embedder))
	a.opt = optimizer.New(a.analyzer, a.index, registry, optimizer.Config{
		EnableRAG:               cfg.Optimizer.EnableRAG,
		MaxPromptLength:         cfg.Optimizer.MaxPromptLength,
		MaxVariablesPerTemplate: cfg.Optimizer.MaxVariablesPerTemplate,
		RAGSourceLimit:          cfg.Optimizer.RAGSourceLimit,
		SystemPrompt:            cfg.Optimizer.SystemPrompt,
		GenerationMaxTokens:     cfg.Optimizer.GenerationMaxTokens,
		GenerationTemperature:   cfg.Optimizer.GenerationTemperature,
		RAGTimeout:              cfg.Knowledge.RAGTimeout,
	})
	return a, nil
}

func buildRegistry(ctx context.Context, cfg *config.Config) (*providers.Registry, error) {
	registry, err := providers.Build(ctx, providers.BuildConfig{
		Anthropic: providers.AnthropicConfig{
			APIKey: cfg.Providers.AnthropicAPIKey,
			Model:  cfg.Providers.AnthropicModel,
		},
		OpenAI: providers.OpenAIConfig{
			APIKey: cfg.Providers.OpenAIAPIKey,
			Model:  cfg.Providers.OpenAIModel,
		},
		Gemini: providers.GeminiConfig{
			APIKey: cfg.Providers.GeminiAPIKey,
			Model:  cfg.Providers.GeminiModel,
		},
		Ollama: providers.OllamaConfig{
			BaseURL: cfg.Providers.OllamaBaseURL,
			Model:   cfg.Providers.OllamaModel,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	return registry, nil
}

// buildExtractors maps languages to NER extractors when a token
// classification model is configured. The extractor shares the embedder's
// runtime session. Extraction degrades to the capitalization heuristic when
// the model cannot be loaded.
func buildExtractors(cfg *config.Config, emb *embedder.ONNXEmbedder) map[string]analyzer.EntityExtractor {
	if cfg.Embedding.NERModel == "" || emb.Session() == nil {
		return nil
	}
	extractor, err := analyzer.NewHugotExtractor(emb.Session(), cfg.Embedding.NERModel)
	if err != nil {
		slog.Warn("NER model unavailable, falling back to heuristic extraction",
			slog.String("model", cfg.Embedding.NERModel),
			slog.String("error", err.Error()))
		return nil
	}
	return map[string]analyzer.EntityExtractor{
		"en": extractor,
		"ru": extractor,
	}
}

func (a *app) close() {
	if a.index != nil {
		a.index.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

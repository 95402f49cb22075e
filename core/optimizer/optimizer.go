package optimizer

import (
	"context"
	"log/slog"
	"math"
	"time"
	"unicode/utf8"

	"github.com/promptab/promptab/core/analyzer"
	"github.com/promptab/promptab/core/knowledge"
	"github.com/promptab/promptab/core/providers"
	"github.com/promptab/promptab/core/techniques"
)

// Retriever is the similarity-index capability the orchestrator depends on.
type Retriever interface {
	SearchSimilar(ctx context.Context, queryText string, opts knowledge.QueryOptions) ([]knowledge.Match, error)
}

// ProviderResolver selects a generation backend by name, falling back to the
// configured default for an empty name.
type ProviderResolver interface {
	Resolve(name string) (providers.Provider, error)
}

// Config is the orchestrator's slice of the configuration surface.
type Config struct {
	EnableRAG               bool
	MaxPromptLength         int
	MaxVariablesPerTemplate int

	// RAGSourceLimit bounds sources referenced in the meta-prompt. It is
	// deliberately independent of the index's general result limit.
	RAGSourceLimit int

	SystemPrompt          string
	GenerationMaxTokens   int
	GenerationTemperature float64
	RAGTimeout            time.Duration
}

func DefaultConfig() Config {
	return Config{
		EnableRAG:               true,
		MaxPromptLength:         10000,
		MaxVariablesPerTemplate: 20,
		RAGSourceLimit:          3,
		GenerationMaxTokens:     2000,
		GenerationTemperature:   0.7,
		RAGTimeout:              5 * time.Second,
	}
}

// Optimizer sequences the pipeline. All collaborators are injected at
// construction; nothing is looked up ambiently per call.
type Optimizer struct {
	analyzer  *analyzer.Analyzer
	retriever Retriever
	resolver  ProviderResolver
	cfg       Config
}

func New(a *analyzer.Analyzer, retriever Retriever, resolver ProviderResolver, cfg Config) *Optimizer {
	if cfg.MaxPromptLength <= 0 {
		cfg.MaxPromptLength = 10000
	}
	if cfg.MaxVariablesPerTemplate <= 0 {
		cfg.MaxVariablesPerTemplate = 20
	}
	if cfg.RAGSourceLimit <= 0 {
		cfg.RAGSourceLimit = 3
	}
	if cfg.GenerationMaxTokens <= 0 {
		cfg.GenerationMaxTokens = 2000
	}
	if cfg.GenerationTemperature == 0 {
		cfg.GenerationTemperature = 0.7
	}
	if cfg.RAGTimeout <= 0 {
		cfg.RAGTimeout = 5 * time.Second
	}
	return &Optimizer{
		analyzer:  a,
		retriever: retriever,
		resolver:  resolver,
		cfg:       cfg,
	}
}

// Optimize runs the full pipeline for one prompt. Retrieval failures degrade
// to empty sources; generation failures abort the call. Cancelling ctx
// aborts the in-flight generation request.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (*OptimizedPrompt, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	language := req.Language
	if language == "" || language == "auto" {
		language = analyzer.DetectLanguage(req.Prompt)
	}

	analysis := o.analyzer.Analyze(req.Prompt, language)

	selected := req.Techniques
	if selected == nil {
		selected = techniques.Select(analysis)
	}

	// Non-nil so skipped or failed retrieval serializes as [] rather than
	// null.
	sources := []RAGSource{}
	if (req.UseRAG == nil || *req.UseRAG) && o.cfg.EnableRAG {
		sources = o.retrieveSources(ctx, req.Prompt, analysis.Category)
	}

	provider, err := o.resolver.Resolve(req.Provider)
	if err != nil {
		return nil, &OptimizationError{PromptLength: utf8.RuneCountInString(req.Prompt), Cause: err}
	}

	metaPrompt, err := buildMetaPrompt(req.Prompt, selected, analysis, sources, o.cfg.RAGSourceLimit)
	if err != nil {
		return nil, &OptimizationError{Provider: provider.Name(), PromptLength: utf8.RuneCountInString(req.Prompt), Cause: err}
	}

	temperature := o.cfg.GenerationTemperature
	response, err := provider.Generate(ctx, &providers.Request{
		Prompt:       metaPrompt,
		SystemPrompt: o.cfg.SystemPrompt,
		Temperature:  &temperature,
		MaxTokens:    o.cfg.GenerationMaxTokens,
	})
	if err != nil {
		slog.Error("prompt optimization failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()))
		return nil, &OptimizationError{Provider: provider.Name(), PromptLength: utf8.RuneCountInString(req.Prompt), Cause: err}
	}

	structure := parseStructure(response.Text, analysis)
	variables := extractVariables(structure.FullPrompt, o.cfg.MaxVariablesPerTemplate)

	return &OptimizedPrompt{
		Original:       req.Prompt,
		Optimized:      structure.FullPrompt,
		TechniquesUsed: techniques.Strings(selected),
		RAGSources:     sources,
		Structure:      structure,
		Variables:      variables,
		Metadata: map[string]any{
			MetaLanguage: language,
			MetaAnalysis: analysis,
			MetaProvider: provider.Name(),
		},
	}, nil
}

func (o *Optimizer) validate(req Request) error {
	if req.Prompt == "" {
		return &ValidationError{Reason: "prompt is empty"}
	}
	if utf8.RuneCountInString(req.Prompt) > o.cfg.MaxPromptLength {
		return &ValidationError{Reason: "prompt exceeds maximum length"}
	}
	return nil
}

// retrieveSources queries the similarity index. Retrieval is best-effort:
// any failure, including pool saturation timeouts, logs a warning and yields
// an empty source list instead of aborting the optimization.
func (o *Optimizer) retrieveSources(ctx context.Context, prompt, category string) []RAGSource {
	ragCtx, cancel := context.WithTimeout(ctx, o.cfg.RAGTimeout)
	defer cancel()

	matches, err := o.retriever.SearchSimilar(ragCtx, prompt, knowledge.QueryOptions{
		Limit:    o.cfg.RAGSourceLimit,
		Category: category,
	})
	if err != nil {
		slog.Warn("RAG retrieval failed, continuing without sources",
			slog.String("error", err.Error()))
		return []RAGSource{}
	}

	sources := make([]RAGSource, 0, len(matches))
	for _, m := range matches {
		sources = append(sources, RAGSource{
			ID:         m.Record.ID.String(),
			Title:      m.Record.Title,
			Content:    m.Record.Content,
			Category:   m.Record.Category,
			Similarity: roundSimilarity(m.Similarity),
		})
	}
	return sources
}

// roundSimilarity rounds to 3 decimal places for the serialized contract.
func roundSimilarity(sim float64) float64 {
	return math.Round(sim*1000) / 1000
}

package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptab/promptab/core/analyzer"
	"github.com/promptab/promptab/core/knowledge"
	"github.com/promptab/promptab/core/providers"
	"github.com/promptab/promptab/core/techniques"
)

// mockRetriever returns canned matches and counts calls.
type mockRetriever struct {
	matches []knowledge.Match
	err     error
	calls   int
}

func (m *mockRetriever) SearchSimilar(ctx context.Context, queryText string, opts knowledge.QueryOptions) ([]knowledge.Match, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.matches, nil
}

// mockProvider returns a fixed generation and counts calls.
type mockProvider struct {
	name     string
	response string
	err      error
	calls    int

	lastRequest *providers.Request
}

func (m *mockProvider) Name() string  { return m.name }
func (m *mockProvider) Model() string { return "mock-model" }

func (m *mockProvider) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	m.calls++
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return &providers.Response{Text: m.response, Provider: m.name, Model: "mock-model"}, nil
}

func (m *mockProvider) GenerateStream(ctx context.Context, req *providers.Request) (<-chan providers.StreamChunk, error) {
	return nil, providers.ErrStreamingUnsupported
}

type mockResolver struct {
	provider *mockProvider
	err      error
}

func (m *mockResolver) Resolve(name string) (providers.Provider, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.provider, nil
}

func newTestOptimizer(retriever *mockRetriever, provider *mockProvider) *Optimizer {
	return New(
		analyzer.New(analyzer.DefaultConfig(), nil),
		retriever,
		&mockResolver{provider: provider},
		DefaultConfig(),
	)
}

func boolPtr(b bool) *bool { return &b }

func TestOptimize_EmptyPromptRejectedBeforeAnyCall(t *testing.T) {
	retriever := &mockRetriever{}
	provider := &mockProvider{name: "mock", response: "optimized"}
	opt := newTestOptimizer(retriever, provider)

	_, err := opt.Optimize(context.Background(), Request{Prompt: "", UseRAG: boolPtr(true)})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Zero(t, retriever.calls, "retrieval must not run for invalid input")
	assert.Zero(t, provider.calls, "generation must not run for invalid input")
}

func TestOptimize_OverlongPromptRejected(t *testing.T) {
	retriever := &mockRetriever{}
	provider := &mockProvider{name: "mock", response: "optimized"}
	opt := newTestOptimizer(retriever, provider)

	_, err := opt.Optimize(context.Background(), Request{
		Prompt: strings.Repeat("a", 10001),
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Zero(t, provider.calls)
}

func TestOptimize_FullPipeline(t *testing.T) {
	record := knowledge.KnowledgeRecord{
		ID:       uuid.New(),
		Title:    "AIDA framework",
		Content:  "Attention, Interest, Desire, Action.",
		Category: "marketing",
	}
	retriever := &mockRetriever{matches: []knowledge.Match{{Record: record, Similarity: 0.8912}}}
	provider := &mockProvider{
		name:     "mock",
		response: "You are an expert copywriter. Your task is to write a product description.",
	}
	opt := newTestOptimizer(retriever, provider)

	result, err := opt.Optimize(context.Background(), Request{
		Prompt:   "write a product description for wireless headphones",
		UseRAG:   boolPtr(true),
		Language: "auto",
	})

	require.NoError(t, err)
	assert.Equal(t, "write a product description for wireless headphones", result.Original)
	assert.Equal(t, provider.response, result.Optimized)
	assert.Equal(t, provider.response, result.Structure.FullPrompt)
	assert.Equal(t, 1, provider.calls)

	// "write" selects generation intent, so role playing and structured
	// output are both applied.
	assert.Contains(t, result.TechniquesUsed, "role_playing")
	assert.Contains(t, result.TechniquesUsed, "structured_output")

	require.Len(t, result.RAGSources, 1)
	assert.Equal(t, "AIDA framework", result.RAGSources[0].Title)
	assert.Equal(t, 0.891, result.RAGSources[0].Similarity, "similarity is rounded to 3 decimals")

	assert.Equal(t, "en", result.Metadata[MetaLanguage])
	assert.Equal(t, "mock", result.Metadata[MetaProvider])

	analysis, ok := result.Metadata[MetaAnalysis].(analyzer.Analysis)
	require.True(t, ok)
	assert.Equal(t, analyzer.IntentGeneration, analysis.Intent)
}

func TestOptimize_RetrievalFailureDegradesToNoSources(t *testing.T) {
	retriever := &mockRetriever{err: &knowledge.RetrievalError{Op: "query", Cause: errors.New("db locked")}}
	provider := &mockProvider{name: "mock", response: "optimized text"}
	opt := newTestOptimizer(retriever, provider)

	result, err := opt.Optimize(context.Background(), Request{
		Prompt: "explain how transformers work",
		UseRAG: boolPtr(true),
	})

	require.NoError(t, err, "retrieval failure must not fail the optimization")
	assert.Empty(t, result.RAGSources)
	assert.Equal(t, 1, provider.calls, "generation still runs without sources")
}

func TestOptimize_RAGDisabledSkipsRetrieval(t *testing.T) {
	retriever := &mockRetriever{}
	provider := &mockProvider{name: "mock", response: "optimized"}
	opt := newTestOptimizer(retriever, provider)

	_, err := opt.Optimize(context.Background(), Request{
		Prompt: "explain monads",
		UseRAG: boolPtr(false),
	})

	require.NoError(t, err)
	assert.Zero(t, retriever.calls)
}

func TestOptimize_UseRAGDefaultsTrueWhenOmitted(t *testing.T) {
	retriever := &mockRetriever{}
	provider := &mockProvider{name: "mock", response: "optimized"}
	opt := newTestOptimizer(retriever, provider)

	_, err := opt.Optimize(context.Background(), Request{Prompt: "explain monads"})

	require.NoError(t, err)
	assert.Equal(t, 1, retriever.calls, "omitting use_rag must not disable retrieval")
}

func TestOptimize_EmptyCollectionsSerializeAsArrays(t *testing.T) {
	provider := &mockProvider{name: "mock", response: "keep it short."}
	opt := newTestOptimizer(&mockRetriever{}, provider)

	result, err := opt.Optimize(context.Background(), Request{
		Prompt: "explain monads",
		UseRAG: boolPtr(false),
	})

	require.NoError(t, err)
	require.NotNil(t, result.RAGSources)
	require.NotNil(t, result.Variables)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rag_sources":[]`)
	assert.Contains(t, string(data), `"variables":[]`)
}

func TestOptimize_RetrievalFailureYieldsEmptySourceList(t *testing.T) {
	retriever := &mockRetriever{err: &knowledge.RetrievalError{Op: "embed", Cause: errors.New("pool saturated")}}
	provider := &mockProvider{name: "mock", response: "keep it short."}
	opt := newTestOptimizer(retriever, provider)

	result, err := opt.Optimize(context.Background(), Request{Prompt: "explain monads"})

	require.NoError(t, err)
	require.NotNil(t, result.RAGSources)
	assert.Empty(t, result.RAGSources)
}

func TestOptimize_GenerationFailureWrapped(t *testing.T) {
	generationErr := &providers.GenerationError{Provider: "mock", Cause: errors.New("rate limited")}
	provider := &mockProvider{name: "mock", err: generationErr}
	opt := newTestOptimizer(&mockRetriever{}, provider)

	_, err := opt.Optimize(context.Background(), Request{Prompt: "explain monads"})

	var optimizationErr *OptimizationError
	require.ErrorAs(t, err, &optimizationErr)
	assert.Equal(t, "mock", optimizationErr.Provider)
	assert.ErrorIs(t, err, generationErr)
}

func TestOptimize_ResolverFailureWrapped(t *testing.T) {
	opt := New(
		analyzer.New(analyzer.DefaultConfig(), nil),
		&mockRetriever{},
		&mockResolver{err: providers.ErrProviderNotRegistered},
		DefaultConfig(),
	)

	_, err := opt.Optimize(context.Background(), Request{Prompt: "explain monads"})

	var optimizationErr *OptimizationError
	require.ErrorAs(t, err, &optimizationErr)
	assert.ErrorIs(t, err, providers.ErrProviderNotRegistered)
}

func TestOptimize_ExplicitTechniquesSkipSelection(t *testing.T) {
	provider := &mockProvider{name: "mock", response: "optimized"}
	opt := newTestOptimizer(&mockRetriever{}, provider)

	result, err := opt.Optimize(context.Background(), Request{
		Prompt:     "explain monads",
		Techniques: []techniques.Technique{techniques.FewShot},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"few_shot"}, result.TechniquesUsed)
	assert.Contains(t, provider.lastRequest.Prompt, "few_shot")
}

func TestOptimize_GenerationRequestCarriesSettings(t *testing.T) {
	provider := &mockProvider{name: "mock", response: "optimized"}
	cfg := DefaultConfig()
	cfg.SystemPrompt = "system instruction"
	opt := New(analyzer.New(analyzer.DefaultConfig(), nil), &mockRetriever{}, &mockResolver{provider: provider}, cfg)

	_, err := opt.Optimize(context.Background(), Request{Prompt: "explain monads"})

	require.NoError(t, err)
	require.NotNil(t, provider.lastRequest)
	assert.Equal(t, "system instruction", provider.lastRequest.SystemPrompt)
	assert.Equal(t, 2000, provider.lastRequest.MaxTokens)
	require.NotNil(t, provider.lastRequest.Temperature)
	assert.InDelta(t, 0.7, *provider.lastRequest.Temperature, 1e-9)
}

// ctxProvider fails generation as soon as its context is cancelled.
type ctxProvider struct {
	mockProvider
}

func (p *ctxProvider) Generate(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &providers.GenerationError{Provider: p.name, Cause: err}
	}
	return p.mockProvider.Generate(ctx, req)
}

func TestOptimize_ContextCancellationAbortsGeneration(t *testing.T) {
	provider := &ctxProvider{mockProvider: mockProvider{name: "mock", response: "optimized"}}
	opt := New(
		analyzer.New(analyzer.DefaultConfig(), nil),
		&mockRetriever{},
		&ctxResolver{provider: provider},
		DefaultConfig(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := opt.Optimize(ctx, Request{Prompt: "explain monads"})

	var optimizationErr *OptimizationError
	require.ErrorAs(t, err, &optimizationErr)
	assert.ErrorIs(t, err, context.Canceled)
}

type ctxResolver struct {
	provider providers.Provider
}

func (r *ctxResolver) Resolve(name string) (providers.Provider, error) {
	return r.provider, nil
}

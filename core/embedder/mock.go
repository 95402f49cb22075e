package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"time"
)

// MockEmbedder produces deterministic pseudo-embeddings from a text hash.
// Identical text always yields an identical unit vector, which is enough for
// exercising similarity ranking without a model.
type MockEmbedder struct {
	dimension int
	latency   time.Duration
}

func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

func NewMockEmbedderWithLatency(dimension int, latency time.Duration) *MockEmbedder {
	return &MockEmbedder{dimension: dimension, latency: latency}
}

func (m *MockEmbedder) Dimension() int {
	return m.dimension
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.latency):
		}
	}
	return deterministicEmbed(text, m.dimension), nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

func deterministicEmbed(text string, dimension int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dimension)
	var norm float64
	for i := range vec {
		// xorshift keeps the sequence deterministic per seed
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float32(int64(seed%2000)-1000) / 1000
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

package knowledge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptab/promptab/core/embedder"
)

const testDimension = 64

func newTestIndex(t *testing.T, cfg IndexConfig) (*Index, *Store) {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)

	index, err := NewIndex(store, embedder.NewMockEmbedder(testDimension), cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		index.Close()
		store.Close()
	})
	return index, store
}

// seedVector stores a record with an explicit embedding, bypassing the
// embedder, so query tests control similarity exactly.
func seedVector(t *testing.T, store *Store, title, category string, vec []float32) {
	t.Helper()
	_, err := store.Upsert(context.Background(), &KnowledgeRecord{
		Title:     title,
		Content:   "content",
		Category:  category,
		Embedding: vec,
	})
	require.NoError(t, err)
}

func axisVector(axis int) []float32 {
	vec := make([]float32, testDimension)
	vec[axis] = 1
	return vec
}

// mixVector points partway between axis 0 and axis 1; its cosine against
// axisVector(0) is a/sqrt(a*a+b*b).
func mixVector(a, b float32) []float32 {
	vec := make([]float32, testDimension)
	vec[0] = a
	vec[1] = b
	return vec
}

func TestCosineSimilarity(t *testing.T) {
	a := axisVector(0)
	b := axisVector(1)

	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-6)

	// Opposite vectors clamp to 0 rather than going negative.
	neg := make([]float32, testDimension)
	neg[0] = -1
	assert.Equal(t, 0.0, CosineSimilarity(a, neg))

	// Zero vectors have no direction.
	assert.Equal(t, 0.0, CosineSimilarity(a, make([]float32, testDimension)))
}

func TestIndex_Query_RankingAndThreshold(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{SimilarityThreshold: 0.75})

	seedVector(t, store, "identical", "", axisVector(0))
	seedVector(t, store, "close", "", mixVector(0.8, 0.6))       // sim ~0.8
	seedVector(t, store, "far", "", mixVector(0.5, 0.87))        // sim ~0.5
	seedVector(t, store, "orthogonal", "", axisVector(1))        // sim 0

	matches, err := index.Query(context.Background(), axisVector(0), QueryOptions{})
	require.NoError(t, err)

	require.Len(t, matches, 2, "records at or below the threshold are excluded")
	assert.Equal(t, "identical", matches[0].Record.Title)
	assert.Equal(t, "close", matches[1].Record.Title)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestIndex_Query_ThresholdIsStrict(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{})

	seedVector(t, store, "exact", "", axisVector(0))

	// Exact similarity 1.0 does not pass a threshold of 1.0.
	matches, err := index.Query(context.Background(), axisVector(0), QueryOptions{MinSimilarity: 1.0})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIndex_Query_Limit(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{SimilarityThreshold: 0.5})

	for i := 0; i < 4; i++ {
		seedVector(t, store, "r", "", axisVector(0))
	}

	matches, err := index.Query(context.Background(), axisVector(0), QueryOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestIndex_Query_TieOrderIsStable(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{SimilarityThreshold: 0.5})

	seedVector(t, store, "first", "", axisVector(0))
	seedVector(t, store, "second", "", axisVector(0))
	seedVector(t, store, "third", "", axisVector(0))

	matches, err := index.Query(context.Background(), axisVector(0), QueryOptions{})
	require.NoError(t, err)

	require.Len(t, matches, 3)
	assert.Equal(t, "first", matches[0].Record.Title)
	assert.Equal(t, "second", matches[1].Record.Title)
	assert.Equal(t, "third", matches[2].Record.Title)
}

func TestIndex_Query_CategoryFilter(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{SimilarityThreshold: 0.5})

	seedVector(t, store, "marketing entry", "marketing", axisVector(0))
	seedVector(t, store, "coding entry", "coding", axisVector(0))

	matches, err := index.Query(context.Background(), axisVector(0), QueryOptions{Category: "coding"})
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "coding entry", matches[0].Record.Title)
}

func TestIndex_Query_SkipsDimensionMismatchedRecords(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{SimilarityThreshold: 0.5})

	seedVector(t, store, "good", "", axisVector(0))
	seedVector(t, store, "stale", "", []float32{1, 0})

	matches, err := index.Query(context.Background(), axisVector(0), QueryOptions{})
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.Equal(t, "good", matches[0].Record.Title)
}

func TestIndex_SearchSimilar_SameTextMatches(t *testing.T) {
	index, _ := newTestIndex(t, IndexConfig{})
	ctx := context.Background()

	_, err := index.AddToKnowledgeBase(ctx, "AIDA framework", "Attention, Interest, Desire, Action.", "marketing", nil)
	require.NoError(t, err)

	// The mock embedder is deterministic, so querying with the record's
	// own embedding text scores similarity 1.
	matches, err := index.SearchSimilar(ctx, "AIDA framework\nAttention, Interest, Desire, Action.", QueryOptions{})
	require.NoError(t, err)

	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

// failingEmbedder always errors, for exercising the retrieval error path.
type failingEmbedder struct{}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("inference unavailable")
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("inference unavailable")
}

func (f *failingEmbedder) Dimension() int { return testDimension }

func TestIndex_SearchSimilar_EmbedFailureIsRetrievalError(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	defer store.Close()

	index, err := NewIndex(store, &failingEmbedder{}, IndexConfig{})
	require.NoError(t, err)
	defer index.Close()

	_, err = index.SearchSimilar(context.Background(), "query", QueryOptions{})

	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "embed", retrievalErr.Op)
}

func TestIndex_AddToKnowledgeBase(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{})
	ctx := context.Background()

	rec, err := index.AddToKnowledgeBase(ctx, "title", "content", "writing", map[string]any{"k": "v"})
	require.NoError(t, err)
	require.Len(t, rec.Embedding, testDimension)

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Embedding, got.Embedding)
	assert.Equal(t, "writing", got.Category)
}

func TestIndex_ReindexAll_WalksInBatches(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{ReindexBatchSize: 2})
	ctx := context.Background()

	titles := []string{"a", "b", "c", "d", "e"}
	for _, title := range titles {
		seedVector(t, store, title, "", make([]float32, testDimension))
	}

	total, err := index.ReindexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(titles), total)

	records, err := store.All(ctx, "")
	require.NoError(t, err)
	for _, rec := range records {
		expected, err := embedder.NewMockEmbedder(testDimension).Embed(ctx, rec.EmbeddingText())
		require.NoError(t, err)
		assert.Equal(t, expected, rec.Embedding, "embedding recomputed from the record text")
	}
}

func TestIndex_VerifyDimension(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{})
	ctx := context.Background()

	// Empty index verifies trivially.
	require.NoError(t, index.VerifyDimension(ctx))

	seedVector(t, store, "stale", "", []float32{1, 0, 0})

	err := index.VerifyDimension(ctx)
	var mismatch *embedder.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, testDimension, mismatch.Engine)
	assert.Equal(t, 3, mismatch.Index)
}

func TestIndex_CacheKeyChangesOnWrite(t *testing.T) {
	index, store := newTestIndex(t, IndexConfig{})

	before := index.cacheKey(axisVector(0), QueryOptions{Limit: 5, MinSimilarity: 0.75})
	seedVector(t, store, "new", "", axisVector(0))
	after := index.cacheKey(axisVector(0), QueryOptions{Limit: 5, MinSimilarity: 0.75})

	assert.NotEqual(t, before, after, "writes must invalidate cached query results")
}

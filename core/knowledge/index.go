package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sort"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/viterin/vek/vek32"

	"github.com/promptab/promptab/core/embedder"
)

// QueryOptions bounds a similarity query. Zero values fall back to the
// index defaults.
type QueryOptions struct {
	// Limit caps the number of matches returned.
	Limit int

	// MinSimilarity excludes matches at or below this score entirely.
	MinSimilarity float64

	// Category, when non-empty, is an exact-match filter applied before
	// ranking.
	Category string
}

// IndexConfig carries the index defaults from the configuration surface.
type IndexConfig struct {
	SimilarityThreshold float64
	MaxSearchResults    int
	QueryCacheEntries   int64
	ReindexBatchSize    int
}

// Index answers nearest-neighbor queries over the stored records and owns
// the ingestion and re-embedding paths.
type Index struct {
	store    *Store
	embedder embedder.Embedder
	cfg      IndexConfig

	queryCache *ristretto.Cache
}

func NewIndex(store *Store, emb embedder.Embedder, cfg IndexConfig) (*Index, error) {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.75
	}
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = 5
	}
	if cfg.QueryCacheEntries <= 0 {
		cfg.QueryCacheEntries = 1024
	}
	if cfg.ReindexBatchSize <= 0 {
		cfg.ReindexBatchSize = 32
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.QueryCacheEntries * 10,
		MaxCost:     cfg.QueryCacheEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}

	return &Index{
		store:      store,
		embedder:   emb,
		cfg:        cfg,
		queryCache: cache,
	}, nil
}

// VerifyDimension checks that the embedding engine and the stored vectors
// agree on dimension. Run once at startup; a mismatch is a configuration
// fault, not a per-query error.
func (ix *Index) VerifyDimension(ctx context.Context) error {
	records, err := ix.store.ListBatch(ctx, 0, 1)
	if err != nil {
		return fmt.Errorf("verify dimension: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	if stored := len(records[0].Embedding); stored != ix.embedder.Dimension() {
		return &embedder.DimensionMismatchError{Engine: ix.embedder.Dimension(), Index: stored}
	}
	return nil
}

// SearchSimilar embeds the query text and ranks stored records against it.
func (ix *Index) SearchSimilar(ctx context.Context, queryText string, opts QueryOptions) ([]Match, error) {
	vector, err := ix.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, &RetrievalError{Op: "embed", Cause: err}
	}
	return ix.Query(ctx, vector, opts)
}

// Query ranks stored records against a query vector, descending by
// similarity with ties broken by insertion order. Records at or below the
// similarity threshold are excluded entirely.
func (ix *Index) Query(ctx context.Context, vector []float32, opts QueryOptions) ([]Match, error) {
	if opts.Limit <= 0 {
		opts.Limit = ix.cfg.MaxSearchResults
	}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = ix.cfg.SimilarityThreshold
	}

	key := ix.cacheKey(vector, opts)
	if cached, ok := ix.queryCache.Get(key); ok {
		return cached.([]Match), nil
	}

	candidates, err := ix.store.All(ctx, opts.Category)
	if err != nil {
		return nil, &RetrievalError{Op: "query", Cause: err}
	}

	matches := make([]Match, 0, len(candidates))
	for _, rec := range candidates {
		if len(rec.Embedding) != len(vector) {
			continue
		}
		sim := CosineSimilarity(vector, rec.Embedding)
		if sim > opts.MinSimilarity {
			matches = append(matches, Match{Record: rec, Similarity: sim})
		}
	}

	// SliceStable keeps insertion order within equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	ix.queryCache.Set(key, matches, 1)

	slog.Debug("similarity query",
		slog.Int("candidates", len(candidates)),
		slog.Int("matches", len(matches)),
		slog.Float64("threshold", opts.MinSimilarity))
	return matches, nil
}

// AddToKnowledgeBase embeds and stores a new reference item. The embedding is
// computed before the record is written, so Query never sees an un-embedded
// record.
func (ix *Index) AddToKnowledgeBase(ctx context.Context, title, content, category string, metadata map[string]any) (*KnowledgeRecord, error) {
	rec := &KnowledgeRecord{
		Title:    title,
		Content:  content,
		Category: category,
		Metadata: metadata,
	}

	vec, err := ix.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		return nil, &RetrievalError{Op: "embed", Cause: err}
	}
	rec.Embedding = vec

	if _, err := ix.store.Upsert(ctx, rec); err != nil {
		return nil, &RetrievalError{Op: "upsert", Cause: err}
	}

	slog.Info("added knowledge record",
		slog.String("id", rec.ID.String()),
		slog.String("category", category))
	return rec, nil
}

// ReindexAll recomputes every stored embedding in bounded batches, committing
// after each batch. A crash mid-reindex loses at most the in-flight batch,
// and no batch transaction holds the writer long enough to starve readers.
func (ix *Index) ReindexAll(ctx context.Context) (int, error) {
	total := 0
	for offset := 0; ; offset += ix.cfg.ReindexBatchSize {
		batch, err := ix.store.ListBatch(ctx, offset, ix.cfg.ReindexBatchSize)
		if err != nil {
			return total, fmt.Errorf("reindex list: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		texts := make([]string, len(batch))
		ids := make([]uuid.UUID, len(batch))
		for i := range batch {
			texts[i] = batch[i].EmbeddingText()
			ids[i] = batch[i].ID
		}

		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("reindex embed batch at %d: %w", offset, err)
		}

		if err := ix.store.UpdateEmbeddings(ctx, ids, vectors); err != nil {
			return total, err
		}
		total += len(batch)

		slog.Info("reindexed batch",
			slog.Int("offset", offset),
			slog.Int("size", len(batch)))
	}
	return total, nil
}

func (ix *Index) Close() {
	ix.queryCache.Close()
}

func (ix *Index) cacheKey(vector []float32, opts QueryOptions) string {
	h := fnv.New64a()
	h.Write(embedder.EncodeVector(vector))
	return fmt.Sprintf("%d:%x:%d:%.6f:%s",
		ix.store.Epoch(), h.Sum64(), opts.Limit, opts.MinSimilarity, opts.Category)
}

// CosineSimilarity returns 1 - cosine distance, clamped to [0,1].
func CosineSimilarity(a, b []float32) float64 {
	dot := float64(vek32.Dot(a, b))
	na := math.Sqrt(float64(vek32.Dot(a, a)))
	nb := math.Sqrt(float64(vek32.Dot(b, b)))
	if na == 0 || nb == 0 {
		return 0
	}

	sim := dot / (na * nb)
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

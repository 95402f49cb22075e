package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/promptab/promptab/core/pool"
)

// ONNXConfig configures the local feature-extraction engine.
type ONNXConfig struct {
	// Model is the HuggingFace repo to download when the model is not cached.
	Model string

	// Dimension is the expected output dimension; inference results with a
	// different dimension are treated as a model error.
	Dimension int

	CacheDir       string
	PoolSize       int
	CacheSize      int
	SubmitTimeout  time.Duration
	UseGPU         bool
	OrtLibraryPath string
}

// ONNXEmbedder runs a sentence-embedding model locally through hugot.
// Inference is CPU-bound, so it is delegated to a small fixed worker pool;
// concurrent callers queue instead of spawning unbounded inference threads.
type ONNXEmbedder struct {
	cfg       ONNXConfig
	modelPath string

	workers *pool.Pool
	cache   *lru.Cache[string, []float32]

	mu       sync.RWMutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	loaded   bool
}

func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 4096
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 10 * time.Second
	}
	if cfg.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		cfg.CacheDir = filepath.Join(home, ".promptab", "models")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embed cache: %w", err)
	}

	return &ONNXEmbedder{
		cfg:       cfg,
		modelPath: filepath.Join(cfg.CacheDir, filepath.Base(cfg.Model)),
		workers: pool.New(pool.Config{
			Name:         "embed-inference",
			NumWorkers:   cfg.PoolSize,
			MaxQueueSize: cfg.PoolSize * 16,
		}),
		cache: cache,
	}, nil
}

func (o *ONNXEmbedder) Dimension() int {
	return o.cfg.Dimension
}

// EnsureModel downloads (if needed) and loads the model. It must complete
// before the first Embed call and may be slow; callers run it once at startup.
func (o *ONNXEmbedder) EnsureModel(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.loaded {
		return nil
	}

	if _, err := os.Stat(o.modelPath); os.IsNotExist(err) {
		slog.Info("downloading embedding model",
			slog.String("repo", o.cfg.Model),
			slog.String("cache_dir", o.cfg.CacheDir))
		path, err := hugot.DownloadModel(o.cfg.Model, o.cfg.CacheDir, hugot.NewDownloadOptions())
		if err != nil {
			return fmt.Errorf("download model: %w", err)
		}
		o.modelPath = path
	}

	sessionOpts := []options.WithOption{
		options.WithIntraOpNumThreads(runtime.NumCPU()),
	}
	if o.cfg.OrtLibraryPath != "" {
		sessionOpts = append(sessionOpts, options.WithOnnxLibraryPath(o.cfg.OrtLibraryPath))
	}
	if o.cfg.UseGPU {
		sessionOpts = append(sessionOpts, options.WithCuda(nil))
	}

	session, err := hugot.NewORTSession(sessionOpts...)
	if err != nil {
		return fmt.Errorf("create ORT session: %w", err)
	}

	pipeline, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: o.modelPath,
		Name:      "promptab-embeddings",
	})
	if err != nil {
		session.Destroy()
		return fmt.Errorf("create pipeline: %w", err)
	}

	o.session = session
	o.pipeline = pipeline
	o.loaded = true
	return nil
}

func (o *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := o.cache.Get(text); ok {
		return cached, nil
	}

	results, err := o.runInference(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(results))
	}

	o.cache.Add(text, results[0])
	return results[0], nil
}

func (o *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if cached, ok := o.cache.Get(text); ok {
			results[i] = cached
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	computed, err := o.runInference(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(computed) != len(missing) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missing), len(computed))
	}

	for i, vec := range computed {
		results[missingIdx[i]] = vec
		o.cache.Add(missing[i], vec)
	}
	return results, nil
}

// runInference submits a batch to the worker pool and blocks for the result.
// Queue saturation beyond the submit timeout surfaces as pool.ErrSubmitTimeout.
func (o *ONNXEmbedder) runInference(ctx context.Context, texts []string) ([][]float32, error) {
	if !o.isLoaded() {
		return nil, ErrNotInitialized
	}

	var out [][]float32
	job := &pool.Job{
		ID: "embed-batch",
		Execute: func(context.Context) error {
			o.mu.RLock()
			defer o.mu.RUnlock()

			if o.pipeline == nil {
				return ErrNotInitialized
			}
			output, err := o.pipeline.RunPipeline(texts)
			if err != nil {
				return fmt.Errorf("inference failed: %w", err)
			}
			for _, vec := range output.Embeddings {
				if len(vec) != o.cfg.Dimension {
					return fmt.Errorf("model produced %d-dim vector, expected %d", len(vec), o.cfg.Dimension)
				}
			}
			out = output.Embeddings
			return nil
		},
	}

	if err := o.workers.Submit(ctx, job, o.cfg.SubmitTimeout); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *ONNXEmbedder) isLoaded() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loaded
}

// Session exposes the underlying runtime session so other pipelines, such
// as NER extraction, can share it instead of loading a second runtime.
// Returns nil before EnsureModel has completed.
func (o *ONNXEmbedder) Session() *hugot.Session {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.session
}

func (o *ONNXEmbedder) PoolStats() pool.Stats {
	return o.workers.Stats()
}

func (o *ONNXEmbedder) Close() error {
	o.workers.Close()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		o.session.Destroy()
		o.session = nil
	}
	o.pipeline = nil
	o.loaded = false
	return nil
}

// Package embedder turns text into fixed-dimension float32 vectors for
// similarity search. The production implementation runs a local ONNX
// feature-extraction model; a deterministic mock exists for tests.
package embedder

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when Embed is called before the model
	// has been loaded.
	ErrNotInitialized = errors.New("embedder not initialized")
)

// DimensionMismatchError indicates the engine's vector dimension does not
// match the dimension the knowledge index was built with. Detected once at
// startup, never per-call.
type DimensionMismatchError struct {
	Engine int
	Index  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: engine produces %d, index stores %d", e.Engine, e.Index)
}

type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns vectors in input order. Implementations run the
	// whole batch through a single inference call where possible.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int
}

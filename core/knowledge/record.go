// Package knowledge persists reference prompts with their embeddings and
// answers nearest-neighbor queries over them. It is the retrieval half of the
// RAG pipeline: records go in through ingestion, ranked matches come out
// through Query.
package knowledge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// KnowledgeRecord is an immutable reference item. Records are created by
// ingestion and mutated only by re-embedding after a model change; no other
// partial update exists.
type KnowledgeRecord struct {
	ID        uuid.UUID      `json:"id"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	Category  string         `json:"category,omitempty"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EmbeddingText is the canonical text a record is embedded from.
func (r *KnowledgeRecord) EmbeddingText() string {
	return r.Title + "\n" + r.Content
}

// Match pairs a record with its similarity to a specific query. Similarity is
// not a record attribute; it only exists relative to a query vector.
type Match struct {
	Record     KnowledgeRecord
	Similarity float64
}

// RetrievalError wraps index and embedding failures during retrieval. The
// orchestrator treats these as best-effort and degrades to empty sources.
type RetrievalError struct {
	Op    string
	Cause error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s failed: %v", e.Op, e.Cause)
}

func (e *RetrievalError) Unwrap() error {
	return e.Cause
}

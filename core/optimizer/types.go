// Package optimizer coordinates the optimization pipeline: analyze the
// prompt, retrieve similar reference prompts, select techniques, rewrite the
// prompt through a generation backend, then decompose the result into a
// structure with extracted template variables.
package optimizer

import (
	"github.com/promptab/promptab/core/techniques"
)

// Request is the host-facing input contract.
type Request struct {
	Prompt string `json:"prompt"`

	// Techniques, when nil, are derived from the analysis.
	Techniques []techniques.Technique `json:"techniques,omitempty"`

	// UseRAG defaults to true when absent, so hosts that omit the field
	// still get retrieval-augmented results.
	UseRAG   *bool  `json:"use_rag,omitempty"`
	Provider string `json:"provider,omitempty"`

	// Language is a language code or "auto".
	Language string `json:"language"`
}

// RAGSource is a read-only projection of a knowledge record plus its
// query-specific similarity, rounded to 3 decimal places for serialization.
type RAGSource struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Category   string  `json:"category,omitempty"`
	Similarity float64 `json:"similarity"`
}

// PromptStructure is the heuristic decomposition of the generated text.
// FullPrompt always equals the generation gateway's raw output.
type PromptStructure struct {
	Role         string `json:"role"`
	Task         string `json:"task"`
	Context      string `json:"context"`
	Instructions string `json:"instructions"`
	Constraints  string `json:"constraints"`
	Tone         string `json:"tone"`
	FullPrompt   string `json:"full_prompt"`
}

// VariableKind identifies how a candidate variable was found.
type VariableKind string

const (
	VariableQuoted VariableKind = "quoted"
	VariableEntity VariableKind = "entity"
	VariableNumber VariableKind = "number"
)

// ExtractedVariable is a candidate template variable found in the generated
// text.
type ExtractedVariable struct {
	Text          string       `json:"text"`
	SuggestedName string       `json:"suggested_name"`
	Kind          VariableKind `json:"type"`
}

// OptimizedPrompt is the aggregate result of one optimize call. The core
// never persists it; recording history is the caller's responsibility.
type OptimizedPrompt struct {
	Original       string                 `json:"original"`
	Optimized      string                 `json:"optimized"`
	TechniquesUsed []string               `json:"techniques_used"`
	RAGSources     []RAGSource            `json:"rag_sources"`
	Structure      PromptStructure        `json:"structure"`
	Variables      []ExtractedVariable    `json:"variables"`
	Metadata       map[string]any         `json:"metadata"`
}

// Metadata keys set on every result.
const (
	MetaLanguage = "language"
	MetaAnalysis = "analysis"
	MetaProvider = "provider"
)

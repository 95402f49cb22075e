// Package techniques defines the closed set of prompt optimization
// techniques and the rules that select them from an analysis.
package techniques

import (
	"fmt"

	"github.com/promptab/promptab/core/analyzer"
)

// Technique is a named prompt-engineering transformation. The set is closed.
type Technique string

const (
	ChainOfThought   Technique = "chain_of_thought"
	RolePlaying      Technique = "role_playing"
	FewShot          Technique = "few_shot"
	PromptChaining   Technique = "prompt_chaining"
	StructuredOutput Technique = "structured_output"
)

// All lists every technique in canonical order.
var All = []Technique{ChainOfThought, RolePlaying, FewShot, PromptChaining, StructuredOutput}

func Parse(s string) (Technique, error) {
	for _, t := range All {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown technique: %s", s)
}

// ParseList converts string identifiers, preserving order.
func ParseList(names []string) ([]Technique, error) {
	out := make([]Technique, 0, len(names))
	for _, name := range names {
		t, err := Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Strings converts techniques to identifiers, preserving order.
func Strings(ts []Technique) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

// Select derives techniques from an analysis. The rules run independently in
// fixed order and append as they match; downstream instruction generation is
// order-sensitive, so the output order is part of the contract.
func Select(analysis analyzer.Analysis) []Technique {
	var selected []Technique

	// Role-playing for creative tasks.
	if analysis.Intent == analyzer.IntentGeneration || analysis.Category == "writing" {
		selected = append(selected, RolePlaying)
	}

	// Chain-of-thought for complex tasks.
	if analysis.Complexity == analyzer.ComplexityComplex ||
		analysis.Intent == analyzer.IntentAnalysis || analysis.Intent == analyzer.IntentCoding {
		selected = append(selected, ChainOfThought)
	}

	// Few-shot when there is context to draw examples from.
	if analysis.HasContext {
		selected = append(selected, FewShot)
	}

	// Structured output for generation.
	if analysis.Intent == analyzer.IntentGeneration {
		selected = append(selected, StructuredOutput)
	}

	if len(selected) == 0 {
		selected = []Technique{RolePlaying, StructuredOutput}
	}
	return selected
}

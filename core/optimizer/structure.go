package optimizer

import (
	"regexp"
	"strings"

	"github.com/promptab/promptab/core/analyzer"
)

var (
	roleRe = regexp.MustCompile(`(?is)(You are|Ты|Вы являетесь|Act as)(.*?)(\.|$)`)
	taskRe = regexp.MustCompile(`(?is)(Your task is|Твоя задача|Ваша задача)(.*?)(\.|$)`)
)

// parseStructure extracts structured parts from the generated text.
// FullPrompt is always the raw generation output, never re-derived.
func parseStructure(generated string, analysis analyzer.Analysis) PromptStructure {
	structure := PromptStructure{
		FullPrompt: generated,
		Tone:       toneFor(analysis.Intent),
	}

	if m := roleRe.FindString(generated); m != "" {
		structure.Role = strings.TrimSpace(m)
	}
	if m := taskRe.FindString(generated); m != "" {
		structure.Task = strings.TrimSpace(m)
	}

	return structure
}

// toneFor is a fixed intent-to-tone lookup.
func toneFor(intent analyzer.Intent) string {
	switch intent {
	case analyzer.IntentGeneration:
		return "creative and engaging"
	case analyzer.IntentExplanation:
		return "clear and educational"
	case analyzer.IntentAnalysis:
		return "analytical and objective"
	default:
		return "professional and helpful"
	}
}

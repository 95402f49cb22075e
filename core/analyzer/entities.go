package analyzer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// EntityExtractor is the capability behind best-effort named-entity
// extraction. Two implementations exist: a token-classification model and a
// capitalization heuristic used when no model is available for a language.
type EntityExtractor interface {
	ExtractEntities(text string) []Entity
}

// maxHeuristicEntities caps the fallback extractor's output.
const maxHeuristicEntities = 5

// capitalizedWordRe matches one capitalized word in isolation. Word
// boundaries are found by scanning, not by \b, because RE2's \b is ASCII
// only and never fires around Cyrillic text.
var capitalizedWordRe = regexp.MustCompile(`^[A-ZА-Я][a-zа-я]+$`)

// CapitalizedSpans returns maximal runs of capitalized words separated only
// by whitespace, in text order. Latin and Cyrillic words bound the same way.
func CapitalizedSpans(text string) []string {
	words := wordRuns(text)

	var spans []string
	for i := 0; i < len(words); {
		if !capitalizedWordRe.MatchString(text[words[i][0]:words[i][1]]) {
			i++
			continue
		}
		j := i
		for j+1 < len(words) &&
			capitalizedWordRe.MatchString(text[words[j+1][0]:words[j+1][1]]) &&
			onlySpace(text[words[j][1]:words[j+1][0]]) {
			j++
		}
		spans = append(spans, text[words[i][0]:words[j][1]])
		i = j + 1
	}
	return spans
}

// wordRuns finds maximal runs of word runes as byte offsets.
func wordRuns(text string) [][2]int {
	var runs [][2]int
	start := -1
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, [2]int{start, i})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, len(text)})
	}
	return runs
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func onlySpace(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}

// HeuristicExtractor captures sequences of capitalized words. It is the
// always-available fallback and makes no claim about entity labels beyond a
// generic tag.
type HeuristicExtractor struct{}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

func (h *HeuristicExtractor) ExtractEntities(text string) []Entity {
	matches := CapitalizedSpans(text)
	if len(matches) > maxHeuristicEntities {
		matches = matches[:maxHeuristicEntities]
	}

	entities := make([]Entity, 0, len(matches))
	for _, m := range matches {
		entities = append(entities, Entity{Text: m, Label: "MISC"})
	}
	return entities
}

// HugotExtractor runs a token-classification (NER) model through hugot.
// Extraction stays best-effort: inference errors yield an empty entity list
// rather than failing the analysis.
type HugotExtractor struct {
	mu       sync.Mutex
	pipeline *pipelines.TokenClassificationPipeline
}

// NewHugotExtractor loads a NER model from the given path using an existing
// hugot session.
func NewHugotExtractor(session *hugot.Session, modelPath string) (*HugotExtractor, error) {
	pipeline, err := hugot.NewPipeline(session, hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      fmt.Sprintf("promptab-ner-%s", modelPath),
	})
	if err != nil {
		return nil, fmt.Errorf("create NER pipeline: %w", err)
	}
	return &HugotExtractor{pipeline: pipeline}, nil
}

func (h *HugotExtractor) ExtractEntities(text string) []Entity {
	h.mu.Lock()
	defer h.mu.Unlock()

	output, err := h.pipeline.RunPipeline([]string{text})
	if err != nil || len(output.Entities) == 0 {
		return nil
	}

	entities := make([]Entity, 0, len(output.Entities[0]))
	for _, ent := range output.Entities[0] {
		entities = append(entities, Entity{Text: ent.Word, Label: ent.Entity})
	}
	return entities
}

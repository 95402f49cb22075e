// Package analyzer inspects a raw prompt and infers language, intent,
// category, complexity, and surface features. Analysis is pure and
// deterministic: the same prompt always produces the same Analysis, with no
// network access and no randomness.
package analyzer

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

type Intent string

const (
	IntentExplanation Intent = "explanation"
	IntentGeneration  Intent = "generation"
	IntentAnalysis    Intent = "analysis"
	IntentTranslation Intent = "translation"
	IntentCoding      Intent = "coding"
	IntentGeneral     Intent = "general"
)

// Entity is a named entity found in the prompt, best-effort.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Analysis is the value produced per request. Immutable once built.
type Analysis struct {
	Language        string     `json:"language"`
	Length          int        `json:"length"`
	SentenceCount   int        `json:"sentence_count"`
	QuestionCount   int        `json:"question_count"`
	HasInstructions bool       `json:"has_instructions"`
	HasContext      bool       `json:"has_context"`
	Complexity      Complexity `json:"complexity"`
	Intent          Intent     `json:"intent"`
	Category        string     `json:"category,omitempty"`
	Entities        []Entity   `json:"entities,omitempty"`
}

// Config carries the complexity and context length thresholds. The defaults
// match the original tuning: <50 chars simple, <200 medium, context assumed
// past 100.
type Config struct {
	SimpleMaxLength  int
	MediumMaxLength  int
	ContextMinLength int
}

func DefaultConfig() Config {
	return Config{
		SimpleMaxLength:  50,
		MediumMaxLength:  200,
		ContextMinLength: 100,
	}
}

// Analyzer runs rule-based prompt inspection. Entity extraction is the one
// model-dependent part; the extractor per language is fixed at construction,
// never chosen at call time.
type Analyzer struct {
	cfg        Config
	extractors map[string]EntityExtractor
	fallback   EntityExtractor
}

// New builds an Analyzer with per-language entity extractors. Languages
// without an extractor fall back to the capitalization heuristic.
func New(cfg Config, extractors map[string]EntityExtractor) *Analyzer {
	if cfg.SimpleMaxLength <= 0 || cfg.MediumMaxLength <= 0 || cfg.ContextMinLength <= 0 {
		cfg = DefaultConfig()
	}
	if extractors == nil {
		extractors = map[string]EntityExtractor{}
	}
	return &Analyzer{
		cfg:        cfg,
		extractors: extractors,
		fallback:   NewHeuristicExtractor(),
	}
}

var (
	cyrillicRe     = regexp.MustCompile(`[а-яА-Я]`)
	latinRe        = regexp.MustCompile(`[a-zA-Z]`)
	questionRe     = regexp.MustCompile(`\?`)
	instructionsRe = regexp.MustCompile(`(?i)(please|пожалуйста|должен|should|must)`)
)

// DetectLanguage resolves a language from script counts: the script with
// more characters wins, ties default to English.
func DetectLanguage(text string) string {
	cyrillic := len(cyrillicRe.FindAllString(text, -1))
	latin := len(latinRe.FindAllString(text, -1))
	if cyrillic > latin {
		return "ru"
	}
	return "en"
}

// Analyze inspects a prompt. Passing "auto" resolves the language first.
func (a *Analyzer) Analyze(prompt, language string) Analysis {
	if language == "auto" || language == "" {
		language = DetectLanguage(prompt)
	}

	// Length is counted in characters so Cyrillic prompts hit the same
	// thresholds as Latin ones.
	length := utf8.RuneCountInString(prompt)

	analysis := Analysis{
		Language:        language,
		Length:          length,
		SentenceCount:   len(strings.Split(prompt, ".")),
		QuestionCount:   len(questionRe.FindAllString(prompt, -1)),
		HasInstructions: instructionsRe.MatchString(prompt),
		HasContext:      length > a.cfg.ContextMinLength,
		Complexity:      a.complexity(prompt),
		Intent:          DetectIntent(prompt),
		Category:        DetectCategory(prompt),
	}

	extractor, ok := a.extractors[language]
	if !ok {
		extractor = a.fallback
	}
	analysis.Entities = extractor.ExtractEntities(prompt)

	return analysis
}

func (a *Analyzer) complexity(prompt string) Complexity {
	switch length := utf8.RuneCountInString(prompt); {
	case length < a.cfg.SimpleMaxLength:
		return ComplexitySimple
	case length < a.cfg.MediumMaxLength:
		return ComplexityMedium
	default:
		return ComplexityComplex
	}
}

package optimizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/promptab/promptab/core/analyzer"
)

const (
	minQuotedLength = 5
	maxQuotedLength = 100

	maxEntityVariables = 5
	maxNumberVariables = 3

	maxSuggestedNameLength = 30
)

var (
	// Three quotation styles: straight, guillemets, curly.
	quotedRe = regexp.MustCompile(`"([^"]+)"|«([^»]+)»|“([^”]+)”`)

	// Boundary handling lives in findNumbers; RE2's \b is ASCII only and
	// would drop the Cyrillic suffix.
	numberRe = regexp.MustCompile(`((\d+)(?:\.\d+)?)(?:\s*(?:%|процент|percent))?`)

	nameStripRe  = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	nameSpacesRe = regexp.MustCompile(`\s+`)
	asciiNameRe  = regexp.MustCompile(`^[a-zA-Z_]+$`)
)

// extractVariables finds candidate template variables in the generated text,
// in priority order: quoted substrings, then capitalized entities, then bare
// numbers. The total is truncated to maxVariables in extraction order, so
// quoted candidates always survive truncation first.
func extractVariables(text string, maxVariables int) []ExtractedVariable {
	// Non-nil so an empty result serializes as [] rather than null.
	variables := []ExtractedVariable{}
	seen := make(map[string]bool)

	for _, groups := range quotedRe.FindAllStringSubmatch(text, -1) {
		quoted := firstNonEmpty(groups[1:])
		length := utf8.RuneCountInString(quoted)
		if length <= minQuotedLength || length >= maxQuotedLength {
			continue
		}
		variables = append(variables, ExtractedVariable{
			Text:          quoted,
			SuggestedName: suggestVariableName(quoted),
			Kind:          VariableQuoted,
		})
		seen[quoted] = true
	}

	entities := analyzer.CapitalizedSpans(text)
	if len(entities) > maxEntityVariables {
		entities = entities[:maxEntityVariables]
	}
	for _, entity := range entities {
		if seen[entity] {
			continue
		}
		variables = append(variables, ExtractedVariable{
			Text:          entity,
			SuggestedName: suggestVariableName(entity),
			Kind:          VariableEntity,
		})
		seen[entity] = true
	}

	numbers := findNumbers(text)
	if len(numbers) > maxNumberVariables {
		numbers = numbers[:maxNumberVariables]
	}
	for _, number := range numbers {
		variables = append(variables, ExtractedVariable{
			Text:          number,
			SuggestedName: "value",
			Kind:          VariableNumber,
		})
	}

	if len(variables) > maxVariables {
		variables = variables[:maxVariables]
	}
	return variables
}

// findNumbers captures numbers with an optional percent suffix, keeping the
// longest form that ends on a word boundary. Boundaries are checked over
// runes so "30 процент" is captured whole, while "30 percentage" falls back
// to the bare number.
func findNumbers(text string) []string {
	var numbers []string
	for _, idx := range numberRe.FindAllStringSubmatchIndex(text, -1) {
		start := idx[0]
		if prev, _ := utf8.DecodeLastRuneInString(text[:start]); isNumberWordRune(prev) {
			continue
		}
		// Candidate ends: suffixed, decimal, bare integer.
		for _, end := range []int{idx[1], idx[3], idx[5]} {
			if wordBoundaryAt(text, end) {
				numbers = append(numbers, text[start:end])
				break
			}
		}
	}
	return numbers
}

// wordBoundaryAt reports whether a word boundary falls at byte offset pos,
// with letters, digits and underscore from any script counting as word runes.
func wordBoundaryAt(text string, pos int) bool {
	prev, _ := utf8.DecodeLastRuneInString(text[:pos])
	next, _ := utf8.DecodeRuneInString(text[pos:])
	return isNumberWordRune(prev) != isNumberWordRune(next)
}

func isNumberWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func firstNonEmpty(groups []string) string {
	for _, g := range groups {
		if g != "" {
			return g
		}
	}
	return ""
}

// suggestVariableName derives a template-friendly name from the variable
// text: punctuation stripped, spaces collapsed to underscores, long names
// reduced to their first word, ASCII-only names lowercased.
func suggestVariableName(text string) string {
	name := nameStripRe.ReplaceAllString(text, "")
	name = nameSpacesRe.ReplaceAllString(strings.TrimSpace(name), "_")

	if utf8.RuneCountInString(name) > maxSuggestedNameLength {
		if parts := strings.Split(name, "_"); len(parts) > 0 && parts[0] != "" {
			name = parts[0]
		} else {
			name = string([]rune(name)[:maxSuggestedNameLength])
		}
	}

	if asciiNameRe.MatchString(name) {
		name = strings.ToLower(name)
	}

	if name == "" {
		return "variable"
	}
	return name
}

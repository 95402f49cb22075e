package analyzer

import "strings"

// intentRules is the fixed priority list for intent detection. The first
// rule whose keyword set matches wins, so the order here is behavior, not
// style. Matching is substring-based on the lowercased prompt.
var intentRules = []struct {
	intent   Intent
	keywords []string
}{
	{IntentExplanation, []string{"объясни", "explain", "что такое", "what is"}},
	{IntentGeneration, []string{"создай", "create", "generate", "напиши", "write"}},
	{IntentAnalysis, []string{"анализ", "analyze", "оцени", "evaluate"}},
	{IntentTranslation, []string{"переведи", "translate", "перевод"}},
	{IntentCoding, []string{"код", "code", "программа", "function"}},
}

// categoryRules parallels intentRules for category detection. The keyword
// lists overlap with the intent lists but are maintained independently;
// keeping them separate preserves the original behavior even where the two
// tables drift.
var categoryRules = []struct {
	category string
	keywords []string
}{
	{"marketing", []string{"маркетинг", "продвижение", "реклама", "marketing", "promotion", "advertising"}},
	{"coding", []string{"код", "программа", "функция", "code", "program", "function", "debug"}},
	{"writing", []string{"статья", "текст", "пост", "article", "text", "post", "blog"}},
	{"education", []string{"обучение", "урок", "объяснение", "learning", "lesson", "explain"}},
	{"business", []string{"бизнес", "стратегия", "план", "business", "strategy", "plan"}},
}

// DetectIntent matches the prompt against the intent keyword sets in
// priority order, returning general when nothing matches.
func DetectIntent(prompt string) Intent {
	lower := strings.ToLower(prompt)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return IntentGeneral
}

// DetectCategory returns the first matching category, or empty when none
// match.
func DetectCategory(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return ""
}

package optimizer

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/promptab/promptab/core/analyzer"
	"github.com/promptab/promptab/core/techniques"
)

// techniqueInstructions are the fixed per-technique lines embedded in the
// meta-prompt.
var techniqueInstructions = map[techniques.Technique]string{
	techniques.ChainOfThought:   "Add step-by-step reasoning instructions",
	techniques.RolePlaying:      "Assign an appropriate expert role",
	techniques.FewShot:          "Include relevant examples from the knowledge base",
	techniques.StructuredOutput: "Define clear output format and structure",
	techniques.PromptChaining:   "Break down into sub-tasks if needed",
}

const metaPromptText = `Optimize the following prompt using these techniques: {{joinTechniques .Techniques}}

Original prompt: "{{.Original}}"

Analysis:
- Intent: {{.Analysis.Intent}}
- Complexity: {{.Analysis.Complexity}}
- Category: {{categoryOrGeneral .Analysis.Category}}
{{if .Sources}}
Relevant examples from knowledge base:
{{range $i, $s := .Sources}}{{inc $i}}. {{$s.Title}}
   {{$s.Content}}
   (Similarity: {{$s.Similarity}})
{{end}}{{end}}
Apply the following optimizations:
{{range .Techniques}}- {{.}}: {{instruction .}}
{{end}}
Return ONLY the optimized prompt without any explanations or meta-commentary.
The optimized prompt should be immediately usable with an LLM.
`

var metaPromptTemplate = template.Must(template.New("meta-prompt").Funcs(template.FuncMap{
	"joinTechniques": func(ts []techniques.Technique) string {
		return strings.Join(techniques.Strings(ts), ", ")
	},
	"categoryOrGeneral": func(category string) string {
		if category == "" {
			return "general"
		}
		return category
	},
	"inc": func(i int) int { return i + 1 },
	"instruction": func(t techniques.Technique) string {
		return techniqueInstructions[t]
	},
}).Parse(metaPromptText))

type metaPromptData struct {
	Original   string
	Techniques []techniques.Technique
	Analysis   analyzer.Analysis
	Sources    []RAGSource
}

// buildMetaPrompt renders the instruction prompt sent to the generation
// backend. At most sourceLimit retrieved examples are referenced; this limit
// is independent of the index's general result limit.
func buildMetaPrompt(original string, ts []techniques.Technique, analysis analyzer.Analysis, sources []RAGSource, sourceLimit int) (string, error) {
	if len(sources) > sourceLimit {
		sources = sources[:sourceLimit]
	}

	var b strings.Builder
	err := metaPromptTemplate.Execute(&b, metaPromptData{
		Original:   original,
		Techniques: ts,
		Analysis:   analysis,
		Sources:    sources,
	})
	if err != nil {
		return "", fmt.Errorf("render meta-prompt: %w", err)
	}
	return b.String(), nil
}

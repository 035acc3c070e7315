package gemini

import (
	"bytes"
	"fmt"
	"text/template"
)

const transcribeInstruction = `You transcribe meeting recordings.
Return JSON of the form {"segments":[{"speaker":"A","text":"...","start":0.0,"end":1.5}]}.
Label speakers with consecutive capital letters in order of first appearance.
Use null for speaker when it cannot be determined. Times are in seconds.`

const analyzeInstruction = `You turn meeting notes into an actionable summary.
Return JSON of the form {"summary":"...","tasks":[{"title":"...","description":"...","assignee":null}]}.
Only set assignee when a person is named as responsible.`

var analyzeTemplate = template.Must(template.New("analyze").Parse(
	`Summarise the following text and extract its tasks.

---
{{.Text}}
---`))

type analyzePromptData struct {
	Text string
}

func renderAnalyzePrompt(text string) (string, error) {
	var buf bytes.Buffer
	if err := analyzeTemplate.Execute(&buf, analyzePromptData{Text: text}); err != nil {
		return "", fmt.Errorf("failed to execute analyze template: %w", err)
	}
	return buf.String(), nil
}

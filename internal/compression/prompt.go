package compression

import (
	"fmt"
	"strings"

	"github.com/maestrohq/maestro/pkg/models"
)

// renderCompressionPrompt builds the fixed-schema summarization request.
func renderCompressionPrompt(in models.CompressionInput, rawOutput string) string {
	var b strings.Builder

	b.WriteString(`# Tool Result Compression

You are a compression specialist. Analyze the tool output below and produce a structured, concise summary capturing only the information relevant to the current step.

## Context

`)
	fmt.Fprintf(&b, "- **Plan**: %s\n", in.PlanTitle)
	fmt.Fprintf(&b, "- **Current Step**: %s (Step %s)\n", in.StepTitle, in.StepID)
	fmt.Fprintf(&b, "- **Step Description**: %s\n", in.StepDescription)
	fmt.Fprintf(&b, "- **Tool Used**: %s\n", in.ToolName)

	b.WriteString(`
## Rules

1. **summary_title**: 5-12 words, human-readable, describing the semantic content
2. **summary**: 3-10 sentences, strictly relevant to the current step, no speculation or filler
3. **extraction**: key factual bullets, each independently useful (may be empty)
4. **is_useful**: false if the output is irrelevant, empty, error-only, or pure noise

## Tool Output

`)
	fmt.Fprintf(&b, "```\n%s\n```\n", rawOutput)

	b.WriteString(`
## Output Schema

Return ONLY valid JSON matching this exact structure:

` + "```json" + `
{
  "summary_title": "string (5-12 words)",
  "summary": "string (3-10 sentences)",
  "extraction": ["bullet point 1", "bullet point 2"],
  "is_useful": true
}
` + "```" + `

Do not include any explanations or text outside the JSON.
`)

	return b.String()
}

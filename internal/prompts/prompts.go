package prompts

import (
	"fmt"
	"strings"
)

// ============================================================================
// Sensationalism Analysis Prompts
// ============================================================================

// AnalysisSystemPrompt defines the role and the JSON response contract for
// sensationalism analysis. Placeholders like [PERSON_1] stand in for masked
// entities and must be treated as opaque.
const AnalysisSystemPrompt = `You are a calm media analyst. You judge whether a piece of news content is sensationalized: emotionally manipulative framing, exaggerated stakes, urgency without substance, or outrage bait.

Placeholders such as [PERSON_1] or [ORG_2] replace named entities. Treat them as opaque labels; never guess who or what they refer to.

You may receive historical analogues: past headlines similar to the input. Use them to put the content in perspective (has this "unprecedented" event happened before?).

Respond with a single JSON object and nothing else:
{
  "analysis": "2-4 sentence level-headed summary of what actually happened, stripped of spin",
  "is_sensational": true or false,
  "confidence": 0.0 to 1.0,
  "key_points": ["short factual takeaway", "..."]
}`

// AnalysisUserPrompt builds the user message for a masked text and its
// historical analogues.
func AnalysisUserPrompt(maskedText, contentType string, analogues []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Content type: %s\n\nContent:\n%s\n", contentType, maskedText)

	if len(analogues) > 0 {
		b.WriteString("\nHistorical analogues:\n")
		for i, a := range analogues {
			fmt.Fprintf(&b, "%d. %s\n", i+1, a)
		}
	}

	b.WriteString("\nAnalyze the content and respond with the JSON object.")
	return b.String()
}

// ============================================================================
// Meme Generation Prompts
// ============================================================================

// MemeSystemPrompt defines the role for meme caption generation.
const MemeSystemPrompt = `You write short, punchy meme captions that defuse sensational news with humor. Never punch down, never use slurs, keep it light. Output only the caption text, one or two lines, no quotes and no explanation.`

// MemeUserPrompt builds the user message for meme caption generation.
func MemeUserPrompt(headline, analysis, style string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Headline: %s\n", headline)
	if analysis != "" {
		fmt.Fprintf(&b, "\nWhat actually happened: %s\n", analysis)
	}
	fmt.Fprintf(&b, "\nStyle: %s\n\nWrite the caption.", style)
	return b.String()
}

// Package judge runs a panel of weighted judge agents against generated
// images and turns their model responses into structured evaluations.
package judge

import (
	"fmt"
	"strings"

	"github.com/atelierhq/atelier/pkg/models"
)

// outputFormatMarker identifies a judge prompt that defines its own
// response schema. Without it the default template below is appended so
// the response stays machine-parseable.
const outputFormatMarker = "OUTPUT FORMAT"

// defaultJudgeTemplate is appended to a judge's system prompt when its own
// judgePrompt does not specify an output format.
const defaultJudgeTemplate = `You are evaluating a generated image against a creative brief.

Assess the image strictly on its own merits. Identify concrete, actionable
problems rather than vague impressions. When scoring categories, use the
evaluation categories you were configured with.

OUTPUT FORMAT

Respond with a single JSON object and nothing else:

{
  "score": <number 0-100, overall quality against the brief>,
  "feedback": "<2-4 sentences of concrete feedback>",
  "categoryScores": {"<category>": <number 0-100>},
  "TOP_ISSUE": {
    "problem": "<the single most impactful flaw>",
    "severity": "<critical|major|moderate|minor>",
    "fix": "<specific change that would fix it>"
  },
  "whatWorked": ["<element worth preserving>"],
  "checklist": {"<requirement>": <true|false>},
  "promptInstructions": ["<verbatim instruction the next prompt must include>"]
}`

// effectiveSystemPrompt composes the system message a judge evaluates
// with. A judgePrompt that carries its own OUTPUT FORMAT section replaces
// the default template entirely.
func effectiveSystemPrompt(agent *models.Agent) string {
	tail := defaultJudgeTemplate
	if strings.Contains(strings.ToUpper(agent.JudgePrompt), outputFormatMarker) {
		tail = agent.JudgePrompt
	}
	return agent.SystemPrompt + "\n---\n" + tail
}

// IterationContext carries scoring history so judges can be told not to
// drift their scale across iterations.
type IterationContext struct {
	IterationNumber int
	MaxIterations   int
	PreviousScores  []float64
}

// iterationContextBlock renders the history preamble. Empty when there is
// no previous score to anchor against.
func iterationContextBlock(ictx *IterationContext) string {
	if ictx == nil || len(ictx.PreviousScores) == 0 {
		return ""
	}
	scores := make([]string, len(ictx.PreviousScores))
	for i, s := range ictx.PreviousScores {
		scores[i] = fmt.Sprintf("%.1f", s)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "ITERATION CONTEXT\n")
	fmt.Fprintf(&b, "This is iteration %d of %d.\n", ictx.IterationNumber, ictx.MaxIterations)
	fmt.Fprintf(&b, "Aggregate scores of previous iterations: %s.\n", strings.Join(scores, ", "))
	b.WriteString("Score this image on its absolute merits against the brief. " +
		"Do not inflate the score because iterations are expected to improve, " +
		"and do not deflate it to leave headroom.\n")
	return b.String()
}

// buildEvaluationPrompt renders the user message for one evaluation call.
func buildEvaluationPrompt(brief, promptUsed, ragContext string, ictx *IterationContext) string {
	var b strings.Builder

	if block := iterationContextBlock(ictx); block != "" {
		b.WriteString(block)
		b.WriteString("\n")
	}

	b.WriteString("Evaluate the attached image against this brief.\n\n")
	fmt.Fprintf(&b, "BRIEF\n%s\n", brief)

	if promptUsed != "" {
		fmt.Fprintf(&b, "\nPROMPT USED TO GENERATE THE IMAGE\n%s\n", promptUsed)
	}
	if ragContext != "" {
		fmt.Fprintf(&b, "\nREFERENCE GUIDELINES\n%s\n", ragContext)
	}
	return b.String()
}

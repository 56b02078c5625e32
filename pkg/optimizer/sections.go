// Package optimizer turns a brief plus accumulated judge feedback into
// the next generation prompt, and distills top issues into targeted edit
// instructions.
package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atelierhq/atelier/pkg/models"
)

// previousPromptExcerptLen bounds how much of each earlier prompt is
// replayed to the model for avoid-repetition purposes.
const previousPromptExcerptLen = 300

// JudgeFeedback is one judge's distilled guidance for the next prompt.
type JudgeFeedback struct {
	AgentName          string
	Weight             float64
	Feedback           string
	TopIssue           *models.TopIssue
	WhatWorked         []string
	PromptInstructions []string
}

// OptimizeInput is everything the optimizer considers when writing the
// next prompt.
type OptimizeInput struct {
	Brief              string
	CurrentPrompt      string
	Feedback           []JudgeFeedback
	PreviousPrompts    []string
	NegativePrompts    []string
	RAGContext         string
	HasReferenceImages bool
}

// rankedIssue pairs a top issue with the judge that raised it, for
// severity-then-weight ordering.
type rankedIssue struct {
	issue     models.TopIssue
	agentName string
	weight    float64
}

// collectIssues gathers every judge's top issue sorted primarily by
// severity (critical first), secondarily by judge weight descending.
func collectIssues(feedback []JudgeFeedback) []rankedIssue {
	var issues []rankedIssue
	for _, fb := range feedback {
		if fb.TopIssue == nil || fb.TopIssue.Problem == "" {
			continue
		}
		issues = append(issues, rankedIssue{
			issue:     *fb.TopIssue,
			agentName: fb.AgentName,
			weight:    fb.Weight,
		})
	}
	sort.SliceStable(issues, func(i, j int) bool {
		ri, rj := issues[i].issue.Severity.Rank(), issues[j].issue.Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return issues[i].weight > issues[j].weight
	})
	return issues
}

// dedupStrings keeps the first occurrence of each string, compared
// case-insensitively after trimming.
func dedupStrings(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			key := strings.ToLower(s)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// buildOptimizationMessage renders the user message in its fixed section
// order. Sections without content are omitted entirely.
func buildOptimizationMessage(input OptimizeInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "BRIEF\n%s\n", input.Brief)

	if input.HasReferenceImages {
		b.WriteString("\nREFERENCE IMAGES\nReference images accompany generation. The prompt must describe a scene consistent with them.\n")
	}

	if input.CurrentPrompt != "" {
		fmt.Fprintf(&b, "\nCURRENT PROMPT\n%s\n", input.CurrentPrompt)
	}

	if issues := collectIssues(input.Feedback); len(issues) > 0 {
		b.WriteString("\nCRITICAL ISSUES TO FIX (priority order)\n")
		for i, ri := range issues {
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, ri.issue.Severity, ri.issue.Problem)
			if ri.issue.Fix != "" {
				fmt.Fprintf(&b, " -> %s", ri.issue.Fix)
			}
			fmt.Fprintf(&b, " (%s)\n", ri.agentName)
		}
	}

	var workedLists [][]string
	for _, fb := range input.Feedback {
		workedLists = append(workedLists, fb.WhatWorked)
	}
	if worked := dedupStrings(workedLists...); len(worked) > 0 {
		b.WriteString("\nWHAT WORKED (preserve these)\n")
		for _, w := range worked {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	if len(input.NegativePrompts) > 0 {
		b.WriteString("\nTHINGS TO AVOID\n")
		for _, neg := range input.NegativePrompts {
			fmt.Fprintf(&b, "%s\n", neg)
		}
	}

	if input.RAGContext != "" {
		fmt.Fprintf(&b, "\nREFERENCE GUIDELINES\n%s\n", input.RAGContext)
	}

	if detailed := detailedFeedback(input.Feedback); detailed != "" {
		fmt.Fprintf(&b, "\nDETAILED JUDGE FEEDBACK\n%s", detailed)
	}

	if len(input.PreviousPrompts) > 0 {
		b.WriteString("\nPREVIOUS ATTEMPTS (do not repeat)\n")
		for i, prev := range input.PreviousPrompts {
			fmt.Fprintf(&b, "%d. %s\n", i+1, truncate(prev, previousPromptExcerptLen))
		}
	}

	var instructionLists [][]string
	for _, fb := range input.Feedback {
		instructionLists = append(instructionLists, fb.PromptInstructions)
	}
	if instructions := dedupStrings(instructionLists...); len(instructions) > 0 {
		b.WriteString("\nJUDGE PROMPT INSTRUCTIONS (include verbatim)\n")
		for _, inst := range instructions {
			fmt.Fprintf(&b, "- %s\n", inst)
		}
	}

	b.WriteString(taskBlock(input))
	return b.String()
}

// detailedFeedback lists each judge's free-form feedback, heaviest judge
// first.
func detailedFeedback(feedback []JudgeFeedback) string {
	withText := make([]JudgeFeedback, 0, len(feedback))
	for _, fb := range feedback {
		if strings.TrimSpace(fb.Feedback) != "" {
			withText = append(withText, fb)
		}
	}
	if len(withText) == 0 {
		return ""
	}
	sort.SliceStable(withText, func(i, j int) bool {
		return withText[i].Weight > withText[j].Weight
	})

	var b strings.Builder
	for _, fb := range withText {
		fmt.Fprintf(&b, "%s (weight %.1f): %s\n", fb.AgentName, fb.Weight, strings.TrimSpace(fb.Feedback))
	}
	return b.String()
}

// taskBlock closes the message with the mandate for the rewritten prompt.
func taskBlock(input OptimizeInput) string {
	var b strings.Builder
	b.WriteString("\nTASK\n")
	b.WriteString("Write the next image generation prompt. Requirements:\n")
	b.WriteString("- At least 500 words, organized into labeled sections.\n")
	b.WriteString("- Address every critical issue above, in the order listed.\n")
	b.WriteString("- Preserve each element listed under WHAT WORKED.\n")
	b.WriteString("- Include every judge prompt instruction verbatim.\n")
	if input.HasReferenceImages {
		b.WriteString("- Stay visually consistent with the reference images.\n")
	}
	b.WriteString("- Output only the prompt text.\n")
	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/atelierhq/atelier/pkg/llm"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/services"
)

// editTemperature keeps edit instructions focused and reproducible.
const editTemperature = 0.3

// EditInstructionSuffix always terminates a generated edit instruction so
// the editing model does not take liberties beyond the listed changes.
const EditInstructionSuffix = "Keep everything else exactly the same."

// maxEditIssues bounds how many issues one edit instruction addresses.
const maxEditIssues = 5

// Completer is the model-call surface. Satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error)
}

// ConfigSource yields the optimizer singleton configuration. Satisfied by
// *services.OptimizerConfigService.
type ConfigSource interface {
	Get(ctx context.Context) (*models.OptimizerConfig, error)
}

// Optimizer writes generation prompts and edit instructions.
type Optimizer struct {
	completer Completer
	configs   ConfigSource
}

// NewOptimizer creates the optimizer.
func NewOptimizer(completer Completer, configs ConfigSource) *Optimizer {
	if completer == nil {
		panic("completer is required")
	}
	if configs == nil {
		panic("config source is required")
	}
	return &Optimizer{completer: completer, configs: configs}
}

var _ ConfigSource = (*services.OptimizerConfigService)(nil)

// OptimizePrompt produces the next generation prompt from the brief and
// everything learned so far. Returns the trimmed model response.
func (o *Optimizer) OptimizePrompt(ctx context.Context, input OptimizeInput) (string, llm.TokenUsage, error) {
	cfg, err := o.configs.Get(ctx)
	if err != nil {
		return "", llm.TokenUsage{}, fmt.Errorf("failed to load optimizer config: %w", err)
	}

	completion, err := o.completer.Complete(ctx, llm.CompletionRequest{
		System:      cfg.SystemPrompt,
		Prompt:      buildOptimizationMessage(input),
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		MaxTokens:   int32(cfg.MaxTokens),
	})
	if err != nil {
		return "", llm.TokenUsage{}, fmt.Errorf("prompt optimization failed: %w", err)
	}

	prompt := strings.TrimSpace(completion.Text)
	if prompt == "" {
		return "", completion.Usage, fmt.Errorf("optimizer returned an empty prompt")
	}

	slog.Debug("Optimized prompt",
		"model", completion.Model,
		"prompt_words", len(strings.Fields(prompt)),
		"tokens", completion.Usage.TotalTokens)
	return prompt, completion.Usage, nil
}

// EditInput is the material for one edit instruction.
type EditInput struct {
	Brief      string
	TopIssues  []models.TopIssue
	WhatWorked []string
}

// BuildEditInstruction distills the top issues into a numbered edit list.
// At most five issues survive, severity-sorted and de-duplicated by
// problem-text prefix. The returned instruction always ends with
// EditInstructionSuffix.
func (o *Optimizer) BuildEditInstruction(ctx context.Context, input EditInput) (string, llm.TokenUsage, error) {
	cfg, err := o.configs.Get(ctx)
	if err != nil {
		return "", llm.TokenUsage{}, fmt.Errorf("failed to load optimizer config: %w", err)
	}

	completion, err := o.completer.Complete(ctx, llm.CompletionRequest{
		System:      cfg.SystemPrompt,
		Prompt:      buildEditMessage(input),
		Model:       cfg.Model,
		Temperature: editTemperature,
	})
	if err != nil {
		return "", llm.TokenUsage{}, fmt.Errorf("edit instruction generation failed: %w", err)
	}

	instruction := strings.TrimSpace(completion.Text)
	if instruction == "" {
		return "", completion.Usage, fmt.Errorf("optimizer returned an empty edit instruction")
	}
	if !strings.HasSuffix(instruction, EditInstructionSuffix) {
		instruction += "\n" + EditInstructionSuffix
	}
	return instruction, completion.Usage, nil
}

// selectEditIssues sorts by severity and drops issues whose problem text
// repeats an already selected one (prefix match, case-insensitive).
func selectEditIssues(issues []models.TopIssue) []models.TopIssue {
	bySeverity := make([]models.TopIssue, 0, len(issues))
	for _, issue := range issues {
		if strings.TrimSpace(issue.Problem) != "" {
			bySeverity = append(bySeverity, issue)
		}
	}
	sort.SliceStable(bySeverity, func(i, j int) bool {
		return bySeverity[i].Severity.Rank() < bySeverity[j].Severity.Rank()
	})

	var selected []models.TopIssue
	var seen []string
	for _, issue := range bySeverity {
		if len(selected) == maxEditIssues {
			break
		}
		key := strings.ToLower(strings.TrimSpace(issue.Problem))
		if isPrefixDuplicate(seen, key) {
			continue
		}
		seen = append(seen, key)
		selected = append(selected, issue)
	}
	return selected
}

// isPrefixDuplicate reports whether key restates any seen problem: either
// string being a prefix of the other counts as a repeat.
func isPrefixDuplicate(seen []string, key string) bool {
	for _, s := range seen {
		if strings.HasPrefix(key, s) || strings.HasPrefix(s, key) {
			return true
		}
	}
	return false
}

// briefExcerptLen bounds the brief reminder inside an edit instruction.
const briefExcerptLen = 200

func buildEditMessage(input EditInput) string {
	var b strings.Builder
	b.WriteString("Write an edit instruction for an image editing model. The image is close; only the listed problems need fixing.\n")

	issues := selectEditIssues(input.TopIssues)
	if len(issues) > 0 {
		b.WriteString("\nPROBLEMS TO FIX (priority order)\n")
		for i, issue := range issues {
			fmt.Fprintf(&b, "%d. [%s] %s", i+1, issue.Severity, issue.Problem)
			if issue.Fix != "" {
				fmt.Fprintf(&b, " -> %s", issue.Fix)
			}
			b.WriteString("\n")
		}
	}

	if preserved := dedupStrings(input.WhatWorked); len(preserved) > 0 {
		b.WriteString("\nPRESERVE THESE ELEMENTS\n")
		for _, p := range preserved {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	if input.Brief != "" {
		fmt.Fprintf(&b, "\nBRIEF (for context)\n%s\n", truncate(input.Brief, briefExcerptLen))
	}

	fmt.Fprintf(&b, "\nRespond with a numbered list of specific edits, nothing else. End with the exact sentence: %q\n", EditInstructionSuffix)
	return b.String()
}

package optimizer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/atelierhq/atelier/pkg/models"
)

const (
	negativePrefix   = "AVOID: "
	maxNewNegatives  = 3
	maxNegativeLines = 10
)

// AccumulateNegatives folds the winning image's top issues into the
// request's negative-prompt list. Up to three new issues are appended per
// iteration, severity-sorted, skipping problems already listed (compared
// case-insensitively). The list keeps only its last ten lines. The second
// return value reports whether the value changed and needs persisting.
func AccumulateNegatives(existing string, evaluations []models.EvaluationRecord) (string, bool) {
	lines := splitNegativeLines(existing)

	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		seen[strings.ToLower(problemOf(line))] = struct{}{}
	}

	var issues []rankedIssue
	for _, eval := range evaluations {
		if eval.TopIssue == nil || strings.TrimSpace(eval.TopIssue.Problem) == "" {
			continue
		}
		issues = append(issues, rankedIssue{
			issue:     *eval.TopIssue,
			agentName: eval.AgentName,
			weight:    eval.Weight,
		})
	}
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].issue.Severity.Rank() < issues[j].issue.Severity.Rank()
	})

	added := 0
	for _, ri := range issues {
		if added == maxNewNegatives {
			break
		}
		problem := strings.TrimSpace(ri.issue.Problem)
		key := strings.ToLower(problem)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		lines = append(lines, fmt.Sprintf("%s%s - %s (from %s)",
			negativePrefix, problem, strings.TrimSpace(ri.issue.Fix), ri.agentName))
		added++
	}

	if added == 0 && len(lines) <= maxNegativeLines {
		return existing, false
	}
	if len(lines) > maxNegativeLines {
		lines = lines[len(lines)-maxNegativeLines:]
	}

	updated := strings.Join(lines, "\n")
	return updated, updated != existing
}

// splitNegativeLines parses the stored newline-joined value, dropping
// blank lines.
func splitNegativeLines(value string) []string {
	var lines []string
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// problemOf extracts the problem text from an `AVOID: {problem} - {fix}`
// line. Lines in other shapes dedup on their full text.
func problemOf(line string) string {
	rest := strings.TrimPrefix(line, negativePrefix)
	if problem, _, found := strings.Cut(rest, " - "); found {
		return strings.TrimSpace(problem)
	}
	return strings.TrimSpace(rest)
}


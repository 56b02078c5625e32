package judge

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/atelierhq/atelier/pkg/models"
)

// ParsedEvaluation is the normalized form of one judge response.
type ParsedEvaluation struct {
	Score              float64
	Feedback           string
	CategoryScores     map[string]float64
	TopIssue           *models.TopIssue
	WhatWorked         []string
	Checklist          map[string]models.ChecklistItem
	PromptInstructions []string
}

// ParseEvaluation extracts the first balanced JSON object from a model
// response and normalizes it. Keys are matched case-insensitively with
// underscores ignored, so `TOP_ISSUE`, `topIssue` and `top_issue` are all
// the same key. A response without a JSON object fails; the caller drops
// that judge's vote for the image.
func ParseEvaluation(raw string) (*ParsedEvaluation, error) {
	objText, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(objText), &decoded); err != nil {
		return nil, fmt.Errorf("judge response JSON is invalid: %w", err)
	}

	fields := foldKeys(decoded)

	parsed := &ParsedEvaluation{
		Score:              parseScore(fields["score"]),
		Feedback:           stringValue(fields["feedback"]),
		CategoryScores:     parseCategoryScores(fields["categoryscores"]),
		TopIssue:           parseTopIssue(fields["topissue"]),
		WhatWorked:         parseStringList(fields["whatworked"]),
		Checklist:          parseChecklist(fields["checklist"]),
		PromptInstructions: parseStringList(fields["promptinstructions"]),
	}
	return parsed, nil
}

// extractJSONObject returns the first balanced top-level {...} in the
// text, skipping braces inside JSON strings.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in judge response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in judge response")
}

// foldKeys lowercases keys and strips underscores so lookups are
// case/snake-insensitive. On collision the first key wins.
func foldKeys(m map[string]any) map[string]any {
	folded := make(map[string]any, len(m))
	for k, v := range m {
		fk := foldKey(k)
		if _, exists := folded[fk]; !exists {
			folded[fk] = v
		}
	}
	return folded
}

func foldKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "_", "")
}

// parseScore clamps to [0,100]. Missing or unusable values default to 50;
// an explicit 0 is preserved.
func parseScore(v any) float64 {
	f, ok := numberValue(v)
	if !ok || math.IsNaN(f) {
		return 50
	}
	return clampScore(f)
}

func clampScore(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return f
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func parseCategoryScores(v any) map[string]float64 {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	scores := make(map[string]float64, len(m))
	for k, raw := range m {
		if f, ok := numberValue(raw); ok && !math.IsNaN(f) {
			scores[k] = clampScore(f)
		}
	}
	if len(scores) == 0 {
		return nil
	}
	return scores
}

// parseTopIssue normalizes {problem, severity, fix}, defaulting missing
// fields and any unrecognized severity to moderate.
func parseTopIssue(v any) *models.TopIssue {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	fields := foldKeys(m)

	severity := models.Severity(strings.ToLower(stringValue(fields["severity"])))
	if !severity.Valid() {
		severity = models.SeverityModerate
	}
	return &models.TopIssue{
		Problem:  stringValue(fields["problem"]),
		Severity: severity,
		Fix:      stringValue(fields["fix"]),
	}
}

func parseStringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := stringValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseChecklist accepts either bare booleans or {passed, note} objects as
// checklist values.
func parseChecklist(v any) map[string]models.ChecklistItem {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	checklist := make(map[string]models.ChecklistItem, len(m))
	for k, raw := range m {
		switch item := raw.(type) {
		case bool:
			checklist[k] = models.ChecklistItem{Passed: item}
		case map[string]any:
			fields := foldKeys(item)
			passed, _ := fields["passed"].(bool)
			checklist[k] = models.ChecklistItem{
				Passed: passed,
				Note:   stringValue(fields["note"]),
			}
		}
	}
	if len(checklist) == 0 {
		return nil
	}
	return checklist
}

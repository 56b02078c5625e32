package models

import "time"

// IterationMode records which path produced an iteration's images.
type IterationMode string

const (
	IterationRegeneration IterationMode = "regeneration"
	IterationEdit         IterationMode = "edit"
)

// Severity classifies a judge's top issue. Order matters for prompt
// assembly and strategy selection: critical outranks major outranks
// moderate outranks minor.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Rank maps severity to a sortable position, critical first. Unknown
// severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityModerate:
		return 2
	case SeverityMinor:
		return 3
	default:
		return 4
	}
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	return s.Rank() < 4
}

// TopIssue is the single most impactful flaw a judge identified.
type TopIssue struct {
	Problem  string   `json:"problem"`
	Severity Severity `json:"severity"`
	Fix      string   `json:"fix"`
}

// ChecklistItem is one entry of a judge's optional pass/fail rubric.
type ChecklistItem struct {
	Passed bool   `json:"passed"`
	Note   string `json:"note,omitempty"`
}

// EvaluationRecord is one judge's verdict on one image. Weight is copied
// from the agent at evaluation time so later weight edits do not rewrite
// history.
type EvaluationRecord struct {
	AgentID            string                   `json:"agentId"`
	AgentName          string                   `json:"agentName"`
	ImageID            string                   `json:"imageId"`
	OverallScore       float64                  `json:"overallScore"`
	Weight             float64                  `json:"weight"`
	Feedback           string                   `json:"feedback,omitempty"`
	CategoryScores     map[string]float64       `json:"categoryScores,omitempty"`
	TopIssue           *TopIssue                `json:"topIssue,omitempty"`
	WhatWorked         []string                 `json:"whatWorked,omitempty"`
	Checklist          map[string]ChecklistItem `json:"checklist,omitempty"`
	PromptInstructions []string                 `json:"promptInstructions,omitempty"`
}

// IterationSnapshot is the immutable record of one optimize/generate/
// evaluate/select loop. Appended once per iteration, never rewritten.
type IterationSnapshot struct {
	IterationNumber      int                `json:"iterationNumber"`
	OptimizedPrompt      string             `json:"optimizedPrompt"`
	Mode                 IterationMode      `json:"mode"`
	EditSourceImageID    string             `json:"editSourceImageId,omitempty"`
	ConsecutiveEditCount int                `json:"consecutiveEditCount"`
	SelectedImageID      string             `json:"selectedImageId"`
	AggregateScore       float64            `json:"aggregateScore"`
	Evaluations          []EvaluationRecord `json:"evaluations"`
	CreatedAt            time.Time          `json:"createdAt"`
}

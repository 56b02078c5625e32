package optimizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/llm"
	"github.com/atelierhq/atelier/pkg/models"
)

type fakeCompleter struct {
	text    string
	err     error
	lastReq llm.CompletionRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{
		Text:  f.text,
		Model: req.Model,
		Usage: llm.TokenUsage{InputTokens: 80, OutputTokens: 20, TotalTokens: 100},
	}, nil
}

type fakeConfigSource struct {
	cfg *models.OptimizerConfig
	err error
}

func (f *fakeConfigSource) Get(context.Context) (*models.OptimizerConfig, error) {
	return f.cfg, f.err
}

func testConfigSource() *fakeConfigSource {
	return &fakeConfigSource{cfg: &models.OptimizerConfig{
		SystemPrompt: "You write prompts.",
		Model:        "gemini-2.5-pro",
		Temperature:  0.8,
		MaxTokens:    4096,
	}}
}

func TestOptimizer_OptimizePrompt(t *testing.T) {
	completer := &fakeCompleter{text: "  A detailed prompt.  \n"}
	opt := NewOptimizer(completer, testConfigSource())

	prompt, usage, err := opt.OptimizePrompt(context.Background(), OptimizeInput{Brief: "A red bicycle."})

	require.NoError(t, err)
	assert.Equal(t, "A detailed prompt.", prompt)
	assert.Equal(t, 100, usage.TotalTokens)
	assert.Equal(t, "You write prompts.", completer.lastReq.System)
	assert.Equal(t, "gemini-2.5-pro", completer.lastReq.Model)
	assert.Equal(t, float32(0.8), completer.lastReq.Temperature)
	assert.Equal(t, int32(4096), completer.lastReq.MaxTokens)
	assert.Contains(t, completer.lastReq.Prompt, "BRIEF\nA red bicycle.")
}

func TestOptimizer_OptimizePrompt_EmptyResponseFails(t *testing.T) {
	opt := NewOptimizer(&fakeCompleter{text: "   "}, testConfigSource())

	_, usage, err := opt.OptimizePrompt(context.Background(), OptimizeInput{Brief: "brief"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty prompt")
	assert.Equal(t, 100, usage.TotalTokens)
}

func TestOptimizer_OptimizePrompt_ConfigErrorFails(t *testing.T) {
	opt := NewOptimizer(&fakeCompleter{text: "prompt"}, &fakeConfigSource{err: errors.New("db down")})

	_, _, err := opt.OptimizePrompt(context.Background(), OptimizeInput{Brief: "brief"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "optimizer config")
}

func TestOptimizer_OptimizePrompt_CompletionErrorFails(t *testing.T) {
	opt := NewOptimizer(&fakeCompleter{err: errors.New("model unavailable")}, testConfigSource())

	_, _, err := opt.OptimizePrompt(context.Background(), OptimizeInput{Brief: "brief"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestOptimizer_BuildEditInstruction_AppendsSuffix(t *testing.T) {
	completer := &fakeCompleter{text: "1. Fix the logo color."}
	opt := NewOptimizer(completer, testConfigSource())

	instruction, _, err := opt.BuildEditInstruction(context.Background(), EditInput{
		Brief:     "brief",
		TopIssues: []models.TopIssue{{Problem: "Wrong logo color", Severity: models.SeverityMajor}},
	})

	require.NoError(t, err)
	assert.Equal(t, "1. Fix the logo color.\n"+EditInstructionSuffix, instruction)
}

func TestOptimizer_BuildEditInstruction_KeepsExistingSuffix(t *testing.T) {
	text := "1. Fix the logo color.\n" + EditInstructionSuffix
	opt := NewOptimizer(&fakeCompleter{text: text}, testConfigSource())

	instruction, _, err := opt.BuildEditInstruction(context.Background(), EditInput{Brief: "brief"})

	require.NoError(t, err)
	assert.Equal(t, text, instruction)
	assert.Equal(t, 1, strings.Count(instruction, EditInstructionSuffix))
}

func TestOptimizer_BuildEditInstruction_UsesFixedTemperature(t *testing.T) {
	completer := &fakeCompleter{text: "1. Edit."}
	opt := NewOptimizer(completer, testConfigSource())

	_, _, err := opt.BuildEditInstruction(context.Background(), EditInput{Brief: "brief"})

	require.NoError(t, err)
	assert.Equal(t, float32(editTemperature), completer.lastReq.Temperature)
	assert.Zero(t, completer.lastReq.MaxTokens)
}

func TestSelectEditIssues_CapsAtFive(t *testing.T) {
	var issues []models.TopIssue
	for i := 0; i < 8; i++ {
		issues = append(issues, models.TopIssue{
			Problem:  fmt.Sprintf("Distinct problem %d", i),
			Severity: models.SeverityModerate,
		})
	}

	assert.Len(t, selectEditIssues(issues), maxEditIssues)
}

func TestSelectEditIssues_SeveritySorted(t *testing.T) {
	issues := []models.TopIssue{
		{Problem: "minor thing", Severity: models.SeverityMinor},
		{Problem: "critical thing", Severity: models.SeverityCritical},
		{Problem: "major thing", Severity: models.SeverityMajor},
	}

	selected := selectEditIssues(issues)

	require.Len(t, selected, 3)
	assert.Equal(t, "critical thing", selected[0].Problem)
	assert.Equal(t, "major thing", selected[1].Problem)
	assert.Equal(t, "minor thing", selected[2].Problem)
}

func TestSelectEditIssues_DropsPrefixDuplicates(t *testing.T) {
	issues := []models.TopIssue{
		{Problem: "Logo is wrong", Severity: models.SeverityCritical},
		{Problem: "logo is wrong color and size", Severity: models.SeverityMajor},
		{Problem: "Background too busy", Severity: models.SeverityMinor},
	}

	selected := selectEditIssues(issues)

	require.Len(t, selected, 2)
	assert.Equal(t, "Logo is wrong", selected[0].Problem)
	assert.Equal(t, "Background too busy", selected[1].Problem)
}

func TestBuildEditMessage_QuotesSuffixRequirement(t *testing.T) {
	message := buildEditMessage(EditInput{
		Brief:      strings.Repeat("long brief ", 40),
		TopIssues:  []models.TopIssue{{Problem: "Blown highlights", Severity: models.SeverityMajor, Fix: "Lower exposure"}},
		WhatWorked: []string{"Framing"},
	})

	assert.Contains(t, message, "1. [major] Blown highlights -> Lower exposure")
	assert.Contains(t, message, "- Framing")
	assert.Contains(t, message, fmt.Sprintf("%q", EditInstructionSuffix))
	assert.NotContains(t, message, strings.Repeat("long brief ", 40))
}

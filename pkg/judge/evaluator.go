package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/atelierhq/atelier/pkg/llm"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/rag"
)

// judgeTemperature keeps evaluations consistent across runs.
const judgeTemperature = 0.3

// Completer is the model-call surface the evaluator needs. Satisfied by
// *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error)
}

// ContextSearcher retrieves reference guidance for a judge. Satisfied by
// *rag.Index.
type ContextSearcher interface {
	Search(ctx context.Context, agentID, query string, topK int, threshold float64) ([]rag.ScoredChunk, int, error)
}

// ImageInput is one candidate image handed to the panel.
type ImageInput struct {
	ID         string
	Data       []byte
	MIMEType   string
	PublicURL  string
	PromptUsed string
}

// Usage accumulates the billable volume of an evaluation round.
type Usage struct {
	LLMTokens       int
	EmbeddingTokens int
}

// Add merges another usage into u.
func (u *Usage) Add(other Usage) {
	u.LLMTokens += other.LLMTokens
	u.EmbeddingTokens += other.EmbeddingTokens
}

// Evaluator runs judge agents against images.
type Evaluator struct {
	completer Completer
	search    ContextSearcher
}

// NewEvaluator creates the panel evaluator. The searcher may be nil when
// no RAG index is available; judges then evaluate without reference
// context.
func NewEvaluator(completer Completer, search ContextSearcher) *Evaluator {
	if completer == nil {
		panic("completer is required")
	}
	return &Evaluator{completer: completer, search: search}
}

// EvaluateImage runs a single judge against a single image. A model
// response that cannot be parsed is this judge's problem alone: the error
// is returned and the caller drops the vote while other judges still
// count.
func (e *Evaluator) EvaluateImage(ctx context.Context, agent *models.Agent, img ImageInput, brief string, ictx *IterationContext) (*models.EvaluationRecord, Usage, error) {
	var usage Usage

	ragContext, embedTokens := e.retrieveContext(ctx, agent, brief, img.PromptUsed)
	usage.EmbeddingTokens += embedTokens

	completion, err := e.completer.Complete(ctx, llm.CompletionRequest{
		System: effectiveSystemPrompt(agent),
		Prompt: buildEvaluationPrompt(brief, img.PromptUsed, ragContext, ictx),
		Images: []llm.ImageInput{
			{Data: img.Data, MIMEType: img.MIMEType},
		},
		Tier:        agent.ModelTier,
		Temperature: judgeTemperature,
	})
	if err != nil {
		return nil, usage, fmt.Errorf("judge %s failed to evaluate image %s: %w", agent.Name, img.ID, err)
	}
	usage.LLMTokens += completion.Usage.TotalTokens

	parsed, err := ParseEvaluation(completion.Text)
	if err != nil {
		return nil, usage, fmt.Errorf("judge %s returned an unparseable evaluation for image %s: %w", agent.Name, img.ID, err)
	}

	return &models.EvaluationRecord{
		AgentID:            agent.ID,
		AgentName:          agent.Name,
		ImageID:            img.ID,
		OverallScore:       parsed.Score,
		Weight:             agent.ScoringWeight,
		Feedback:           parsed.Feedback,
		CategoryScores:     parsed.CategoryScores,
		TopIssue:           parsed.TopIssue,
		WhatWorked:         parsed.WhatWorked,
		Checklist:          parsed.Checklist,
		PromptInstructions: parsed.PromptInstructions,
	}, usage, nil
}

// retrieveContext queries the judge's document set. Retrieval failures
// degrade to an evaluation without context rather than failing the judge.
func (e *Evaluator) retrieveContext(ctx context.Context, agent *models.Agent, brief, promptUsed string) (string, int) {
	if e.search == nil {
		return "", 0
	}

	cfg := agent.RAGConfig
	if cfg.TopK <= 0 {
		cfg = models.DefaultRAGConfig()
	}
	query := strings.TrimSpace(brief + " " + promptUsed)

	chunks, tokens, err := e.search.Search(ctx, agent.ID, query, cfg.TopK, cfg.SimilarityThreshold)
	if err != nil {
		slog.Warn("RAG retrieval failed, evaluating without context",
			"agent_id", agent.ID, "error", err)
		return "", tokens
	}
	if len(chunks) == 0 {
		return "", tokens
	}

	var b strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(chunk.Chunk.Content)
	}
	return b.String(), tokens
}

// EvaluateWithAllJudges runs the full panel against one image in
// parallel. Judges that error are logged and skipped; their votes are
// simply absent from the result.
func (e *Evaluator) EvaluateWithAllJudges(ctx context.Context, agents []*models.Agent, img ImageInput, brief string, ictx *IterationContext) ([]models.EvaluationRecord, Usage) {
	type outcome struct {
		record *models.EvaluationRecord
		usage  Usage
		err    error
	}

	outcomes := make([]outcome, len(agents))
	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func(i int, agent *models.Agent) {
			defer wg.Done()
			record, usage, err := e.EvaluateImage(ctx, agent, img, brief, ictx)
			outcomes[i] = outcome{record: record, usage: usage, err: err}
		}(i, agent)
	}
	wg.Wait()

	var (
		records []models.EvaluationRecord
		usage   Usage
	)
	for i, out := range outcomes {
		usage.Add(out.usage)
		if out.err != nil {
			slog.Warn("Dropping judge evaluation",
				"agent_id", agents[i].ID,
				"agent_name", agents[i].Name,
				"image_id", img.ID,
				"error", out.err)
			continue
		}
		records = append(records, *out.record)
	}
	return records, usage
}

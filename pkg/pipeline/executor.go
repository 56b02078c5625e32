// Package pipeline drives a generation request through the
// optimize/generate/evaluate loop until it reaches a terminal status.
// The executor is stateless across dispatches: every run rebuilds its
// loop state from the persisted request, so crashed runs resume from the
// last committed iteration.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/events"
	"github.com/atelierhq/atelier/pkg/imagegen"
	"github.com/atelierhq/atelier/pkg/judge"
	"github.com/atelierhq/atelier/pkg/llm"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/optimizer"
	"github.com/atelierhq/atelier/pkg/rag"
	"github.com/atelierhq/atelier/pkg/services"
	"github.com/atelierhq/atelier/pkg/storage"
)

// ────────────────────────────────────────────────────────────
// Collaborator surfaces
// ────────────────────────────────────────────────────────────

// RequestStore is the request persistence surface the executor drives.
// Satisfied by *services.RequestService.
type RequestStore interface {
	Get(ctx context.Context, id string) (*models.GenerationRequest, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error
	AddCosts(ctx context.Context, id string, delta models.Costs) (*models.Costs, error)
	AppendIteration(ctx context.Context, id string, snapshot models.IterationSnapshot) (*models.GenerationRequest, error)
	SetNegativePrompts(ctx context.Context, id string, value string) error
	Finalize(ctx context.Context, id string, update services.TerminalUpdate) error
}

// ImageStore persists generated image rows. Satisfied by
// *services.ImageService.
type ImageStore interface {
	CreateBatch(ctx context.Context, images []*models.GeneratedImage) error
	Get(ctx context.Context, id string) (*models.GeneratedImage, error)
}

// AgentStore loads the judge panel. Satisfied by *services.AgentService.
type AgentStore interface {
	GetMany(ctx context.Context, ids []string) ([]*models.Agent, error)
}

// ObjectStore holds image bytes. Satisfied by *storage.Store.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// JudgeEvaluator runs the panel against one image. Satisfied by
// *judge.Evaluator.
type JudgeEvaluator interface {
	EvaluateWithAllJudges(ctx context.Context, agents []*models.Agent, img judge.ImageInput, brief string, ictx *judge.IterationContext) ([]models.EvaluationRecord, judge.Usage)
}

// PromptOptimizer produces prompts and edit instructions. Satisfied by
// *optimizer.Optimizer.
type PromptOptimizer interface {
	OptimizePrompt(ctx context.Context, input optimizer.OptimizeInput) (string, llm.TokenUsage, error)
	BuildEditInstruction(ctx context.Context, input optimizer.EditInput) (string, llm.TokenUsage, error)
}

// ContextRetriever searches a judge's indexed documents. Satisfied by
// *rag.Index.
type ContextRetriever interface {
	Search(ctx context.Context, agentID, query string, topK int, threshold float64) ([]rag.ScoredChunk, int, error)
}

var (
	_ RequestStore = (*services.RequestService)(nil)
	_ ImageStore   = (*services.ImageService)(nil)
	_ AgentStore   = (*services.AgentService)(nil)
	_ ObjectStore  = (*storage.Store)(nil)
)

// Deps wires the executor's collaborators. Retriever may be nil; prompt
// optimization then runs without reference guidelines.
type Deps struct {
	Requests  RequestStore
	Images    ImageStore
	Agents    AgentStore
	Store     ObjectStore
	Generator imagegen.Generator
	Evaluator JudgeEvaluator
	Optimizer PromptOptimizer
	Retriever ContextRetriever
	Bus       *events.Bus
	Cancels   *CancelRegistry
}

// Executor runs generation requests to a terminal status.
type Executor struct {
	cfg  config.PipelineConfig
	deps Deps
}

// NewExecutor creates the pipeline executor.
func NewExecutor(cfg config.PipelineConfig, deps Deps) *Executor {
	return &Executor{cfg: cfg, deps: deps}
}

// ────────────────────────────────────────────────────────────
// ExecuteRequest — worker entry point
// ────────────────────────────────────────────────────────────

// ExecuteRequest loads the request, runs iterations until a terminal
// condition, persists the terminal state, and emits exactly one completed
// or failed event. A nil return means a terminal status was persisted; an
// error means this dispatch could not reach one and the job should be
// redelivered.
func (e *Executor) ExecuteRequest(ctx context.Context, requestID string) error {
	req, err := e.deps.Requests.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to load request %s: %w", requestID, err)
	}

	logger := slog.With("request_id", req.ID, "organization_id", req.OrganizationID)
	if req.Status.IsTerminal() {
		logger.Info("Request already terminal, nothing to do", "status", req.Status)
		return nil
	}

	r := &run{
		Executor: e,
		req:      req,
		logger:   logger,
		started:  time.Now(),
	}
	r.deadline = r.started.Add(e.cfg.RunTimeout)

	logger.Info("Pipeline run starting",
		"start_iteration", req.CurrentIteration+1,
		"max_iterations", req.MaxIterations,
		"threshold", req.Threshold,
		"mode", req.GenerationMode,
		"judges", len(req.JudgeAgentIDs))

	out, err := r.execute(ctx)
	if err != nil {
		// A cancel request mid-phase cancels the run context and surfaces
		// here as an error from whatever call was in flight.
		if e.deps.Cancels.IsCancelled(req.ID) || errors.Is(err, context.Canceled) {
			logger.Info("Pipeline run cancelled mid-phase", "error", err)
			out = &outcome{status: models.StatusCancelled, reason: models.ReasonCancelled}
		} else {
			logger.Error("Pipeline run failed", "error", err)
			out = &outcome{status: models.StatusFailed, reason: models.ReasonError, message: err.Error()}
		}
	}
	return r.finish(out)
}

// run is the per-dispatch state of one request execution.
type run struct {
	*Executor
	req    *models.GenerationRequest
	logger *slog.Logger

	started  time.Time
	deadline time.Time

	panel   []*models.Agent
	retries atomic.Int64

	// Pending usage since the last cost flush.
	pendingLLMTokens   int64
	pendingEmbedTokens int64
	pendingImages      int

	// currentPrompt is the latest full generation prompt; edit iterations
	// leave it untouched so the edit-failure fallback can regenerate with it.
	currentPrompt        string
	consecutiveEditCount int
}

func (r *run) execute(ctx context.Context) (*outcome, error) {
	if err := r.loadPanel(ctx); err != nil {
		return nil, err
	}
	r.seedFromHistory()

	start := r.req.CurrentIteration + 1
	for iteration := start; iteration <= r.req.MaxIterations; iteration++ {
		if out := r.checkBoundary(ctx); out != nil {
			return out, nil
		}
		out, err := r.runIteration(ctx, iteration, iteration == start)
		if err != nil {
			return nil, err
		}
		if out != nil {
			return out, nil
		}
	}

	// The budget was already exhausted on entry: a prior run committed the
	// final iteration but crashed before finalizing.
	if best := r.req.BestIteration(); best != nil {
		return &outcome{
			status:       models.StatusCompleted,
			reason:       models.ReasonMaxRetriesReached,
			finalImageID: best.SelectedImageID,
		}, nil
	}
	return nil, fmt.Errorf("no iteration budget remains and no iterations are committed")
}

// loadPanel resolves the judge agents, dropping any that cannot judge.
func (r *run) loadPanel(ctx context.Context) error {
	agents, err := r.deps.Agents.GetMany(ctx, r.req.JudgeAgentIDs)
	if err != nil {
		return fmt.Errorf("failed to load judge panel: %w", err)
	}
	panel := make([]*models.Agent, 0, len(agents))
	for _, agent := range agents {
		if !agent.CanJudge {
			r.logger.Warn("Dropping agent from panel", "agent_id", agent.ID, "agent_name", agent.Name)
			continue
		}
		panel = append(panel, agent)
	}
	if len(panel) == 0 {
		return fmt.Errorf("no usable judges: all %d panel agents have judging disabled", len(agents))
	}
	r.panel = panel
	return nil
}

// seedFromHistory rebuilds loop state from committed iterations so
// continuations and crash re-dispatches resume cleanly.
func (r *run) seedFromHistory() {
	for i := len(r.req.Iterations) - 1; i >= 0; i-- {
		if it := &r.req.Iterations[i]; it.Mode == models.IterationRegeneration {
			r.currentPrompt = it.OptimizedPrompt
			break
		}
	}
	if last := lastSnapshot(r.req); last != nil {
		r.consecutiveEditCount = last.ConsecutiveEditCount
	}
}

// checkBoundary observes the cancellation flag and the wall-clock budget.
// Returns the terminal outcome to persist, or nil to keep going.
func (r *run) checkBoundary(ctx context.Context) *outcome {
	if r.deps.Cancels.IsCancelled(r.req.ID) || errors.Is(ctx.Err(), context.Canceled) {
		return &outcome{status: models.StatusCancelled, reason: models.ReasonCancelled}
	}
	if time.Now().After(r.deadline) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return r.timeout()
	}
	return nil
}

// timeout completes with the best committed image when one exists,
// otherwise fails the request.
func (r *run) timeout() *outcome {
	message := fmt.Sprintf("run exceeded its %s budget", r.cfg.RunTimeout)
	if best := r.req.BestIteration(); best != nil {
		return &outcome{
			status:       models.StatusCompleted,
			reason:       models.ReasonMaxRetriesReached,
			finalImageID: best.SelectedImageID,
			message:      message,
		}
	}
	return &outcome{
		status:  models.StatusFailed,
		reason:  models.ReasonError,
		message: message + " before any iteration completed",
	}
}

// ────────────────────────────────────────────────────────────
// One iteration
// ────────────────────────────────────────────────────────────

// iterationPlan is what the OPTIMIZING phase produced: either a full
// generation prompt or an edit instruction with its source image.
type iterationPlan struct {
	mode         models.IterationMode
	prompt       string
	instruction  string
	source       *models.GeneratedImage
	sourceBase64 string
}

// promptOfRecord is the text sent to the image backend, stored on the
// snapshot and on every image of the iteration.
func (p *iterationPlan) promptOfRecord() string {
	if p.mode == models.IterationEdit {
		return p.instruction
	}
	return p.prompt
}

func (p *iterationPlan) sourceID() string {
	if p.source != nil {
		return p.source.ID
	}
	return ""
}

func (r *run) runIteration(ctx context.Context, iteration int, firstOfRun bool) (*outcome, error) {
	logger := r.logger.With("iteration", iteration)
	logger.Info("Iteration starting")

	if err := r.setStatus(ctx, models.StatusOptimizing, iteration); err != nil {
		return nil, err
	}
	plan, err := r.planIteration(ctx, iteration, firstOfRun, logger)
	if err != nil {
		return nil, err
	}

	if out := r.checkBoundary(ctx); out != nil {
		return out, nil
	}
	if err := r.setStatus(ctx, models.StatusGenerating, iteration); err != nil {
		return nil, err
	}
	batch, plan, err := r.produceImages(ctx, plan, logger)
	if err != nil {
		return nil, err
	}

	if out := r.checkBoundary(ctx); out != nil {
		return out, nil
	}
	if err := r.setStatus(ctx, models.StatusEvaluating, iteration); err != nil {
		return nil, err
	}
	evaluated, err := r.uploadAndEvaluate(ctx, iteration, plan, batch)
	if err != nil {
		return nil, err
	}

	return r.commitIteration(ctx, iteration, plan, evaluated, logger)
}

// setStatus persists the phase change and mirrors it on the event bus.
func (r *run) setStatus(ctx context.Context, status models.RequestStatus, iteration int) error {
	if err := r.deps.Requests.UpdateStatus(ctx, r.req.ID, status); err != nil {
		return fmt.Errorf("failed to update status to %s: %w", status, err)
	}
	r.req.Status = status
	r.deps.Bus.Emit(r.req.ID, events.EventTypeStatusChange, events.StatusChangePayload{
		Status:    status,
		Iteration: iteration,
	})
	return nil
}

// ────────────────────────────────────────────────────────────
// OPTIMIZING phase
// ────────────────────────────────────────────────────────────

// planIteration decides the generation path and produces its inputs. A
// failed edit plan falls back to regeneration with the current prompt and
// resets the consecutive edit counter.
func (r *run) planIteration(ctx context.Context, iteration int, firstOfRun bool, logger *slog.Logger) (*iterationPlan, error) {
	mode := chooseMode(r.req, iteration, logger)

	if mode == models.IterationEdit {
		plan, err := r.planEdit(ctx)
		if err == nil {
			return plan, nil
		}
		logger.Warn("Edit planning failed, falling back to regeneration", "error", err)
		r.consecutiveEditCount = 0
		if r.currentPrompt != "" {
			return &iterationPlan{mode: models.IterationRegeneration, prompt: r.currentPrompt}, nil
		}
	}

	prompt, err := r.buildPrompt(ctx, firstOfRun)
	if err != nil {
		return nil, err
	}
	return &iterationPlan{mode: models.IterationRegeneration, prompt: prompt}, nil
}

// buildPrompt asks the optimizer for the next generation prompt. An
// explicit initial prompt short-circuits the optimizer on the first
// iteration of a run.
func (r *run) buildPrompt(ctx context.Context, firstOfRun bool) (string, error) {
	if firstOfRun && r.req.InitialPrompt != "" {
		r.logger.Info("Using the provided initial prompt verbatim")
		return r.req.InitialPrompt, nil
	}

	prompt, usage, err := r.deps.Optimizer.OptimizePrompt(ctx, optimizer.OptimizeInput{
		Brief:              r.req.Brief,
		CurrentPrompt:      r.currentPrompt,
		Feedback:           judgeFeedback(lastSnapshot(r.req)),
		PreviousPrompts:    previousPrompts(r.req),
		NegativePrompts:    negativeLines(r.req.NegativePrompts),
		RAGContext:         r.retrieveGuidelines(ctx),
		HasReferenceImages: len(r.req.ReferenceImageURLs) > 0,
	})
	if err != nil {
		return "", err
	}
	r.pendingLLMTokens += int64(usage.TotalTokens)
	return prompt, nil
}

// planEdit selects the prior iteration's winner as the edit source and,
// in parallel, fetches its bytes and builds the edit instruction.
func (r *run) planEdit(ctx context.Context) (*iterationPlan, error) {
	prior := lastSnapshot(r.req)
	if prior == nil || prior.SelectedImageID == "" {
		return nil, fmt.Errorf("no prior winner to edit")
	}
	source, err := r.deps.Images.Get(ctx, prior.SelectedImageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edit source image: %w", err)
	}

	var (
		sourceBase64 string
		instruction  string
		usage        llm.TokenUsage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := r.deps.Store.Get(gctx, source.StorageKey)
		if err != nil {
			return fmt.Errorf("failed to fetch edit source bytes: %w", err)
		}
		sourceBase64 = base64.StdEncoding.EncodeToString(data)
		return nil
	})
	g.Go(func() error {
		var err error
		instruction, usage, err = r.deps.Optimizer.BuildEditInstruction(gctx, optimizer.EditInput{
			Brief:      r.req.Brief,
			TopIssues:  topIssues(prior.Evaluations),
			WhatWorked: whatWorked(prior.Evaluations),
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.pendingLLMTokens += int64(usage.TotalTokens)

	return &iterationPlan{
		mode:         models.IterationEdit,
		instruction:  instruction,
		source:       source,
		sourceBase64: sourceBase64,
	}, nil
}

// retrieveGuidelines pulls reference-document context for the optimizer
// across the whole panel, deduplicating chunks shared between judges.
// Retrieval failures degrade to an empty context.
func (r *run) retrieveGuidelines(ctx context.Context) string {
	if r.deps.Retriever == nil {
		return ""
	}
	seen := make(map[string]struct{})
	var parts []string
	for _, agent := range r.panel {
		cfg := agent.RAGConfig
		chunks, tokens, err := r.deps.Retriever.Search(ctx, agent.ID, r.req.Brief, cfg.TopK, cfg.SimilarityThreshold)
		if err != nil {
			r.logger.Warn("Guideline retrieval failed, continuing without",
				"agent_id", agent.ID, "error", err)
			continue
		}
		r.pendingEmbedTokens += int64(tokens)
		for _, scored := range chunks {
			if _, ok := seen[scored.Chunk.ID]; ok {
				continue
			}
			seen[scored.Chunk.ID] = struct{}{}
			parts = append(parts, scored.Chunk.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ────────────────────────────────────────────────────────────
// GENERATING phase
// ────────────────────────────────────────────────────────────

// produceImages calls the image backend with retries. A failed edit falls
// back to regeneration with the current prompt; the returned plan reflects
// the path that actually produced the batch.
func (r *run) produceImages(ctx context.Context, plan *iterationPlan, logger *slog.Logger) ([]imagegen.Image, *iterationPlan, error) {
	count := r.req.ImageParams.ImagesPerGeneration
	if count < 1 {
		count = 1
	}

	if plan.mode == models.IterationEdit {
		var batch []imagegen.Image
		err := r.withRetry(ctx, "image edit", func() error {
			var callErr error
			batch, callErr = r.deps.Generator.Edit(ctx, plan.sourceBase64, plan.instruction, count, imagegen.Options{
				AspectRatio: r.req.ImageParams.AspectRatio,
			})
			return callErr
		})
		if err == nil {
			r.pendingImages += len(batch)
			return batch, plan, nil
		}

		logger.Warn("Image edit failed after retries, falling back to regeneration", "error", err)
		r.consecutiveEditCount = 0
		fallback := &iterationPlan{mode: models.IterationRegeneration, prompt: r.currentPrompt}
		if fallback.prompt == "" {
			prompt, perr := r.buildPrompt(ctx, false)
			if perr != nil {
				return nil, nil, perr
			}
			fallback.prompt = prompt
		}
		plan = fallback
	}

	var batch []imagegen.Image
	err := r.withRetry(ctx, "image generation", func() error {
		var callErr error
		batch, callErr = r.deps.Generator.Generate(ctx, plan.prompt, count, imagegen.Options{
			AspectRatio:        r.req.ImageParams.AspectRatio,
			Quality:            r.req.ImageParams.Quality,
			ReferenceImageURLs: r.req.ReferenceImageURLs,
		})
		return callErr
	})
	if err != nil {
		return nil, nil, err
	}
	if len(batch) == 0 {
		return nil, nil, fmt.Errorf("image backend returned no images")
	}
	r.pendingImages += len(batch)
	return batch, plan, nil
}

// ────────────────────────────────────────────────────────────
// EVALUATING phase
// ────────────────────────────────────────────────────────────

// evaluatedImage pairs a stored image with its judge verdicts.
type evaluatedImage struct {
	image   *models.GeneratedImage
	records []models.EvaluationRecord
	usage   judge.Usage
	err     error
}

// uploadAndEvaluate fans out per image: upload to the object store, then
// run the full panel. Fan-in is wait-all-settled: every goroutine finishes
// before the first error propagates, so no in-flight work leaks.
func (r *run) uploadAndEvaluate(ctx context.Context, iteration int, plan *iterationPlan, batch []imagegen.Image) ([]evaluatedImage, error) {
	promptUsed := plan.promptOfRecord()
	ictx := r.iterationContext(iteration)

	results := make([]evaluatedImage, len(batch))
	var wg sync.WaitGroup
	for i, img := range batch {
		wg.Add(1)
		go func(idx int, img imagegen.Image) {
			defer wg.Done()
			results[idx] = r.processImage(ctx, iteration, promptUsed, img, ictx)
		}(i, img)
	}
	wg.Wait()

	evaluated := make([]evaluatedImage, 0, len(results))
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
		r.pendingLLMTokens += int64(res.usage.LLMTokens)
		r.pendingEmbedTokens += int64(res.usage.EmbeddingTokens)
		evaluated = append(evaluated, res)
	}
	return evaluated, nil
}

// processImage uploads one image and collects the panel's evaluations.
func (r *run) processImage(ctx context.Context, iteration int, promptUsed string, img imagegen.Image, ictx *judge.IterationContext) evaluatedImage {
	id := uuid.New().String()
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	key := storage.ImageKey(r.req.OrganizationID, r.req.ID, id, mimeType)

	var publicURL string
	err := r.withRetry(ctx, "image upload", func() error {
		var putErr error
		publicURL, putErr = r.deps.Store.Put(ctx, key, img.Data, mimeType)
		return putErr
	})
	if err != nil {
		return evaluatedImage{err: err}
	}

	record := &models.GeneratedImage{
		ID:              id,
		RequestID:       r.req.ID,
		IterationNumber: iteration,
		StorageKey:      key,
		PublicURL:       publicURL,
		PromptUsed:      promptUsed,
		MimeType:        mimeType,
		FileSizeBytes:   int64(len(img.Data)),
		CreatedAt:       time.Now().UTC(),
	}

	records, usage := r.deps.Evaluator.EvaluateWithAllJudges(ctx, r.panel, judge.ImageInput{
		ID:         id,
		Data:       img.Data,
		MIMEType:   mimeType,
		PublicURL:  publicURL,
		PromptUsed: promptUsed,
	}, r.req.Brief, ictx)

	return evaluatedImage{image: record, records: records, usage: usage}
}

// iterationContext summarizes prior scores for the judges. Nil before any
// iteration commits so no history block is rendered.
func (r *run) iterationContext(iteration int) *judge.IterationContext {
	scores := aggregateScores(r.req)
	if len(scores) == 0 {
		return nil
	}
	return &judge.IterationContext{
		IterationNumber: iteration,
		MaxIterations:   r.req.MaxIterations,
		PreviousScores:  scores,
	}
}

// ────────────────────────────────────────────────────────────
// Iteration commit
// ────────────────────────────────────────────────────────────

// commitIteration ranks the batch, persists the iteration in its fixed
// order (images, costs, snapshot+currentIteration, event, negatives), and
// runs the termination checks.
func (r *run) commitIteration(ctx context.Context, iteration int, plan *iterationPlan, evaluated []evaluatedImage, logger *slog.Logger) (*outcome, error) {
	perImage := make(map[string][]models.EvaluationRecord, len(evaluated))
	order := make([]string, 0, len(evaluated))
	for _, ev := range evaluated {
		order = append(order, ev.image.ID)
		perImage[ev.image.ID] = ev.records
	}
	ranked := judge.RankImages(perImage, order)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no image received a usable evaluation from any judge")
	}
	winner := ranked[0]

	images := make([]*models.GeneratedImage, len(evaluated))
	for i, ev := range evaluated {
		images[i] = ev.image
	}
	if err := r.deps.Images.CreateBatch(ctx, images); err != nil {
		return nil, fmt.Errorf("failed to persist images: %w", err)
	}

	if err := r.flushCosts(ctx); err != nil {
		return nil, err
	}

	if plan.mode == models.IterationEdit {
		r.consecutiveEditCount++
	} else {
		r.consecutiveEditCount = 0
		r.currentPrompt = plan.prompt
	}
	snapshot := models.IterationSnapshot{
		IterationNumber:      iteration,
		OptimizedPrompt:      plan.promptOfRecord(),
		Mode:                 plan.mode,
		EditSourceImageID:    plan.sourceID(),
		ConsecutiveEditCount: r.consecutiveEditCount,
		SelectedImageID:      winner.ImageID,
		AggregateScore:       winner.Aggregate,
		Evaluations:          winner.Evaluations,
		CreatedAt:            time.Now().UTC(),
	}

	updated, err := r.deps.Requests.AppendIteration(ctx, r.req.ID, snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to commit iteration %d: %w", iteration, err)
	}
	r.req = updated

	logger.Info("Iteration committed",
		"mode", plan.mode,
		"images", len(images),
		"aggregate_score", winner.Aggregate,
		"best_score", updated.BestScore())

	r.deps.Bus.Emit(r.req.ID, events.EventTypeIterationComplete, events.IterationCompletePayload{
		Iteration: &snapshot,
		Images:    images,
		BestScore: updated.BestScore(),
		Costs:     updated.Costs,
	})

	// Negative prompts are advisory; a failed write must not undo a
	// committed iteration.
	if negatives, changed := optimizer.AccumulateNegatives(r.req.NegativePrompts, winner.Evaluations); changed {
		if err := r.deps.Requests.SetNegativePrompts(ctx, r.req.ID, negatives); err != nil {
			logger.Warn("Failed to persist negative prompts", "error", err)
		} else {
			r.req.NegativePrompts = negatives
		}
	}

	return checkTermination(r.req, &snapshot), nil
}

// ────────────────────────────────────────────────────────────
// Terminal handling
// ────────────────────────────────────────────────────────────

// flushCosts prices the pending usage and folds it into the persisted
// accumulator.
func (r *run) flushCosts(ctx context.Context) error {
	delta := estimateCosts(r.cfg, r.pendingLLMTokens, r.pendingEmbedTokens, r.pendingImages)
	if delta == (models.Costs{}) {
		return nil
	}
	updated, err := r.deps.Requests.AddCosts(ctx, r.req.ID, delta)
	if err != nil {
		return fmt.Errorf("failed to record costs: %w", err)
	}
	r.pendingLLMTokens, r.pendingEmbedTokens, r.pendingImages = 0, 0, 0
	r.req.Costs = *updated
	return nil
}

// finish persists the terminal state and emits the single terminal event.
// Uses a fresh context: the run context may already be cancelled.
func (r *run) finish(out *outcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Spend accrued since the last commit still counts.
	if err := r.flushCosts(ctx); err != nil {
		r.logger.Warn("Failed to flush final costs", "error", err)
	}

	if err := r.deps.Requests.Finalize(ctx, r.req.ID, services.TerminalUpdate{
		Status:       out.status,
		Reason:       out.reason,
		FinalImageID: out.finalImageID,
		ErrorMessage: out.message,
	}); err != nil {
		return fmt.Errorf("failed to finalize request as %s: %w", out.status, err)
	}
	r.req.Status = out.status
	r.req.CompletionReason = out.reason
	r.req.FinalImageID = out.finalImageID
	r.req.ErrorMessage = out.message
	r.deps.Cancels.Remove(r.req.ID)

	retryCount := int(r.retries.Load())
	if out.status == models.StatusFailed {
		r.deps.Bus.Emit(r.req.ID, events.EventTypeFailed, events.FailedPayload{
			Error:      out.message,
			Costs:      r.req.Costs,
			RetryCount: retryCount,
		})
	} else {
		r.deps.Bus.Emit(r.req.ID, events.EventTypeCompleted, events.CompletedPayload{
			Request:      r.req,
			Reason:       out.reason,
			FinalImageID: out.finalImageID,
			BestScore:    r.req.BestScore(),
			Costs:        r.req.Costs,
			RetryCount:   retryCount,
		})
	}

	r.logger.Info("Pipeline run finished",
		"status", out.status,
		"reason", out.reason,
		"iterations", len(r.req.Iterations),
		"best_score", r.req.BestScore(),
		"retries", retryCount,
		"elapsed", time.Since(r.started).Round(time.Millisecond))
	return nil
}

// ────────────────────────────────────────────────────────────
// History helpers
// ────────────────────────────────────────────────────────────

// judgeFeedback converts the prior winner's evaluations into optimizer
// feedback entries.
func judgeFeedback(prior *models.IterationSnapshot) []optimizer.JudgeFeedback {
	if prior == nil {
		return nil
	}
	feedback := make([]optimizer.JudgeFeedback, 0, len(prior.Evaluations))
	for _, ev := range prior.Evaluations {
		feedback = append(feedback, optimizer.JudgeFeedback{
			AgentName:          ev.AgentName,
			Weight:             ev.Weight,
			Feedback:           ev.Feedback,
			TopIssue:           ev.TopIssue,
			WhatWorked:         ev.WhatWorked,
			PromptInstructions: ev.PromptInstructions,
		})
	}
	return feedback
}

// previousPrompts lists earlier generation prompts so the optimizer can
// avoid repeating them. Edit instructions are skipped.
func previousPrompts(req *models.GenerationRequest) []string {
	var prompts []string
	for i := range req.Iterations {
		if it := &req.Iterations[i]; it.Mode == models.IterationRegeneration && it.OptimizedPrompt != "" {
			prompts = append(prompts, it.OptimizedPrompt)
		}
	}
	return prompts
}

func topIssues(evaluations []models.EvaluationRecord) []models.TopIssue {
	var issues []models.TopIssue
	for _, ev := range evaluations {
		if ev.TopIssue != nil {
			issues = append(issues, *ev.TopIssue)
		}
	}
	return issues
}

func whatWorked(evaluations []models.EvaluationRecord) []string {
	var worked []string
	for _, ev := range evaluations {
		worked = append(worked, ev.WhatWorked...)
	}
	return worked
}

// negativeLines splits the stored newline-joined negative prompt text.
func negativeLines(value string) []string {
	var lines []string
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

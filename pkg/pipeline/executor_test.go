package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierhq/atelier/pkg/config"
	"github.com/atelierhq/atelier/pkg/events"
	"github.com/atelierhq/atelier/pkg/imagegen"
	"github.com/atelierhq/atelier/pkg/judge"
	"github.com/atelierhq/atelier/pkg/llm"
	"github.com/atelierhq/atelier/pkg/models"
	"github.com/atelierhq/atelier/pkg/optimizer"
	"github.com/atelierhq/atelier/pkg/services"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type fakeRequests struct {
	mu       sync.Mutex
	req      *models.GenerationRequest
	statuses []models.RequestStatus
	terminal *services.TerminalUpdate
}

func (f *fakeRequests) Get(ctx context.Context, id string) (*models.GenerationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.req == nil || f.req.ID != id {
		return nil, services.ErrNotFound
	}
	return f.req, nil
}

func (f *fakeRequests) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	f.req.Status = status
	return nil
}

func (f *fakeRequests) AddCosts(ctx context.Context, id string, delta models.Costs) (*models.Costs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req.Costs.Add(delta)
	costs := f.req.Costs
	return &costs, nil
}

func (f *fakeRequests) AppendIteration(ctx context.Context, id string, snapshot models.IterationSnapshot) (*models.GenerationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req.Iterations = append(f.req.Iterations, snapshot)
	f.req.CurrentIteration = snapshot.IterationNumber
	return f.req, nil
}

func (f *fakeRequests) SetNegativePrompts(ctx context.Context, id string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.req.NegativePrompts = value
	return nil
}

func (f *fakeRequests) Finalize(ctx context.Context, id string, update services.TerminalUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminal = &update
	f.req.Status = update.Status
	f.req.CompletionReason = update.Reason
	f.req.FinalImageID = update.FinalImageID
	f.req.ErrorMessage = update.ErrorMessage
	return nil
}

type fakeImages struct {
	mu     sync.Mutex
	stored map[string]*models.GeneratedImage
}

func newFakeImages() *fakeImages {
	return &fakeImages{stored: map[string]*models.GeneratedImage{}}
}

func (f *fakeImages) CreateBatch(ctx context.Context, images []*models.GeneratedImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, img := range images {
		f.stored[img.ID] = img
	}
	return nil
}

func (f *fakeImages) Get(ctx context.Context, id string) (*models.GeneratedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	img, ok := f.stored[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return img, nil
}

type fakeAgents struct {
	panel []*models.Agent
}

func (f *fakeAgents) GetMany(ctx context.Context, ids []string) ([]*models.Agent, error) {
	return f.panel, nil
}

type fakeObjects struct {
	mu   sync.Mutex
	puts int
}

func (f *fakeObjects) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	return "http://store.local/" + key, nil
}

func (f *fakeObjects) Get(ctx context.Context, key string) ([]byte, error) {
	return []byte("source-bytes"), nil
}

type fakeGenerator struct {
	mu            sync.Mutex
	generateCalls int
	editCalls     int
	editErr       error
	generatedWith []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, count int, opts imagegen.Options) ([]imagegen.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	f.generatedWith = append(f.generatedWith, prompt)
	batch := make([]imagegen.Image, count)
	for i := range batch {
		batch[i] = imagegen.Image{Data: []byte{0x89, byte(i)}, MIMEType: "image/png"}
	}
	return batch, nil
}

func (f *fakeGenerator) Edit(ctx context.Context, sourceBase64, instruction string, count int, opts imagegen.Options) ([]imagegen.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editCalls++
	if f.editErr != nil {
		return nil, f.editErr
	}
	batch := make([]imagegen.Image, count)
	for i := range batch {
		batch[i] = imagegen.Image{Data: []byte{0x42, byte(i)}, MIMEType: "image/png"}
	}
	return batch, nil
}

// fakeEvaluator hands out one score per evaluation call, in order. The
// last score repeats when calls outnumber the script. onCall, when set,
// runs before each evaluation.
type fakeEvaluator struct {
	mu     sync.Mutex
	scores []float64
	calls  int
	empty  bool
	onCall func(call int)
}

func (f *fakeEvaluator) EvaluateWithAllJudges(ctx context.Context, agents []*models.Agent, img judge.ImageInput, brief string, ictx *judge.IterationContext) ([]models.EvaluationRecord, judge.Usage) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	score := 0.0
	if len(f.scores) > 0 {
		idx := call
		if idx >= len(f.scores) {
			idx = len(f.scores) - 1
		}
		score = f.scores[idx]
	}
	hook := f.onCall
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if f.empty {
		return nil, judge.Usage{}
	}
	records := make([]models.EvaluationRecord, 0, len(agents))
	for _, agent := range agents {
		records = append(records, models.EvaluationRecord{
			AgentID:      agent.ID,
			AgentName:    agent.Name,
			ImageID:      img.ID,
			OverallScore: score,
			Weight:       agent.ScoringWeight,
			Feedback:     "fine",
		})
	}
	return records, judge.Usage{LLMTokens: 100}
}

// fakeOptimizer returns a numbered prompt per call. onOptimize, when set,
// runs before the context is checked, mirroring a cancel that lands while
// the LLM call is in flight.
type fakeOptimizer struct {
	mu         sync.Mutex
	prompts    int
	lastInput  optimizer.OptimizeInput
	onOptimize func()
	editInstr  string
	editErr    error
	editCalls  int
}

func (f *fakeOptimizer) OptimizePrompt(ctx context.Context, input optimizer.OptimizeInput) (string, llm.TokenUsage, error) {
	f.mu.Lock()
	f.prompts++
	f.lastInput = input
	n := f.prompts
	hook := f.onOptimize
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return "", llm.TokenUsage{}, fmt.Errorf("optimize call aborted: %w", err)
	}
	return fmt.Sprintf("optimized prompt %d", n), llm.TokenUsage{TotalTokens: 50}, nil
}

func (f *fakeOptimizer) BuildEditInstruction(ctx context.Context, input optimizer.EditInput) (string, llm.TokenUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.editCalls++
	if f.editErr != nil {
		return "", llm.TokenUsage{}, f.editErr
	}
	instr := f.editInstr
	if instr == "" {
		instr = "sharpen the focal subject"
	}
	return instr, llm.TokenUsage{TotalTokens: 20}, nil
}

// ────────────────────────────────────────────────────────────
// Harness
// ────────────────────────────────────────────────────────────

type harness struct {
	executor  *Executor
	requests  *fakeRequests
	images    *fakeImages
	objects   *fakeObjects
	generator *fakeGenerator
	evaluator *fakeEvaluator
	optimizer *fakeOptimizer
	bus       *events.Bus
	cancels   *CancelRegistry
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		RunTimeout:              time.Minute,
		RetryAttempts:           2,
		RetryBaseDelay:          time.Millisecond,
		LLMTokenCostPer1M:       2.50,
		EmbeddingTokenCostPer1M: 0.15,
		ImageGenerationCost:     0.04,
	}
}

func testRequest() *models.GenerationRequest {
	return &models.GenerationRequest{
		ID:             "req-1",
		OrganizationID: "org-1",
		Brief:          "a lighthouse at dusk",
		JudgeAgentIDs:  []string{"judge-1"},
		ImageParams: models.ImageParams{
			ImagesPerGeneration: 1,
			PlateauWindowSize:   3,
			PlateauThreshold:    0.02,
		},
		Threshold:      80,
		MaxIterations:  5,
		GenerationMode: models.ModeRegeneration,
		Status:         models.StatusPending,
	}
}

func newHarness(req *models.GenerationRequest) *harness {
	h := &harness{
		requests:  &fakeRequests{req: req},
		images:    newFakeImages(),
		objects:   &fakeObjects{},
		generator: &fakeGenerator{},
		evaluator: &fakeEvaluator{},
		optimizer: &fakeOptimizer{},
		bus:       events.NewBus(),
		cancels:   NewCancelRegistry(),
	}
	h.executor = NewExecutor(testPipelineConfig(), Deps{
		Requests:  h.requests,
		Images:    h.images,
		Agents:    &fakeAgents{panel: []*models.Agent{{ID: "judge-1", Name: "Art Director", ScoringWeight: 1, CanJudge: true}}},
		Store:     h.objects,
		Generator: h.generator,
		Evaluator: h.evaluator,
		Optimizer: h.optimizer,
		Bus:       h.bus,
		Cancels:   h.cancels,
	})
	return h
}

// collectEvents drains a subscription opened before the run.
func collectEvents(sub *events.Subscription) []events.Event {
	var collected []events.Event
	for evt := range sub.Events {
		collected = append(collected, evt)
	}
	return collected
}

func eventTypes(evts []events.Event) []string {
	types := make([]string, len(evts))
	for i, evt := range evts {
		types[i] = evt.Type
	}
	return types
}

// ────────────────────────────────────────────────────────────
// End-to-end runs
// ────────────────────────────────────────────────────────────

func TestExecuteRequestSucceedsOnFirstIteration(t *testing.T) {
	req := testRequest()
	h := newHarness(req)
	h.evaluator.scores = []float64{85}

	sub := h.bus.Subscribe(req.ID)
	defer sub.Cancel()

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCompleted, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonSuccess, h.requests.terminal.Reason)

	require.Len(t, req.Iterations, 1)
	snap := req.Iterations[0]
	assert.Equal(t, 1, snap.IterationNumber)
	assert.Equal(t, models.IterationRegeneration, snap.Mode)
	assert.Equal(t, 85.0, snap.AggregateScore)
	assert.Equal(t, snap.SelectedImageID, h.requests.terminal.FinalImageID)

	assert.Equal(t, []models.RequestStatus{
		models.StatusOptimizing, models.StatusGenerating, models.StatusEvaluating,
	}, h.requests.statuses)

	assert.Equal(t, []string{
		events.EventTypeStatusChange,
		events.EventTypeStatusChange,
		events.EventTypeStatusChange,
		events.EventTypeIterationComplete,
		events.EventTypeCompleted,
	}, eventTypes(collectEvents(sub)))

	// Costs were priced and flushed.
	assert.Positive(t, req.Costs.TotalEstimatedCost)
	assert.Equal(t, 1, req.Costs.ImageGenerations)
}

func TestExecuteRequestStopsAtMaxIterations(t *testing.T) {
	req := testRequest()
	req.Threshold = 101 // unreachable
	req.MaxIterations = 2
	h := newHarness(req)
	h.evaluator.scores = []float64{70, 75}

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCompleted, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonMaxRetriesReached, h.requests.terminal.Reason)
	require.Len(t, req.Iterations, 2)
	// The budget ends on the better second iteration.
	assert.Equal(t, req.Iterations[1].SelectedImageID, h.requests.terminal.FinalImageID)
}

func TestExecuteRequestDetectsPlateau(t *testing.T) {
	req := testRequest()
	req.Threshold = 101
	h := newHarness(req)
	h.evaluator.scores = []float64{72, 72.4, 72.1}

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCompleted, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonDiminishingReturns, h.requests.terminal.Reason)
	require.Len(t, req.Iterations, 3)
	// Best of the window is iteration 2 at 72.4.
	assert.Equal(t, req.Iterations[1].SelectedImageID, h.requests.terminal.FinalImageID)
}

func TestExecuteRequestCancelledBeforeFirstIteration(t *testing.T) {
	req := testRequest()
	h := newHarness(req)
	h.cancels.Add(req.ID)

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCancelled, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonCancelled, h.requests.terminal.Reason)
	assert.Empty(t, req.Iterations)
	// The flag is cleared once the terminal state is persisted.
	assert.False(t, h.cancels.IsCancelled(req.ID))
}

func TestExecuteRequestCancelledAtIterationBoundary(t *testing.T) {
	req := testRequest()
	req.Threshold = 101
	h := newHarness(req)
	h.evaluator.scores = []float64{60}
	h.evaluator.onCall = func(call int) {
		if call == 0 {
			h.cancels.Add(req.ID)
		}
	}

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	// The in-flight iteration still commits; the next boundary observes the
	// flag.
	require.Len(t, req.Iterations, 1)
	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCancelled, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonCancelled, h.requests.terminal.Reason)
}

func TestExecuteRequestCancelledMidOptimizeCall(t *testing.T) {
	req := testRequest()
	h := newHarness(req)

	// Mirror the API cancel path: the flag is set, then the run context is
	// cancelled while the optimizer call is in flight.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.optimizer.onOptimize = func() {
		h.cancels.Add(req.ID)
		cancel()
	}

	sub := h.bus.Subscribe(req.ID)
	defer sub.Cancel()

	require.NoError(t, h.executor.ExecuteRequest(ctx, req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCancelled, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonCancelled, h.requests.terminal.Reason)
	assert.Empty(t, h.requests.terminal.ErrorMessage)
	assert.Empty(t, req.Iterations)
	assert.False(t, h.cancels.IsCancelled(req.ID))

	// One terminal event, and it is not a failure.
	evts := collectEvents(sub)
	require.NotEmpty(t, evts)
	assert.Equal(t, events.EventTypeCompleted, evts[len(evts)-1].Type)
}

func TestExecuteRequestEditFallbackResetsStreak(t *testing.T) {
	req := testRequest()
	req.GenerationMode = models.ModeEdit
	req.InitialPrompt = "hand-written prompt"
	req.Threshold = 90
	req.MaxIterations = 3
	h := newHarness(req)
	h.evaluator.scores = []float64{60, 95}
	h.generator.editErr = errors.New("backend rejected the edit")

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCompleted, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonSuccess, h.requests.terminal.Reason)

	require.Len(t, req.Iterations, 2)
	first, second := req.Iterations[0], req.Iterations[1]
	assert.Equal(t, models.IterationRegeneration, first.Mode)
	assert.Equal(t, "hand-written prompt", first.OptimizedPrompt)

	// Edit was attempted (with retries), failed, and fell back to
	// regeneration with the current prompt; the edit streak stays at zero.
	assert.Equal(t, 2, h.generator.editCalls)
	assert.Equal(t, models.IterationRegeneration, second.Mode)
	assert.Equal(t, "hand-written prompt", second.OptimizedPrompt)
	assert.Equal(t, 0, second.ConsecutiveEditCount)
	assert.Empty(t, second.EditSourceImageID)
}

func TestExecuteRequestEditIterationRecordsSource(t *testing.T) {
	req := testRequest()
	req.GenerationMode = models.ModeEdit
	req.InitialPrompt = "hand-written prompt"
	req.Threshold = 90
	req.MaxIterations = 3
	h := newHarness(req)
	h.evaluator.scores = []float64{60, 95}

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.Len(t, req.Iterations, 2)
	second := req.Iterations[1]
	assert.Equal(t, models.IterationEdit, second.Mode)
	assert.Equal(t, req.Iterations[0].SelectedImageID, second.EditSourceImageID)
	assert.Equal(t, 1, second.ConsecutiveEditCount)
	assert.Equal(t, "sharpen the focal subject", second.OptimizedPrompt)
	assert.Equal(t, 1, h.generator.editCalls)
}

func TestExecuteRequestFailsWhenNoEvaluationsUsable(t *testing.T) {
	req := testRequest()
	h := newHarness(req)
	h.evaluator.empty = true

	sub := h.bus.Subscribe(req.ID)
	defer sub.Cancel()

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusFailed, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonError, h.requests.terminal.Reason)
	assert.Contains(t, h.requests.terminal.ErrorMessage, "no image received a usable evaluation")

	evts := collectEvents(sub)
	require.NotEmpty(t, evts)
	assert.Equal(t, events.EventTypeFailed, evts[len(evts)-1].Type)
}

func TestExecuteRequestAlreadyTerminalIsNoop(t *testing.T) {
	req := testRequest()
	req.Status = models.StatusCompleted
	h := newHarness(req)

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	assert.Nil(t, h.requests.terminal)
	assert.Zero(t, h.generator.generateCalls)
}

func TestExecuteRequestResumesFromCommittedIteration(t *testing.T) {
	req := testRequest()
	req.Threshold = 101
	req.MaxIterations = 2
	req.CurrentIteration = 1
	req.Status = models.StatusEvaluating
	req.Iterations = []models.IterationSnapshot{{
		IterationNumber: 1,
		OptimizedPrompt: "committed prompt",
		Mode:            models.IterationRegeneration,
		SelectedImageID: "img-prev",
		AggregateScore:  66,
		Evaluations: []models.EvaluationRecord{{
			AgentID: "judge-1", AgentName: "Art Director", ImageID: "img-prev",
			OverallScore: 66, Weight: 1, Feedback: "needs contrast",
		}},
	}}
	h := newHarness(req)
	h.evaluator.scores = []float64{70}

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	// Only iteration 2 ran; the optimizer saw the committed history.
	require.Len(t, req.Iterations, 2)
	assert.Equal(t, 2, req.Iterations[1].IterationNumber)
	assert.Equal(t, 1, h.optimizer.prompts)
	assert.Equal(t, "committed prompt", h.optimizer.lastInput.CurrentPrompt)
	assert.Equal(t, []string{"committed prompt"}, h.optimizer.lastInput.PreviousPrompts)
	require.Len(t, h.optimizer.lastInput.Feedback, 1)
	assert.Equal(t, "needs contrast", h.optimizer.lastInput.Feedback[0].Feedback)
}

func TestExecuteRequestTimeoutWithCommittedIterationCompletes(t *testing.T) {
	req := testRequest()
	req.CurrentIteration = 1
	req.Status = models.StatusGenerating
	req.Iterations = []models.IterationSnapshot{{
		IterationNumber: 1, SelectedImageID: "img-prev", AggregateScore: 66,
	}}
	h := newHarness(req)
	cfg := testPipelineConfig()
	cfg.RunTimeout = -time.Second // deadline already passed
	h.executor = NewExecutor(cfg, h.executor.deps)

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCompleted, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonMaxRetriesReached, h.requests.terminal.Reason)
	assert.Equal(t, "img-prev", h.requests.terminal.FinalImageID)
	assert.Contains(t, h.requests.terminal.ErrorMessage, "budget")
}

func TestExecuteRequestTimeoutWithoutIterationsFails(t *testing.T) {
	req := testRequest()
	h := newHarness(req)
	cfg := testPipelineConfig()
	cfg.RunTimeout = -time.Second
	h.executor = NewExecutor(cfg, h.executor.deps)

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusFailed, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonError, h.requests.terminal.Reason)
}

func TestExecuteRequestBudgetExhaustedOnEntry(t *testing.T) {
	req := testRequest()
	req.MaxIterations = 1
	req.CurrentIteration = 1
	req.Status = models.StatusEvaluating
	req.Iterations = []models.IterationSnapshot{{
		IterationNumber: 1, SelectedImageID: "img-prev", AggregateScore: 66,
	}}
	h := newHarness(req)

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCompleted, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonMaxRetriesReached, h.requests.terminal.Reason)
	assert.Equal(t, "img-prev", h.requests.terminal.FinalImageID)
	assert.Zero(t, h.generator.generateCalls)
}

func TestExecuteRequestSingleIterationZeroThreshold(t *testing.T) {
	req := testRequest()
	req.MaxIterations = 1
	req.Threshold = 0
	h := newHarness(req)
	h.evaluator.scores = []float64{5}

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	// Any score clears a zero threshold.
	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusCompleted, h.requests.terminal.Status)
	assert.Equal(t, models.ReasonSuccess, h.requests.terminal.Reason)
}

func TestExecuteRequestFansOutAcrossBatch(t *testing.T) {
	req := testRequest()
	req.ImageParams.ImagesPerGeneration = 3
	h := newHarness(req)
	h.evaluator.scores = []float64{70, 90, 80}

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	assert.Equal(t, 3, h.objects.puts)
	require.Len(t, req.Iterations, 1)
	// The winner carries the batch's top score.
	assert.Equal(t, 90.0, req.Iterations[0].AggregateScore)
	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.ReasonSuccess, h.requests.terminal.Reason)
}

func TestExecuteRequestDropsNonJudgingAgents(t *testing.T) {
	req := testRequest()
	h := newHarness(req)
	h.executor.deps.Agents = &fakeAgents{panel: []*models.Agent{
		{ID: "judge-1", Name: "Muted", CanJudge: false},
	}}

	require.NoError(t, h.executor.ExecuteRequest(context.Background(), req.ID))

	require.NotNil(t, h.requests.terminal)
	assert.Equal(t, models.StatusFailed, h.requests.terminal.Status)
	assert.Contains(t, h.requests.terminal.ErrorMessage, "no usable judges")
}

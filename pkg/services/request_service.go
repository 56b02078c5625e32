package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/pkg/models"
)

const requestColumns = `id, organization_id, created_by, brief, initial_prompt, generation_mode,
	status, completion_reason, error_message, judge_agent_ids, threshold, max_iterations,
	current_iteration, image_params, reference_image_urls, negative_prompts, iterations,
	costs, final_image_id, worker_id, dispatch_attempts, enqueued_at, claimed_at,
	last_heartbeat_at, created_at, completed_at, deleted_at`

// RequestService manages generation request lifecycle and queue lease state.
// The request row doubles as the queue entry, so claim/heartbeat/release
// queries live here alongside the CRUD operations.
type RequestService struct {
	pool *pgxpool.Pool
}

// NewRequestService creates a new RequestService.
func NewRequestService(pool *pgxpool.Pool) *RequestService {
	if pool == nil {
		panic("NewRequestService: pool must not be nil")
	}
	return &RequestService{pool: pool}
}

// rowScanner matches both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.GenerationRequest, error) {
	var r models.GenerationRequest
	var finalImageID, workerID *string
	err := row.Scan(
		&r.ID, &r.OrganizationID, &r.CreatedBy, &r.Brief, &r.InitialPrompt, &r.GenerationMode,
		&r.Status, &r.CompletionReason, &r.ErrorMessage, &r.JudgeAgentIDs, &r.Threshold,
		&r.MaxIterations, &r.CurrentIteration, &r.ImageParams, &r.ReferenceImageURLs,
		&r.NegativePrompts, &r.Iterations, &r.Costs, &finalImageID, &workerID,
		&r.DispatchAttempts, &r.EnqueuedAt, &r.ClaimedAt, &r.LastHeartbeatAt,
		&r.CreatedAt, &r.CompletedAt, &r.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if finalImageID != nil {
		r.FinalImageID = *finalImageID
	}
	if workerID != nil {
		r.WorkerID = *workerID
	}
	return &r, nil
}

// Create validates the input and inserts a new PENDING request.
func (s *RequestService) Create(ctx context.Context, input models.CreateRequestInput) (*models.GenerationRequest, error) {
	if input.OrganizationID == "" {
		return nil, NewValidationError("organizationId", "required")
	}
	if input.Brief == "" {
		return nil, NewValidationError("brief", "required")
	}
	if len(input.JudgeAgentIDs) == 0 {
		return nil, NewValidationError("judgeAgentIds", "at least one judge agent is required")
	}
	if input.Threshold < 0 || input.Threshold > 100 {
		return nil, NewValidationError("threshold", "must be between 0 and 100")
	}
	if input.MaxIterations < 1 || input.MaxIterations > models.MaxIterationsLimit {
		return nil, NewValidationError("maxIterations", fmt.Sprintf("must be between 1 and %d", models.MaxIterationsLimit))
	}
	if len(input.ReferenceImageURLs) > models.MaxReferenceImages {
		return nil, NewValidationError("referenceImageUrls", fmt.Sprintf("at most %d reference images allowed", models.MaxReferenceImages))
	}

	params := input.ImageParams
	if params.ImagesPerGeneration == 0 {
		params.ImagesPerGeneration = 4
	}
	if params.ImagesPerGeneration < 1 || params.ImagesPerGeneration > models.MaxImagesPerGeneration {
		return nil, NewValidationError("imageParams.imagesPerGeneration", fmt.Sprintf("must be between 1 and %d", models.MaxImagesPerGeneration))
	}
	if params.PlateauWindowSize <= 0 {
		params.PlateauWindowSize = models.DefaultPlateauWindowSize
	}
	if params.PlateauThreshold <= 0 {
		params.PlateauThreshold = models.DefaultPlateauThreshold
	}

	mode := input.GenerationMode
	if mode == "" {
		mode = models.ModeMixed
	}
	switch mode {
	case models.ModeRegeneration, models.ModeEdit, models.ModeMixed:
	default:
		return nil, NewValidationError("generationMode", "must be REGENERATION, EDIT, or MIXED")
	}

	refs := input.ReferenceImageURLs
	if refs == nil {
		refs = []string{}
	}

	id := uuid.New().String()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO generation_requests (
			id, organization_id, created_by, brief, initial_prompt, generation_mode,
			status, judge_agent_ids, threshold, max_iterations, image_params,
			reference_image_urls, enqueued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		RETURNING `+requestColumns,
		id, input.OrganizationID, input.CreatedBy, input.Brief, input.InitialPrompt, mode,
		models.StatusPending, input.JudgeAgentIDs, input.Threshold, input.MaxIterations,
		params, refs,
	)
	req, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return req, nil
}

// Get retrieves a request by ID.
func (s *RequestService) Get(ctx context.Context, id string) (*models.GenerationRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM generation_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

// RequestListResponse carries one page of requests plus the total count.
type RequestListResponse struct {
	Requests   []*models.GenerationRequest `json:"requests"`
	TotalCount int                         `json:"totalCount"`
	Limit      int                         `json:"limit"`
	Offset     int                         `json:"offset"`
}

// List lists requests with filtering and pagination, newest first.
func (s *RequestService) List(ctx context.Context, filters models.RequestFilters) (*RequestListResponse, error) {
	where := ""
	args := []any{}
	addCond := func(cond string, val any) {
		args = append(args, val)
		cond = fmt.Sprintf(cond, len(args))
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}

	if filters.OrganizationID != "" {
		addCond("organization_id = $%d", filters.OrganizationID)
	}
	if filters.Status != "" {
		addCond("status = $%d", filters.Status)
	}
	if !filters.IncludeDeleted {
		if where == "" {
			where = " WHERE deleted_at IS NULL"
		} else {
			where += " AND deleted_at IS NULL"
		}
	}

	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM generation_requests`+where, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 20 // Default
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM generation_requests%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		requestColumns, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := []*models.GenerationRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	return &RequestListResponse{
		Requests:   requests,
		TotalCount: totalCount,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

// UpdateStatus updates a request's status. Terminal statuses also stamp
// completed_at; callers with a completion reason should use Finalize instead.
func (s *RequestService) UpdateStatus(ctx context.Context, id string, status models.RequestStatus) error {
	// Use background context with timeout for critical write
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `UPDATE generation_requests SET status = $2, updated_at = now() WHERE id = $1`
	if status.IsTerminal() {
		query = `UPDATE generation_requests SET status = $2, completed_at = now(), updated_at = now() WHERE id = $1`
	}

	tag, err := s.pool.Exec(writeCtx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCosts merges a cost delta into the request's accumulator. Negative
// components of the delta are ignored, so the stored value never decreases.
func (s *RequestService) AddCosts(ctx context.Context, id string, delta models.Costs) (*models.Costs, error) {
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(writeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(writeCtx)

	var costs models.Costs
	err = tx.QueryRow(writeCtx, `SELECT costs FROM generation_requests WHERE id = $1 FOR UPDATE`, id).Scan(&costs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load costs: %w", err)
	}

	costs.Add(delta)

	if _, err := tx.Exec(writeCtx, `UPDATE generation_requests SET costs = $2, updated_at = now() WHERE id = $1`, id, costs); err != nil {
		return nil, fmt.Errorf("failed to update costs: %w", err)
	}
	if err := tx.Commit(writeCtx); err != nil {
		return nil, fmt.Errorf("failed to commit costs: %w", err)
	}
	return &costs, nil
}

// AppendIteration appends a snapshot and advances current_iteration in one
// transaction, keeping `current_iteration == len(iterations)` at rest. The
// snapshot's iteration number must be exactly one past the stored sequence.
func (s *RequestService) AppendIteration(ctx context.Context, id string, snapshot models.IterationSnapshot) (*models.GenerationRequest, error) {
	// Use background context with timeout for critical write
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(writeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(writeCtx)

	var iterations []models.IterationSnapshot
	err = tx.QueryRow(writeCtx, `SELECT iterations FROM generation_requests WHERE id = $1 FOR UPDATE`, id).Scan(&iterations)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load iterations: %w", err)
	}

	if snapshot.IterationNumber != len(iterations)+1 {
		return nil, fmt.Errorf("%w: iteration %d appended over %d stored", ErrConcurrentModification, snapshot.IterationNumber, len(iterations))
	}

	iterations = append(iterations, snapshot)
	if _, err := tx.Exec(writeCtx, `
		UPDATE generation_requests
		SET iterations = $2, current_iteration = $3, updated_at = now()
		WHERE id = $1`,
		id, iterations, len(iterations),
	); err != nil {
		return nil, fmt.Errorf("failed to append iteration: %w", err)
	}

	row := tx.QueryRow(writeCtx, `SELECT `+requestColumns+` FROM generation_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to refetch request: %w", err)
	}
	if err := tx.Commit(writeCtx); err != nil {
		return nil, fmt.Errorf("failed to commit iteration: %w", err)
	}
	return req, nil
}

// SetNegativePrompts overwrites the accumulated negative prompt text.
// Callers compare against the previous value and skip unchanged writes.
func (s *RequestService) SetNegativePrompts(ctx context.Context, id string, value string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE generation_requests SET negative_prompts = $2, updated_at = now() WHERE id = $1`, id, value)
	if err != nil {
		return fmt.Errorf("failed to update negative prompts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TerminalUpdate carries the final state written when a run ends.
type TerminalUpdate struct {
	Status       models.RequestStatus
	Reason       models.CompletionReason
	FinalImageID string
	ErrorMessage string
}

// Finalize writes the terminal status, completion reason, final image, and
// error message in one update.
func (s *RequestService) Finalize(ctx context.Context, id string, update TerminalUpdate) error {
	if !update.Status.IsTerminal() {
		return fmt.Errorf("finalize with non-terminal status %q", update.Status)
	}

	// Use background context with timeout; the run context may already be
	// cancelled when a terminal write happens.
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(writeCtx, `
		UPDATE generation_requests
		SET status = $2, completion_reason = $3, final_image_id = NULLIF($4, ''),
		    error_message = $5, completed_at = now(), updated_at = now()
		WHERE id = $1`,
		id, update.Status, update.Reason, update.FinalImageID, update.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPending flips a PENDING, unclaimed request directly to CANCELLED.
// Returns false when the request was already claimed or past PENDING; the
// caller then signals the running pipeline instead.
func (s *RequestService) CancelPending(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE generation_requests
		SET status = $2, completion_reason = $3, completed_at = now(), updated_at = now()
		WHERE id = $1 AND status = $4 AND worker_id IS NULL`,
		id, models.StatusCancelled, models.ReasonCancelled, models.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to cancel request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Continue resets a terminal request to PENDING with an extended iteration
// budget and optionally swapped judges, initial prompt, or generation mode.
func (s *RequestService) Continue(ctx context.Context, id string, input models.ContinueRequestInput) (*models.GenerationRequest, error) {
	if input.AdditionalIterations < 1 {
		return nil, NewValidationError("additionalIterations", "must be at least 1")
	}
	if input.GenerationMode != "" {
		switch input.GenerationMode {
		case models.ModeRegeneration, models.ModeEdit, models.ModeMixed:
		default:
			return nil, NewValidationError("generationMode", "must be REGENERATION, EDIT, or MIXED")
		}
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(writeCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(writeCtx)

	row := tx.QueryRow(writeCtx, `SELECT `+requestColumns+` FROM generation_requests WHERE id = $1 FOR UPDATE`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load request: %w", err)
	}
	if !req.Status.IsTerminal() {
		return nil, ErrNotTerminal
	}

	maxIterations := req.CurrentIteration + input.AdditionalIterations
	if maxIterations > models.MaxIterationsLimit {
		return nil, NewValidationError("additionalIterations", fmt.Sprintf("total budget exceeds %d iterations", models.MaxIterationsLimit))
	}

	judgeIDs := req.JudgeAgentIDs
	if len(input.JudgeAgentIDs) > 0 {
		judgeIDs = input.JudgeAgentIDs
	}
	initialPrompt := req.InitialPrompt
	if input.InitialPrompt != "" {
		initialPrompt = input.InitialPrompt
	}
	mode := req.GenerationMode
	if input.GenerationMode != "" {
		mode = input.GenerationMode
	}

	if _, err := tx.Exec(writeCtx, `
		UPDATE generation_requests
		SET status = $2, max_iterations = $3, judge_agent_ids = $4, initial_prompt = $5,
		    generation_mode = $6, completion_reason = '', final_image_id = NULL,
		    error_message = '', completed_at = NULL, enqueued_at = now(),
		    worker_id = NULL, claimed_at = NULL, last_heartbeat_at = NULL,
		    dispatch_attempts = 0, updated_at = now()
		WHERE id = $1`,
		id, models.StatusPending, maxIterations, judgeIDs, initialPrompt, mode,
	); err != nil {
		return nil, fmt.Errorf("failed to continue request: %w", err)
	}

	row = tx.QueryRow(writeCtx, `SELECT `+requestColumns+` FROM generation_requests WHERE id = $1`, id)
	req, err = scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to refetch request: %w", err)
	}
	if err := tx.Commit(writeCtx); err != nil {
		return nil, fmt.Errorf("failed to commit continuation: %w", err)
	}
	return req, nil
}

// ClaimNext atomically claims the oldest unclaimed PENDING request using
// FOR UPDATE SKIP LOCKED, stamping the worker lease and bumping the dispatch
// attempt counter. Returns (nil, nil) when the queue is empty.
func (s *RequestService) ClaimNext(ctx context.Context, workerID string) (*models.GenerationRequest, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE generation_requests
		SET worker_id = $1, claimed_at = now(), last_heartbeat_at = now(),
		    dispatch_attempts = dispatch_attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM generation_requests
			WHERE status = $2 AND worker_id IS NULL AND deleted_at IS NULL
			ORDER BY enqueued_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+requestColumns,
		workerID, models.StatusPending,
	)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Queue empty
		}
		return nil, fmt.Errorf("failed to claim request: %w", err)
	}
	return req, nil
}

// Heartbeat stamps last_heartbeat_at so the orphan scanner leaves the
// request alone while a worker is processing it.
func (s *RequestService) Heartbeat(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE generation_requests SET last_heartbeat_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	return nil
}

// Release returns a claimed request to the queue for redelivery, clearing
// the worker lease but keeping the dispatch attempt counter.
func (s *RequestService) Release(ctx context.Context, id string) error {
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(writeCtx, `
		UPDATE generation_requests
		SET status = $2, worker_id = NULL, claimed_at = NULL, last_heartbeat_at = NULL, updated_at = now()
		WHERE id = $1`,
		id, models.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to release request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActive counts requests currently leased by any worker.
func (s *RequestService) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM generation_requests
		WHERE worker_id IS NOT NULL AND status = ANY($1)`,
		nonTerminalStatuses(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active requests: %w", err)
	}
	return count, nil
}

// QueueDepth counts unclaimed PENDING requests.
func (s *RequestService) QueueDepth(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM generation_requests
		WHERE status = $1 AND worker_id IS NULL AND deleted_at IS NULL`,
		models.StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued requests: %w", err)
	}
	return count, nil
}

// FindOrphaned returns claimed, non-terminal requests whose heartbeat is
// older than the given cutoff.
func (s *RequestService) FindOrphaned(ctx context.Context, heartbeatBefore time.Time) ([]*models.GenerationRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM generation_requests
		WHERE worker_id IS NOT NULL AND status = ANY($1)
		  AND (last_heartbeat_at IS NULL OR last_heartbeat_at < $2)`,
		nonTerminalStatuses(), heartbeatBefore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find orphaned requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// FindClaimedByWorker returns non-terminal requests leased by the given
// worker. Used for the startup sweep after an unclean shutdown.
func (s *RequestService) FindClaimedByWorker(ctx context.Context, workerID string) ([]*models.GenerationRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM generation_requests
		WHERE worker_id = $1 AND status = ANY($2)`,
		workerID, nonTerminalStatuses(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find claimed requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// SoftDeleteOldRequests soft deletes terminal requests older than the
// retention period.
func (s *RequestService) SoftDeleteOldRequests(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention_days must be positive, got %d", retentionDays)
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	// Use background context with timeout
	deleteCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tag, err := s.pool.Exec(deleteCtx, `
		UPDATE generation_requests
		SET deleted_at = now(), updated_at = now()
		WHERE completed_at < $1 AND deleted_at IS NULL`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete requests: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListPurgeable returns soft-deleted requests whose deletion is older than
// the cutoff, bounded by limit. Their stored images are removed before the
// rows are purged.
func (s *RequestService) ListPurgeable(ctx context.Context, deletedBefore time.Time, limit int) ([]*models.GenerationRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM generation_requests
		WHERE deleted_at IS NOT NULL AND deleted_at < $1
		ORDER BY deleted_at
		LIMIT $2`,
		deletedBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purgeable requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// Purge hard-deletes a request row. Image rows go with it via cascade.
func (s *RequestService) Purge(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM generation_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to purge request: %w", err)
	}
	return nil
}

func collectRequests(rows pgx.Rows) ([]*models.GenerationRequest, error) {
	requests := []*models.GenerationRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read requests: %w", err)
	}
	return requests, nil
}

func nonTerminalStatuses() []string {
	return []string{
		string(models.StatusPending),
		string(models.StatusOptimizing),
		string(models.StatusGenerating),
		string(models.StatusEvaluating),
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/pkg/models"
)

// optimizerRowID: the optimizer config is a singleton row.
const optimizerRowID = 1

// OptimizerConfigService manages the process-wide prompt optimizer settings.
// The config is read once per iteration by every running pipeline, so reads
// go through an atomic cache that updates invalidate.
type OptimizerConfigService struct {
	pool  *pgxpool.Pool
	cache atomic.Pointer[models.OptimizerConfig]
}

// NewOptimizerConfigService creates a new OptimizerConfigService.
func NewOptimizerConfigService(pool *pgxpool.Pool) *OptimizerConfigService {
	if pool == nil {
		panic("NewOptimizerConfigService: pool must not be nil")
	}
	return &OptimizerConfigService{pool: pool}
}

// Get returns the optimizer configuration, creating the singleton row with
// defaults on first use. An empty stored system prompt resolves to the
// built-in default so upgrades pick up prompt improvements automatically.
func (s *OptimizerConfigService) Get(ctx context.Context) (*models.OptimizerConfig, error) {
	if cached := s.cache.Load(); cached != nil {
		return cached, nil
	}

	cfg, err := s.fetch(ctx)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to get optimizer config: %w", err)
		}

		// Lazily create the singleton
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO optimizer_config (id, system_prompt, model, temperature, max_tokens)
			VALUES ($1, '', 'gemini-2.5-pro', 0.7, 4096)
			ON CONFLICT (id) DO NOTHING`,
			optimizerRowID,
		); err != nil {
			return nil, fmt.Errorf("failed to seed optimizer config: %w", err)
		}

		cfg, err = s.fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get optimizer config: %w", err)
		}
	}

	s.cache.Store(cfg)
	return cfg, nil
}

// Update patches the optimizer configuration. Nil fields stay unchanged.
func (s *OptimizerConfigService) Update(ctx context.Context, input models.UpdateOptimizerInput) (*models.OptimizerConfig, error) {
	if input.Temperature != nil && (*input.Temperature < 0 || *input.Temperature > 2) {
		return nil, NewValidationError("temperature", "must be between 0 and 2")
	}
	if input.MaxTokens != nil && *input.MaxTokens < 1 {
		return nil, NewValidationError("maxTokens", "must be positive")
	}
	if input.Model != nil && *input.Model == "" {
		return nil, NewValidationError("model", "must not be empty")
	}

	// Ensure the singleton exists before patching it
	if _, err := s.Get(ctx); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current models.OptimizerConfig
	err = tx.QueryRow(ctx, `
		SELECT system_prompt, model, temperature, max_tokens, updated_at
		FROM optimizer_config WHERE id = $1 FOR UPDATE`,
		optimizerRowID,
	).Scan(&current.SystemPrompt, &current.Model, &current.Temperature, &current.MaxTokens, &current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load optimizer config: %w", err)
	}

	if input.SystemPrompt != nil {
		current.SystemPrompt = *input.SystemPrompt
	}
	if input.Model != nil {
		current.Model = *input.Model
	}
	if input.Temperature != nil {
		current.Temperature = *input.Temperature
	}
	if input.MaxTokens != nil {
		current.MaxTokens = *input.MaxTokens
	}

	err = tx.QueryRow(ctx, `
		UPDATE optimizer_config
		SET system_prompt = $2, model = $3, temperature = $4, max_tokens = $5, updated_at = now()
		WHERE id = $1
		RETURNING system_prompt, model, temperature, max_tokens, updated_at`,
		optimizerRowID, current.SystemPrompt, current.Model, current.Temperature, current.MaxTokens,
	).Scan(&current.SystemPrompt, &current.Model, &current.Temperature, &current.MaxTokens, &current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update optimizer config: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit optimizer config: %w", err)
	}

	resolved := current
	if resolved.SystemPrompt == "" {
		resolved.SystemPrompt = models.DefaultOptimizerSystemPrompt
	}
	s.cache.Store(&resolved)
	return &resolved, nil
}

func (s *OptimizerConfigService) fetch(ctx context.Context) (*models.OptimizerConfig, error) {
	var cfg models.OptimizerConfig
	err := s.pool.QueryRow(ctx, `
		SELECT system_prompt, model, temperature, max_tokens, updated_at
		FROM optimizer_config WHERE id = $1`,
		optimizerRowID,
	).Scan(&cfg.SystemPrompt, &cfg.Model, &cfg.Temperature, &cfg.MaxTokens, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = models.DefaultOptimizerSystemPrompt
	}
	return &cfg, nil
}

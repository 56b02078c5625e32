package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/pkg/models"
)

const agentColumns = `id, organization_id, name, system_prompt, judge_prompt, scoring_weight,
	can_judge, evaluation_categories, rag_config, model_tier, created_at, updated_at, deleted_at`

// AgentService manages judge agent registration and lookup.
type AgentService struct {
	pool *pgxpool.Pool
}

// NewAgentService creates a new AgentService.
func NewAgentService(pool *pgxpool.Pool) *AgentService {
	if pool == nil {
		panic("NewAgentService: pool must not be nil")
	}
	return &AgentService{pool: pool}
}

// Create validates the input and registers a new agent.
func (s *AgentService) Create(ctx context.Context, input models.CreateAgentInput) (*models.Agent, error) {
	if input.OrganizationID == "" {
		return nil, NewValidationError("organizationId", "required")
	}
	if input.Name == "" {
		return nil, NewValidationError("name", "required")
	}
	if input.SystemPrompt == "" {
		return nil, NewValidationError("systemPrompt", "required")
	}

	weight := 1.0
	if input.ScoringWeight != nil {
		weight = *input.ScoringWeight
	}
	if weight < 0 || weight > 100 {
		return nil, NewValidationError("scoringWeight", "must be between 0 and 100")
	}

	canJudge := true
	if input.CanJudge != nil {
		canJudge = *input.CanJudge
	}

	ragCfg := models.DefaultRAGConfig()
	if input.RAGConfig != nil {
		ragCfg = *input.RAGConfig
	}
	if err := validateRAGConfig(ragCfg); err != nil {
		return nil, err
	}

	tier := input.ModelTier
	if tier == "" {
		tier = models.TierFlash
	}
	if tier != models.TierPro && tier != models.TierFlash {
		return nil, NewValidationError("modelTier", "must be PRO or FLASH")
	}

	categories := input.EvaluationCategories
	if categories == nil {
		categories = []string{}
	}

	id := uuid.New().String()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO agents (
			id, organization_id, name, system_prompt, judge_prompt, scoring_weight,
			can_judge, evaluation_categories, rag_config, model_tier
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+agentColumns,
		id, input.OrganizationID, input.Name, input.SystemPrompt, input.JudgePrompt,
		weight, canJudge, categories, ragCfg, tier,
	)
	agent, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	return agent, nil
}

// Get retrieves an agent by ID.
func (s *AgentService) Get(ctx context.Context, id string) (*models.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// GetMany retrieves the agents for the given IDs, preserving input order.
// Missing or soft-deleted agents are silently dropped; callers decide
// whether an empty result is an error.
func (s *AgentService) GetMany(ctx context.Context, ids []string) ([]*models.Agent, error) {
	if len(ids) == 0 {
		return []*models.Agent{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE id = ANY($1) AND deleted_at IS NULL`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get agents: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.Agent, len(ids))
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		byID[agent.ID] = agent
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read agents: %w", err)
	}

	agents := make([]*models.Agent, 0, len(ids))
	for _, id := range ids {
		if agent, ok := byID[id]; ok {
			agents = append(agents, agent)
		}
	}
	return agents, nil
}

// List returns all live agents of an organization, newest first.
func (s *AgentService) List(ctx context.Context, organizationID string) ([]*models.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	agents := []*models.Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read agents: %w", err)
	}
	return agents, nil
}

// Update patches an agent. Nil input fields stay unchanged.
func (s *AgentService) Update(ctx context.Context, id string, input models.UpdateAgentInput) (*models.Agent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1 FOR UPDATE`, id)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, NewValidationError("name", "must not be empty")
		}
		agent.Name = *input.Name
	}
	if input.SystemPrompt != nil {
		if *input.SystemPrompt == "" {
			return nil, NewValidationError("systemPrompt", "must not be empty")
		}
		agent.SystemPrompt = *input.SystemPrompt
	}
	if input.JudgePrompt != nil {
		agent.JudgePrompt = *input.JudgePrompt
	}
	if input.ScoringWeight != nil {
		if *input.ScoringWeight < 0 || *input.ScoringWeight > 100 {
			return nil, NewValidationError("scoringWeight", "must be between 0 and 100")
		}
		agent.ScoringWeight = *input.ScoringWeight
	}
	if input.CanJudge != nil {
		agent.CanJudge = *input.CanJudge
	}
	if input.EvaluationCategories != nil {
		agent.EvaluationCategories = input.EvaluationCategories
	}
	if input.RAGConfig != nil {
		if err := validateRAGConfig(*input.RAGConfig); err != nil {
			return nil, err
		}
		agent.RAGConfig = *input.RAGConfig
	}
	if input.ModelTier != nil {
		if *input.ModelTier != models.TierPro && *input.ModelTier != models.TierFlash {
			return nil, NewValidationError("modelTier", "must be PRO or FLASH")
		}
		agent.ModelTier = *input.ModelTier
	}

	categories := agent.EvaluationCategories
	if categories == nil {
		categories = []string{}
	}

	row = tx.QueryRow(ctx, `
		UPDATE agents
		SET name = $2, system_prompt = $3, judge_prompt = $4, scoring_weight = $5,
		    can_judge = $6, evaluation_categories = $7, rag_config = $8, model_tier = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+agentColumns,
		id, agent.Name, agent.SystemPrompt, agent.JudgePrompt, agent.ScoringWeight,
		agent.CanJudge, categories, agent.RAGConfig, agent.ModelTier,
	)
	agent, err = scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("failed to update agent: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit agent update: %w", err)
	}
	return agent, nil
}

// Delete soft-deletes an agent. Its documents and chunks stay in place but
// the agent no longer resolves for new panels.
func (s *AgentService) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func validateRAGConfig(cfg models.RAGConfig) error {
	if cfg.TopK < 1 || cfg.TopK > models.MaxRAGTopK {
		return NewValidationError("ragConfig.topK", fmt.Sprintf("must be between 1 and %d", models.MaxRAGTopK))
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return NewValidationError("ragConfig.similarityThreshold", "must be between 0 and 1")
	}
	return nil
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.Name, &a.SystemPrompt, &a.JudgePrompt, &a.ScoringWeight,
		&a.CanJudge, &a.EvaluationCategories, &a.RAGConfig, &a.ModelTier,
		&a.CreatedAt, &a.UpdatedAt, &a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/database/models"
)

// agentRepo implements AgentRepository.
type agentRepo struct {
	db *DB
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(db *DB) AgentRepository {
	return &agentRepo{db: db}
}

// List returns all agents ordered by extension.
func (r *agentRepo) List(ctx context.Context) ([]models.Agent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, extension, name, email, status FROM agents ORDER BY extension`)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(&a.ID, &a.Extension, &a.Name, &a.Email, &a.Status); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}

	return agents, nil
}

// GetByExtension returns an agent by extension, or nil if absent.
func (r *agentRepo) GetByExtension(ctx context.Context, extension string) (*models.Agent, error) {
	var a models.Agent
	err := r.db.QueryRowContext(ctx,
		`SELECT id, extension, name, email, status FROM agents WHERE extension = ?`,
		extension,
	).Scan(&a.ID, &a.Extension, &a.Name, &a.Email, &a.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent: %w", err)
	}
	return &a, nil
}

// SetStatus updates an agent's presence status.
func (r *agentRepo) SetStatus(ctx context.Context, extension, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE agents SET status = ? WHERE extension = ?`, status, extension)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking agent update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("agent %s not found", extension)
	}
	return nil
}

// CountByStatus returns the number of agents with the given status.
func (r *agentRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agents WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting agents: %w", err)
	}
	return count, nil
}

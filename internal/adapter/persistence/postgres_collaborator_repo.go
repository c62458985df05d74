package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/inkwell/contractflow/internal/domain"
)

type collaboratorRepository struct {
	q querier
}

// Create binds a user to a contract
func (r *collaboratorRepository) Create(ctx context.Context, c *domain.Collaborator) error {
	query := `
		INSERT INTO collaborators (id, contract_id, user_id, role, added_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.q.ExecContext(ctx, query, c.ID, c.ContractID, c.UserID, string(c.Role), c.AddedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateCollaborator.WithDetails("user %s", c.UserID)
		}
		return fmt.Errorf("failed to create collaborator: %w", err)
	}
	return nil
}

// FindByID retrieves a collaborator by its ID
func (r *collaboratorRepository) FindByID(ctx context.Context, id string) (*domain.Collaborator, error) {
	query := `SELECT id, contract_id, user_id, role, added_at FROM collaborators WHERE id = $1`

	c, err := scanCollaborator(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrCollaboratorNotFound
		}
		return nil, fmt.Errorf("failed to find collaborator: %w", err)
	}
	return c, nil
}

// FindByContractAndUser retrieves the binding of a user on a contract
func (r *collaboratorRepository) FindByContractAndUser(ctx context.Context, contractID, userID string) (*domain.Collaborator, error) {
	query := `
		SELECT id, contract_id, user_id, role, added_at
		FROM collaborators
		WHERE contract_id = $1 AND user_id = $2
	`

	c, err := scanCollaborator(r.q.QueryRowContext(ctx, query, contractID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotACollaborator
		}
		return nil, fmt.Errorf("failed to find collaborator: %w", err)
	}
	return c, nil
}

// ListByContract returns a contract's collaborators in the order they were added
func (r *collaboratorRepository) ListByContract(ctx context.Context, contractID string) ([]*domain.Collaborator, error) {
	query := `
		SELECT id, contract_id, user_id, role, added_at
		FROM collaborators
		WHERE contract_id = $1
		ORDER BY added_at ASC, user_id ASC
	`

	rows, err := r.q.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborators: %w", err)
	}
	defer rows.Close()

	var collaborators []*domain.Collaborator
	for rows.Next() {
		c, err := scanCollaborator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan collaborator: %w", err)
		}
		collaborators = append(collaborators, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating collaborators: %w", err)
	}
	return collaborators, nil
}

// UpdateRole changes a collaborator's role
func (r *collaboratorRepository) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	result, err := r.q.ExecContext(ctx, `UPDATE collaborators SET role = $2 WHERE id = $1`, id, string(role))
	if err != nil {
		return fmt.Errorf("failed to update collaborator role: %w", err)
	}
	return requireOneRow(result, domain.ErrCollaboratorNotFound)
}

// Delete removes a binding
func (r *collaboratorRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM collaborators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collaborator: %w", err)
	}
	return requireOneRow(result, domain.ErrCollaboratorNotFound)
}

func scanCollaborator(s scanner) (*domain.Collaborator, error) {
	var c domain.Collaborator
	if err := s.Scan(&c.ID, &c.ContractID, &c.UserID, &c.Role, &c.AddedAt); err != nil {
		return nil, err
	}
	c.AddedAt = c.AddedAt.UTC()
	return &c, nil
}

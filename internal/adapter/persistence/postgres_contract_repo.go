package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
)

type contractRepository struct {
	q querier
}

const contractColumns = `id, title, owner_id, current_stage, value, currency, starts_at, ends_at, created_at, updated_at, deleted_at`

// Create saves a new contract
func (r *contractRepository) Create(ctx context.Context, c *domain.Contract) error {
	query := `
		INSERT INTO contracts (` + contractColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.ExecContext(ctx, query,
		c.ID,
		c.Title,
		c.OwnerID,
		string(c.CurrentStage),
		c.Value,
		c.Currency,
		c.StartsAt,
		c.EndsAt,
		c.CreatedAt,
		c.UpdatedAt,
		c.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// FindByID retrieves a contract by its ID
func (r *contractRepository) FindByID(ctx context.Context, id string) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// Lock retrieves a contract and holds its row lock until commit
func (r *contractRepository) Lock(ctx context.Context, id string) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id))
}

// CompareAndSwapStage moves the contract only if it is still in from
func (r *contractRepository) CompareAndSwapStage(ctx context.Context, id string, from, to domain.Stage, at time.Time) error {
	query := `
		UPDATE contracts
		SET current_stage = $3, updated_at = $4
		WHERE id = $1 AND current_stage = $2 AND deleted_at IS NULL
	`

	result, err := r.q.ExecContext(ctx, query, id, string(from), string(to), at)
	if err != nil {
		return fmt.Errorf("failed to update contract stage: %w", err)
	}
	return requireOneRow(result, domain.ErrInvalidTransition.WithDetails("contract is no longer in %s", from))
}

// SetOwner records the contract's current owner
func (r *contractRepository) SetOwner(ctx context.Context, id, ownerID string, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `UPDATE contracts SET owner_id = $2, updated_at = $3 WHERE id = $1`, id, ownerID, at)
	if err != nil {
		return fmt.Errorf("failed to update contract owner: %w", err)
	}
	return requireOneRow(result, domain.ErrContractNotFound)
}

// UpdateDetails persists business fields
func (r *contractRepository) UpdateDetails(ctx context.Context, c *domain.Contract) error {
	query := `
		UPDATE contracts
		SET title = $2, value = $3, currency = $4, starts_at = $5, ends_at = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.q.ExecContext(ctx, query,
		c.ID,
		c.Title,
		c.Value,
		c.Currency,
		c.StartsAt,
		c.EndsAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	return requireOneRow(result, domain.ErrContractNotFound)
}

// Archive soft-deletes a contract
func (r *contractRepository) Archive(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE contracts SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to archive contract: %w", err)
	}
	return requireOneRow(result, domain.ErrContractNotFound)
}

// ListForUser returns live contracts the user collaborates on, most recent first
func (r *contractRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Contract, error) {
	query := `
		SELECT c.id, c.title, c.owner_id, c.current_stage, c.value, c.currency, c.starts_at, c.ends_at, c.created_at, c.updated_at, c.deleted_at
		FROM contracts c
		JOIN collaborators cb ON cb.contract_id = c.id
		WHERE cb.user_id = $1 AND c.deleted_at IS NULL
		ORDER BY c.updated_at DESC
	`

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contracts: %w", err)
	}
	return contracts, nil
}

func (r *contractRepository) scanOne(row *sql.Row) (*domain.Contract, error) {
	c, err := scanContract(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrContractNotFound
		}
		return nil, fmt.Errorf("failed to find contract: %w", err)
	}
	return c, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(s scanner) (*domain.Contract, error) {
	var (
		c        domain.Contract
		currency sql.NullString
		startsAt sql.NullTime
		endsAt   sql.NullTime
		deleted  sql.NullTime
	)
	err := s.Scan(
		&c.ID,
		&c.Title,
		&c.OwnerID,
		&c.CurrentStage,
		&c.Value,
		&currency,
		&startsAt,
		&endsAt,
		&c.CreatedAt,
		&c.UpdatedAt,
		&deleted,
	)
	if err != nil {
		return nil, err
	}

	c.Currency = currency.String
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		c.StartsAt = &t
	}
	if endsAt.Valid {
		t := endsAt.Time.UTC()
		c.EndsAt = &t
	}
	if deleted.Valid {
		t := deleted.Time.UTC()
		c.DeletedAt = &t
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

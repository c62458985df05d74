package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/inkwell/contractflow/internal/domain"
)

type draftRepository struct {
	q querier
}

// Find returns the live draft for (contract, stage), or nil when none exists
func (r *draftRepository) Find(ctx context.Context, contractID string, stage domain.Stage) (*domain.Draft, error) {
	query := `
		SELECT contract_id, stage, body, saved_at, saved_by, version_token
		FROM drafts
		WHERE contract_id = $1 AND stage = $2
	`

	var d domain.Draft
	err := r.q.QueryRowContext(ctx, query, contractID, string(stage)).Scan(
		&d.ContractID,
		&d.Stage,
		&d.Body,
		&d.SavedAt,
		&d.SavedBy,
		&d.VersionToken,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find draft: %w", err)
	}
	d.SavedAt = d.SavedAt.UTC()
	return &d, nil
}

// Save writes the draft only if the live row still carries expectedToken.
// The row-level update serializes concurrent savers; the loser matches zero rows.
func (r *draftRepository) Save(ctx context.Context, d *domain.Draft, expectedToken string) error {
	var (
		result sql.Result
		err    error
	)
	if expectedToken == "" {
		result, err = r.q.ExecContext(ctx, `
			INSERT INTO drafts (contract_id, stage, body, saved_at, saved_by, version_token)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (contract_id, stage) DO NOTHING
		`, d.ContractID, string(d.Stage), d.Body, d.SavedAt, d.SavedBy, d.VersionToken)
	} else {
		result, err = r.q.ExecContext(ctx, `
			UPDATE drafts
			SET body = $3, saved_at = $4, saved_by = $5, version_token = $6
			WHERE contract_id = $1 AND stage = $2 AND version_token = $7
		`, d.ContractID, string(d.Stage), d.Body, d.SavedAt, d.SavedBy, d.VersionToken, expectedToken)
	}
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	current, err := r.Find(ctx, d.ContractID, d.Stage)
	if err != nil {
		return err
	}
	return &domain.StaleDraftError{Current: current}
}

// Put unconditionally replaces the live draft
func (r *draftRepository) Put(ctx context.Context, d *domain.Draft) error {
	query := `
		INSERT INTO drafts (contract_id, stage, body, saved_at, saved_by, version_token)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (contract_id, stage)
		DO UPDATE SET body = EXCLUDED.body, saved_at = EXCLUDED.saved_at,
			saved_by = EXCLUDED.saved_by, version_token = EXCLUDED.version_token
	`

	_, err := r.q.ExecContext(ctx, query, d.ContractID, string(d.Stage), d.Body, d.SavedAt, d.SavedBy, d.VersionToken)
	if err != nil {
		return fmt.Errorf("failed to put draft: %w", err)
	}
	return nil
}

// DeleteByContract removes every live draft of a contract
func (r *draftRepository) DeleteByContract(ctx context.Context, contractID string) error {
	if _, err := r.q.ExecContext(ctx, `DELETE FROM drafts WHERE contract_id = $1`, contractID); err != nil {
		return fmt.Errorf("failed to delete drafts: %w", err)
	}
	return nil
}

package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/inkwell/contractflow/internal/domain"
)

type versionRepository struct {
	q querier
}

// Create appends a version. The (contract_id, sequence) unique key rejects gaps
// introduced by concurrent writers.
func (r *versionRepository) Create(ctx context.Context, v *domain.Version) error {
	query := `
		INSERT INTO versions (id, contract_id, sequence, snapshot_body, change_summary, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.q.ExecContext(ctx, query,
		v.ID,
		v.ContractID,
		v.Sequence,
		v.SnapshotBody,
		v.ChangeSummary,
		v.CreatedAt,
		v.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("version %d already exists for contract %s: %w", v.Sequence, v.ContractID, err)
		}
		return fmt.Errorf("failed to create version: %w", err)
	}
	return nil
}

// LatestSequence returns 0 when the contract has no versions
func (r *versionRepository) LatestSequence(ctx context.Context, contractID string) (int64, error) {
	var seq int64
	err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) FROM versions WHERE contract_id = $1`, contractID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest sequence: %w", err)
	}
	return seq, nil
}

// FindByID retrieves one version of a contract
func (r *versionRepository) FindByID(ctx context.Context, contractID, id string) (*domain.Version, error) {
	query := `
		SELECT id, contract_id, sequence, snapshot_body, change_summary, created_at, created_by
		FROM versions
		WHERE contract_id = $1 AND id = $2
	`
	return r.scanOne(r.q.QueryRowContext(ctx, query, contractID, id))
}

// Latest retrieves the highest-sequence version of a contract
func (r *versionRepository) Latest(ctx context.Context, contractID string) (*domain.Version, error) {
	query := `
		SELECT id, contract_id, sequence, snapshot_body, change_summary, created_at, created_by
		FROM versions
		WHERE contract_id = $1
		ORDER BY sequence DESC
		LIMIT 1
	`
	return r.scanOne(r.q.QueryRowContext(ctx, query, contractID))
}

// ListByContract returns versions ordered by sequence
func (r *versionRepository) ListByContract(ctx context.Context, contractID string) ([]*domain.Version, error) {
	query := `
		SELECT id, contract_id, sequence, snapshot_body, change_summary, created_at, created_by
		FROM versions
		WHERE contract_id = $1
		ORDER BY sequence ASC
	`

	rows, err := r.q.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*domain.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}
	return versions, nil
}

func (r *versionRepository) scanOne(row *sql.Row) (*domain.Version, error) {
	v, err := scanVersion(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrVersionNotFound
		}
		return nil, fmt.Errorf("failed to find version: %w", err)
	}
	return v, nil
}

func scanVersion(s scanner) (*domain.Version, error) {
	var v domain.Version
	err := s.Scan(
		&v.ID,
		&v.ContractID,
		&v.Sequence,
		&v.SnapshotBody,
		&v.ChangeSummary,
		&v.CreatedAt,
		&v.CreatedBy,
	)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

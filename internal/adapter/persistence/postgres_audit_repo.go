package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
)

type auditRepository struct {
	q querier
}

const auditColumns = `id, contract_id, sequence, actor_id, action, details, timestamp, ip_address, prev_hash, hash`

// Append writes an entry. audit_log has no UPDATE or DELETE path.
func (r *auditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_log (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.q.ExecContext(ctx, query,
		e.ID,
		e.ContractID,
		e.Sequence,
		e.ActorID,
		string(e.Action),
		details,
		e.Timestamp,
		e.IPAddress,
		e.PrevHash,
		e.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Last returns the newest entry of a contract, or nil for an empty log
func (r *auditRepository) Last(ctx context.Context, contractID string) (*domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE contract_id = $1 ORDER BY sequence DESC LIMIT 1`

	e, err := scanAuditEntry(r.q.QueryRowContext(ctx, query, contractID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read last audit entry: %w", err)
	}
	return e, nil
}

// Query returns one page of matching entries and the total match count
func (r *auditRepository) Query(ctx context.Context, contractID string, filter domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	var conditions []string
	args := []interface{}{contractID}
	argIndex := 2

	if filter.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argIndex))
		args = append(args, *filter.ActorID)
		argIndex++
	}
	if filter.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argIndex))
		args = append(args, string(*filter.Action))
		argIndex++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argIndex))
		args = append(args, *filter.From)
		argIndex++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", argIndex))
		args = append(args, *filter.To)
		argIndex++
	}

	where := " WHERE contract_id = $1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query := `SELECT ` + auditColumns + ` FROM audit_log` + where + ` ORDER BY sequence ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}

	entries, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Chain returns every entry of a contract ordered by sequence
func (r *auditRepository) Chain(ctx context.Context, contractID string) ([]*domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_log WHERE contract_id = $1 ORDER BY sequence ASC`
	return r.list(ctx, query, contractID)
}

// ActiveContracts lists contracts with entries at or after since
func (r *auditRepository) ActiveContracts(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT DISTINCT contract_id FROM audit_log WHERE timestamp >= $1 ORDER BY contract_id`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list active contracts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan contract id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active contracts: %w", err)
	}
	return ids, nil
}

func (r *auditRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.AuditEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := []*domain.AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

func scanAuditEntry(s scanner) (*domain.AuditEntry, error) {
	var (
		e       domain.AuditEntry
		details []byte
	)
	err := s.Scan(
		&e.ID,
		&e.ContractID,
		&e.Sequence,
		&e.ActorID,
		&e.Action,
		&details,
		&e.Timestamp,
		&e.IPAddress,
		&e.PrevHash,
		&e.Hash,
	)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
		}
	}
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// AuditLog is the append-only journal of every state change.
type AuditLog struct {
	store  ports.Store
	perms  *PermissionEngine
	logger logger.Logger
}

// NewAuditLog creates an audit log
func NewAuditLog(store ports.Store, perms *PermissionEngine, log logger.Logger) *AuditLog {
	return &AuditLog{
		store:  store,
		perms:  perms,
		logger: log.WithFields(map[string]interface{}{"component": "audit_log"}),
	}
}

// Record appends one chained entry inside tx. Any storage failure is reported
// as AuditWriteFailure, which rolls back the mutation it describes.
func (a *AuditLog) Record(ctx context.Context, tx ports.Tx, contractID, actorID string, action domain.AuditAction, details map[string]string) (*domain.AuditEntry, error) {
	prev, err := tx.Audit().Last(ctx, contractID)
	if err != nil {
		return nil, a.fail(ctx, contractID, action, err)
	}

	entry := domain.NewAuditEntry(prev, contractID, actorID, action, details, clientIP(ctx))
	if err := tx.Audit().Append(ctx, entry); err != nil {
		return nil, a.fail(ctx, contractID, action, err)
	}
	return entry, nil
}

func (a *AuditLog) fail(ctx context.Context, contractID string, action domain.AuditAction, cause error) error {
	a.logger.Error(ctx, "Audit write failed, rolling back", cause, map[string]interface{}{
		"contract_id": contractID,
		"action":      string(action),
	})
	return domain.AuditFailure(cause)
}

// Query returns one page of a contract's audit trail for display.
func (a *AuditLog) Query(ctx context.Context, contractID, actorID string, filter domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditPageSize
	}
	if filter.Limit > maxAuditPageSize {
		filter.Limit = maxAuditPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, domain.Validation("to", "must not be before from")
	}

	var (
		entries []*domain.AuditEntry
		total   int
	)
	err := a.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := readLive(ctx, tx, contractID); err != nil {
			return err
		}
		if _, err := a.perms.require(ctx, tx, actorID, contractID, domain.CapView); err != nil {
			return err
		}
		var err error
		entries, total, err = tx.Audit().Query(ctx, contractID, filter)
		if err != nil {
			return fmt.Errorf("failed to query audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Verify recomputes a contract's hash chain.
func (a *AuditLog) Verify(ctx context.Context, contractID, actorID string) (domain.ChainReport, error) {
	var report domain.ChainReport
	err := a.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := readLive(ctx, tx, contractID); err != nil {
			return err
		}
		if _, err := a.perms.require(ctx, tx, actorID, contractID, domain.CapView); err != nil {
			return err
		}
		chain, err := tx.Audit().Chain(ctx, contractID)
		if err != nil {
			return fmt.Errorf("failed to load audit chain: %w", err)
		}
		report = domain.VerifyChain(contractID, chain)
		return nil
	})
	return report, err
}

// VerifyActive checks the chains of every contract with entries newer than
// since. It runs with system authority for the background verifier.
func (a *AuditLog) VerifyActive(ctx context.Context, since time.Time) ([]domain.ChainReport, error) {
	var reports []domain.ChainReport
	err := a.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		ids, err := tx.Audit().ActiveContracts(ctx, since)
		if err != nil {
			return fmt.Errorf("failed to list active contracts: %w", err)
		}
		for _, id := range ids {
			chain, err := tx.Audit().Chain(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load audit chain for %s: %w", id, err)
			}
			reports = append(reports, domain.VerifyChain(id, chain))
		}
		return nil
	})
	return reports, err
}

package usecase

import (
	"context"
	"errors"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// PermissionEngine derives a caller's capabilities from their collaborator row.
// It is the authoritative check; client-side gates are hints only.
type PermissionEngine struct {
	store  ports.Store
	logger logger.Logger
}

// NewPermissionEngine creates a permission engine
func NewPermissionEngine(store ports.Store, log logger.Logger) *PermissionEngine {
	return &PermissionEngine{
		store:  store,
		logger: log.WithFields(map[string]interface{}{"component": "permission_engine"}),
	}
}

// Evaluate returns the effective permission of userID on contractID.
func (e *PermissionEngine) Evaluate(ctx context.Context, userID, contractID string) (domain.EffectivePermission, error) {
	var perm domain.EffectivePermission
	err := e.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := readLive(ctx, tx, contractID); err != nil {
			return err
		}
		p, err := e.evaluate(ctx, tx, userID, contractID)
		perm = p
		return err
	})
	return perm, err
}

func (e *PermissionEngine) evaluate(ctx context.Context, tx ports.Tx, userID, contractID string) (domain.EffectivePermission, error) {
	if userID == "" {
		return domain.EffectivePermission{}, domain.ErrNotACollaborator.WithDetails("anonymous caller")
	}
	c, err := tx.Collaborators().FindByContractAndUser(ctx, contractID, userID)
	if err != nil {
		return domain.EffectivePermission{}, err
	}
	return domain.PermissionFor(c.Role), nil
}

// require evaluates and checks cap inside the caller's transaction, before any write.
func (e *PermissionEngine) require(ctx context.Context, tx ports.Tx, userID, contractID string, cap domain.Capability) (domain.EffectivePermission, error) {
	perm, err := e.evaluate(ctx, tx, userID, contractID)
	if err != nil {
		if errors.Is(err, domain.ErrNotACollaborator) {
			logger.LogSecurityEvent(ctx, e.logger, "non_collaborator_access", "MEDIUM", map[string]interface{}{
				"contract_id": contractID,
				"actor_id":    userID,
				"capability":  string(cap),
			})
		}
		return perm, err
	}
	if err := perm.Require(cap); err != nil {
		logger.LogSecurityEvent(ctx, e.logger, "permission_denied", "MEDIUM", map[string]interface{}{
			"contract_id": contractID,
			"actor_id":    userID,
			"role":        string(perm.Role),
			"capability":  string(cap),
		})
		return perm, err
	}
	return perm, nil
}

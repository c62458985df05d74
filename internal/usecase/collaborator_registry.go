package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// CollaboratorRegistry manages role bindings. Every contract keeps exactly
// one Owner; ownership moves only through TransferOwnership.
type CollaboratorRegistry struct {
	store  ports.Store
	perms  *PermissionEngine
	audit  *AuditLog
	events eventEmitter
	logger logger.Logger
}

// Add binds userID to a contract with a non-owner role.
func (r *CollaboratorRegistry) Add(ctx context.Context, contractID, userID string, role domain.Role, actorID string) (*domain.Collaborator, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.Validation("user_id", "is required")
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if role == domain.RoleOwner {
		return nil, domain.ErrInvalidRoleAssignment
	}

	collaborator := domain.NewCollaborator(contractID, userID, role)
	err := r.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := lockLive(ctx, tx, contractID); err != nil {
			return err
		}
		if _, err := r.perms.require(ctx, tx, actorID, contractID, domain.CapOwner); err != nil {
			return err
		}

		_, err := tx.Collaborators().FindByContractAndUser(ctx, contractID, userID)
		switch {
		case err == nil:
			return domain.ErrDuplicateCollaborator.WithDetails("user %s", userID)
		case !errors.Is(err, domain.ErrNotACollaborator):
			return err
		}

		if err := tx.Collaborators().Create(ctx, collaborator); err != nil {
			return err
		}
		_, err = r.audit.Record(ctx, tx, contractID, actorID, domain.AuditCollaboratorAdded, map[string]string{
			"collaborator_id": collaborator.ID,
			"user_id":         userID,
			"role":            string(role),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info(ctx, "Collaborator added", map[string]interface{}{
		"contract_id": contractID,
		"user_id":     userID,
		"role":        string(role),
	})
	r.events.emit(ctx, contractID, domain.AuditCollaboratorAdded, actorID)
	return collaborator, nil
}

// UpdateRole changes a non-owner's role. The owner row cannot be demoted and
// no row can be promoted to Owner here.
func (r *CollaboratorRegistry) UpdateRole(ctx context.Context, collaboratorID string, role domain.Role, actorID string) (*domain.Collaborator, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}

	var (
		collaborator *domain.Collaborator
		changed      bool
	)
	err := r.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := lockCollaborator(ctx, tx, collaboratorID)
		if err != nil {
			return err
		}
		if _, err := r.perms.require(ctx, tx, actorID, c.ContractID, domain.CapOwner); err != nil {
			return err
		}

		switch {
		case c.Role == domain.RoleOwner && role != domain.RoleOwner:
			return domain.ErrLastOwnerDemotion
		case role == domain.RoleOwner && c.Role != domain.RoleOwner:
			return domain.ErrInvalidRoleAssignment
		case c.Role == role:
			collaborator = c
			return nil
		}

		previous := c.Role
		if err := tx.Collaborators().UpdateRole(ctx, c.ID, role); err != nil {
			return err
		}
		c.Role = role
		if err := assertSingleOwner(ctx, tx, c.ContractID); err != nil {
			return err
		}
		if _, err := r.audit.Record(ctx, tx, c.ContractID, actorID, domain.AuditCollaboratorRole, map[string]string{
			"collaborator_id": c.ID,
			"user_id":         c.UserID,
			"from_role":       string(previous),
			"to_role":         string(role),
		}); err != nil {
			return err
		}
		collaborator, changed = c, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		r.events.emit(ctx, collaborator.ContractID, domain.AuditCollaboratorRole, actorID)
	}
	return collaborator, nil
}

// Remove deletes a non-owner binding.
func (r *CollaboratorRegistry) Remove(ctx context.Context, collaboratorID, actorID string) error {
	var contractID string
	err := r.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := lockCollaborator(ctx, tx, collaboratorID)
		if err != nil {
			return err
		}
		contractID = c.ContractID
		if _, err := r.perms.require(ctx, tx, actorID, c.ContractID, domain.CapOwner); err != nil {
			return err
		}
		if c.Role == domain.RoleOwner {
			return domain.ErrOwnerCannotBeRemoved
		}

		if err := tx.Collaborators().Delete(ctx, c.ID); err != nil {
			return err
		}
		if err := assertSingleOwner(ctx, tx, c.ContractID); err != nil {
			return err
		}
		_, err = r.audit.Record(ctx, tx, c.ContractID, actorID, domain.AuditCollaboratorRemoved, map[string]string{
			"collaborator_id": c.ID,
			"user_id":         c.UserID,
			"role":            string(c.Role),
		})
		return err
	})
	if err != nil {
		return err
	}

	r.events.emit(ctx, contractID, domain.AuditCollaboratorRemoved, actorID)
	return nil
}

// TransferOwnership promotes toUserID to Owner and demotes fromUserID to
// Editor in one transaction.
func (r *CollaboratorRegistry) TransferOwnership(ctx context.Context, contractID, fromUserID, toUserID, actorID string) error {
	if strings.TrimSpace(toUserID) == "" {
		return domain.Validation("to_user_id", "is required")
	}
	if fromUserID == toUserID {
		return domain.Validation("to_user_id", "must differ from the current owner")
	}

	err := r.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := lockLive(ctx, tx, contractID); err != nil {
			return err
		}
		if _, err := r.perms.require(ctx, tx, actorID, contractID, domain.CapOwner); err != nil {
			return err
		}

		from, err := tx.Collaborators().FindByContractAndUser(ctx, contractID, fromUserID)
		if err != nil {
			return err
		}
		if from.Role != domain.RoleOwner {
			return domain.Validation("from_user_id", "is not the current owner")
		}
		to, err := tx.Collaborators().FindByContractAndUser(ctx, contractID, toUserID)
		if err != nil {
			return err
		}

		if err := tx.Collaborators().UpdateRole(ctx, from.ID, domain.RoleEditor); err != nil {
			return err
		}
		if err := tx.Collaborators().UpdateRole(ctx, to.ID, domain.RoleOwner); err != nil {
			return err
		}
		if err := tx.Contracts().SetOwner(ctx, contractID, toUserID, time.Now().UTC()); err != nil {
			return err
		}
		if err := assertSingleOwner(ctx, tx, contractID); err != nil {
			return err
		}
		_, err = r.audit.Record(ctx, tx, contractID, actorID, domain.AuditOwnershipTransfer, map[string]string{
			"from_user_id": fromUserID,
			"to_user_id":   toUserID,
			"to_prev_role": string(to.Role),
		})
		return err
	})
	if err != nil {
		return err
	}

	logger.LogSecurityEvent(ctx, r.logger, "ownership_transferred", "LOW", map[string]interface{}{
		"contract_id":  contractID,
		"from_user_id": fromUserID,
		"to_user_id":   toUserID,
	})
	r.events.emit(ctx, contractID, domain.AuditOwnershipTransfer, actorID)
	return nil
}

// List returns the contract's collaborators.
func (r *CollaboratorRegistry) List(ctx context.Context, contractID, actorID string) ([]*domain.Collaborator, error) {
	var collaborators []*domain.Collaborator
	err := r.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := readLive(ctx, tx, contractID); err != nil {
			return err
		}
		if _, err := r.perms.require(ctx, tx, actorID, contractID, domain.CapView); err != nil {
			return err
		}
		var err error
		collaborators, err = tx.Collaborators().ListByContract(ctx, contractID)
		return err
	})
	return collaborators, err
}

func assertSingleOwner(ctx context.Context, tx ports.Tx, contractID string) error {
	all, err := tx.Collaborators().ListByContract(ctx, contractID)
	if err != nil {
		return err
	}
	if n := domain.CountOwners(all); n != 1 {
		return domain.ErrLastOwnerDemotion.WithDetails("contract %s would have %d owners", contractID, n)
	}
	return nil
}

// lockCollaborator locks the binding's live contract and then reads the
// binding again, so role checks never run on a row read before the lock.
func lockCollaborator(ctx context.Context, tx ports.Tx, collaboratorID string) (*domain.Collaborator, error) {
	c, err := tx.Collaborators().FindByID(ctx, collaboratorID)
	if err != nil {
		return nil, err
	}
	if _, err := lockLive(ctx, tx, c.ContractID); err != nil {
		return nil, err
	}
	return tx.Collaborators().FindByID(ctx, collaboratorID)
}

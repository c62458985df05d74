package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// ContractService handles the contract aggregate itself: creation, details,
// archival and the published body.
type ContractService struct {
	store  ports.Store
	perms  *PermissionEngine
	audit  *AuditLog
	events eventEmitter
	cache  ports.BodyCache
	logger logger.Logger
}

// ContractView is a contract together with the caller's permission on it.
type ContractView struct {
	*domain.Contract
	Permission domain.EffectivePermission `json:"permission"`
}

// Create starts a contract in Draft with the creator as its sole Owner and
// an empty live draft.
func (s *ContractService) Create(ctx context.Context, actorID string, details domain.ContractDetails) (*domain.Contract, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, domain.ErrNotACollaborator.WithDetails("anonymous caller")
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}

	contract := domain.NewContract(actorID, details)
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := tx.Contracts().Create(ctx, contract); err != nil {
			return fmt.Errorf("failed to create contract: %w", err)
		}
		owner := domain.NewCollaborator(contract.ID, actorID, domain.RoleOwner)
		if err := tx.Collaborators().Create(ctx, owner); err != nil {
			return err
		}
		if err := tx.Drafts().Put(ctx, domain.NextDraft(contract.ID, domain.StageDraft, "", actorID)); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, tx, contract.ID, actorID, domain.AuditContractCreated, map[string]string{
			"title": contract.Title,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Contract created", map[string]interface{}{
		"contract_id": contract.ID,
		"owner_id":    actorID,
	})
	s.events.emit(ctx, contract.ID, domain.AuditContractCreated, actorID)
	return contract, nil
}

// Get returns a contract the caller can view.
func (s *ContractService) Get(ctx context.Context, contractID, actorID string) (*ContractView, error) {
	var view *ContractView
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := readLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		perm, err := s.perms.require(ctx, tx, actorID, contractID, domain.CapView)
		if err != nil {
			return err
		}
		view = &ContractView{Contract: c, Permission: perm}
		return nil
	})
	return view, err
}

// ListForUser returns the live contracts the caller collaborates on.
func (s *ContractService) ListForUser(ctx context.Context, actorID string) ([]*domain.Contract, error) {
	if actorID == "" {
		return nil, domain.ErrNotACollaborator.WithDetails("anonymous caller")
	}
	var contracts []*domain.Contract
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		var err error
		contracts, err = tx.Contracts().ListForUser(ctx, actorID)
		return err
	})
	return contracts, err
}

// UpdateDetails edits business fields while the contract is in Draft.
func (s *ContractService) UpdateDetails(ctx context.Context, contractID, actorID string, details domain.ContractDetails) (*domain.Contract, error) {
	if err := details.Validate(); err != nil {
		return nil, err
	}

	var contract *domain.Contract
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := lockLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if _, err := s.perms.require(ctx, tx, actorID, contractID, domain.CapEdit); err != nil {
			return err
		}
		if c.CurrentStage != domain.StageDraft {
			return domain.ErrInvalidStageForWrite.WithDetails("details can only change in %s", domain.StageDraft)
		}

		c.Apply(details)
		if err := tx.Contracts().UpdateDetails(ctx, c); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, contractID, actorID, domain.AuditContractUpdated, map[string]string{
			"title":    c.Title,
			"value":    fmt.Sprintf("%.2f", c.Value),
			"currency": c.Currency,
		})
		contract = c
		return err
	})
	if err != nil {
		return nil, err
	}

	s.events.emit(ctx, contractID, domain.AuditContractUpdated, actorID)
	return contract, nil
}

// Archive soft-deletes a contract. History is kept.
func (s *ContractService) Archive(ctx context.Context, contractID, actorID string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := lockLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if _, err := s.perms.require(ctx, tx, actorID, contractID, domain.CapOwner); err != nil {
			return err
		}
		if err := tx.Contracts().Archive(ctx, contractID, time.Now().UTC()); err != nil {
			return err
		}
		_, err = s.audit.Record(ctx, tx, contractID, actorID, domain.AuditContractArchived, map[string]string{
			"stage": string(c.CurrentStage),
		})
		return err
	})
	if err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, contractID); err != nil {
			s.logger.Warn(ctx, "Failed to invalidate published body cache", map[string]interface{}{
				"contract_id": contractID,
				"error":       err.Error(),
			})
		}
	}
	logger.LogSecurityEvent(ctx, s.logger, "contract_archived", "LOW", map[string]interface{}{
		"contract_id": contractID,
		"actor_id":    actorID,
	})
	s.events.emit(ctx, contractID, domain.AuditContractArchived, actorID)
	return nil
}

// PublishedBody returns the body of a published contract's final version.
func (s *ContractService) PublishedBody(ctx context.Context, contractID, actorID string) (string, error) {
	var (
		body   string
		cached bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := readLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if _, err := s.perms.require(ctx, tx, actorID, contractID, domain.CapView); err != nil {
			return err
		}
		if c.CurrentStage != domain.StagePublished {
			return domain.ErrNotPublished
		}

		if s.cache != nil {
			if b, ok, err := s.cache.Get(ctx, contractID); err == nil && ok {
				body, cached = b, true
				return nil
			} else if err != nil {
				s.logger.Warn(ctx, "Published body cache read failed", map[string]interface{}{
					"contract_id": contractID,
					"error":       err.Error(),
				})
			}
		}

		v, err := tx.Versions().Latest(ctx, contractID)
		if err != nil {
			return err
		}
		body = v.SnapshotBody
		return nil
	})
	if err != nil {
		return "", err
	}

	if s.cache != nil && !cached {
		if err := s.cache.Set(ctx, contractID, body); err != nil {
			s.logger.Warn(ctx, "Failed to cache published body", map[string]interface{}{
				"contract_id": contractID,
				"error":       err.Error(),
			})
		}
	}
	return body, nil
}

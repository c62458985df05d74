package usecase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// VersionLedger keeps the append-only, gapless sequence of snapshots.
type VersionLedger struct {
	store  ports.Store
	perms  *PermissionEngine
	audit  *AuditLog
	events eventEmitter
	logger logger.Logger
}

// Checkpoint snapshots the current draft as a new version. It is allowed
// while the contract is in Draft or PendingReview.
func (l *VersionLedger) Checkpoint(ctx context.Context, contractID, actorID, summary string) (*domain.Version, error) {
	if len(summary) > 1000 {
		return nil, domain.Validation("change_summary", "must not exceed 1000 characters")
	}

	var version *domain.Version
	err := l.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := lockLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if _, err := l.perms.require(ctx, tx, actorID, contractID, domain.CapEdit); err != nil {
			return err
		}
		if c.CurrentStage != domain.StageDraft && c.CurrentStage != domain.StagePendingReview {
			return domain.ErrInvalidStageForWrite.WithDetails("versions cannot be saved in %s", c.CurrentStage)
		}

		version, err = l.snapshot(ctx, tx, c, actorID, summary)
		if err != nil {
			return err
		}
		_, err = l.audit.Record(ctx, tx, contractID, actorID, domain.AuditVersionCreated, map[string]string{
			"version_id": version.ID,
			"sequence":   strconv.FormatInt(version.Sequence, 10),
			"stage":      string(c.CurrentStage),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info(ctx, "Version saved", map[string]interface{}{
		"contract_id": contractID,
		"sequence":    version.Sequence,
	})
	l.events.emit(ctx, contractID, domain.AuditVersionCreated, actorID)
	return version, nil
}

// Rollback replaces the current stage's draft with a version's body. The
// version history is left untouched.
func (l *VersionLedger) Rollback(ctx context.Context, contractID, versionID, actorID string) (*domain.Draft, error) {
	var draft *domain.Draft
	err := l.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := lockLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if _, err := l.perms.require(ctx, tx, actorID, contractID, domain.CapOwner); err != nil {
			return err
		}
		v, err := tx.Versions().FindByID(ctx, contractID, versionID)
		if err != nil {
			return err
		}
		if c.CurrentStage.Terminal() {
			return domain.ErrInvalidStageForWrite.WithDetails("contract is %s", c.CurrentStage)
		}

		draft = domain.NextDraft(contractID, c.CurrentStage, v.SnapshotBody, actorID)
		if err := tx.Drafts().Put(ctx, draft); err != nil {
			return err
		}
		_, err = l.audit.Record(ctx, tx, contractID, actorID, domain.AuditVersionRollback, map[string]string{
			"version_id":    v.ID,
			"sequence":      strconv.FormatInt(v.Sequence, 10),
			"stage":         string(c.CurrentStage),
			"version_token": draft.VersionToken,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	l.events.emit(ctx, contractID, domain.AuditVersionRollback, actorID)
	return draft, nil
}

// List returns the contract's versions ordered by sequence.
func (l *VersionLedger) List(ctx context.Context, contractID, actorID string) ([]*domain.Version, error) {
	var versions []*domain.Version
	err := l.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := readLive(ctx, tx, contractID); err != nil {
			return err
		}
		if _, err := l.perms.require(ctx, tx, actorID, contractID, domain.CapView); err != nil {
			return err
		}
		var err error
		versions, err = tx.Versions().ListByContract(ctx, contractID)
		return err
	})
	return versions, err
}

// Get returns one version of the contract.
func (l *VersionLedger) Get(ctx context.Context, contractID, versionID, actorID string) (*domain.Version, error) {
	var version *domain.Version
	err := l.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if _, err := readLive(ctx, tx, contractID); err != nil {
			return err
		}
		if _, err := l.perms.require(ctx, tx, actorID, contractID, domain.CapView); err != nil {
			return err
		}
		var err error
		version, err = tx.Versions().FindByID(ctx, contractID, versionID)
		return err
	})
	return version, err
}

// snapshot appends the current stage's draft body as the next version.
// Callers must hold the contract lock.
func (l *VersionLedger) snapshot(ctx context.Context, tx ports.Tx, c *domain.Contract, actorID, summary string) (*domain.Version, error) {
	draft, err := tx.Drafts().Find(ctx, c.ID, c.CurrentStage)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, domain.ErrInvalidStageForWrite.WithDetails("no draft exists for %s", c.CurrentStage)
	}

	previous, err := tx.Versions().LatestSequence(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}
	v := domain.NewVersion(c.ID, previous, draft.Body, summary, actorID)
	if err := tx.Versions().Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// finalize snapshots the current draft and discards every live draft.
func (l *VersionLedger) finalize(ctx context.Context, tx ports.Tx, c *domain.Contract, actorID, summary string) (*domain.Version, error) {
	v, err := l.snapshot(ctx, tx, c, actorID, summary)
	if err != nil {
		return nil, err
	}
	if err := tx.Drafts().DeleteByContract(ctx, c.ID); err != nil {
		return nil, err
	}
	return v, nil
}

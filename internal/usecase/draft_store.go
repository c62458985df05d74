package usecase

import (
	"context"
	"errors"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// MaxBodyBytes bounds a single draft body.
const MaxBodyBytes = 5 << 20

// DraftStore holds one live draft per (contract, stage) and guards saves
// with single-use version tokens.
type DraftStore struct {
	store    ports.Store
	perms    *PermissionEngine
	audit    *AuditLog
	events   eventEmitter
	renderer ports.Renderer
	logger   logger.Logger
}

// Save replaces the live draft for stage. expectedToken must be the token
// the caller last read; an empty token only creates a missing draft.
func (d *DraftStore) Save(ctx context.Context, contractID string, stage domain.Stage, body, actorID, expectedToken string) (*domain.Draft, error) {
	if !stage.Valid() {
		return nil, domain.Validation("stage", "unknown stage "+string(stage))
	}
	if len(body) > MaxBodyBytes {
		return nil, domain.Validation("body", "exceeds maximum size")
	}

	draft := domain.NextDraft(contractID, stage, body, actorID)
	err := d.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := lockLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if _, err := d.perms.require(ctx, tx, actorID, contractID, domain.CapEdit); err != nil {
			return err
		}
		if stage != c.CurrentStage || c.CurrentStage.Terminal() {
			return domain.ErrInvalidStageForWrite.WithDetails("contract is in %s, not %s", c.CurrentStage, stage)
		}

		if err := tx.Drafts().Save(ctx, draft, expectedToken); err != nil {
			return err
		}
		_, err = d.audit.Record(ctx, tx, contractID, actorID, domain.AuditDraftSaved, map[string]string{
			"stage":         string(stage),
			"version_token": draft.VersionToken,
		})
		return err
	})
	if err != nil {
		var stale *domain.StaleDraftError
		if errors.As(err, &stale) {
			d.logger.Info(ctx, "Stale draft save rejected", map[string]interface{}{
				"contract_id": contractID,
				"stage":       string(stage),
				"actor_id":    actorID,
			})
		}
		return nil, err
	}

	d.events.emit(ctx, contractID, domain.AuditDraftSaved, actorID)
	return draft, nil
}

// Current returns the live draft of the contract's current stage. When no
// live draft exists the result carries an empty version token.
func (d *DraftStore) Current(ctx context.Context, contractID, actorID string) (*domain.Draft, error) {
	var draft *domain.Draft
	err := d.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := readLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		if _, err := d.perms.require(ctx, tx, actorID, contractID, domain.CapView); err != nil {
			return err
		}
		draft, err = tx.Drafts().Find(ctx, contractID, c.CurrentStage)
		if err != nil {
			return err
		}
		if draft == nil {
			draft = &domain.Draft{ContractID: contractID, Stage: c.CurrentStage}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// Render returns the current draft prepared for display.
func (d *DraftStore) Render(ctx context.Context, contractID, actorID string) (ports.Rendered, error) {
	draft, err := d.Current(ctx, contractID, actorID)
	if err != nil {
		return ports.Rendered{}, err
	}
	if d.renderer == nil {
		return ports.Rendered{ContentType: "text/plain; charset=utf-8", Content: draft.Body}, nil
	}
	return d.renderer.RenderBody(ctx, draft.Body)
}

// carryForward seeds the destination stage's draft with the source body.
func (d *DraftStore) carryForward(ctx context.Context, tx ports.Tx, contractID string, from, to domain.Stage, actorID string) error {
	src, err := tx.Drafts().Find(ctx, contractID, from)
	if err != nil {
		return err
	}
	body := ""
	if src != nil {
		body = src.Body
	}
	return tx.Drafts().Put(ctx, domain.NextDraft(contractID, to, body, actorID))
}

package usecase

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// StageMachine applies workflow edges to contracts.
type StageMachine struct {
	store  ports.Store
	perms  *PermissionEngine
	drafts *DraftStore
	ledger *VersionLedger
	audit  *AuditLog
	events eventEmitter
	cache  ports.BodyCache
	logger logger.Logger
}

// Transition moves the contract along the edge labelled action. Concurrent
// callers on the same contract are serialized; the loser sees the new stage
// and fails with InvalidTransition.
func (m *StageMachine) Transition(ctx context.Context, contractID string, action domain.Action, actorID, note string) (*domain.Contract, error) {
	note = strings.TrimSpace(note)
	if len(note) > 1000 {
		return nil, domain.Validation("note", "must not exceed 1000 characters")
	}

	start := time.Now()
	var contract *domain.Contract
	err := m.store.InTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		c, err := lockLive(ctx, tx, contractID)
		if err != nil {
			return err
		}
		perm, err := m.perms.evaluate(ctx, tx, actorID, contractID)
		if err != nil {
			return err
		}
		t, err := domain.Lookup(c.CurrentStage, action)
		if err != nil {
			return err
		}
		if _, err := m.perms.require(ctx, tx, actorID, contractID, t.Requires); err != nil {
			return err
		}

		details := map[string]string{
			"from": string(t.From),
			"to":   string(t.To),
			"role": string(perm.Role),
		}
		if note != "" {
			details["note"] = note
		}

		if action == domain.ActionPublish {
			v, err := m.ledger.finalize(ctx, tx, c, actorID, publishSummary(note))
			if err != nil {
				return err
			}
			details["version_id"] = v.ID
			details["sequence"] = strconv.FormatInt(v.Sequence, 10)
		}

		now := time.Now().UTC()
		if err := tx.Contracts().CompareAndSwapStage(ctx, c.ID, t.From, t.To, now); err != nil {
			return err
		}
		if !t.To.Terminal() {
			if err := m.drafts.carryForward(ctx, tx, c.ID, t.From, t.To, actorID); err != nil {
				return err
			}
		}
		if _, err := m.audit.Record(ctx, tx, c.ID, actorID, domain.TransitionAuditAction(action), details); err != nil {
			return err
		}

		c.CurrentStage = t.To
		c.UpdatedAt = now
		contract = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if action == domain.ActionPublish && m.cache != nil {
		if err := m.cache.Invalidate(ctx, contractID); err != nil {
			m.logger.Warn(ctx, "Failed to invalidate published body cache", map[string]interface{}{
				"contract_id": contractID,
				"error":       err.Error(),
			})
		}
	}

	logger.LogPerformance(ctx, m.logger, "stage_transition", time.Since(start), map[string]interface{}{
		"contract_id": contractID,
		"action":      string(action),
	})
	m.logger.Info(ctx, "Contract stage changed", map[string]interface{}{
		"contract_id": contractID,
		"action":      string(action),
		"stage":       string(contract.CurrentStage),
	})
	m.events.emit(ctx, contractID, domain.TransitionAuditAction(action), actorID)
	return contract, nil
}

func publishSummary(note string) string {
	if note != "" {
		return note
	}
	return "Published"
}

package usecase

import (
	"context"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/logger"
	"github.com/inkwell/contractflow/internal/ports"
)

// Dependencies are the collaborators the engine is built from.
// Notifier, Renderer and Cache are optional.
type Dependencies struct {
	Store    ports.Store
	Notifier ports.Notifier
	Renderer ports.Renderer
	Cache    ports.BodyCache
	Logger   logger.Logger
}

// Engine groups the lifecycle components wired against one store.
type Engine struct {
	Permissions   *PermissionEngine
	Collaborators *CollaboratorRegistry
	Stages        *StageMachine
	Drafts        *DraftStore
	Versions      *VersionLedger
	Audit         *AuditLog
	Contracts     *ContractService
}

// NewEngine wires every component.
func NewEngine(deps Dependencies) *Engine {
	log := deps.Logger
	if log == nil {
		log = logger.NewDiscard()
	}
	events := eventEmitter{notifier: deps.Notifier, logger: log}

	perms := NewPermissionEngine(deps.Store, log)
	audit := NewAuditLog(deps.Store, perms, log)
	drafts := &DraftStore{
		store:    deps.Store,
		perms:    perms,
		audit:    audit,
		events:   events,
		renderer: deps.Renderer,
		logger:   log.WithFields(map[string]interface{}{"component": "draft_store"}),
	}
	ledger := &VersionLedger{
		store:  deps.Store,
		perms:  perms,
		audit:  audit,
		events: events,
		logger: log.WithFields(map[string]interface{}{"component": "version_ledger"}),
	}

	return &Engine{
		Permissions: perms,
		Collaborators: &CollaboratorRegistry{
			store:  deps.Store,
			perms:  perms,
			audit:  audit,
			events: events,
			logger: log.WithFields(map[string]interface{}{"component": "collaborator_registry"}),
		},
		Stages: &StageMachine{
			store:  deps.Store,
			perms:  perms,
			drafts: drafts,
			ledger: ledger,
			audit:  audit,
			events: events,
			cache:  deps.Cache,
			logger: log.WithFields(map[string]interface{}{"component": "stage_machine"}),
		},
		Drafts:   drafts,
		Versions: ledger,
		Audit:    audit,
		Contracts: &ContractService{
			store:  deps.Store,
			perms:  perms,
			audit:  audit,
			events: events,
			cache:  deps.Cache,
			logger: log.WithFields(map[string]interface{}{"component": "contracts"}),
		},
	}
}

type clientIPKey struct{}

// WithClientIP attaches the caller's address so audit entries can record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

type eventEmitter struct {
	notifier ports.Notifier
	logger   logger.Logger
}

// emit runs after commit. Delivery errors are logged and never surface to the caller.
func (e eventEmitter) emit(ctx context.Context, contractID string, action domain.AuditAction, actorID string) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.Notify(ctx, ports.Event{
		ContractID: contractID,
		Action:     action,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn(ctx, "Notification dispatch failed", map[string]interface{}{
			"contract_id": contractID,
			"action":      string(action),
			"error":       err.Error(),
		})
	}
}

// lockLive loads and row-locks a contract that has not been archived.
func lockLive(ctx context.Context, tx ports.Tx, contractID string) (*domain.Contract, error) {
	if contractID == "" {
		return nil, domain.Validation("contract_id", "is required")
	}
	c, err := tx.Contracts().Lock(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Archived() {
		return nil, domain.ErrContractNotFound.WithDetails("contract %s is archived", contractID)
	}
	return c, nil
}

// readLive loads a contract that has not been archived without locking it.
func readLive(ctx context.Context, tx ports.Tx, contractID string) (*domain.Contract, error) {
	if contractID == "" {
		return nil, domain.Validation("contract_id", "is required")
	}
	c, err := tx.Contracts().FindByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.Archived() {
		return nil, domain.ErrContractNotFound.WithDetails("contract %s is archived", contractID)
	}
	return c, nil
}

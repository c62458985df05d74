package http

import (
	"context"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/ports"
	"github.com/inkwell/contractflow/internal/usecase"
)

// ContractUseCase defines contract operations used by the contract handler
type ContractUseCase interface {
	Create(ctx context.Context, actorID string, details domain.ContractDetails) (*domain.Contract, error)
	Get(ctx context.Context, contractID, actorID string) (*usecase.ContractView, error)
	ListForUser(ctx context.Context, actorID string) ([]*domain.Contract, error)
	UpdateDetails(ctx context.Context, contractID, actorID string, details domain.ContractDetails) (*domain.Contract, error)
	Archive(ctx context.Context, contractID, actorID string) error
	PublishedBody(ctx context.Context, contractID, actorID string) (string, error)
}

// PermissionUseCase evaluates a caller's effective permission
type PermissionUseCase interface {
	Evaluate(ctx context.Context, userID, contractID string) (domain.EffectivePermission, error)
}

// StageUseCase drives workflow transitions
type StageUseCase interface {
	Transition(ctx context.Context, contractID string, action domain.Action, actorID, note string) (*domain.Contract, error)
}

// CollaboratorUseCase manages role bindings
type CollaboratorUseCase interface {
	Add(ctx context.Context, contractID, userID string, role domain.Role, actorID string) (*domain.Collaborator, error)
	UpdateRole(ctx context.Context, collaboratorID string, role domain.Role, actorID string) (*domain.Collaborator, error)
	Remove(ctx context.Context, collaboratorID, actorID string) error
	TransferOwnership(ctx context.Context, contractID, fromUserID, toUserID, actorID string) error
	List(ctx context.Context, contractID, actorID string) ([]*domain.Collaborator, error)
}

// DraftUseCase reads and saves live drafts
type DraftUseCase interface {
	Save(ctx context.Context, contractID string, stage domain.Stage, body, actorID, expectedToken string) (*domain.Draft, error)
	Current(ctx context.Context, contractID, actorID string) (*domain.Draft, error)
	Render(ctx context.Context, contractID, actorID string) (ports.Rendered, error)
}

// VersionUseCase defines version ledger operations
type VersionUseCase interface {
	Checkpoint(ctx context.Context, contractID, actorID, summary string) (*domain.Version, error)
	Rollback(ctx context.Context, contractID, versionID, actorID string) (*domain.Draft, error)
	List(ctx context.Context, contractID, actorID string) ([]*domain.Version, error)
	Get(ctx context.Context, contractID, versionID, actorID string) (*domain.Version, error)
}

// AuditUseCase queries and verifies the audit log
type AuditUseCase interface {
	Query(ctx context.Context, contractID, actorID string, filter domain.AuditFilter) ([]*domain.AuditEntry, int, error)
	Verify(ctx context.Context, contractID, actorID string) (domain.ChainReport, error)
}

// Services bundles every use case the API exposes.
type Services struct {
	Contracts     ContractUseCase
	Permissions   PermissionUseCase
	Stages        StageUseCase
	Collaborators CollaboratorUseCase
	Drafts        DraftUseCase
	Versions      VersionUseCase
	Audit         AuditUseCase
}

// ServicesFromEngine exposes an engine over HTTP.
func ServicesFromEngine(e *usecase.Engine) Services {
	return Services{
		Contracts:     e.Contracts,
		Permissions:   e.Permissions,
		Stages:        e.Stages,
		Collaborators: e.Collaborators,
		Drafts:        e.Drafts,
		Versions:      e.Versions,
		Audit:         e.Audit,
	}
}

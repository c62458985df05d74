package ports

import (
	"context"
	"time"

	"github.com/inkwell/contractflow/internal/domain"
)

// Store runs units of work. Every mutation and its audit entry go through a
// single InTx call, so either both commit or neither does.
type Store interface {
	// InTx runs fn inside one transaction. A non-nil error from fn rolls back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Contracts() ContractRepository
	Collaborators() CollaboratorRepository
	Drafts() DraftRepository
	Versions() VersionRepository
	Audit() AuditRepository
}

// ContractRepository defines persistence for contracts
type ContractRepository interface {
	// Create saves a new contract
	Create(ctx context.Context, contract *domain.Contract) error

	// FindByID retrieves a contract, archived or not
	FindByID(ctx context.Context, id string) (*domain.Contract, error)

	// Lock retrieves a contract and holds its row until the transaction ends
	Lock(ctx context.Context, id string) (*domain.Contract, error)

	// CompareAndSwapStage moves the contract to `to` only if it is still in `from`
	CompareAndSwapStage(ctx context.Context, id string, from, to domain.Stage, at time.Time) error

	// SetOwner records the contract's current owner
	SetOwner(ctx context.Context, id, ownerID string, at time.Time) error

	// UpdateDetails persists business fields
	UpdateDetails(ctx context.Context, contract *domain.Contract) error

	// Archive soft-deletes a contract
	Archive(ctx context.Context, id string, at time.Time) error

	// ListForUser returns live contracts the user collaborates on
	ListForUser(ctx context.Context, userID string) ([]*domain.Contract, error)
}

// CollaboratorRepository defines persistence for role bindings
type CollaboratorRepository interface {
	// Create fails with domain.ErrDuplicateCollaborator on (contract, user) collision
	Create(ctx context.Context, collaborator *domain.Collaborator) error

	FindByID(ctx context.Context, id string) (*domain.Collaborator, error)

	// FindByContractAndUser fails with domain.ErrNotACollaborator when absent
	FindByContractAndUser(ctx context.Context, contractID, userID string) (*domain.Collaborator, error)

	ListByContract(ctx context.Context, contractID string) ([]*domain.Collaborator, error)

	UpdateRole(ctx context.Context, id string, role domain.Role) error

	Delete(ctx context.Context, id string) error
}

// DraftRepository defines persistence for live drafts
type DraftRepository interface {
	// Find returns the live draft for (contract, stage), or nil when none exists
	Find(ctx context.Context, contractID string, stage domain.Stage) (*domain.Draft, error)

	// Save replaces the live draft only if its token equals expectedToken.
	// An empty expectedToken only succeeds when no live draft exists.
	// On mismatch it returns *domain.StaleDraftError holding the current row.
	Save(ctx context.Context, draft *domain.Draft, expectedToken string) error

	// Put unconditionally replaces the live draft
	Put(ctx context.Context, draft *domain.Draft) error

	// DeleteByContract removes every live draft of a contract
	DeleteByContract(ctx context.Context, contractID string) error
}

// VersionRepository defines append-only persistence for versions
type VersionRepository interface {
	Create(ctx context.Context, version *domain.Version) error

	// LatestSequence returns 0 when the contract has no versions
	LatestSequence(ctx context.Context, contractID string) (int64, error)

	// FindByID fails with domain.ErrVersionNotFound
	FindByID(ctx context.Context, contractID, id string) (*domain.Version, error)

	// Latest fails with domain.ErrVersionNotFound
	Latest(ctx context.Context, contractID string) (*domain.Version, error)

	ListByContract(ctx context.Context, contractID string) ([]*domain.Version, error)
}

// AuditRepository defines append-only persistence for audit entries
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error

	// Last returns the newest entry of a contract, or nil for an empty log
	Last(ctx context.Context, contractID string) (*domain.AuditEntry, error)

	// Query returns one page of matching entries ordered by sequence and the total match count
	Query(ctx context.Context, contractID string, filter domain.AuditFilter) ([]*domain.AuditEntry, int, error)

	// Chain returns every entry of a contract ordered by sequence
	Chain(ctx context.Context, contractID string) ([]*domain.AuditEntry, error)

	// ActiveContracts lists contracts with entries newer than since
	ActiveContracts(ctx context.Context, since time.Time) ([]string, error)
}

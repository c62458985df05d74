// Package memory is a transactional in-process store built on go-memdb.
// Every unit of work runs in one write transaction that commits when it
// succeeds and aborts otherwise.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/inkwell/contractflow/internal/domain"
	"github.com/inkwell/contractflow/internal/ports"
)

const (
	tableContracts     = "contracts"
	tableCollaborators = "collaborators"
	tableDrafts        = "drafts"
	tableVersions      = "versions"
	tableAudit         = "audit"
)

func byContract() *memdb.IndexSchema {
	return &memdb.IndexSchema{
		Name:    "contract",
		Indexer: &memdb.StringFieldIndex{Field: "ContractID"},
	}
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableContracts: {
				Name: tableContracts,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
				},
			},
			tableCollaborators: {
				Name: tableCollaborators,
				Indexes: map[string]*memdb.IndexSchema{
					"id":       {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"contract": byContract(),
					"user":     {Name: "user", Indexer: &memdb.StringFieldIndex{Field: "UserID"}},
					"contract_user": {
						Name:   "contract_user",
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "ContractID"},
							&memdb.StringFieldIndex{Field: "UserID"},
						}},
					},
				},
			},
			tableDrafts: {
				Name: tableDrafts,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "ContractID"},
							&memdb.StringFieldIndex{Field: "Stage"},
						}},
					},
					"contract": byContract(),
				},
			},
			tableVersions: {
				Name: tableVersions,
				Indexes: map[string]*memdb.IndexSchema{
					"id":       {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"contract": byContract(),
				},
			},
			tableAudit: {
				Name: tableAudit,
				Indexes: map[string]*memdb.IndexSchema{
					"id":       {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"contract": byContract(),
				},
			},
		},
	}
}

// Store implements ports.Store in memory. Stored objects are never mutated
// in place: updates insert a modified copy.
type Store struct {
	db *memdb.MemDB
}

// NewStore creates an empty store
func NewStore() *Store {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		panic(fmt.Sprintf("memory store schema: %v", err))
	}
	return &Store{db: db}
}

// InTx runs fn inside one write transaction. go-memdb admits a single writer
// at a time, so transactions are serialized.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	if err := fn(ctx, &tx{txn: txn}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

type tx struct {
	txn *memdb.Txn
}

func (t *tx) Contracts() ports.ContractRepository         { return contractRepo{t.txn} }
func (t *tx) Collaborators() ports.CollaboratorRepository { return collaboratorRepo{t.txn} }
func (t *tx) Drafts() ports.DraftRepository               { return draftRepo{t.txn} }
func (t *tx) Versions() ports.VersionRepository           { return versionRepo{t.txn} }
func (t *tx) Audit() ports.AuditRepository                { return auditRepo{t.txn} }

type contractRepo struct{ txn *memdb.Txn }

func (r contractRepo) Create(ctx context.Context, c *domain.Contract) error {
	stored := *c
	return r.txn.Insert(tableContracts, &stored)
}

func (r contractRepo) FindByID(ctx context.Context, id string) (*domain.Contract, error) {
	raw, err := r.txn.First(tableContracts, "id", id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.ErrContractNotFound
	}
	c := *raw.(*domain.Contract)
	return &c, nil
}

// Lock is FindByID: the single memdb writer already serializes transactions.
func (r contractRepo) Lock(ctx context.Context, id string) (*domain.Contract, error) {
	return r.FindByID(ctx, id)
}

func (r contractRepo) CompareAndSwapStage(ctx context.Context, id string, from, to domain.Stage, at time.Time) error {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c.CurrentStage != from {
		return domain.ErrInvalidTransition.WithDetails("contract moved to %s", c.CurrentStage)
	}
	c.CurrentStage = to
	c.UpdatedAt = at
	return r.txn.Insert(tableContracts, c)
}

func (r contractRepo) SetOwner(ctx context.Context, id, ownerID string, at time.Time) error {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	c.OwnerID = ownerID
	c.UpdatedAt = at
	return r.txn.Insert(tableContracts, c)
}

func (r contractRepo) UpdateDetails(ctx context.Context, contract *domain.Contract) error {
	c, err := r.FindByID(ctx, contract.ID)
	if err != nil {
		return err
	}
	c.Title = contract.Title
	c.Value = contract.Value
	c.Currency = contract.Currency
	c.StartsAt = contract.StartsAt
	c.EndsAt = contract.EndsAt
	c.UpdatedAt = contract.UpdatedAt
	return r.txn.Insert(tableContracts, c)
}

func (r contractRepo) Archive(ctx context.Context, id string, at time.Time) error {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c.DeletedAt != nil {
		return domain.ErrContractNotFound
	}
	c.DeletedAt = &at
	c.UpdatedAt = at
	return r.txn.Insert(tableContracts, c)
}

func (r contractRepo) ListForUser(ctx context.Context, userID string) ([]*domain.Contract, error) {
	it, err := r.txn.Get(tableCollaborators, "user", userID)
	if err != nil {
		return nil, err
	}

	var out []*domain.Contract
	for raw := it.Next(); raw != nil; raw = it.Next() {
		col := raw.(*domain.Collaborator)
		c, err := r.FindByID(ctx, col.ContractID)
		if err != nil || c.DeletedAt != nil {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

type collaboratorRepo struct{ txn *memdb.Txn }

func (r collaboratorRepo) Create(ctx context.Context, c *domain.Collaborator) error {
	existing, err := r.txn.First(tableCollaborators, "contract_user", c.ContractID, c.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrDuplicateCollaborator.WithDetails("user %s", c.UserID)
	}
	stored := *c
	return r.txn.Insert(tableCollaborators, &stored)
}

func (r collaboratorRepo) FindByID(ctx context.Context, id string) (*domain.Collaborator, error) {
	raw, err := r.txn.First(tableCollaborators, "id", id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.ErrCollaboratorNotFound
	}
	c := *raw.(*domain.Collaborator)
	return &c, nil
}

func (r collaboratorRepo) FindByContractAndUser(ctx context.Context, contractID, userID string) (*domain.Collaborator, error) {
	raw, err := r.txn.First(tableCollaborators, "contract_user", contractID, userID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, domain.ErrNotACollaborator
	}
	c := *raw.(*domain.Collaborator)
	return &c, nil
}

func (r collaboratorRepo) ListByContract(ctx context.Context, contractID string) ([]*domain.Collaborator, error) {
	it, err := r.txn.Get(tableCollaborators, "contract", contractID)
	if err != nil {
		return nil, err
	}

	var out []*domain.Collaborator
	for raw := it.Next(); raw != nil; raw = it.Next() {
		c := *raw.(*domain.Collaborator)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.Before(out[j].AddedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (r collaboratorRepo) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	c.Role = role
	return r.txn.Insert(tableCollaborators, c)
}

func (r collaboratorRepo) Delete(ctx context.Context, id string) error {
	c, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return r.txn.Delete(tableCollaborators, c)
}

type draftRepo struct{ txn *memdb.Txn }

func (r draftRepo) Find(ctx context.Context, contractID string, stage domain.Stage) (*domain.Draft, error) {
	raw, err := r.txn.First(tableDrafts, "id", contractID, string(stage))
	if err != nil || raw == nil {
		return nil, err
	}
	d := *raw.(*domain.Draft)
	return &d, nil
}

func (r draftRepo) Save(ctx context.Context, draft *domain.Draft, expectedToken string) error {
	current, err := r.Find(ctx, draft.ContractID, draft.Stage)
	if err != nil {
		return err
	}
	switch {
	case current != nil && current.VersionToken != expectedToken:
		return &domain.StaleDraftError{Current: current}
	case current == nil && expectedToken != "":
		return &domain.StaleDraftError{}
	}
	return r.Put(ctx, draft)
}

func (r draftRepo) Put(ctx context.Context, draft *domain.Draft) error {
	stored := *draft
	return r.txn.Insert(tableDrafts, &stored)
}

func (r draftRepo) DeleteByContract(ctx context.Context, contractID string) error {
	_, err := r.txn.DeleteAll(tableDrafts, "contract", contractID)
	return err
}

type versionRepo struct{ txn *memdb.Txn }

func (r versionRepo) Create(ctx context.Context, v *domain.Version) error {
	n, err := r.LatestSequence(ctx, v.ContractID)
	if err != nil {
		return err
	}
	if v.Sequence != n+1 {
		return domain.ErrValidation.WithDetails("version sequence %d does not follow %d", v.Sequence, n)
	}
	stored := *v
	return r.txn.Insert(tableVersions, &stored)
}

func (r versionRepo) LatestSequence(ctx context.Context, contractID string) (int64, error) {
	list, err := r.ListByContract(ctx, contractID)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (r versionRepo) FindByID(ctx context.Context, contractID, id string) (*domain.Version, error) {
	raw, err := r.txn.First(tableVersions, "id", id)
	if err != nil {
		return nil, err
	}
	if raw == nil || raw.(*domain.Version).ContractID != contractID {
		return nil, domain.ErrVersionNotFound
	}
	v := *raw.(*domain.Version)
	return &v, nil
}

func (r versionRepo) Latest(ctx context.Context, contractID string) (*domain.Version, error) {
	list, err := r.ListByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.ErrVersionNotFound
	}
	return list[len(list)-1], nil
}

func (r versionRepo) ListByContract(ctx context.Context, contractID string) ([]*domain.Version, error) {
	it, err := r.txn.Get(tableVersions, "contract", contractID)
	if err != nil {
		return nil, err
	}

	out := []*domain.Version{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		v := *raw.(*domain.Version)
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

type auditRepo struct{ txn *memdb.Txn }

func (r auditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	last, err := r.Last(ctx, e.ContractID)
	if err != nil {
		return err
	}
	var n int64
	if last != nil {
		n = last.Sequence
	}
	if e.Sequence != n+1 {
		return domain.ErrValidation.WithDetails("audit sequence %d does not follow %d", e.Sequence, n)
	}
	return r.txn.Insert(tableAudit, copyEntry(e))
}

func (r auditRepo) Last(ctx context.Context, contractID string) (*domain.AuditEntry, error) {
	list, err := r.Chain(ctx, contractID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[len(list)-1], nil
}

func (r auditRepo) Query(ctx context.Context, contractID string, filter domain.AuditFilter) ([]*domain.AuditEntry, int, error) {
	chain, err := r.Chain(ctx, contractID)
	if err != nil {
		return nil, 0, err
	}

	var matched []*domain.AuditEntry
	for _, e := range chain {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	total := len(matched)
	if filter.Offset >= total {
		return []*domain.AuditEntry{}, total, nil
	}
	end := total
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matched[filter.Offset:end], total, nil
}

func (r auditRepo) Chain(ctx context.Context, contractID string) ([]*domain.AuditEntry, error) {
	it, err := r.txn.Get(tableAudit, "contract", contractID)
	if err != nil {
		return nil, err
	}

	out := []*domain.AuditEntry{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, copyEntry(raw.(*domain.AuditEntry)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (r auditRepo) ActiveContracts(ctx context.Context, since time.Time) ([]string, error) {
	it, err := r.txn.Get(tableContracts, "id")
	if err != nil {
		return nil, err
	}

	var ids []string
	for raw := it.Next(); raw != nil; raw = it.Next() {
		id := raw.(*domain.Contract).ID
		last, err := r.Last(ctx, id)
		if err != nil {
			return nil, err
		}
		if last != nil && !last.Timestamp.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// copyEntry detaches Details so callers never alias stored data.
func copyEntry(e *domain.AuditEntry) *domain.AuditEntry {
	out := *e
	if e.Details != nil {
		out.Details = make(map[string]string, len(e.Details))
		for k, v := range e.Details {
			out.Details[k] = v
		}
	}
	return &out
}

package domain

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// AuditAction names what happened in an audit entry.
type AuditAction string

const (
	AuditContractCreated     AuditAction = "contract.created"
	AuditContractUpdated     AuditAction = "contract.updated"
	AuditContractArchived    AuditAction = "contract.archived"
	AuditCollaboratorAdded   AuditAction = "collaborator.added"
	AuditCollaboratorRole    AuditAction = "collaborator.role_updated"
	AuditCollaboratorRemoved AuditAction = "collaborator.removed"
	AuditOwnershipTransfer   AuditAction = "ownership.transferred"
	AuditDraftSaved          AuditAction = "draft.saved"
	AuditVersionCreated      AuditAction = "version.created"
	AuditVersionRollback     AuditAction = "version.rolled_back"
)

// TransitionAuditAction is the audit action recorded for a workflow edge.
func TransitionAuditAction(a Action) AuditAction {
	return AuditAction("stage." + string(a))
}

// AuditEntry is one immutable, hash-chained record of a state change.
type AuditEntry struct {
	ID         string            `json:"id"`
	ContractID string            `json:"contract_id"`
	Sequence   int64             `json:"sequence"`
	ActorID    string            `json:"actor_id"`
	Action     AuditAction       `json:"action"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	IPAddress  string            `json:"ip_address,omitempty"`
	PrevHash   string            `json:"prev_hash"`
	Hash       string            `json:"hash"`
}

// NewAuditEntry builds the entry following prev (nil for the first entry of a
// contract) and seals it. Timestamps are truncated to microseconds so the hash
// survives a round trip through PostgreSQL.
func NewAuditEntry(prev *AuditEntry, contractID, actorID string, action AuditAction, details map[string]string, ip string) *AuditEntry {
	e := &AuditEntry{
		ID:         uuid.NewString(),
		ContractID: contractID,
		Sequence:   1,
		ActorID:    actorID,
		Action:     action,
		Details:    details,
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
		IPAddress:  ip,
	}
	if prev != nil {
		e.Sequence = prev.Sequence + 1
		e.PrevHash = prev.Hash
		if e.Timestamp.Before(prev.Timestamp) {
			e.Timestamp = prev.Timestamp
		}
	}
	e.Hash = e.ComputeHash()
	return e
}

type auditPayload struct {
	ID         string            `json:"id"`
	ContractID string            `json:"contract_id"`
	Sequence   int64             `json:"sequence"`
	ActorID    string            `json:"actor_id"`
	Action     AuditAction       `json:"action"`
	Details    map[string]string `json:"details"`
	Timestamp  string            `json:"timestamp"`
	IPAddress  string            `json:"ip_address"`
	PrevHash   string            `json:"prev_hash"`
}

// ComputeHash is BLAKE2b-256 over the canonical JSON of every field but Hash.
func (e *AuditEntry) ComputeHash() string {
	p := auditPayload{
		ID:         e.ID,
		ContractID: e.ContractID,
		Sequence:   e.Sequence,
		ActorID:    e.ActorID,
		Action:     e.Action,
		Details:    e.Details,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		IPAddress:  e.IPAddress,
		PrevHash:   e.PrevHash,
	}
	if p.Details == nil {
		p.Details = map[string]string{}
	}
	b, _ := json.Marshal(p)
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// AuditFilter narrows an audit query for display.
type AuditFilter struct {
	ActorID *string      `json:"actor_id,omitempty"`
	Action  *AuditAction `json:"action,omitempty"`
	From    *time.Time   `json:"from,omitempty"`
	To      *time.Time   `json:"to,omitempty"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// Matches applies the non-pagination parts of the filter.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if f.Action != nil && e.Action != *f.Action {
		return false
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// ChainReport is the result of verifying a contract's audit chain.
type ChainReport struct {
	ContractID string `json:"contract_id"`
	Entries    int    `json:"entries"`
	Valid      bool   `json:"valid"`
	BrokenAt   int64  `json:"broken_at,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// VerifyChain checks sequence continuity, back-links and hashes of entries
// ordered by sequence.
func VerifyChain(contractID string, entries []*AuditEntry) ChainReport {
	r := ChainReport{ContractID: contractID, Entries: len(entries), Valid: true}
	prevHash := ""
	for i, e := range entries {
		want := int64(i + 1)
		switch {
		case e.Sequence != want:
			r.Valid, r.BrokenAt, r.Reason = false, want, "sequence gap"
		case e.PrevHash != prevHash:
			r.Valid, r.BrokenAt, r.Reason = false, e.Sequence, "previous hash mismatch"
		case e.ComputeHash() != e.Hash:
			r.Valid, r.BrokenAt, r.Reason = false, e.Sequence, "entry hash mismatch"
		}
		if !r.Valid {
			return r
		}
		prevHash = e.Hash
	}
	return r
}

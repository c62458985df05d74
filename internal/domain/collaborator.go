package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is a collaborator's binding on a contract.
type Role string

const (
	RoleOwner    Role = "OWNER"
	RoleEditor   Role = "EDITOR"
	RoleReviewer Role = "REVIEWER"
	RoleViewer   Role = "VIEWER"
)

// ParseRole accepts the closed set of roles only.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOwner, RoleEditor, RoleReviewer, RoleViewer:
		return r, nil
	}
	return "", Validation("role", "unknown role "+s)
}

// Rank orders roles from Viewer (1) to Owner (4). Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleEditor:
		return 3
	case RoleReviewer:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// Capability is a single grant checked before a mutation.
type Capability string

const (
	CapView   Capability = "view"
	CapEdit   Capability = "edit"
	CapReview Capability = "review"
	CapOwner  Capability = "owner"
)

// EffectivePermission is derived from a collaborator row on demand; it is never stored.
type EffectivePermission struct {
	Role      Role `json:"role"`
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanReview bool `json:"can_review"`
	IsOwner   bool `json:"is_owner"`
}

// PermissionFor maps a role to its capability set. Reviewer and Editor grants
// are parallel: reviewers cannot edit and editors cannot review.
func PermissionFor(role Role) EffectivePermission {
	p := EffectivePermission{Role: role}
	switch role {
	case RoleOwner:
		p.CanView, p.CanEdit, p.CanReview, p.IsOwner = true, true, true, true
	case RoleEditor:
		p.CanView, p.CanEdit = true, true
	case RoleReviewer:
		p.CanView, p.CanReview = true, true
	case RoleViewer:
		p.CanView = true
	}
	return p
}

// Has reports whether the capability is granted.
func (p EffectivePermission) Has(c Capability) bool {
	switch c {
	case CapView:
		return p.CanView
	case CapEdit:
		return p.CanEdit
	case CapReview:
		return p.CanReview
	case CapOwner:
		return p.IsOwner
	}
	return false
}

// Require returns ErrPermissionDenied when c is absent.
func (p EffectivePermission) Require(c Capability) error {
	if p.Has(c) {
		return nil
	}
	return ErrPermissionDenied.WithDetails("role %s lacks %s", p.Role, c)
}

// Collaborator binds a user to a contract with exactly one role.
type Collaborator struct {
	ID         string    `json:"id"`
	ContractID string    `json:"contract_id"`
	UserID     string    `json:"user_id"`
	Role       Role      `json:"role"`
	AddedAt    time.Time `json:"added_at"`
}

// NewCollaborator creates a binding with a fresh id.
func NewCollaborator(contractID, userID string, role Role) *Collaborator {
	return &Collaborator{
		ID:         uuid.NewString(),
		ContractID: contractID,
		UserID:     userID,
		Role:       role,
		AddedAt:    time.Now().UTC(),
	}
}

// CountOwners counts Owner rows in a contract's collaborator set.
func CountOwners(collaborators []*Collaborator) int {
	n := 0
	for _, c := range collaborators {
		if c.Role == RoleOwner {
			n++
		}
	}
	return n
}

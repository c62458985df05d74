package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage is a node of the contract workflow.
type Stage string

const (
	StageDraft            Stage = "DRAFT"
	StagePendingReview    Stage = "PENDING_REVIEW"
	StageApproved         Stage = "APPROVED"
	StageRejected         Stage = "REJECTED"
	StageChangesRequested Stage = "CHANGES_REQUESTED"
	StagePublished        Stage = "PUBLISHED"
)

// Stages lists every node of the workflow.
var Stages = []Stage{
	StageDraft, StagePendingReview, StageApproved,
	StageRejected, StageChangesRequested, StagePublished,
}

// Valid reports whether s is a node of the workflow.
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal stages have no outgoing edges.
func (s Stage) Terminal() bool {
	return s == StageRejected || s == StagePublished
}

// Action is a workflow edge label.
type Action string

const (
	ActionSubmitForReview Action = "submitForReview"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestChanges  Action = "requestChanges"
	ActionResume          Action = "resume"
	ActionPublish         Action = "publish"
)

// Transition is one row of the workflow table.
type Transition struct {
	From     Stage
	Action   Action
	To       Stage
	Requires Capability
}

// Workflow is the complete transition table.
var Workflow = []Transition{
	{StageDraft, ActionSubmitForReview, StagePendingReview, CapEdit},
	{StagePendingReview, ActionApprove, StageApproved, CapReview},
	{StagePendingReview, ActionReject, StageRejected, CapReview},
	{StagePendingReview, ActionRequestChanges, StageChangesRequested, CapReview},
	{StageChangesRequested, ActionResume, StageDraft, CapEdit},
	{StageApproved, ActionPublish, StagePublished, CapOwner},
}

// Lookup finds the edge leaving from for action.
func Lookup(from Stage, action Action) (Transition, error) {
	for _, t := range Workflow {
		if t.From == from && t.Action == action {
			return t, nil
		}
	}
	return Transition{}, ErrInvalidTransition.WithDetails("no %q edge from %s", action, from)
}

// ParseAction accepts only actions present in the workflow table.
func ParseAction(s string) (Action, error) {
	for _, t := range Workflow {
		if string(t.Action) == s {
			return t.Action, nil
		}
	}
	return "", Validation("action", "unknown action "+s)
}

// Contract is the engine's aggregate root.
type Contract struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	OwnerID      string     `json:"owner_id"`
	CurrentStage Stage      `json:"current_stage"`
	Value        float64    `json:"value"`
	Currency     string     `json:"currency,omitempty"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// ContractDetails are the business fields a caller may edit.
type ContractDetails struct {
	Title    string     `json:"title"`
	Value    float64    `json:"value"`
	Currency string     `json:"currency,omitempty"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

// Validate checks business fields.
func (d ContractDetails) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return Validation("title", "is required")
	}
	if len(d.Title) > 300 {
		return Validation("title", "must not exceed 300 characters")
	}
	if d.Value < 0 {
		return Validation("value", "must not be negative")
	}
	if d.StartsAt != nil && d.EndsAt != nil && d.EndsAt.Before(*d.StartsAt) {
		return Validation("ends_at", "must not be before starts_at")
	}
	return nil
}

// NewContract creates a contract in the Draft stage owned by ownerID.
func NewContract(ownerID string, d ContractDetails) *Contract {
	now := time.Now().UTC()
	return &Contract{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(d.Title),
		OwnerID:      ownerID,
		CurrentStage: StageDraft,
		Value:        d.Value,
		Currency:     d.Currency,
		StartsAt:     d.StartsAt,
		EndsAt:       d.EndsAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Apply copies editable fields onto the contract.
func (c *Contract) Apply(d ContractDetails) {
	c.Title = strings.TrimSpace(d.Title)
	c.Value = d.Value
	c.Currency = d.Currency
	c.StartsAt = d.StartsAt
	c.EndsAt = d.EndsAt
	c.UpdatedAt = time.Now().UTC()
}

// Archived reports whether the contract was soft-deleted.
func (c *Contract) Archived() bool {
	return c.DeletedAt != nil
}

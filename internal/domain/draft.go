package domain

import (
	"time"

	"github.com/google/uuid"
)

// Draft is the live working copy of a contract for one stage.
type Draft struct {
	ContractID   string    `json:"contract_id"`
	Stage        Stage     `json:"stage"`
	Body         string    `json:"body"`
	SavedAt      time.Time `json:"saved_at"`
	SavedBy      string    `json:"saved_by"`
	VersionToken string    `json:"version_token"`
}

// NewVersionToken issues a single-use optimistic concurrency token.
func NewVersionToken() string {
	return uuid.NewString()
}

// NextDraft builds the row that supersedes the live draft for (contractID, stage).
func NextDraft(contractID string, stage Stage, body, savedBy string) *Draft {
	return &Draft{
		ContractID:   contractID,
		Stage:        stage,
		Body:         body,
		SavedAt:      time.Now().UTC(),
		SavedBy:      savedBy,
		VersionToken: NewVersionToken(),
	}
}

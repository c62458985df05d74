package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Version is an immutable, sequence-numbered snapshot of a contract body.
type Version struct {
	ID            string    `json:"id"`
	ContractID    string    `json:"contract_id"`
	Sequence      int64     `json:"sequence"`
	SnapshotBody  string    `json:"snapshot_body"`
	ChangeSummary string    `json:"change_summary"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by"`
}

// NewVersion builds the snapshot following previous (0 when none exists).
func NewVersion(contractID string, previous int64, body, summary, createdBy string) *Version {
	return &Version{
		ID:            uuid.NewString(),
		ContractID:    contractID,
		Sequence:      previous + 1,
		SnapshotBody:  body,
		ChangeSummary: strings.TrimSpace(summary),
		CreatedAt:     time.Now().UTC(),
		CreatedBy:     createdBy,
	}
}

package models

import "time"

type PIDType string

type PIDStatus string

const (
	PIDTypeRecord  PIDType = "recid"
	PIDTypeConcept PIDType = "conceptrecid"

	PIDStatusNew        PIDStatus = "N"
	PIDStatusRegistered PIDStatus = "R"
)

// PersistentIdentifier is the external handle of a draft, a record or a lineage.
type PersistentIdentifier struct {
	Type      PIDType   `json:"type"`
	Value     string    `json:"value"`
	Status    PIDStatus `json:"status"`
	TargetID  string    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PersistentIdentifier) IsRegistered() bool {
	return p.Status == PIDStatusRegistered
}

func (p *PersistentIdentifier) Clone() *PersistentIdentifier {
	if p == nil {
		return nil
	}

	clone := *p

	return &clone
}

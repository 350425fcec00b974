package models

import "time"

// Record is the published, versioned form of a draft. It shares its ID with the draft.
type Record struct {
	ParentRef

	ID           string         `json:"id"`
	VersionIndex int            `json:"version_index"`
	RevisionID   int            `json:"revision_id"`
	CreatedBy    string         `json:"created_by"`
	Data         map[string]any `json:"data"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewRecordFromDraft builds the first published revision of a draft.
func NewRecordFromDraft(draft *Draft, now time.Time) *Record {
	return &Record{
		ParentRef:    draft.ParentRef,
		ID:           draft.ID,
		VersionIndex: draft.VersionIndex,
		RevisionID:   0,
		CreatedBy:    draft.CreatedBy,
		Data:         CloneData(draft.Data),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// UpdateFromDraft replaces the record content with the draft's and bumps its revision.
func (r *Record) UpdateFromDraft(draft *Draft, now time.Time) {
	r.Data = CloneData(draft.Data)
	r.VersionIndex = draft.VersionIndex
	r.RevisionID++
	r.UpdatedAt = now
}

func (r *Record) Owner() string {
	return r.CreatedBy
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	clone := *r
	clone.Data = CloneData(r.Data)

	return &clone
}

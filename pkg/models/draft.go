package models

import "time"

// Draft is the mutable, editable form of a record.
type Draft struct {
	ParentRef

	ID            string         `json:"id"`
	VersionIndex  int            `json:"version_index"`
	RevisionID    int            `json:"revision_id"`
	ForkVersionID *int           `json:"fork_version_id,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	CreatedBy     string         `json:"created_by"`
	Data          map[string]any `json:"data"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
}

func (d *Draft) Owner() string {
	return d.CreatedBy
}

func (d *Draft) IsDeleted() bool {
	return d.DeletedAt != nil
}

// IsFork reports whether the draft edits an already published record.
func (d *Draft) IsFork() bool {
	return d.ForkVersionID != nil
}

func (d *Draft) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && !d.ExpiresAt.After(now)
}

// Touch marks a persisted mutation of the draft.
func (d *Draft) Touch(now time.Time) {
	d.RevisionID++
	d.UpdatedAt = now
}

func (d *Draft) SoftDelete(now time.Time) {
	deletedAt := now
	d.DeletedAt = &deletedAt
	d.Touch(now)
}

func (d *Draft) Undelete(now time.Time) {
	d.DeletedAt = nil
	d.Touch(now)
}

func (d *Draft) SetFork(revisionID int) {
	fork := revisionID
	d.ForkVersionID = &fork
}

func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}

	clone := *d
	clone.Data = CloneData(d.Data)

	if d.ForkVersionID != nil {
		fork := *d.ForkVersionID
		clone.ForkVersionID = &fork
	}

	if d.ExpiresAt != nil {
		expiresAt := *d.ExpiresAt
		clone.ExpiresAt = &expiresAt
	}

	if d.DeletedAt != nil {
		deletedAt := *d.DeletedAt
		clone.DeletedAt = &deletedAt
	}

	return &clone
}

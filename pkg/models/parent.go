package models

import "time"

// ParentRecord groups every version of a record into one lineage.
type ParentRecord struct {
	ID             string    `json:"id"`
	VersionCounter int       `json:"version_counter"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewParentRecord returns a lineage whose first version index is already allocated.
func NewParentRecord(id string, now time.Time) *ParentRecord {
	return &ParentRecord{
		ID:             id,
		VersionCounter: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NextVersion allocates the next version index of the lineage.
func (p *ParentRecord) NextVersion(now time.Time) int {
	p.VersionCounter++
	p.UpdatedAt = now

	return p.VersionCounter
}

func (p *ParentRecord) Clone() *ParentRecord {
	if p == nil {
		return nil
	}

	clone := *p

	return &clone
}

// ParentState is the versioning state of a lineage.
type ParentState struct {
	ParentID     string  `json:"parent_id"`
	LatestID     *string `json:"latest_id,omitempty"`
	NextDraftID  *string `json:"next_draft_id,omitempty"`
	Count        int     `json:"count"`
	CurrentIndex int     `json:"current_index"`
}

func NewParentState(parentID string) *ParentState {
	return &ParentState{ParentID: parentID}
}

// IsLatest reports whether id is the latest published record of the lineage.
func (s *ParentState) IsLatest(id string) bool {
	return s.LatestID != nil && *s.LatestID == id
}

// IsNextDraft reports whether id is the in-flight draft of a new version.
func (s *ParentState) IsNextDraft(id string) bool {
	return s.NextDraftID != nil && *s.NextDraftID == id
}

// LatestDraftID is the draft that should be flagged as latest in search results:
// the pending new version when there is one, the latest record otherwise.
func (s *ParentState) LatestDraftID() string {
	if s.NextDraftID != nil {
		return *s.NextDraftID
	}

	if s.LatestID != nil {
		return *s.LatestID
	}

	return ""
}

func (s *ParentState) SetLatest(id string, versionIndex int) {
	latest := id
	s.LatestID = &latest
	s.Count++

	if versionIndex > s.CurrentIndex {
		s.CurrentIndex = versionIndex
	}
}

func (s *ParentState) SetNextDraft(id string) {
	next := id
	s.NextDraftID = &next
}

func (s *ParentState) ClearNextDraft() {
	s.NextDraftID = nil
}

func (s *ParentState) Clone() *ParentState {
	if s == nil {
		return nil
	}

	clone := *s
	if s.LatestID != nil {
		latest := *s.LatestID
		clone.LatestID = &latest
	}

	if s.NextDraftID != nil {
		next := *s.NextDraftID
		clone.NextDraftID = &next
	}

	return &clone
}

// ParentRef binds a draft or record to its lineage.
type ParentRef struct {
	ParentID string `json:"parent_id"`
}

func (r ParentRef) Parent() string {
	return r.ParentID
}

func (r ParentRef) SameLineage(other ParentRef) bool {
	return r.ParentID != "" && r.ParentID == other.ParentID
}

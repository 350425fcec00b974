package services

import (
	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/search"
)

// draftDocument builds the index entry of a live draft. hasRecord marks a draft that
// edits an already published record; such a draft counts as published.
func draftDocument(draft *models.Draft, pid string, state *models.ParentState, hasRecord bool) *search.Document {
	latest := state.LatestDraftID()

	return &search.Document{
		ID:           draft.ID,
		Kind:         search.KindDraft,
		PID:          pid,
		ParentID:     draft.ParentID,
		CreatedBy:    draft.CreatedBy,
		VersionIndex: draft.VersionIndex,
		RevisionID:   draft.RevisionID,
		Data:         models.CloneData(draft.Data),
		IsPublished:  hasRecord,
		HasDraft:     true,
		IsLatest:     latest == "" || latest == draft.ID,
		ExpiresAt:    draft.ExpiresAt,
		CreatedAt:    draft.CreatedAt,
		UpdatedAt:    draft.UpdatedAt,
	}
}

// recordDocument builds the index entry of a record. A live draft of the same UUID
// shadows the record in draft searches.
func recordDocument(record *models.Record, pid string, state *models.ParentState, hasDraft bool) *search.Document {
	return &search.Document{
		ID:           record.ID,
		Kind:         search.KindRecord,
		PID:          pid,
		ParentID:     record.ParentID,
		CreatedBy:    record.CreatedBy,
		VersionIndex: record.VersionIndex,
		RevisionID:   record.RevisionID,
		Data:         models.CloneData(record.Data),
		IsPublished:  true,
		HasDraft:     hasDraft,
		IsLatest:     state.IsLatest(record.ID),
		Shadowed:     hasDraft,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

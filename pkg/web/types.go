// Package web provides the HTTP request and response types of the drafts API.
package web

import (
	"time"

	"github.com/dukex/drafts/pkg/search"
	"github.com/dukex/drafts/pkg/services"
	"github.com/dukex/drafts/pkg/validation"
)

// DraftRequest is the body of create and update calls.
type DraftRequest struct {
	Metadata map[string]any `json:"metadata" validate:"required"`
}

// SearchRequest holds the query string of the search endpoints.
type SearchRequest struct {
	Q      string `query:"q"`
	Page   int    `query:"page"   validate:"min=0"`
	Size   int    `query:"size"   validate:"min=0,max=100"`
	Latest bool   `query:"latest"`
}

func (r SearchRequest) query() search.Query {
	return search.Query{
		Text:       r.Q,
		Page:       r.Page,
		Size:       r.Size,
		LatestOnly: r.Latest,
	}
}

type DraftResponse struct {
	ID            string                  `json:"id"`
	PID           string                  `json:"pid"`
	ParentID      string                  `json:"parent_id"`
	RevisionID    int                     `json:"revision_id"`
	VersionIndex  int                     `json:"version_index"`
	ForkVersionID *int                    `json:"fork_version_id,omitempty"`
	ExpiresAt     *time.Time              `json:"expires_at,omitempty"`
	CreatedBy     string                  `json:"created_by"`
	Metadata      map[string]any          `json:"metadata"`
	Errors        []validation.FieldError `json:"errors,omitempty"`
	IsPublished   bool                    `json:"is_published"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

func newDraftResponse(result *services.DraftResult) DraftResponse {
	draft := result.Draft

	return DraftResponse{
		ID:            draft.ID,
		PID:           result.PID.Value,
		ParentID:      draft.ParentID,
		RevisionID:    draft.RevisionID,
		VersionIndex:  draft.VersionIndex,
		ForkVersionID: draft.ForkVersionID,
		ExpiresAt:     draft.ExpiresAt,
		CreatedBy:     draft.CreatedBy,
		Metadata:      draft.Data,
		Errors:        result.Errors,
		IsPublished:   result.PID.IsRegistered(),
		CreatedAt:     draft.CreatedAt,
		UpdatedAt:     draft.UpdatedAt,
	}
}

type RecordResponse struct {
	ID           string         `json:"id"`
	PID          string         `json:"pid"`
	ParentID     string         `json:"parent_id"`
	RevisionID   int            `json:"revision_id"`
	VersionIndex int            `json:"version_index"`
	CreatedBy    string         `json:"created_by"`
	Metadata     map[string]any `json:"metadata"`
	IsPublished  bool           `json:"is_published"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func newRecordResponse(result *services.RecordResult) RecordResponse {
	record := result.Record

	return RecordResponse{
		ID:           record.ID,
		PID:          result.PID.Value,
		ParentID:     record.ParentID,
		RevisionID:   record.RevisionID,
		VersionIndex: record.VersionIndex,
		CreatedBy:    record.CreatedBy,
		Metadata:     record.Data,
		IsPublished:  true,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

type SearchResponse struct {
	Hits  []*search.Document `json:"hits"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Size  int                `json:"size"`
}

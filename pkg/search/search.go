// Package search keeps the search index in step with the transactional store.
package search

import (
	"context"
	"time"
)

type Kind string

const (
	KindDraft  Kind = "draft"
	KindRecord Kind = "record"
)

// Document is the indexed view of a draft or a record. The boolean flags are computed
// from the lineage at indexing time.
type Document struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	PID          string         `json:"pid"`
	ParentID     string         `json:"parent_id"`
	CreatedBy    string         `json:"created_by"`
	VersionIndex int            `json:"version_index"`
	RevisionID   int            `json:"revision_id"`
	Data         map[string]any `json:"data"`
	IsPublished  bool           `json:"is_published"`
	HasDraft     bool           `json:"has_draft"`
	IsLatest     bool           `json:"is_latest"`
	// Shadowed marks a record whose UUID has a live draft.
	Shadowed  bool       `json:"shadowed"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (d *Document) Owner() string {
	return d.CreatedBy
}

// Result is a page of matching documents.
type Result struct {
	Hits  []*Document `json:"hits"`
	Total int         `json:"total"`
}

// Indexer is the search index client.
type Indexer interface {
	Index(ctx context.Context, doc *Document, refresh bool) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, kind Kind, id string, refresh bool) error
	Search(ctx context.Context, query Query) (*Result, error)
}

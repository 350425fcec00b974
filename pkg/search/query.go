package search

import (
	"sort"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Query filters documents of one kind. Text matches case-insensitively against every
// string value in the document content.
type Query struct {
	Kind            Kind
	Text            string
	CreatedBy       string
	ParentID        string
	LatestOnly      bool
	ExcludeShadowed bool
	Page            int
	Size            int

	// Allow, when set, is consulted for every candidate before pagination.
	Allow func(doc *Document) bool
}

func (q Query) normalized() Query {
	if q.Size <= 0 {
		q.Size = DefaultPageSize
	}

	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}

	if q.Page <= 0 {
		q.Page = 1
	}

	q.Text = strings.ToLower(strings.TrimSpace(q.Text))

	return q
}

// Matches reports whether doc satisfies every filter of q.
func (q Query) Matches(doc *Document) bool {
	q = q.normalized()

	switch {
	case q.Kind != "" && doc.Kind != q.Kind:
		return false
	case q.CreatedBy != "" && doc.CreatedBy != q.CreatedBy:
		return false
	case q.ParentID != "" && doc.ParentID != q.ParentID:
		return false
	case q.LatestOnly && !doc.IsLatest:
		return false
	case q.ExcludeShadowed && doc.Shadowed:
		return false
	case q.Text != "" && !containsText(doc.Data, q.Text):
		return false
	case q.Allow != nil && !q.Allow(doc):
		return false
	}

	return true
}

func containsText(value any, text string) bool {
	switch typed := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(typed), text)
	case map[string]any:
		for _, v := range typed {
			if containsText(v, text) {
				return true
			}
		}
	case []any:
		for _, v := range typed {
			if containsText(v, text) {
				return true
			}
		}
	}

	return false
}

// Apply filters, sorts by most recently updated and paginates docs.
func (q Query) Apply(docs []*Document) *Result {
	q = q.normalized()

	hits := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		if q.Matches(doc) {
			hits = append(hits, doc)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if !hits[i].UpdatedAt.Equal(hits[j].UpdatedAt) {
			return hits[i].UpdatedAt.After(hits[j].UpdatedAt)
		}

		return hits[i].ID < hits[j].ID
	})

	total := len(hits)
	start := (q.Page - 1) * q.Size

	if start >= total {
		return &Result{Hits: []*Document{}, Total: total}
	}

	end := min(start+q.Size, total)

	return &Result{Hits: hits[start:end], Total: total}
}

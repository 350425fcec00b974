// Package memory provides an in-process search index.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dukex/drafts/pkg/search"
)

// Index keeps documents in memory. Writes are visible immediately, so refresh is implied.
type Index struct {
	mu   sync.RWMutex
	docs map[search.Kind]map[string][]byte
}

func NewIndex() *Index {
	return &Index{docs: map[search.Kind]map[string][]byte{}}
}

func (i *Index) Index(_ context.Context, doc *search.Document, _ bool) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.docs[doc.Kind] == nil {
		i.docs[doc.Kind] = map[string][]byte{}
	}

	i.docs[doc.Kind][doc.ID] = payload

	return nil
}

func (i *Index) Delete(_ context.Context, kind search.Kind, id string, _ bool) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.docs[kind], id)

	return nil
}

func (i *Index) Search(_ context.Context, query search.Query) (*search.Result, error) {
	docs, err := i.decode(query.Kind)
	if err != nil {
		return nil, err
	}

	return query.Apply(docs), nil
}

// Get returns the stored document, or nil.
func (i *Index) Get(kind search.Kind, id string) *search.Document {
	i.mu.RLock()
	payload, ok := i.docs[kind][id]
	i.mu.RUnlock()

	if !ok {
		return nil
	}

	var doc search.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil
	}

	return &doc
}

func (i *Index) decode(kind search.Kind) ([]*search.Document, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docs := make([]*search.Document, 0)

	for k, byID := range i.docs {
		if kind != "" && k != kind {
			continue
		}

		for id, payload := range byID {
			var doc search.Document
			if err := json.Unmarshal(payload, &doc); err != nil {
				return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
			}

			docs = append(docs, &doc)
		}
	}

	return docs, nil
}

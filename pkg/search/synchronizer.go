package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/drafts/pkg/metrics"
)

type step struct {
	kind    Kind
	id      string
	doc     *Document
	delete  bool
	refresh bool
}

// Plan is the ordered list of index writes computed inside a transaction and applied
// after it commits.
type Plan struct {
	steps []step
}

func (p *Plan) Index(doc *Document, refresh bool) {
	p.steps = append(p.steps, step{kind: doc.Kind, id: doc.ID, doc: doc, refresh: refresh})
}

func (p *Plan) Delete(kind Kind, id string, refresh bool) {
	p.steps = append(p.steps, step{kind: kind, id: id, delete: true, refresh: refresh})
}

// Reset drops every planned step. Used when a transaction is retried from scratch.
func (p *Plan) Reset() {
	p.steps = nil
}

func (p *Plan) Len() int {
	return len(p.steps)
}

// Affected returns the distinct IDs the plan touches, in first-seen order.
func (p *Plan) Affected() []string {
	seen := make(map[string]bool, len(p.steps))
	ids := make([]string, 0, len(p.steps))

	for _, s := range p.steps {
		if !seen[s.id] {
			seen[s.id] = true
			ids = append(ids, s.id)
		}
	}

	return ids
}

// Synchronizer applies plans to the index. Failures never undo the committed write: every
// step is attempted and the failures are returned joined.
type Synchronizer struct {
	indexer Indexer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewSynchronizer(indexer Indexer, logger *slog.Logger, m *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		indexer: indexer,
		logger:  logger.With("module", "index_synchronizer"),
		metrics: m,
	}
}

func (s *Synchronizer) Apply(ctx context.Context, plan *Plan) error {
	var errs []error

	for _, st := range plan.steps {
		var err error
		if st.delete {
			err = s.indexer.Delete(ctx, st.kind, st.id, st.refresh)
		} else {
			err = s.indexer.Index(ctx, st.doc, st.refresh)
		}

		if err != nil {
			s.logger.ErrorContext(ctx, "Index update failed", "kind", st.kind, "id", st.id, "delete", st.delete, "error", err)
			s.metrics.IncrementIndexFailure(string(st.kind))

			errs = append(errs, fmt.Errorf("%s %s: %w", st.kind, st.id, err))
		}
	}

	return errors.Join(errs...)
}

func (s *Synchronizer) Search(ctx context.Context, query Query) (*Result, error) {
	return s.indexer.Search(ctx, query)
}

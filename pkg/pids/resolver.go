package pids

import (
	"context"
	"fmt"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/persistence"
)

// Resolver maps record identifiers to the draft or record they point at.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve looks up a record identifier. With registeredOnly, identifiers still in NEW
// status are reported as not found.
func (r *Resolver) Resolve(ctx context.Context, tx persistence.IdentifierRepository, value string, registeredOnly bool) (*models.PersistentIdentifier, error) {
	pid, err := tx.IdentifierByValue(ctx, models.PIDTypeRecord, value)
	if err != nil {
		return nil, err
	}

	if registeredOnly && !pid.IsRegistered() {
		return nil, persistence.NewEntityError("Resolve", string(pid.Type), value, persistence.ErrIdentifierNotFound)
	}

	return pid, nil
}

// ResolveDraft returns the live draft behind value. The identifier need not be registered.
func (r *Resolver) ResolveDraft(ctx context.Context, tx persistence.Transaction, value string) (*models.PersistentIdentifier, *models.Draft, error) {
	pid, err := r.Resolve(ctx, tx, value, false)
	if err != nil {
		return nil, nil, err
	}

	draft, err := tx.DraftByID(ctx, pid.TargetID, false)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve draft %s: %w", value, err)
	}

	return pid, draft, nil
}

// ResolveRecord returns the published record behind value.
func (r *Resolver) ResolveRecord(ctx context.Context, tx persistence.Transaction, value string) (*models.PersistentIdentifier, *models.Record, error) {
	pid, err := r.Resolve(ctx, tx, value, true)
	if err != nil {
		return nil, nil, err
	}

	record, err := tx.RecordByID(ctx, pid.TargetID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve record %s: %w", value, err)
	}

	return pid, record, nil
}

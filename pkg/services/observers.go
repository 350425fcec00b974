package services

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/persistence"
)

// WorkflowObserver is notified inside the workflow transaction, after the entities are
// prepared and before they are saved. Returning an error rolls the operation back.
type WorkflowObserver interface {
	OnCreate(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft) error
	OnUpdateDraft(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft) error
	OnEdit(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft, record *models.Record) error
	OnPublish(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft, record *models.Record) error
	OnNewVersion(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft, record *models.Record) error
	OnDeleteDraft(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft, hard bool) error
}

// BaseObserver implements every hook as a no-op. Embed it and override what you need.
type BaseObserver struct{}

func (BaseObserver) OnCreate(context.Context, persistence.Transaction, models.Identity, *models.Draft) error {
	return nil
}

func (BaseObserver) OnUpdateDraft(context.Context, persistence.Transaction, models.Identity, *models.Draft) error {
	return nil
}

func (BaseObserver) OnEdit(context.Context, persistence.Transaction, models.Identity, *models.Draft, *models.Record) error {
	return nil
}

func (BaseObserver) OnPublish(context.Context, persistence.Transaction, models.Identity, *models.Draft, *models.Record) error {
	return nil
}

func (BaseObserver) OnNewVersion(context.Context, persistence.Transaction, models.Identity, *models.Draft, *models.Record) error {
	return nil
}

func (BaseObserver) OnDeleteDraft(context.Context, persistence.Transaction, models.Identity, *models.Draft, bool) error {
	return nil
}

// ObserverRegistry calls its observers in registration order.
type ObserverRegistry struct {
	observers []WorkflowObserver
}

func NewObserverRegistry(observers ...WorkflowObserver) *ObserverRegistry {
	r := &ObserverRegistry{}
	for _, o := range observers {
		r.Register(o)
	}

	return r
}

// Register appends o unless the same observer is already registered.
func (r *ObserverRegistry) Register(o WorkflowObserver) {
	if o == nil {
		return
	}

	if reflect.TypeOf(o).Comparable() {
		for _, existing := range r.observers {
			if reflect.TypeOf(existing) == reflect.TypeOf(o) && existing == o {
				return
			}
		}
	}

	r.observers = append(r.observers, o)
}

func (r *ObserverRegistry) Len() int {
	return len(r.observers)
}

func (r *ObserverRegistry) each(fn func(o WorkflowObserver) error) error {
	for _, o := range r.observers {
		if err := fn(o); err != nil {
			return fmt.Errorf("observer %T: %w", o, err)
		}
	}

	return nil
}

func (r *ObserverRegistry) OnCreate(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft) error {
	return r.each(func(o WorkflowObserver) error { return o.OnCreate(ctx, tx, identity, draft) })
}

func (r *ObserverRegistry) OnUpdateDraft(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft) error {
	return r.each(func(o WorkflowObserver) error { return o.OnUpdateDraft(ctx, tx, identity, draft) })
}

func (r *ObserverRegistry) OnEdit(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft, record *models.Record) error {
	return r.each(func(o WorkflowObserver) error { return o.OnEdit(ctx, tx, identity, draft, record) })
}

func (r *ObserverRegistry) OnPublish(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft, record *models.Record) error {
	return r.each(func(o WorkflowObserver) error { return o.OnPublish(ctx, tx, identity, draft, record) })
}

func (r *ObserverRegistry) OnNewVersion(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft, record *models.Record) error {
	return r.each(func(o WorkflowObserver) error { return o.OnNewVersion(ctx, tx, identity, draft, record) })
}

func (r *ObserverRegistry) OnDeleteDraft(ctx context.Context, tx persistence.Transaction, identity models.Identity, draft *models.Draft, hard bool) error {
	return r.each(func(o WorkflowObserver) error { return o.OnDeleteDraft(ctx, tx, identity, draft, hard) })
}

// ExpiryObserver stamps drafts with an expiry date whenever they are opened or changed.
// A zero TTL leaves drafts without expiry.
type ExpiryObserver struct {
	BaseObserver

	TTL time.Duration
	Now func() time.Time
}

func NewExpiryObserver(ttl time.Duration) *ExpiryObserver {
	return &ExpiryObserver{
		TTL: ttl,
		Now: func() time.Time { return time.Now().UTC() },
	}
}

func (e *ExpiryObserver) stamp(draft *models.Draft) {
	if e.TTL <= 0 {
		return
	}

	expiresAt := e.Now().Add(e.TTL)
	draft.ExpiresAt = &expiresAt
}

func (e *ExpiryObserver) OnCreate(_ context.Context, _ persistence.Transaction, _ models.Identity, draft *models.Draft) error {
	e.stamp(draft)

	return nil
}

func (e *ExpiryObserver) OnUpdateDraft(_ context.Context, _ persistence.Transaction, _ models.Identity, draft *models.Draft) error {
	e.stamp(draft)

	return nil
}

func (e *ExpiryObserver) OnEdit(_ context.Context, _ persistence.Transaction, _ models.Identity, draft *models.Draft, _ *models.Record) error {
	e.stamp(draft)

	return nil
}

func (e *ExpiryObserver) OnNewVersion(_ context.Context, _ persistence.Transaction, _ models.Identity, draft *models.Draft, _ *models.Record) error {
	e.stamp(draft)

	return nil
}

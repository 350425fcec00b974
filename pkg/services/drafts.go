package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/drafts/pkg/eventbus"
	"github.com/dukex/drafts/pkg/events"
	"github.com/dukex/drafts/pkg/metrics"
	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/otelhelper"
	"github.com/dukex/drafts/pkg/permissions"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/pids"
	"github.com/dukex/drafts/pkg/search"
	"github.com/dukex/drafts/pkg/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Validator checks draft content. In lenient mode it never fails and returns the valid
// subset; in strict mode any field error fails the call.
type Validator interface {
	Validate(data map[string]any, strict bool) (map[string]any, []validation.FieldError, error)
}

type IdentifierMinter interface {
	Mint(ctx context.Context, tx persistence.IdentifierRepository, pidType models.PIDType, targetID string) (*models.PersistentIdentifier, error)
	Register(ctx context.Context, tx persistence.IdentifierRepository, pid *models.PersistentIdentifier) error
	Release(ctx context.Context, tx persistence.IdentifierRepository, pid *models.PersistentIdentifier) error
}

type IdentifierResolver interface {
	Resolve(ctx context.Context, tx persistence.IdentifierRepository, value string, registeredOnly bool) (*models.PersistentIdentifier, error)
	ResolveDraft(ctx context.Context, tx persistence.Transaction, value string) (*models.PersistentIdentifier, *models.Draft, error)
	ResolveRecord(ctx context.Context, tx persistence.Transaction, value string) (*models.PersistentIdentifier, *models.Record, error)
}

// Drafts orchestrates the draft and record lifecycle. Every operation runs its store
// writes in one transaction and updates the search index after the commit.
type Drafts struct {
	persistence persistence.Persistence
	sync        *search.Synchronizer
	checker     permissions.Checker
	validator   Validator
	minter      IdentifierMinter
	resolver    IdentifierResolver
	observers   *ObserverRegistry
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
	metrics     *metrics.Metrics
	now         func() time.Time
}

type Option func(*Drafts)

func WithChecker(checker permissions.Checker) Option {
	return func(d *Drafts) {
		d.checker = checker
	}
}

func WithValidator(validator Validator) Option {
	return func(d *Drafts) {
		d.validator = validator
	}
}

func WithMinter(minter IdentifierMinter) Option {
	return func(d *Drafts) {
		d.minter = minter
	}
}

func WithResolver(resolver IdentifierResolver) Option {
	return func(d *Drafts) {
		d.resolver = resolver
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Drafts) {
		d.logger = logger.With("module", "drafts_service")
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(d *Drafts) {
		d.tracer = tracer
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Drafts) {
		d.metrics = m
	}
}

// WithEventPublisher makes the service emit a lifecycle event after every committed change.
func WithEventPublisher(publisher eventbus.EventPublisher) Option {
	return func(d *Drafts) {
		d.publisher = publisher
	}
}

// WithObservers registers observers after the ones already configured.
func WithObservers(observers ...WorkflowObserver) Option {
	return func(d *Drafts) {
		for _, o := range observers {
			d.observers.Register(o)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Drafts) {
		d.now = now
	}
}

// NewDrafts creates the workflow service.
func NewDrafts(p persistence.Persistence, indexer search.Indexer, opts ...Option) *Drafts {
	d := &Drafts{
		persistence: p,
		checker:     permissions.NewOwnerPolicy(),
		validator:   validation.NewDefaultValidator(),
		minter:      pids.NewMinter(),
		resolver:    pids.NewResolver(),
		observers:   NewObserverRegistry(),
		logger:      slog.Default().With("module", "drafts_service"),
		tracer:      otelhelper.NewNoopTracer(),
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(d)
	}

	d.sync = search.NewSynchronizer(indexer, d.logger, d.metrics)

	return d
}

// HealthCheck checks the health of the persistence layer.
func (d *Drafts) HealthCheck(ctx context.Context) (string, bool) {
	if d.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := d.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// DraftResult is a draft as returned by the workflow. IndexErr is set when the store
// committed but the index could not be updated.
type DraftResult struct {
	Draft    *models.Draft
	PID      *models.PersistentIdentifier
	Errors   []validation.FieldError
	IndexErr error
}

func (r *DraftResult) Degraded() bool {
	return r != nil && r.IndexErr != nil
}

func (r *DraftResult) indexError() error {
	if r == nil {
		return nil
	}

	return r.IndexErr
}

func (r *DraftResult) spanAttributes() []attribute.KeyValue {
	if r == nil || r.Draft == nil {
		return nil
	}

	return entityAttributes(r.Draft.ID, r.Draft.ParentID, r.Draft.RevisionID, r.Draft.VersionIndex)
}

type RecordResult struct {
	Record   *models.Record
	PID      *models.PersistentIdentifier
	IndexErr error
}

func (r *RecordResult) Degraded() bool {
	return r != nil && r.IndexErr != nil
}

func (r *RecordResult) indexError() error {
	if r == nil {
		return nil
	}

	return r.IndexErr
}

func (r *RecordResult) spanAttributes() []attribute.KeyValue {
	if r == nil || r.Record == nil {
		return nil
	}

	return entityAttributes(r.Record.ID, r.Record.ParentID, r.Record.RevisionID, r.Record.VersionIndex)
}

func entityAttributes(id, parentID string, revisionID, versionIndex int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(otelhelper.RecordIDKey, id),
		attribute.String(otelhelper.ParentIDKey, parentID),
		attribute.Int(otelhelper.RevisionIDKey, revisionID),
		attribute.Int(otelhelper.VersionIndexKey, versionIndex),
	}
}

// DeleteResult describes what DeleteDraft removed.
type DeleteResult struct {
	ID            string
	Hard          bool
	ParentRemoved bool
	IndexErr      error
}

func (r *DeleteResult) Degraded() bool {
	return r != nil && r.IndexErr != nil
}

func (r *DeleteResult) indexError() error {
	if r == nil {
		return nil
	}

	return r.IndexErr
}

// operation starts the span of a public operation. The returned func ends it, tags it
// with the entity the operation settled on and records the outcome.
func (d *Drafts) operation(ctx context.Context, op string, identity models.Identity, id string) (context.Context, func(err, indexErr error, attrs ...attribute.KeyValue)) {
	started := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "drafts."+op,
		attribute.String(otelhelper.OperationKey, op),
		attribute.String(otelhelper.ActorKey, identity.ID),
		attribute.String(otelhelper.PIDKey, id),
	)

	return ctx, func(err, indexErr error, attrs ...attribute.KeyValue) {
		outcome := metrics.OutcomeSuccess

		span.SetAttributes(attrs...)

		switch {
		case err != nil:
			outcome = metrics.OutcomeError

			otelhelper.SetError(span, err, attribute.String(otelhelper.OperationKey, op))
		case indexErr != nil:
			outcome = metrics.OutcomeDegraded

			span.SetAttributes(attribute.Bool(otelhelper.IndexDegradedKey, true))
		}

		span.End()
		d.metrics.ObserveOperation(op, outcome, time.Since(started))
	}
}

// transaction runs fn atomically. The plan is reset on entry so that fn only ever sees
// the steps of its own attempt.
func (d *Drafts) transaction(ctx context.Context, op string, plan *search.Plan, fn persistence.TxFunc) error {
	err := d.persistence.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Transaction) error {
		plan.Reset()

		return fn(ctx, tx)
	})
	if err != nil {
		d.logger.DebugContext(ctx, "Transaction rolled back", "operation", op, "error", err)
	}

	return classify(op, err)
}

// afterCommit brings the index in line with the committed state and announces the
// change. Neither step can fail the operation; the index error is handed back so the
// caller can report a degraded result.
func (d *Drafts) afterCommit(ctx context.Context, plan *search.Plan, event eventbus.Event, key string) error {
	indexErr := d.sync.Apply(ctx, plan)

	if d.publisher != nil && event != nil {
		err := d.publisher.Publish(ctx, key, event)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to publish lifecycle event", "event_type", event.GetType(), "key", key, "error", err)
		}
	}

	return indexErr
}

func (d *Drafts) hasRecord(ctx context.Context, tx persistence.Transaction, id string) (bool, error) {
	_, err := tx.RecordByID(ctx, id)

	switch {
	case err == nil:
		return true, nil
	case persistence.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func (d *Drafts) hasLiveDraft(ctx context.Context, tx persistence.Transaction, id string) (bool, error) {
	_, err := tx.DraftByID(ctx, id, false)

	switch {
	case err == nil:
		return true, nil
	case persistence.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// pidValue returns the record identifier bound to id, or "" when it has none.
func (d *Drafts) pidValue(ctx context.Context, tx persistence.Transaction, id string) (string, error) {
	pid, err := tx.IdentifierByTarget(ctx, models.PIDTypeRecord, id)

	switch {
	case err == nil:
		return pid.Value, nil
	case persistence.IsNotFound(err):
		return "", nil
	default:
		return "", err
	}
}

func (d *Drafts) baseEvent(eventType events.EventType, id, pid, parentID string, identity models.Identity, plan *search.Plan) events.BaseEvent {
	base := events.NewBaseEvent(eventType, id, pid, parentID)
	base.Actor = identity.ID
	base.Affected = plan.Affected()

	return base
}

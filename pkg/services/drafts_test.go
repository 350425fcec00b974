package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/drafts/pkg/eventbus"
	"github.com/dukex/drafts/pkg/events"
	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/otelhelper"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/persistence/file"
	"github.com/dukex/drafts/pkg/search"
	"github.com/dukex/drafts/pkg/search/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var (
	alice = models.Identity{ID: "alice"}
	bob   = models.Identity{ID: "bob"}
)

type fixture struct {
	service *Drafts
	store   *file.Persistence
	index   *flakyIndex
	events  *recordingPublisher
	now     time.Time
}

// indexCall is one write the service sent to the index.
type indexCall struct {
	Kind    search.Kind
	ID      string
	Delete  bool
	Refresh bool
}

// flakyIndex wraps the in-memory index, records every write and can be told to fail them.
type flakyIndex struct {
	inner *memory.Index

	mu    sync.Mutex
	fail  bool
	calls []indexCall
}

func (i *flakyIndex) record(call indexCall) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, call)

	return i.fail
}

// takeCalls returns the writes recorded since the last call and forgets them.
func (i *flakyIndex) takeCalls() []indexCall {
	i.mu.Lock()
	defer i.mu.Unlock()

	calls := i.calls
	i.calls = nil

	return calls
}

func (i *flakyIndex) setFailing(fail bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.fail = fail
}

func (i *flakyIndex) Index(ctx context.Context, doc *search.Document, refresh bool) error {
	if i.record(indexCall{Kind: doc.Kind, ID: doc.ID, Refresh: refresh}) {
		return errors.New("index unavailable")
	}

	return i.inner.Index(ctx, doc, refresh)
}

func (i *flakyIndex) Delete(ctx context.Context, kind search.Kind, id string, refresh bool) error {
	if i.record(indexCall{Kind: kind, ID: id, Delete: true, Refresh: refresh}) {
		return errors.New("index unavailable")
	}

	return i.inner.Delete(ctx, kind, id, refresh)
}

func (i *flakyIndex) Search(ctx context.Context, query search.Query) (*search.Result, error) {
	return i.inner.Search(ctx, query)
}

func (i *flakyIndex) Get(kind search.Kind, id string) *search.Document {
	return i.inner.Get(kind, id)
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.keys = append(p.keys, key)
	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.GetType())
	}

	return types
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := file.NewPersistence(logger, "")
	require.NoError(t, err)

	f := &fixture{
		store:  store,
		index:  &flakyIndex{inner: memory.NewIndex()},
		events: &recordingPublisher{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	base := []Option{
		WithLogger(logger),
		WithEventPublisher(f.events),
		WithClock(func() time.Time { return f.now }),
	}

	f.service = NewDrafts(store, f.index, append(base, opts...)...)

	return f
}

func (f *fixture) read(t *testing.T, fn func(ctx context.Context, tx persistence.Transaction)) {
	t.Helper()

	err := f.store.RunInTransaction(context.Background(), func(ctx context.Context, tx persistence.Transaction) error {
		fn(ctx, tx)

		return nil
	})
	require.NoError(t, err)
}

func (f *fixture) create(t *testing.T, identity models.Identity, data map[string]any) *DraftResult {
	t.Helper()

	result, err := f.service.Create(context.Background(), identity, data)
	require.NoError(t, err)
	require.False(t, result.Degraded())

	return result
}

func (f *fixture) publish(t *testing.T, identity models.Identity, pid string) *RecordResult {
	t.Helper()

	result, err := f.service.Publish(context.Background(), identity, pid, nil)
	require.NoError(t, err)
	require.False(t, result.Degraded())

	return result
}

func intPtr(v int) *int {
	return &v
}

func TestCreate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.create(t, alice, map[string]any{"title": "A"})

	draft := result.Draft
	assert.Equal(t, "alice", draft.CreatedBy)
	assert.Equal(t, 1, draft.VersionIndex)
	assert.Equal(t, 0, draft.RevisionID)
	assert.Nil(t, draft.ForkVersionID)
	assert.Empty(t, result.Errors)
	assert.Equal(t, models.PIDStatusNew, result.PID.Status)
	assert.Equal(t, draft.ID, result.PID.TargetID)

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		parent, err := tx.ParentByID(ctx, draft.ParentID)
		require.NoError(t, err)
		assert.Equal(t, 1, parent.VersionCounter)

		state, err := tx.ParentStateByID(ctx, draft.ParentID)
		require.NoError(t, err)
		assert.Nil(t, state.LatestID)
		assert.Nil(t, state.NextDraftID)

		concept, err := tx.IdentifierByTarget(ctx, models.PIDTypeConcept, draft.ParentID)
		require.NoError(t, err)
		assert.False(t, concept.IsRegistered())

		_, err = tx.RecordByID(ctx, draft.ID)
		assert.True(t, persistence.IsRecordNotFound(err))
	})

	doc := f.index.Get(search.KindDraft, draft.ID)
	require.NotNil(t, doc)
	assert.Equal(t, result.PID.Value, doc.PID)
	assert.True(t, doc.IsLatest)
	assert.False(t, doc.Shadowed)

	assert.Equal(t, []events.EventType{events.DraftCreatedEvent}, f.events.types())
	assert.Equal(t, []string{draft.ParentID}, f.events.keys)
}

func TestCreate_LenientValidationKeepsValidFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.create(t, alice, map[string]any{"title": "A", "keywords": "not-a-list"})

	require.NotEmpty(t, result.Errors)
	assert.Equal(t, "keywords", result.Errors[0].Field)
	assert.Equal(t, "A", result.Draft.Data["title"])
	assert.NotContains(t, result.Draft.Data, "keywords")
}

func TestCreate_AnonymousIsDenied(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.service.Create(context.Background(), models.Identity{}, map[string]any{"title": "A"})
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))

	result, err := f.index.Search(context.Background(), search.Query{})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.Empty(t, f.events.types())
}

func TestReadDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})

	tests := []struct {
		name     string
		identity models.Identity
		id       string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "owner",
			identity: alice,
			id:       created.PID.Value,
			check:    func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:     "admin",
			identity: models.Identity{ID: "root", Roles: []string{models.RoleAdmin}},
			id:       created.PID.Value,
			check:    func(t *testing.T, err error) { assert.NoError(t, err) },
		},
		{
			name:     "someone else",
			identity: bob,
			id:       created.PID.Value,
			check:    func(t *testing.T, err error) { assert.True(t, IsPermissionDenied(err)) },
		},
		{
			name:     "unknown identifier",
			identity: alice,
			id:       "00000-00000",
			check:    func(t *testing.T, err error) { assert.True(t, IsNotFound(err)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := f.service.ReadDraft(context.Background(), tt.identity, tt.id)
			tt.check(t, err)
		})
	}
}

func TestUpdateDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})
	ctx := context.Background()

	_, err := f.service.UpdateDraft(ctx, alice, created.PID.Value, map[string]any{"title": "B"}, intPtr(3))
	require.Error(t, err)
	assert.True(t, IsConflictError(err))

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, CodeRevisionMismatch, serviceErr.Code)

	_, err = f.service.UpdateDraft(ctx, bob, created.PID.Value, map[string]any{"title": "B"}, nil)
	assert.True(t, IsPermissionDenied(err))

	updated, err := f.service.UpdateDraft(ctx, alice, created.PID.Value, map[string]any{"title": "B"}, intPtr(0))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Draft.RevisionID)
	assert.Equal(t, "B", updated.Draft.Data["title"])

	doc := f.index.Get(search.KindDraft, created.Draft.ID)
	require.NotNil(t, doc)
	assert.Equal(t, "B", doc.Data["title"])
	assert.Equal(t, 1, doc.RevisionID)
}

func TestPublish_FirstPublish(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})
	f.index.takeCalls()

	published := f.publish(t, alice, created.PID.Value)

	record := published.Record
	assert.Equal(t, []indexCall{
		{Kind: search.KindDraft, ID: record.ID, Delete: true},
		{Kind: search.KindRecord, ID: record.ID},
	}, f.index.takeCalls())
	assert.Equal(t, created.Draft.ID, record.ID)
	assert.Equal(t, 0, record.RevisionID)
	assert.Equal(t, "A", record.Data["title"])
	assert.True(t, published.PID.IsRegistered())

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		state, err := tx.ParentStateByID(ctx, record.ParentID)
		require.NoError(t, err)
		require.NotNil(t, state.LatestID)
		assert.Equal(t, record.ID, *state.LatestID)
		assert.Equal(t, 1, state.Count)

		_, err = tx.DraftByID(ctx, record.ID, false)
		assert.True(t, persistence.IsDraftNotFound(err))

		draft, err := tx.DraftByID(ctx, record.ID, true)
		require.NoError(t, err)
		assert.True(t, draft.IsDeleted())

		concept, err := tx.IdentifierByTarget(ctx, models.PIDTypeConcept, record.ParentID)
		require.NoError(t, err)
		assert.True(t, concept.IsRegistered())
	})

	assert.Nil(t, f.index.Get(search.KindDraft, record.ID))

	doc := f.index.Get(search.KindRecord, record.ID)
	require.NotNil(t, doc)
	assert.True(t, doc.IsPublished)
	assert.True(t, doc.IsLatest)
	assert.False(t, doc.HasDraft)

	read, err := f.service.Read(context.Background(), bob, created.PID.Value)
	require.NoError(t, err)
	assert.Equal(t, record.ID, read.Record.ID)
}

func TestPublish_StrictValidationWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"description": "no title"})
	require.NotEmpty(t, created.Errors)

	_, err := f.service.Publish(context.Background(), alice, created.PID.Value, nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		draft, err := tx.DraftByID(ctx, created.Draft.ID, false)
		require.NoError(t, err)
		assert.Equal(t, created.Draft.RevisionID, draft.RevisionID)

		_, err = tx.RecordByID(ctx, created.Draft.ID)
		assert.True(t, persistence.IsRecordNotFound(err))

		pid, err := tx.IdentifierByValue(ctx, models.PIDTypeRecord, created.PID.Value)
		require.NoError(t, err)
		assert.False(t, pid.IsRegistered())

		state, err := tx.ParentStateByID(ctx, created.Draft.ParentID)
		require.NoError(t, err)
		assert.Nil(t, state.LatestID)
	})

	assert.NotNil(t, f.index.Get(search.KindDraft, created.Draft.ID))
	assert.Nil(t, f.index.Get(search.KindRecord, created.Draft.ID))
	assert.Equal(t, []events.EventType{events.DraftCreatedEvent}, f.events.types())
}

func TestPublish_StaleRevisionConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})

	_, err := f.service.Publish(context.Background(), alice, created.PID.Value, intPtr(7))
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}

func TestEditPublishRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, alice, map[string]any{"title": "A"})
	pid := created.PID.Value
	first := f.publish(t, alice, pid)

	edited, err := f.service.Edit(ctx, alice, pid)
	require.NoError(t, err)
	require.NotNil(t, edited.Draft.ForkVersionID)
	assert.Equal(t, first.Record.RevisionID, *edited.Draft.ForkVersionID)
	assert.Equal(t, first.Record.ID, edited.Draft.ID)
	assert.Equal(t, "A", edited.Draft.Data["title"])

	again, err := f.service.Edit(ctx, alice, pid)
	require.NoError(t, err)
	assert.Equal(t, edited.Draft.ID, again.Draft.ID)
	assert.Equal(t, edited.Draft.RevisionID, again.Draft.RevisionID)

	draftDoc := f.index.Get(search.KindDraft, edited.Draft.ID)
	require.NotNil(t, draftDoc)
	assert.True(t, draftDoc.IsPublished)
	assert.False(t, draftDoc.Shadowed)

	recordDoc := f.index.Get(search.KindRecord, first.Record.ID)
	require.NotNil(t, recordDoc)
	assert.True(t, recordDoc.HasDraft)
	assert.True(t, recordDoc.Shadowed)

	_, err = f.service.UpdateDraft(ctx, alice, pid, map[string]any{"title": "A2"}, nil)
	require.NoError(t, err)

	second := f.publish(t, alice, pid)
	assert.Equal(t, first.Record.RevisionID+1, second.Record.RevisionID)
	assert.Equal(t, "A2", second.Record.Data["title"])
	assert.Equal(t, first.Record.ID, second.Record.ID)

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		state, err := tx.ParentStateByID(ctx, second.Record.ParentID)
		require.NoError(t, err)
		assert.Equal(t, 1, state.Count)
	})

	assert.Equal(t, []events.EventType{
		events.DraftCreatedEvent,
		events.DraftPublishedEvent,
		events.DraftEditedEvent,
		events.DraftUpdatedEvent,
		events.DraftPublishedEvent,
	}, f.events.types())
}

func TestEdit_ForksWhenNoDraftRowSurvives(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})
	published := f.publish(t, alice, created.PID.Value)

	err := f.store.RunInTransaction(context.Background(), func(ctx context.Context, tx persistence.Transaction) error {
		return tx.DeleteDraft(ctx, published.Record.ID)
	})
	require.NoError(t, err)

	edited, err := f.service.Edit(context.Background(), alice, created.PID.Value)
	require.NoError(t, err)
	assert.Equal(t, published.Record.ID, edited.Draft.ID)
	assert.Equal(t, published.Record.ParentID, edited.Draft.ParentID)
	require.NotNil(t, edited.Draft.ForkVersionID)
	assert.Equal(t, 0, *edited.Draft.ForkVersionID)
	assert.Equal(t, 0, edited.Draft.RevisionID)
}

func TestEdit_RequiresPublishedRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})

	_, err := f.service.Edit(context.Background(), bob, created.PID.Value)
	assert.True(t, IsPermissionDenied(err))

	_, err = f.service.Edit(context.Background(), alice, "00000-00000")
	assert.True(t, IsNotFound(err))
}

func TestNewVersionScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, alice, map[string]any{"title": "A"})
	first := f.publish(t, alice, created.PID.Value)

	next, err := f.service.NewVersion(ctx, alice, created.PID.Value)
	require.NoError(t, err)
	assert.NotEqual(t, first.Record.ID, next.Draft.ID)
	assert.Equal(t, first.Record.ParentID, next.Draft.ParentID)
	assert.Nil(t, next.Draft.ForkVersionID)
	assert.Equal(t, 2, next.Draft.VersionIndex)
	assert.False(t, next.PID.IsRegistered())

	_, err = f.service.UpdateDraft(ctx, alice, next.PID.Value, map[string]any{"title": "B"}, nil)
	require.NoError(t, err)

	second := f.publish(t, alice, next.PID.Value)
	assert.Equal(t, 0, second.Record.RevisionID)
	assert.Equal(t, "B", second.Record.Data["title"])

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		parent, err := tx.ParentByID(ctx, second.Record.ParentID)
		require.NoError(t, err)
		assert.Equal(t, 2, parent.VersionCounter)

		state, err := tx.ParentStateByID(ctx, second.Record.ParentID)
		require.NoError(t, err)
		require.NotNil(t, state.LatestID)
		assert.Equal(t, second.Record.ID, *state.LatestID)
		assert.Nil(t, state.NextDraftID)
		assert.Equal(t, 2, state.Count)
		assert.Equal(t, 2, state.CurrentIndex)
	})

	assert.False(t, f.index.Get(search.KindRecord, first.Record.ID).IsLatest)
	assert.True(t, f.index.Get(search.KindRecord, second.Record.ID).IsLatest)

	latest, err := f.service.Search(ctx, bob, search.Query{LatestOnly: true})
	require.NoError(t, err)
	require.Equal(t, 1, latest.Total)
	assert.Equal(t, second.Record.ID, latest.Hits[0].ID)
}

func TestNewVersion_ReturnsPendingDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, alice, map[string]any{"title": "A"})
	f.publish(t, alice, created.PID.Value)

	first, err := f.service.NewVersion(ctx, alice, created.PID.Value)
	require.NoError(t, err)

	second, err := f.service.NewVersion(ctx, alice, created.PID.Value)
	require.NoError(t, err)
	assert.Equal(t, first.Draft.ID, second.Draft.ID)
	assert.Equal(t, first.PID.Value, second.PID.Value)

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		parent, err := tx.ParentByID(ctx, first.Draft.ParentID)
		require.NoError(t, err)
		assert.Equal(t, 2, parent.VersionCounter)
	})
}

func TestNewVersion_DemotesEditDraftOfLatest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, alice, map[string]any{"title": "A"})
	f.publish(t, alice, created.PID.Value)

	edited, err := f.service.Edit(ctx, alice, created.PID.Value)
	require.NoError(t, err)
	assert.True(t, f.index.Get(search.KindDraft, edited.Draft.ID).IsLatest)

	next, err := f.service.NewVersion(ctx, alice, created.PID.Value)
	require.NoError(t, err)
	assert.False(t, f.index.Get(search.KindDraft, edited.Draft.ID).IsLatest)
	assert.True(t, f.index.Get(search.KindDraft, next.Draft.ID).IsLatest)
}

func TestDeleteDraft_SoftDeletesWhenPublished(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, alice, map[string]any{"title": "A"})
	published := f.publish(t, alice, created.PID.Value)

	edited, err := f.service.Edit(ctx, alice, created.PID.Value)
	require.NoError(t, err)

	f.index.takeCalls()

	deleted, err := f.service.DeleteDraft(ctx, alice, created.PID.Value, intPtr(edited.Draft.RevisionID))
	require.NoError(t, err)
	assert.False(t, deleted.Hard)
	assert.False(t, deleted.ParentRemoved)

	assert.Equal(t, []indexCall{
		{Kind: search.KindDraft, ID: edited.Draft.ID, Delete: true, Refresh: true},
		{Kind: search.KindRecord, ID: published.Record.ID, Refresh: true},
	}, f.index.takeCalls())

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		draft, err := tx.DraftByID(ctx, edited.Draft.ID, true)
		require.NoError(t, err)
		assert.True(t, draft.IsDeleted())

		_, err = tx.RecordByID(ctx, published.Record.ID)
		require.NoError(t, err)
	})

	assert.Nil(t, f.index.Get(search.KindDraft, edited.Draft.ID))
	assert.False(t, f.index.Get(search.KindRecord, published.Record.ID).HasDraft)

	// The soft-deleted row is revived on the next edit, keeping its revision counter.
	revived, err := f.service.Edit(ctx, alice, created.PID.Value)
	require.NoError(t, err)
	assert.Greater(t, revived.Draft.RevisionID, edited.Draft.RevisionID)
}

func TestDeleteDraft_HardDeletesUnpublishedLineage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})
	f.index.takeCalls()

	deleted, err := f.service.DeleteDraft(context.Background(), alice, created.PID.Value, nil)
	require.NoError(t, err)
	assert.True(t, deleted.Hard)
	assert.True(t, deleted.ParentRemoved)

	assert.Equal(t, []indexCall{
		{Kind: search.KindDraft, ID: created.Draft.ID, Delete: true, Refresh: true},
	}, f.index.takeCalls())

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		_, err := tx.DraftByID(ctx, created.Draft.ID, true)
		assert.True(t, persistence.IsDraftNotFound(err))

		_, err = tx.ParentByID(ctx, created.Draft.ParentID)
		assert.True(t, persistence.IsNotFound(err))

		_, err = tx.ParentStateByID(ctx, created.Draft.ParentID)
		assert.True(t, persistence.IsNotFound(err))

		_, err = tx.IdentifierByValue(ctx, models.PIDTypeRecord, created.PID.Value)
		assert.True(t, persistence.IsIdentifierNotFound(err))

		_, err = tx.IdentifierByTarget(ctx, models.PIDTypeConcept, created.Draft.ParentID)
		assert.True(t, persistence.IsIdentifierNotFound(err))
	})

	assert.Nil(t, f.index.Get(search.KindDraft, created.Draft.ID))

	_, err = f.service.ReadDraft(context.Background(), alice, created.PID.Value)
	assert.True(t, IsNotFound(err))
}

func TestDeleteDraft_PendingNewVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, alice, map[string]any{"title": "A"})
	published := f.publish(t, alice, created.PID.Value)

	next, err := f.service.NewVersion(ctx, alice, created.PID.Value)
	require.NoError(t, err)

	deleted, err := f.service.DeleteDraft(ctx, alice, next.PID.Value, nil)
	require.NoError(t, err)
	assert.True(t, deleted.Hard)
	assert.False(t, deleted.ParentRemoved)

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		state, err := tx.ParentStateByID(ctx, published.Record.ParentID)
		require.NoError(t, err)
		assert.Nil(t, state.NextDraftID)

		_, err = tx.ParentByID(ctx, published.Record.ParentID)
		require.NoError(t, err)
	})

	again, err := f.service.NewVersion(ctx, alice, created.PID.Value)
	require.NoError(t, err)
	assert.NotEqual(t, next.Draft.ID, again.Draft.ID)
	assert.Equal(t, 3, again.Draft.VersionIndex)
}

func TestDeleteDraft_RefreshesLatestDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, alice, map[string]any{"title": "A"})
	f.publish(t, alice, created.PID.Value)

	edited, err := f.service.Edit(ctx, alice, created.PID.Value)
	require.NoError(t, err)

	next, err := f.service.NewVersion(ctx, alice, created.PID.Value)
	require.NoError(t, err)
	assert.False(t, f.index.Get(search.KindDraft, edited.Draft.ID).IsLatest)

	f.index.takeCalls()

	_, err = f.service.DeleteDraft(ctx, alice, next.PID.Value, nil)
	require.NoError(t, err)

	assert.Equal(t, []indexCall{
		{Kind: search.KindDraft, ID: next.Draft.ID, Delete: true, Refresh: true},
		{Kind: search.KindDraft, ID: edited.Draft.ID, Refresh: true},
	}, f.index.takeCalls())
	assert.True(t, f.index.Get(search.KindDraft, edited.Draft.ID).IsLatest)
}

func TestDeleteDraft_Denied(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})

	_, err := f.service.DeleteDraft(context.Background(), bob, created.PID.Value, nil)
	require.Error(t, err)
	assert.True(t, IsPermissionDenied(err))

	assert.NotNil(t, f.index.Get(search.KindDraft, created.Draft.ID))
}

func TestSearchDrafts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	published := f.create(t, alice, map[string]any{"title": "Published"})
	f.publish(t, alice, published.PID.Value)

	mine := f.create(t, alice, map[string]any{"title": "Mine"})
	f.create(t, bob, map[string]any{"title": "Bob's"})

	result, err := f.service.SearchDrafts(ctx, alice, search.Query{})
	require.NoError(t, err)
	assert.Equal(t, map[string]search.Kind{
		mine.Draft.ID:      search.KindDraft,
		published.Draft.ID: search.KindRecord,
	}, hitKinds(result))

	_, err = f.service.Edit(ctx, alice, published.PID.Value)
	require.NoError(t, err)

	_, err = f.service.UpdateDraft(ctx, alice, published.PID.Value, map[string]any{"title": "Published, edited"}, nil)
	require.NoError(t, err)

	result, err = f.service.SearchDrafts(ctx, alice, search.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, map[string]search.Kind{
		mine.Draft.ID:      search.KindDraft,
		published.Draft.ID: search.KindDraft,
	}, hitKinds(result))

	result, err = f.service.SearchDrafts(ctx, alice, search.Query{Text: "edited"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, search.KindDraft, result.Hits[0].Kind)

	_, err = f.service.SearchDrafts(ctx, models.Identity{}, search.Query{})
	assert.True(t, IsPermissionDenied(err))
}

func TestIndexFailureDegradesButCommits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.index.setFailing(true)

	result, err := f.service.Create(context.Background(), alice, map[string]any{"title": "A"})
	require.NoError(t, err)
	assert.True(t, result.Degraded())
	assert.Nil(t, f.index.Get(search.KindDraft, result.Draft.ID))

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		_, err := tx.DraftByID(ctx, result.Draft.ID, false)
		require.NoError(t, err)
	})

	f.index.setFailing(false)

	require.NoError(t, f.service.Reindex(context.Background(), result.Draft.ID))
	assert.NotNil(t, f.index.Get(search.KindDraft, result.Draft.ID))
}

func TestReindex_RemovesStaleDocuments(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, alice, map[string]any{"title": "A"})
	f.publish(t, alice, created.PID.Value)

	stale := &search.Document{ID: created.Draft.ID, Kind: search.KindDraft, CreatedBy: "alice"}
	require.NoError(t, f.index.inner.Index(ctx, stale, false))

	require.NoError(t, f.service.Reindex(ctx, created.Draft.ID))
	assert.Nil(t, f.index.Get(search.KindDraft, created.Draft.ID))

	doc := f.index.Get(search.KindRecord, created.Draft.ID)
	require.NotNil(t, doc)
	assert.Equal(t, created.PID.Value, doc.PID)
}

func TestExpireDrafts(t *testing.T) {
	t.Parallel()

	expiry := NewExpiryObserver(time.Hour)
	f := newFixture(t, WithObservers(expiry))
	expiry.Now = func() time.Time { return f.now }

	ctx := context.Background()

	unpublished := f.create(t, alice, map[string]any{"title": "A"})
	require.NotNil(t, unpublished.Draft.ExpiresAt)
	assert.Equal(t, f.now.Add(time.Hour), *unpublished.Draft.ExpiresAt)

	published := f.create(t, alice, map[string]any{"title": "B"})
	f.publish(t, alice, published.PID.Value)

	_, err := f.service.Edit(ctx, alice, published.PID.Value)
	require.NoError(t, err)

	count, err := f.service.ExpireDrafts(ctx, f.now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = f.service.ExpireDrafts(ctx, f.now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		_, err := tx.DraftByID(ctx, unpublished.Draft.ID, true)
		assert.True(t, persistence.IsDraftNotFound(err))

		draft, err := tx.DraftByID(ctx, published.Draft.ID, true)
		require.NoError(t, err)
		assert.True(t, draft.IsDeleted())
	})
}

type failingObserver struct {
	BaseObserver

	calls []string
}

func (o *failingObserver) OnPublish(context.Context, persistence.Transaction, models.Identity, *models.Draft, *models.Record) error {
	o.calls = append(o.calls, "publish")

	return errors.New("publish vetoed")
}

func TestObserverErrorRollsBack(t *testing.T) {
	t.Parallel()

	observer := &failingObserver{}
	f := newFixture(t, WithObservers(observer, observer))
	created := f.create(t, alice, map[string]any{"title": "A"})

	_, err := f.service.Publish(context.Background(), alice, created.PID.Value, nil)
	require.Error(t, err)
	assert.True(t, IsStorageFailure(err))
	assert.Equal(t, []string{"publish"}, observer.calls)

	f.read(t, func(ctx context.Context, tx persistence.Transaction) {
		_, err := tx.RecordByID(ctx, created.Draft.ID)
		assert.True(t, persistence.IsRecordNotFound(err))

		pid, err := tx.IdentifierByValue(ctx, models.PIDTypeRecord, created.PID.Value)
		require.NoError(t, err)
		assert.False(t, pid.IsRegistered())
	})
}

func TestEventsCarryAffectedIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	created := f.create(t, alice, map[string]any{"title": "A"})
	f.publish(t, alice, created.PID.Value)

	require.Len(t, f.events.events, 2)

	published, ok := f.events.events[1].(events.DraftPublished)
	require.True(t, ok)
	assert.True(t, published.FirstPublish)
	assert.Equal(t, "alice", published.Actor)
	assert.Equal(t, created.PID.Value, published.PID)
	assert.Equal(t, []string{created.Draft.ID}, published.AffectedIDs())
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	message, ok := f.service.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	empty := &Drafts{}
	_, ok = empty.HealthCheck(context.Background())
	assert.False(t, ok)
}

func hitKinds(result *search.Result) map[string]search.Kind {
	kinds := make(map[string]search.Kind, len(result.Hits))
	for _, hit := range result.Hits {
		kinds[hit.ID] = hit.Kind
	}

	return kinds
}

func TestOperationSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	f := newFixture(t, WithTracer(provider.Tracer("drafts")))
	ctx := context.Background()

	created := f.create(t, alice, map[string]any{"title": "A"})
	f.publish(t, alice, created.PID.Value)

	next, err := f.service.NewVersion(ctx, alice, created.PID.Value)
	require.NoError(t, err)

	spans := map[string]map[attribute.Key]attribute.Value{}
	for _, span := range recorder.Ended() {
		attrs := map[attribute.Key]attribute.Value{}
		for _, kv := range span.Attributes() {
			attrs[kv.Key] = kv.Value
		}

		spans[span.Name()] = attrs
	}

	publish := spans["drafts.publish"]
	require.NotNil(t, publish)
	assert.Equal(t, created.Draft.ID, publish[otelhelper.RecordIDKey].AsString())
	assert.Equal(t, created.Draft.ParentID, publish[otelhelper.ParentIDKey].AsString())
	assert.Equal(t, int64(0), publish[otelhelper.RevisionIDKey].AsInt64())
	assert.Equal(t, int64(1), publish[otelhelper.VersionIndexKey].AsInt64())

	newVersion := spans["drafts.new_version"]
	require.NotNil(t, newVersion)
	assert.Equal(t, next.Draft.ID, newVersion[otelhelper.RecordIDKey].AsString())
	assert.Equal(t, int64(2), newVersion[otelhelper.VersionIndexKey].AsInt64())
	assert.Equal(t, "alice", newVersion[otelhelper.ActorKey].AsString())
}

package services

import (
	"context"

	"github.com/dukex/drafts/pkg/events"
	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/permissions"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/search"
	"github.com/dukex/drafts/pkg/validation"
	"github.com/google/uuid"
)

// Create starts a brand-new record lineage with its first draft. Content is validated
// leniently: invalid fields are dropped and reported in the result.
func (d *Drafts) Create(ctx context.Context, identity models.Identity, data map[string]any) (result *DraftResult, err error) {
	const op = "create"

	ctx, done := d.operation(ctx, op, identity, "")
	defer func() { done(err, result.indexError(), result.spanAttributes()...) }()

	err = d.checker.Require(ctx, identity, permissions.ActionCreate, nil)
	if err != nil {
		return nil, err
	}

	validated, fieldErrors, err := d.validator.Validate(data, false)
	if err != nil {
		return nil, classify(op, err)
	}

	var (
		draft *models.Draft
		pid   *models.PersistentIdentifier
		plan  = &search.Plan{}
	)

	err = d.transaction(ctx, op, plan, func(ctx context.Context, tx persistence.Transaction) error {
		now := d.now()

		parent := models.NewParentRecord(uuid.NewString(), now)
		state := models.NewParentState(parent.ID)

		draft = &models.Draft{
			ParentRef:    models.ParentRef{ParentID: parent.ID},
			ID:           uuid.NewString(),
			VersionIndex: parent.VersionCounter,
			CreatedBy:    identity.ID,
			Data:         models.CloneData(validated),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := tx.SaveParent(ctx, parent); err != nil {
			return err
		}

		if err := tx.SaveParentState(ctx, state); err != nil {
			return err
		}

		var err error

		pid, err = d.minter.Mint(ctx, tx, models.PIDTypeRecord, draft.ID)
		if err != nil {
			return err
		}

		if _, err := d.minter.Mint(ctx, tx, models.PIDTypeConcept, parent.ID); err != nil {
			return err
		}

		if err := d.observers.OnCreate(ctx, tx, identity, draft); err != nil {
			return err
		}

		if err := tx.SaveDraft(ctx, draft); err != nil {
			return err
		}

		plan.Index(draftDocument(draft, pid.Value, state, false), false)

		return nil
	})
	if err != nil {
		return nil, err
	}

	event := events.DraftCreated{
		BaseEvent:        d.baseEvent(events.DraftCreatedEvent, draft.ID, pid.Value, draft.ParentID, identity, plan),
		ValidationErrors: len(fieldErrors),
	}

	d.logger.InfoContext(ctx, "Draft created", "pid", pid.Value, "draft_id", draft.ID, "parent_id", draft.ParentID, "validation_errors", len(fieldErrors))

	return &DraftResult{
		Draft:    draft,
		PID:      pid,
		Errors:   fieldErrors,
		IndexErr: d.afterCommit(ctx, plan, event, draft.ParentID),
	}, nil
}

// ReadDraft returns the live draft behind the identifier.
func (d *Drafts) ReadDraft(ctx context.Context, identity models.Identity, id string) (result *DraftResult, err error) {
	const op = "read_draft"

	ctx, done := d.operation(ctx, op, identity, id)
	defer func() { done(err, nil, result.spanAttributes()...) }()

	err = d.transaction(ctx, op, &search.Plan{}, func(ctx context.Context, tx persistence.Transaction) error {
		pid, draft, err := d.resolver.ResolveDraft(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := d.checker.Require(ctx, identity, permissions.ActionReadDraft, draft); err != nil {
			return err
		}

		result = &DraftResult{Draft: draft, PID: pid}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateDraft replaces the draft content. revision, when set, must match the draft's
// current revision.
func (d *Drafts) UpdateDraft(ctx context.Context, identity models.Identity, id string, data map[string]any, revision *int) (result *DraftResult, err error) {
	const op = "update_draft"

	ctx, done := d.operation(ctx, op, identity, id)
	defer func() { done(err, result.indexError(), result.spanAttributes()...) }()

	var (
		draft       *models.Draft
		pid         *models.PersistentIdentifier
		fieldErrors []validation.FieldError
		plan        = &search.Plan{}
	)

	err = d.transaction(ctx, op, plan, func(ctx context.Context, tx persistence.Transaction) error {
		var err error

		pid, draft, err = d.resolver.ResolveDraft(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := d.checker.Require(ctx, identity, permissions.ActionUpdateDraft, draft); err != nil {
			return err
		}

		if err := checkRevision(op, revision, draft.RevisionID); err != nil {
			return err
		}

		var validated map[string]any

		validated, fieldErrors, err = d.validator.Validate(data, false)
		if err != nil {
			return err
		}

		draft.Data = validated
		draft.Touch(d.now())

		if err := d.observers.OnUpdateDraft(ctx, tx, identity, draft); err != nil {
			return err
		}

		if err := tx.SaveDraft(ctx, draft); err != nil {
			return err
		}

		state, err := tx.ParentStateByID(ctx, draft.ParentID)
		if err != nil {
			return err
		}

		published, err := d.hasRecord(ctx, tx, draft.ID)
		if err != nil {
			return err
		}

		plan.Index(draftDocument(draft, pid.Value, state, published), false)

		return nil
	})
	if err != nil {
		return nil, err
	}

	event := events.DraftUpdated{
		BaseEvent:  d.baseEvent(events.DraftUpdatedEvent, draft.ID, pid.Value, draft.ParentID, identity, plan),
		RevisionID: draft.RevisionID,
	}

	return &DraftResult{
		Draft:    draft,
		PID:      pid,
		Errors:   fieldErrors,
		IndexErr: d.afterCommit(ctx, plan, event, draft.ParentID),
	}, nil
}

// DeleteDraft discards a draft. A draft that shadows a published record is only
// soft-deleted so its revision lineage survives for the next edit. A draft that was
// never published is removed for good, along with its identifier and, when nothing
// else refers to it, its parent lineage.
func (d *Drafts) DeleteDraft(ctx context.Context, identity models.Identity, id string, revision *int) (result *DeleteResult, err error) {
	const op = "delete_draft"

	ctx, done := d.operation(ctx, op, identity, id)
	defer func() { done(err, result.indexError()) }()

	var (
		draft *models.Draft
		pid   *models.PersistentIdentifier
		plan  = &search.Plan{}
	)

	result = &DeleteResult{}

	err = d.transaction(ctx, op, plan, func(ctx context.Context, tx persistence.Transaction) error {
		*result = DeleteResult{}

		var err error

		pid, draft, err = d.resolver.ResolveDraft(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := d.checker.Require(ctx, identity, permissions.ActionDeleteDraft, draft); err != nil {
			return err
		}

		if err := checkRevision(op, revision, draft.RevisionID); err != nil {
			return err
		}

		return d.deleteDraft(ctx, tx, identity, pid, draft, plan, result)
	})
	if err != nil {
		return nil, err
	}

	result.ID = draft.ID

	event := events.DraftDeleted{
		BaseEvent:     d.baseEvent(events.DraftDeletedEvent, draft.ID, pid.Value, draft.ParentID, identity, plan),
		Hard:          result.Hard,
		ParentRemoved: result.ParentRemoved,
	}

	d.logger.InfoContext(ctx, "Draft deleted", "pid", pid.Value, "draft_id", draft.ID, "hard", result.Hard, "parent_removed", result.ParentRemoved)

	result.IndexErr = d.afterCommit(ctx, plan, event, draft.ParentID)

	return result, nil
}

func (d *Drafts) deleteDraft(ctx context.Context, tx persistence.Transaction, identity models.Identity, pid *models.PersistentIdentifier, draft *models.Draft, plan *search.Plan, result *DeleteResult) error {
	lineage, err := persistence.LoadLineage(ctx, tx, draft.ParentID)
	if err != nil {
		return err
	}

	state := lineage.State

	record, err := tx.RecordByID(ctx, draft.ID)

	switch {
	case persistence.IsNotFound(err):
		record = nil
	case err != nil:
		return err
	}

	published := record != nil
	result.Hard = !published

	if err := d.observers.OnDeleteDraft(ctx, tx, identity, draft, result.Hard); err != nil {
		return err
	}

	if published {
		draft.SoftDelete(d.now())

		if err := tx.SaveDraft(ctx, draft); err != nil {
			return err
		}
	} else {
		if err := tx.DeleteDraft(ctx, draft.ID); err != nil {
			return err
		}

		if err := d.minter.Release(ctx, tx, pid); err != nil {
			return err
		}
	}

	if state.IsNextDraft(draft.ID) {
		state.ClearNextDraft()

		if err := tx.SaveParentState(ctx, state); err != nil {
			return err
		}
	}

	plan.Delete(search.KindDraft, draft.ID, true)

	if published {
		plan.Index(recordDocument(record, pid.Value, state, false), true)
	}

	if !published {
		refs, err := tx.CountParentReferences(ctx, draft.ParentID)
		if err != nil {
			return err
		}

		if refs == 0 {
			return d.deleteLineage(ctx, tx, lineage.Parent.ID, result)
		}
	}

	return d.reindexLatestDraft(ctx, tx, state, draft.ID, plan)
}

// deleteLineage removes a parent that no draft or record refers to anymore.
func (d *Drafts) deleteLineage(ctx context.Context, tx persistence.Transaction, parentID string, result *DeleteResult) error {
	concept, err := tx.IdentifierByTarget(ctx, models.PIDTypeConcept, parentID)

	switch {
	case err == nil:
		if err := tx.DeleteIdentifier(ctx, concept.Type, concept.Value); err != nil {
			return err
		}
	case !persistence.IsNotFound(err):
		return err
	}

	if err := tx.DeleteParentState(ctx, parentID); err != nil {
		return err
	}

	if err := tx.DeleteParent(ctx, parentID); err != nil {
		return err
	}

	result.ParentRemoved = true

	return nil
}

// reindexLatestDraft refreshes the live draft the lineage now considers latest, since its
// computed latest flag may have changed. skipID is a draft already handled by the caller.
func (d *Drafts) reindexLatestDraft(ctx context.Context, tx persistence.Transaction, state *models.ParentState, skipID string, plan *search.Plan) error {
	latestID := state.LatestDraftID()
	if latestID == "" || latestID == skipID {
		return nil
	}

	latest, err := tx.DraftByID(ctx, latestID, false)
	if persistence.IsNotFound(err) {
		return nil
	}

	if err != nil {
		return err
	}

	pid, err := d.pidValue(ctx, tx, latest.ID)
	if err != nil {
		return err
	}

	published, err := d.hasRecord(ctx, tx, latest.ID)
	if err != nil {
		return err
	}

	plan.Index(draftDocument(latest, pid, state, published), true)

	return nil
}

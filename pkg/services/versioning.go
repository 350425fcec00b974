package services

import (
	"context"

	"github.com/dukex/drafts/pkg/events"
	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/permissions"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/search"
	"github.com/google/uuid"
)

// Edit opens a published record for editing. A live draft is returned as is. Otherwise
// the soft-deleted draft left by the last publish is revived with the record content, or
// a fresh draft is forked when no draft row survives.
func (d *Drafts) Edit(ctx context.Context, identity models.Identity, id string) (result *DraftResult, err error) {
	const op = "edit"

	ctx, done := d.operation(ctx, op, identity, id)
	defer func() { done(err, result.indexError(), result.spanAttributes()...) }()

	var (
		draft   *models.Draft
		pid     *models.PersistentIdentifier
		changed bool
		plan    = &search.Plan{}
	)

	err = d.transaction(ctx, op, plan, func(ctx context.Context, tx persistence.Transaction) error {
		var err error

		changed = false

		pid, err = d.resolver.Resolve(ctx, tx, id, false)
		if err != nil {
			return err
		}

		existing, err := tx.DraftByID(ctx, pid.TargetID, true)

		switch {
		case err == nil && !existing.IsDeleted():
			draft = existing

			return d.checker.Require(ctx, identity, permissions.ActionEdit, draft)
		case err != nil && !persistence.IsNotFound(err):
			return err
		case err != nil:
			existing = nil
		}

		_, record, err := d.resolver.ResolveRecord(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := d.checker.Require(ctx, identity, permissions.ActionEdit, record); err != nil {
			return err
		}

		now := d.now()

		if existing != nil {
			draft = existing
			draft.Data = models.CloneData(record.Data)
			draft.VersionIndex = record.VersionIndex
			draft.Undelete(now)
		} else {
			draft = &models.Draft{
				ParentRef:    record.ParentRef,
				ID:           record.ID,
				VersionIndex: record.VersionIndex,
				CreatedBy:    record.CreatedBy,
				Data:         models.CloneData(record.Data),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
		}

		draft.SetFork(record.RevisionID)

		if err := d.observers.OnEdit(ctx, tx, identity, draft, record); err != nil {
			return err
		}

		if err := tx.SaveDraft(ctx, draft); err != nil {
			return err
		}

		state, err := tx.ParentStateByID(ctx, draft.ParentID)
		if err != nil {
			return err
		}

		plan.Index(draftDocument(draft, pid.Value, state, true), false)
		plan.Index(recordDocument(record, pid.Value, state, true), false)

		changed = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		return &DraftResult{Draft: draft, PID: pid}, nil
	}

	event := events.DraftEdited{
		BaseEvent:     d.baseEvent(events.DraftEditedEvent, draft.ID, pid.Value, draft.ParentID, identity, plan),
		ForkVersionID: *draft.ForkVersionID,
	}

	d.logger.InfoContext(ctx, "Record opened for editing", "pid", pid.Value, "draft_id", draft.ID, "fork_version_id", *draft.ForkVersionID)

	return &DraftResult{
		Draft:    draft,
		PID:      pid,
		IndexErr: d.afterCommit(ctx, plan, event, draft.ParentID),
	}, nil
}

// Publish turns a draft into a record. Content is validated strictly and nothing is
// written unless every step succeeds. The first publish of a UUID registers its
// identifier and makes it the latest version of the lineage; later publishes bump the
// record revision.
func (d *Drafts) Publish(ctx context.Context, identity models.Identity, id string, revision *int) (result *RecordResult, err error) {
	const op = "publish"

	ctx, done := d.operation(ctx, op, identity, id)
	defer func() { done(err, result.indexError(), result.spanAttributes()...) }()

	var (
		record *models.Record
		draft  *models.Draft
		pid    *models.PersistentIdentifier
		first  bool
		plan   = &search.Plan{}
	)

	err = d.transaction(ctx, op, plan, func(ctx context.Context, tx persistence.Transaction) error {
		var err error

		pid, draft, err = d.resolver.ResolveDraft(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := d.checker.Require(ctx, identity, permissions.ActionPublish, draft); err != nil {
			return err
		}

		if err := checkRevision(op, revision, draft.RevisionID); err != nil {
			return err
		}

		validated, _, err := d.validator.Validate(draft.Data, true)
		if err != nil {
			return err
		}

		draft.Data = validated

		lineage, err := persistence.LoadLineage(ctx, tx, draft.ParentID)
		if err != nil {
			return err
		}

		state := lineage.State
		previousLatest := state.LatestID
		now := d.now()

		record, err = tx.RecordByID(ctx, draft.ID)

		switch {
		case err == nil:
			first = false

			record.UpdateFromDraft(draft, now)
		case persistence.IsNotFound(err):
			first = true

			record = models.NewRecordFromDraft(draft, now)

			if err := d.registerLineage(ctx, tx, pid, lineage); err != nil {
				return err
			}

			state.SetLatest(record.ID, record.VersionIndex)

			if state.IsNextDraft(draft.ID) {
				state.ClearNextDraft()
			}
		default:
			return err
		}

		if err := d.observers.OnPublish(ctx, tx, identity, draft, record); err != nil {
			return err
		}

		if err := tx.SaveRecord(ctx, record); err != nil {
			return err
		}

		if first {
			if err := tx.SaveParentState(ctx, state); err != nil {
				return err
			}
		}

		draft.SoftDelete(now)

		if err := tx.SaveDraft(ctx, draft); err != nil {
			return err
		}

		plan.Delete(search.KindDraft, draft.ID, false)
		plan.Index(recordDocument(record, pid.Value, state, false), false)

		if first && previousLatest != nil && *previousLatest != record.ID {
			return d.reindexRecord(ctx, tx, *previousLatest, state, plan)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	event := events.DraftPublished{
		BaseEvent:    d.baseEvent(events.DraftPublishedEvent, record.ID, pid.Value, record.ParentID, identity, plan),
		RevisionID:   record.RevisionID,
		VersionIndex: record.VersionIndex,
		FirstPublish: first,
	}

	d.logger.InfoContext(ctx, "Draft published", "pid", pid.Value, "record_id", record.ID, "revision_id", record.RevisionID, "version_index", record.VersionIndex, "first_publish", first)

	return &RecordResult{
		Record:   record,
		PID:      pid,
		IndexErr: d.afterCommit(ctx, plan, event, record.ParentID),
	}, nil
}

// registerLineage registers the record identifier and the concept identifier of its
// lineage. The concept identifier is already registered from the second version on.
func (d *Drafts) registerLineage(ctx context.Context, tx persistence.Transaction, pid *models.PersistentIdentifier, lineage *persistence.Lineage) error {
	if err := d.minter.Register(ctx, tx, pid); err != nil {
		return err
	}

	concept, err := tx.IdentifierByTarget(ctx, models.PIDTypeConcept, lineage.Parent.ID)
	if persistence.IsNotFound(err) {
		return nil
	}

	if err != nil {
		return err
	}

	return d.minter.Register(ctx, tx, concept)
}

// reindexRecord refreshes a record whose computed flags depend on the lineage state.
func (d *Drafts) reindexRecord(ctx context.Context, tx persistence.Transaction, id string, state *models.ParentState, plan *search.Plan) error {
	record, err := tx.RecordByID(ctx, id)
	if persistence.IsNotFound(err) {
		return nil
	}

	if err != nil {
		return err
	}

	pid, err := d.pidValue(ctx, tx, id)
	if err != nil {
		return err
	}

	hasDraft, err := d.hasLiveDraft(ctx, tx, id)
	if err != nil {
		return err
	}

	plan.Index(recordDocument(record, pid, state, hasDraft), false)

	return nil
}

// NewVersion opens the next version of the lineage the record belongs to. While a
// next-version draft is pending it is returned instead of a new one.
func (d *Drafts) NewVersion(ctx context.Context, identity models.Identity, id string) (result *DraftResult, err error) {
	const op = "new_version"

	ctx, done := d.operation(ctx, op, identity, id)
	defer func() { done(err, result.indexError(), result.spanAttributes()...) }()

	var (
		draft   *models.Draft
		pid     *models.PersistentIdentifier
		source  *models.Record
		created bool
		plan    = &search.Plan{}
	)

	err = d.transaction(ctx, op, plan, func(ctx context.Context, tx persistence.Transaction) error {
		var err error

		created = false

		_, source, err = d.resolver.ResolveRecord(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := d.checker.Require(ctx, identity, permissions.ActionNewVersion, source); err != nil {
			return err
		}

		lineage, err := persistence.LoadLineage(ctx, tx, source.ParentID)
		if err != nil {
			return err
		}

		state := lineage.State

		if state.NextDraftID != nil {
			pending, err := tx.DraftByID(ctx, *state.NextDraftID, false)

			switch {
			case err == nil:
				draft = pending

				pid, err = tx.IdentifierByTarget(ctx, models.PIDTypeRecord, pending.ID)

				return err
			case !persistence.IsNotFound(err):
				return err
			}
		}

		now := d.now()
		versionIndex := lineage.Parent.NextVersion(now)

		draft = &models.Draft{
			ParentRef:    source.ParentRef,
			ID:           uuid.NewString(),
			VersionIndex: versionIndex,
			CreatedBy:    source.CreatedBy,
			Data:         models.CloneData(source.Data),
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		pid, err = d.minter.Mint(ctx, tx, models.PIDTypeRecord, draft.ID)
		if err != nil {
			return err
		}

		state.SetNextDraft(draft.ID)

		if err := d.observers.OnNewVersion(ctx, tx, identity, draft, source); err != nil {
			return err
		}

		if err := tx.SaveParent(ctx, lineage.Parent); err != nil {
			return err
		}

		if err := tx.SaveParentState(ctx, state); err != nil {
			return err
		}

		if err := tx.SaveDraft(ctx, draft); err != nil {
			return err
		}

		plan.Index(draftDocument(draft, pid.Value, state, false), false)

		if state.LatestID != nil {
			if err := d.reindexPreviousLatestDraft(ctx, tx, *state.LatestID, state, plan); err != nil {
				return err
			}
		}

		created = true

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !created {
		return &DraftResult{Draft: draft, PID: pid}, nil
	}

	event := events.DraftNewVersion{
		BaseEvent:      d.baseEvent(events.DraftNewVersionEvent, draft.ID, pid.Value, draft.ParentID, identity, plan),
		SourceRecordID: source.ID,
		VersionIndex:   draft.VersionIndex,
	}

	d.logger.InfoContext(ctx, "New version opened", "pid", pid.Value, "draft_id", draft.ID, "source_record_id", source.ID, "version_index", draft.VersionIndex)

	return &DraftResult{
		Draft:    draft,
		PID:      pid,
		IndexErr: d.afterCommit(ctx, plan, event, draft.ParentID),
	}, nil
}

// reindexPreviousLatestDraft refreshes the edit draft of the latest record, which stops
// being the latest draft once a new version is pending.
func (d *Drafts) reindexPreviousLatestDraft(ctx context.Context, tx persistence.Transaction, latestID string, state *models.ParentState, plan *search.Plan) error {
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

	plan.Index(draftDocument(latest, pid, state, true), false)

	return nil
}

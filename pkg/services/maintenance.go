package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/search"
)

// Reindex rebuilds the index entries of a UUID from the store. It is idempotent and is
// the recovery path for index updates lost after a commit.
func (d *Drafts) Reindex(ctx context.Context, id string) (err error) {
	const op = "reindex"

	ctx, done := d.operation(ctx, op, models.SystemIdentity, id)

	var indexErr error
	defer func() { done(err, indexErr) }()

	plan := &search.Plan{}

	err = d.transaction(ctx, op, plan, func(ctx context.Context, tx persistence.Transaction) error {
		pid, err := d.pidValue(ctx, tx, id)
		if err != nil {
			return err
		}

		draft, err := tx.DraftByID(ctx, id, false)

		switch {
		case persistence.IsNotFound(err):
			draft = nil
		case err != nil:
			return err
		}

		record, err := tx.RecordByID(ctx, id)

		switch {
		case persistence.IsNotFound(err):
			record = nil
		case err != nil:
			return err
		}

		var state *models.ParentState

		switch {
		case draft != nil:
			state, err = tx.ParentStateByID(ctx, draft.ParentID)
		case record != nil:
			state, err = tx.ParentStateByID(ctx, record.ParentID)
		}

		if err != nil {
			return err
		}

		if draft != nil {
			plan.Index(draftDocument(draft, pid, state, record != nil), false)
		} else {
			plan.Delete(search.KindDraft, id, false)
		}

		if record != nil {
			plan.Index(recordDocument(record, pid, state, draft != nil), false)
		} else {
			plan.Delete(search.KindRecord, id, false)
		}

		return nil
	})
	if err != nil {
		return err
	}

	indexErr = d.sync.Apply(ctx, plan)

	return indexErr
}

type expiredDraft struct {
	id  string
	pid string
}

// ExpireDrafts deletes every live draft whose expiry is at or before now, following the
// same rules as DeleteDraft. It returns how many drafts were removed.
func (d *Drafts) ExpireDrafts(ctx context.Context, now time.Time) (int, error) {
	const op = "expire_drafts"

	var expired []expiredDraft

	err := d.transaction(ctx, op, &search.Plan{}, func(ctx context.Context, tx persistence.Transaction) error {
		expired = expired[:0]

		drafts, err := tx.ExpiredDrafts(ctx, now)
		if err != nil {
			return err
		}

		for _, draft := range drafts {
			pid, err := d.pidValue(ctx, tx, draft.ID)
			if err != nil {
				return err
			}

			if pid == "" {
				d.logger.WarnContext(ctx, "Expired draft has no identifier", "draft_id", draft.ID)

				continue
			}

			expired = append(expired, expiredDraft{id: draft.ID, pid: pid})
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	var (
		count int
		errs  []error
	)

	for _, e := range expired {
		_, err := d.DeleteDraft(ctx, models.SystemIdentity, e.pid, nil)

		switch {
		case err == nil:
			count++
		case IsNotFound(err):
			d.logger.DebugContext(ctx, "Expired draft already gone", "draft_id", e.id)
		default:
			errs = append(errs, fmt.Errorf("draft %s: %w", e.id, err))
		}
	}

	d.metrics.AddExpired(count)

	if count > 0 || len(errs) > 0 {
		d.logger.InfoContext(ctx, "Expired drafts removed", "removed", count, "failed", len(errs))
	}

	return count, errors.Join(errs...)
}

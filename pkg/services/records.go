package services

import (
	"context"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/permissions"
	"github.com/dukex/drafts/pkg/persistence"
	"github.com/dukex/drafts/pkg/search"
)

// Read returns the published record behind a registered identifier.
func (d *Drafts) Read(ctx context.Context, identity models.Identity, id string) (result *RecordResult, err error) {
	const op = "read"

	ctx, done := d.operation(ctx, op, identity, id)
	defer func() { done(err, nil, result.spanAttributes()...) }()

	err = d.transaction(ctx, op, &search.Plan{}, func(ctx context.Context, tx persistence.Transaction) error {
		pid, record, err := d.resolver.ResolveRecord(ctx, tx, id)
		if err != nil {
			return err
		}

		if err := d.checker.Require(ctx, identity, permissions.ActionRead, record); err != nil {
			return err
		}

		result = &RecordResult{Record: record, PID: pid}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Search lists published records the caller may read.
func (d *Drafts) Search(ctx context.Context, identity models.Identity, query search.Query) (result *search.Result, err error) {
	const op = "search"

	ctx, done := d.operation(ctx, op, identity, "")
	defer func() { done(err, nil) }()

	err = d.checker.Require(ctx, identity, permissions.ActionSearch, nil)
	if err != nil {
		return nil, err
	}

	query.Kind = search.KindRecord
	query.ExcludeShadowed = false
	query.Allow = d.allow(ctx, identity, permissions.ActionRead)

	result, err = d.sync.Search(ctx, query)
	if err != nil {
		return nil, classify(op, err)
	}

	return result, nil
}

// SearchDrafts lists the drafts and records the caller may edit. A record with a live
// draft is left out: the draft stands for it.
func (d *Drafts) SearchDrafts(ctx context.Context, identity models.Identity, query search.Query) (result *search.Result, err error) {
	const op = "search_drafts"

	ctx, done := d.operation(ctx, op, identity, "")
	defer func() { done(err, nil) }()

	err = d.checker.Require(ctx, identity, permissions.ActionSearchDrafts, nil)
	if err != nil {
		return nil, err
	}

	query.Kind = ""
	query.ExcludeShadowed = true
	query.Allow = d.allow(ctx, identity, permissions.ActionReadDraft)

	result, err = d.sync.Search(ctx, query)
	if err != nil {
		return nil, classify(op, err)
	}

	return result, nil
}

func (d *Drafts) allow(ctx context.Context, identity models.Identity, action permissions.Action) func(doc *search.Document) bool {
	return func(doc *search.Document) bool {
		return d.checker.Require(ctx, identity, action, doc) == nil
	}
}
